// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/userapi/internal/model"
)

// ErrDuplicateEmail は同じメールアドレスのユーザーが既に存在する場合のエラー。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindAll は全ユーザーをID昇順で取得する。0件の場合は空スライスを返す。
	FindAll(ctx context.Context) ([]*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// SaveUser はユーザーを作成し、採番されたIDとsubsを含むユーザーを返す。
	// メールアドレスが重複する場合はErrDuplicateEmailをラップしたエラーを返す。
	SaveUser(ctx context.Context, firstName, lastName, email string) (*model.User, error)
}
