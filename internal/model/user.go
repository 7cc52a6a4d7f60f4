// Package model はドメインモデルを定義する。
package model

import "time"

// EmailMaxLength はメールアドレスの最大文字数。
const EmailMaxLength = 180

// User はAPIで管理するユーザーレコードを表す。
// IDはストレージ側で採番される。Subsは作成時に0で初期化され、作成APIからは設定できない。
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Subs      int
	CreatedAt time.Time
}

// PhoneNumber は正規化済みの電話番号を表す。永続化はしない。
type PhoneNumber struct {
	CountryCode    int
	NationalNumber int64
}
