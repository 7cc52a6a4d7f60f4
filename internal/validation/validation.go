// Package validation はリクエストフィールドの宣言的な制約チェックを提供する。
//
// フィールドごとに検証関数を並べ、1回の検証パスで「フィールド名→メッセージ」の対応を組み立てる。
// 同じフィールドで複数の違反があった場合は後に評価された関数のメッセージが残る。
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate は制約タグの評価に使う共有インスタンス。
// validator.Validateはキャッシュを持ち並行利用できる。
var validate = validator.New()

// FieldValidator は1つのフィールド値を検証する関数。
// 違反した場合はメッセージとfalseを返す。
type FieldValidator func(value string) (string, bool)

// Tag はgo-playground/validatorの制約タグで値を検証するFieldValidatorを返す。
func Tag(tag, message string) FieldValidator {
	return func(value string) (string, bool) {
		if err := validate.Var(value, tag); err != nil {
			return message, false
		}
		return "", true
	}
}

// Required は空文字列を違反とする。空白のみの値は違反としない。
func Required(message string) FieldValidator {
	return Tag("required", message)
}

// MinLength は文字数（rune数）がmin未満の値を違反とする。
func MinLength(min int, message string) FieldValidator {
	return Tag(fmt.Sprintf("min=%d", min), message)
}

// MaxLength は文字数（rune数）がmaxを超える値を違反とする。
func MaxLength(max int, message string) FieldValidator {
	return Tag(fmt.Sprintf("max=%d", max), message)
}

// Errors はフィールド名からメッセージへの対応。違反が無ければ空。
type Errors map[string]string

// Error はerrorインターフェースを実装する。フィールド名順に連結する。
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + e[f]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// field は1フィールド分の検証定義。
type field struct {
	name       string
	validators []FieldValidator
}

// Router はフィールドごとの検証関数を保持し、入力全体を1回で検証する。
type Router struct {
	fields []field
}

// NewRouter は空のRouterを生成する。
func NewRouter() *Router {
	return &Router{}
}

// Field はフィールドの検証関数を登録する。検証は登録順に行う。
func (r *Router) Field(name string, validators ...FieldValidator) *Router {
	r.fields = append(r.fields, field{name: name, validators: validators})
	return r
}

// Validate は入力を検証し、違反があったフィールドのメッセージを返す。
// 入力に存在しないフィールドは空文字列として検証する。
// 全て通過した場合は空のErrorsを返す。
func (r *Router) Validate(input map[string]string) Errors {
	errs := Errors{}
	for _, f := range r.fields {
		value := input[f.name]
		for _, v := range f.validators {
			if msg, ok := v(value); !ok {
				errs[f.name] = msg
			}
		}
	}
	return errs
}
