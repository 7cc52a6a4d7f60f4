// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer はユーザー名などのプレーンテキスト入力からマークアップを除去する。
// bluemondayのStrictPolicyで全てのタグを落とし、エスケープされた実体参照は元の文字に戻す。
// 実体参照を戻した結果に再びタグが現れる場合は、変化がなくなるまで繰り返す。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト入力のサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize はタグを除去したプレーンテキストを返す。
	// script、styleタグは中身ごと除去する。空文字列には空文字列を返す。
	Sanitize(raw string) string
}

// maxSanitizePasses は除去と実体参照の復元を繰り返す上限。
// 上限までに収束しない入力は多重にエンコードされたマークアップとみなし、空にする。
const maxSanitizePasses = 8

// NameSanitizer はTextSanitizerの実装。スレッドセーフに利用できる。
type NameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerを生成する。
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// "Tom & Jerry" や "O'Brien" のような文字はそのまま保持する。
func (s *NameSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cur := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(cur))
		if next == cur {
			return next
		}
		cur = next
	}
	return ""
}

var _ TextSanitizer = (*NameSanitizer)(nil)
