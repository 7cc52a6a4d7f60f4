// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// ErrorCode はクライアントに返すエラーコード。
// ErrCodeNone はコード未設定を表し、レスポンスでは null になる。
type ErrorCode int

// 定義済みエラーコード
const (
	ErrCodeNone                ErrorCode = 0
	ErrCodeUserNotFound        ErrorCode = 1
	ErrCodeCreateUserFailed    ErrorCode = 2
	ErrCodeInvalidPhone        ErrorCode = 3
	ErrCodePhonePairIncomplete ErrorCode = 4
)

// MessageUndefinedError は表に無いコード、またはメッセージ未指定時のメッセージ。
const MessageUndefinedError = "Undefined error"

// errorTable はエラーコードごとの固定メッセージ。
var errorTable = map[ErrorCode]string{
	ErrCodeUserNotFound:        "Bad id or user not found",
	ErrCodeCreateUserFailed:    "Could not create user",
	ErrCodeInvalidPhone:        "Could not validate mobile format",
	ErrCodePhonePairIncomplete: "Please indicate indicMobile and mobile at the same time",
}

// APIError はクライアントに返すコード付きエラーを表す。
type APIError struct {
	Code    ErrorCode // エラーコード
	Message string    // エラーメッセージ
	Status  int       // HTTPステータス
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// HasCode はコードが設定されているかを返す。
func (e *APIError) HasCode() bool {
	return e.Code != ErrCodeNone
}

// MapError はエラーコードを固定のメッセージとHTTPステータス（400）に変換する。
//
// コードが設定されている場合、messageは無視され常に表のメッセージが使われる。
// 表に無いコードは "Undefined error" になる。
// messageが使われるのはコード未設定の場合のみで、空なら "Undefined error" になる。
func MapError(code ErrorCode, message string) *APIError {
	if code != ErrCodeNone {
		msg, ok := errorTable[code]
		if !ok {
			msg = MessageUndefinedError
		}
		return &APIError{Code: code, Message: msg, Status: http.StatusBadRequest}
	}

	if message == "" {
		message = MessageUndefinedError
	}
	return &APIError{Code: ErrCodeNone, Message: message, Status: http.StatusBadRequest}
}

// NewUserNotFoundError はIDが不正またはユーザーが存在しない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return MapError(ErrCodeUserNotFound, "")
}

// NewCreateUserFailedError はユーザー作成に失敗した場合のエラーを生成する。
func NewCreateUserFailedError() *APIError {
	return MapError(ErrCodeCreateUserFailed, "")
}

// NewInvalidPhoneError は電話番号を検証できなかった場合のエラーを生成する。
func NewInvalidPhoneError() *APIError {
	return MapError(ErrCodeInvalidPhone, "")
}

// NewPhonePairIncompleteError は国番号と電話番号の片方しか指定されていない場合のエラーを生成する。
func NewPhonePairIncompleteError() *APIError {
	return MapError(ErrCodePhonePairIncomplete, "")
}
