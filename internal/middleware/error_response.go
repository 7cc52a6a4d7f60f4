package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/userapi/internal/model"
)

// MessageInternalError は内部エラー時にクライアントへ返すメッセージ。
const MessageInternalError = "Internal server error"

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// コード未設定の場合、errorはnullになる。
type ErrorResponseBody struct {
	Error   *model.ErrorCode `json:"error"`
	Message string           `json:"message"`
}

// WriteJSON はvをJSONにエンコードしてレスポンスに書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// ステータスはAPIErrorに設定されたものを使う。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	body := ErrorResponseBody{Message: apiErr.Message}
	if apiErr.HasCode() {
		code := apiErr.Code
		body.Error = &code
	}

	status := apiErr.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	WriteJSON(w, status, body)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, &model.APIError{
		Message: MessageInternalError,
		Status:  http.StatusInternalServerError,
	})
}
