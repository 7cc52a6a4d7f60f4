package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/userapi/internal/middleware"
	"github.com/hitoshi/userapi/internal/model"
	"github.com/hitoshi/userapi/internal/phone"
	"github.com/hitoshi/userapi/internal/user"
	"github.com/hitoshi/userapi/internal/validation"
)

// maxRequestBodySize はリクエストボディの上限（バイト）。
const maxRequestBodySize = 1 << 20

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// List は全ユーザーを保存順に返す。
	List(ctx context.Context) ([]*model.User, error)
	// Get はパスパラメータのIDでユーザーを取得する。
	Get(ctx context.Context, rawID string) (*model.User, error)
	// Create は入力を検証してユーザーを作成する。
	Create(ctx context.Context, in user.CreateUserInput) (*model.User, error)
	// NormalizePhone は国番号と電話番号の組を正規化する。
	NormalizePhone(ctx context.Context, in user.NormalizePhoneInput) (model.PhoneNumber, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// userSummaryResponse は一覧・詳細で返すユーザー情報。
type userSummaryResponse struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
	Subs      int    `json:"subs"`
}

// createdUserResponse は作成成功時に返すユーザー情報。
type createdUserResponse struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Subs      int    `json:"subs"`
}

// storeUserRequest はユーザー作成のリクエストボディ。
type storeUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
}

// phoneRequest は電話番号正規化のリクエストボディ。
type phoneRequest struct {
	IndicMobile *int64 `json:"indicMobile"`
	Mobile      *int64 `json:"mobile"`
}

// phoneResponse は正規化済みの電話番号。
type phoneResponse struct {
	IndicMobile int    `json:"indicMobile"`
	Mobile      int64  `json:"mobile"`
	E164        string `json:"e164"`
}

func toUserSummary(u *model.User) userSummaryResponse {
	return userSummaryResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		Email:     u.Email,
		Subs:      u.Subs,
	}
}

// Index は全ユーザーの一覧を返す。
// GET /api/user/index
func (h *UserHandler) Index(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]userSummaryResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserSummary(u))
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Show は指定IDのユーザーを返す。
// GET /api/user/show/{id}
func (h *UserHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, toUserSummary(u))
}

// Store はユーザーを作成する。
// POST /api/user/store
//
// JSONオブジェクトとして解釈できないボディ、または文字列以外の値を含むボディは
// 全フィールド未指定として扱う。空文字列も未指定と同じく検証で弾かれる。
func (h *UserHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req storeUserRequest
	if !decodeBody(w, r, &req) {
		req = storeUserRequest{}
	}

	u, err := h.service.Create(r.Context(), user.CreateUserInput{
		FirstName: nonEmpty(req.FirstName),
		LastName:  nonEmpty(req.LastName),
		Email:     nonEmpty(req.Email),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, createdUserResponse{
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Subs:      u.Subs,
	})
}

// NormalizePhone は国番号と電話番号の組を検証して正規化した値を返す。
// POST /api/user/phone
func (h *UserHandler) NormalizePhone(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !decodeBody(w, r, &req) {
		req = phoneRequest{}
	}

	p, err := h.service.NormalizePhone(r.Context(), user.NormalizePhoneInput{
		IndicMobile: req.IndicMobile,
		Mobile:      req.Mobile,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, phoneResponse{
		IndicMobile: p.CountryCode,
		Mobile:      p.NationalNumber,
		E164:        phone.FormatE164(p),
	})
}

// decodeBody はリクエストボディをJSONとしてvにデコードする。失敗した場合はfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.DebugContext(r.Context(), "request body ignored",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// nonEmpty は空文字列をnil（未指定）に揃える。
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// handleServiceError はサービス層から返されたエラーをレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		middleware.WriteJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	// コード付きエラー以外は内部サーバーエラーとして扱う
	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w)
}
