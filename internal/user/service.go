// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hitoshi/userapi/internal/model"
	"github.com/hitoshi/userapi/internal/repository"
	"github.com/hitoshi/userapi/internal/security"
	"github.com/hitoshi/userapi/internal/validation"
)

// 作成リクエストのフィールド名
const (
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
	FieldEmail     = "email"
)

// 電話番号正規化の結果ラベル
const (
	PhoneResultValid      = "valid"
	PhoneResultInvalid    = "invalid"
	PhoneResultIncomplete = "incomplete"
)

// PhoneNormalizer は国番号と国内番号の組を正規化するインターフェース。
type PhoneNormalizer interface {
	Normalize(countryCode int, nationalNumber int64) (model.PhoneNumber, error)
}

// MetricsRecorder はドメインイベントを記録するインターフェース。
type MetricsRecorder interface {
	RecordUserCreated()
	RecordValidationFailure(field string)
	RecordPhoneNormalization(result string)
}

// CreateUserInput はユーザー作成の入力。nilはフィールド未指定を表す。
type CreateUserInput struct {
	FirstName *string
	LastName  *string
	Email     *string
}

// NormalizePhoneInput は電話番号正規化の入力。nilはフィールド未指定を表す。
type NormalizePhoneInput struct {
	IndicMobile *int64
	Mobile      *int64
}

// Service はユーザー管理のサービス層。
// 戻り値のエラーは *model.APIError、validation.Errors、それ以外の内部エラーのいずれか。
type Service struct {
	repo      repository.UserRepository
	sanitizer security.TextSanitizer
	phone     PhoneNormalizer
	metrics   MetricsRecorder
	validator *validation.Router
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsがnilの場合は記録しない。
func NewService(
	repo repository.UserRepository,
	sanitizer security.TextSanitizer,
	phone PhoneNormalizer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		phone:     phone,
		metrics:   metrics,
		validator: newCreateUserValidator(),
	}
}

// newCreateUserValidator はユーザー作成時の検証ルールを組み立てる。
// 長さ→必須の順に評価し、空の場合は必須のメッセージが残る。
func newCreateUserValidator() *validation.Router {
	return validation.NewRouter().
		Field(FieldFirstName,
			validation.MinLength(1, "Your first name should be atleast 1 character long"),
			validation.Required("The first name field is required"),
		).
		Field(FieldLastName,
			validation.MinLength(1, "Your last name should be atleast 1 character long"),
			validation.Required("The last name field is required"),
		).
		Field(FieldEmail,
			validation.MaxLength(model.EmailMaxLength, fmt.Sprintf("Your email should not be more than %d character long", model.EmailMaxLength)),
			validation.Required("The email field is required"),
		)
}

// List は全ユーザーをID昇順で返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Get はパスパラメータのIDでユーザーを取得する。
// IDが正の整数でない場合、またはユーザーが存在しない場合はコード1のエラーを返す。
func (s *Service) Get(ctx context.Context, rawID string) (*model.User, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return nil, model.NewUserNotFoundError()
	}

	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// Create は入力を検証してユーザーを作成する。
// 検証違反はvalidation.Errors、永続化の失敗はコード2のエラーを返す。
func (s *Service) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	fields := map[string]string{
		FieldFirstName: s.sanitize(in.FirstName),
		FieldLastName:  s.sanitize(in.LastName),
		FieldEmail:     deref(in.Email),
	}

	if errs := s.validator.Validate(fields); len(errs) > 0 {
		if s.metrics != nil {
			for field := range errs {
				s.metrics.RecordValidationFailure(field)
			}
		}
		return nil, errs
	}

	u, err := s.repo.SaveUser(ctx, fields[FieldFirstName], fields[FieldLastName], fields[FieldEmail])
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			slog.WarnContext(ctx, "ユーザーを作成できませんでした",
				slog.String("reason", "duplicate_email"),
			)
		} else {
			slog.ErrorContext(ctx, "ユーザーの保存に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		return nil, model.NewCreateUserFailedError()
	}

	if s.metrics != nil {
		s.metrics.RecordUserCreated()
	}
	slog.InfoContext(ctx, "ユーザーを作成しました",
		slog.Int64("user_id", u.ID),
	)

	return u, nil
}

// NormalizePhone は国番号と電話番号の組を正規化する。
// 片方のみ、または両方未指定の場合はコード4、番号として無効な場合はコード3のエラーを返す。
func (s *Service) NormalizePhone(ctx context.Context, in NormalizePhoneInput) (model.PhoneNumber, error) {
	if in.IndicMobile == nil || in.Mobile == nil {
		s.recordPhone(PhoneResultIncomplete)
		return model.PhoneNumber{}, model.NewPhonePairIncompleteError()
	}

	p, err := s.phone.Normalize(int(*in.IndicMobile), *in.Mobile)
	if err != nil {
		s.recordPhone(PhoneResultInvalid)
		slog.DebugContext(ctx, "電話番号を検証できませんでした",
			slog.String("error", err.Error()),
		)
		return model.PhoneNumber{}, model.NewInvalidPhoneError()
	}

	s.recordPhone(PhoneResultValid)
	return p, nil
}

func (s *Service) recordPhone(result string) {
	if s.metrics != nil {
		s.metrics.RecordPhoneNormalization(result)
	}
}

// sanitize は名前フィールドからマークアップを除去する。nilは空文字列として扱う。
func (s *Service) sanitize(v *string) string {
	if v == nil {
		return ""
	}
	if s.sanitizer == nil {
		return *v
	}
	return s.sanitizer.Sanitize(*v)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
