package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/userapi/internal/metrics"
	"github.com/hitoshi/userapi/internal/model"
	"github.com/hitoshi/userapi/internal/phone"
	"github.com/hitoshi/userapi/internal/repository"
	"github.com/hitoshi/userapi/internal/security"
	"github.com/hitoshi/userapi/internal/user"
	"github.com/prometheus/client_golang/prometheus"
)

// --- 統合テスト用のステートフルモック ---

// memoryUserRepo はUserRepositoryのインメモリ実装。保存順にIDを採番する。
type memoryUserRepo struct {
	mu      sync.Mutex
	users   []*model.User
	nextID  int64
	saveErr error
}

func newMemoryUserRepo(seed ...*model.User) *memoryUserRepo {
	r := &memoryUserRepo{nextID: 1}
	for _, u := range seed {
		r.users = append(r.users, u)
		if u.ID >= r.nextID {
			r.nextID = u.ID + 1
		}
	}
	return r
}

func (r *memoryUserRepo) FindAll(ctx context.Context) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.User, len(r.users))
	copy(out, r.users)
	return out, nil
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) SaveUser(ctx context.Context, firstName, lastName, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	for _, u := range r.users {
		if u.Email == email {
			return nil, fmt.Errorf("failed to insert user: %w", repository.ErrDuplicateEmail)
		}
	}
	u := &model.User{
		ID:        r.nextID,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		CreatedAt: time.Now(),
	}
	r.nextID++
	r.users = append(r.users, u)
	return u, nil
}

var _ repository.UserRepository = (*memoryUserRepo)(nil)

// --- 統合テスト用ルーター構築ヘルパー ---

func createIntegrationRouter(repo repository.UserRepository) (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	svc := user.NewService(repo, security.NewNameSanitizer(), phone.NewNormalizer(), collector)

	return NewRouter(&RouterDeps{
		Logger:            quietLogger(),
		CORSAllowedOrigin: "http://localhost:3000",
		Metrics:           collector,
		Gatherer:          reg,
		HealthChecker:     &mockHealthChecker{},
		UserService:       svc,
	}), reg
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func testFixtureUser() *model.User {
	return &model.User{ID: 1, FirstName: "Test", LastName: "User", Email: "test@gmail.com", Subs: 200}
}

// --- テスト ---

func TestIntegration_ShowExistingUser(t *testing.T) {
	router, _ := createIntegrationRouter(newMemoryUserRepo(testFixtureUser()))

	w := doRequest(t, router, http.MethodGet, "/api/user/show/1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	want := map[string]any{"firstName": "Test", "id": float64(1), "email": "test@gmail.com", "subs": float64(200)}
	if len(got) != len(want) {
		t.Fatalf("body = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestIntegration_ShowMissingOrInvalidID(t *testing.T) {
	router, _ := createIntegrationRouter(newMemoryUserRepo(testFixtureUser()))

	for _, path := range []string{"/api/user/show/999", "/api/user/show/abc", "/api/user/show/0", "/api/user/show/-3"} {
		t.Run(path, func(t *testing.T) {
			w := doRequest(t, router, http.MethodGet, path, "")

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			want := `{"error":1,"message":"Bad id or user not found"}`
			if got := strings.TrimSpace(w.Body.String()); got != want {
				t.Errorf("body = %s, want %s", got, want)
			}
		})
	}
}

// 同じIDへの繰り返しGETは書き込みが無い限り同じボディを返す
func TestIntegration_ShowIsIdempotent(t *testing.T) {
	router, _ := createIntegrationRouter(newMemoryUserRepo(testFixtureUser()))

	first := doRequest(t, router, http.MethodGet, "/api/user/show/1", "").Body.String()
	for i := 0; i < 3; i++ {
		if got := doRequest(t, router, http.MethodGet, "/api/user/show/1", "").Body.String(); got != first {
			t.Errorf("request %d: body = %s, want %s", i, got, first)
		}
	}
}

// 作成したユーザーが保存順で一覧に現れる
func TestIntegration_StoreThenIndex(t *testing.T) {
	router, reg := createIntegrationRouter(newMemoryUserRepo(testFixtureUser()))

	w := doRequest(t, router, http.MethodPost, "/api/user/store", `{"firstName":"A","lastName":"B","email":"a@b.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("store status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	want := `{"email":"a@b.com","firstName":"A","lastName":"B","subs":0}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("store body = %s, want %s", got, want)
	}

	w = doRequest(t, router, http.MethodGet, "/api/user/index", "")
	if w.Code != http.StatusOK {
		t.Fatalf("index status = %d, want %d", w.Code, http.StatusOK)
	}
	wantIndex := `[{"id":1,"firstName":"Test","email":"test@gmail.com","subs":200},{"id":2,"firstName":"A","email":"a@b.com","subs":0}]`
	if got := strings.TrimSpace(w.Body.String()); got != wantIndex {
		t.Errorf("index body = %s, want %s", got, wantIndex)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "userapi_users_created_total" {
			found = true
			if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 1 {
				t.Errorf("users_created_total = %v, want 1", v)
			}
		}
	}
	if !found {
		t.Error("userapi_users_created_total not found")
	}
}

func TestIntegration_StoreValidation(t *testing.T) {
	repo := newMemoryUserRepo()
	router, _ := createIntegrationRouter(repo)

	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			name: "firstNameが空",
			body: `{"firstName":"","lastName":"B","email":"a@b.com"}`,
			want: map[string]string{"firstName": "The first name field is required"},
		},
		{
			name: "ボディが空オブジェクト",
			body: `{}`,
			want: map[string]string{
				"firstName": "The first name field is required",
				"lastName":  "The last name field is required",
				"email":     "The email field is required",
			},
		},
		{
			name: "emailが長すぎる",
			body: fmt.Sprintf(`{"firstName":"A","lastName":"B","email":"%s"}`, strings.Repeat("x", 181)),
			want: map[string]string{"email": "Your email should not be more than 180 character long"},
		},
		{
			name: "不正なJSON",
			body: `not json`,
			want: map[string]string{
				"firstName": "The first name field is required",
				"lastName":  "The last name field is required",
				"email":     "The email field is required",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, router, http.MethodPost, "/api/user/store", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var got map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("body = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}

	if users, _ := repo.FindAll(context.Background()); len(users) != 0 {
		t.Errorf("no user should be persisted, got %d", len(users))
	}
}

// 180文字ちょうどのemailは受け付ける
func TestIntegration_StoreEmailAtLimit(t *testing.T) {
	router, _ := createIntegrationRouter(newMemoryUserRepo())

	email := strings.Repeat("x", 180)
	w := doRequest(t, router, http.MethodPost, "/api/user/store", fmt.Sprintf(`{"firstName":"A","lastName":"B","email":"%s"}`, email))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestIntegration_StorePersistenceFailure(t *testing.T) {
	repo := newMemoryUserRepo()
	repo.saveErr = fmt.Errorf("connection reset")
	router, _ := createIntegrationRouter(repo)

	w := doRequest(t, router, http.MethodPost, "/api/user/store", `{"firstName":"A","lastName":"B","email":"a@b.com"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	want := `{"error":2,"message":"Could not create user"}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestIntegration_StoreDuplicateEmail(t *testing.T) {
	router, _ := createIntegrationRouter(newMemoryUserRepo(testFixtureUser()))

	w := doRequest(t, router, http.MethodPost, "/api/user/store", `{"firstName":"A","lastName":"B","email":"test@gmail.com"}`)

	want := `{"error":2,"message":"Could not create user"}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

// 名前のマークアップは保存前に除去される
func TestIntegration_StoreSanitizesNames(t *testing.T) {
	router, _ := createIntegrationRouter(newMemoryUserRepo())

	w := doRequest(t, router, http.MethodPost, "/api/user/store", `{"firstName":"<b>Ann</b>","lastName":"<script>x</script>Lee","email":"ann@lee.com"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	want := `{"email":"ann@lee.com","firstName":"Ann","lastName":"Lee","subs":0}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

// 実体参照でエンコードされたマークアップも保存前に除去され、一覧に現れない
func TestIntegration_StoreStripsEncodedMarkup(t *testing.T) {
	router, _ := createIntegrationRouter(newMemoryUserRepo())

	w := doRequest(t, router, http.MethodPost, "/api/user/store",
		`{"firstName":"&lt;script&gt;x&lt;/script&gt;Ann","lastName":"&amp;lt;b&amp;gt;Lee&amp;lt;/b&amp;gt;","email":"ann@lee.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	want := `{"email":"ann@lee.com","firstName":"Ann","lastName":"Lee","subs":0}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}

	w = doRequest(t, router, http.MethodGet, "/api/user/index", "")
	if w.Code != http.StatusOK {
		t.Fatalf("index status = %d, want %d", w.Code, http.StatusOK)
	}
	var users []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &users); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	for _, u := range users {
		if name, _ := u["firstName"].(string); strings.Contains(name, "<") {
			t.Errorf("index returned markup in firstName: %q", name)
		}
	}
}

// エンコードされたscriptのみの名前は空になり、必須エラーになる
func TestIntegration_StoreEncodedScriptOnlyName(t *testing.T) {
	repo := newMemoryUserRepo()
	router, _ := createIntegrationRouter(repo)

	w := doRequest(t, router, http.MethodPost, "/api/user/store",
		`{"firstName":"&lt;script&gt;alert(1)&lt;/script&gt;","lastName":"Lee","email":"x@lee.com"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
	want := `{"firstName":"The first name field is required"}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
	if len(repo.users) != 0 {
		t.Errorf("expected nothing persisted, got %d users", len(repo.users))
	}
}

func TestIntegration_NormalizePhone(t *testing.T) {
	router, _ := createIntegrationRouter(newMemoryUserRepo())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"有効な番号", `{"indicMobile":33,"mobile":612345678}`, http.StatusOK, `{"indicMobile":33,"mobile":612345678,"e164":"+33612345678"}`},
		{"国番号のみ", `{"indicMobile":33}`, http.StatusBadRequest, `{"error":4,"message":"Please indicate indicMobile and mobile at the same time"}`},
		{"電話番号のみ", `{"mobile":612345678}`, http.StatusBadRequest, `{"error":4,"message":"Please indicate indicMobile and mobile at the same time"}`},
		{"無効な番号", `{"indicMobile":33,"mobile":1}`, http.StatusBadRequest, `{"error":3,"message":"Could not validate mobile format"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, router, http.MethodPost, "/api/user/phone", tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(w.Body.String()); got != tt.wantBody {
				t.Errorf("body = %s, want %s", got, tt.wantBody)
			}
		})
	}
}
