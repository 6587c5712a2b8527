package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
	"github.com/ErlanBelekov/fallah-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/fallah-auth/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAuthUsecase implements the unexported authUsecaser interface via method matching.
type fakeAuthUsecase struct {
	requestCode     func(ctx context.Context, phoneNumber string) (*usecase.RequestCodeResult, error)
	verifyCode      func(ctx context.Context, phoneNumber, code string) (*usecase.VerifyResult, error)
	completeProfile func(ctx context.Context, userID string, in usecase.ProfileInput) (*usecase.CompleteProfileResult, error)
	refreshSession  func(ctx context.Context, refreshToken string) (domain.SessionCredentials, error)
	logout          func(ctx context.Context, userID string) error
	getUser         func(ctx context.Context, userID string) (*domain.User, error)
}

func (f *fakeAuthUsecase) RequestCode(ctx context.Context, phoneNumber string) (*usecase.RequestCodeResult, error) {
	return f.requestCode(ctx, phoneNumber)
}

func (f *fakeAuthUsecase) VerifyCode(ctx context.Context, phoneNumber, code string) (*usecase.VerifyResult, error) {
	return f.verifyCode(ctx, phoneNumber, code)
}

func (f *fakeAuthUsecase) CompleteProfile(ctx context.Context, userID string, in usecase.ProfileInput) (*usecase.CompleteProfileResult, error) {
	return f.completeProfile(ctx, userID, in)
}

func (f *fakeAuthUsecase) RefreshSession(ctx context.Context, refreshToken string) (domain.SessionCredentials, error) {
	return f.refreshSession(ctx, refreshToken)
}

func (f *fakeAuthUsecase) Logout(ctx context.Context, userID string) error {
	return f.logout(ctx, userID)
}

func (f *fakeAuthUsecase) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return f.getUser(ctx, userID)
}

const testUserID = "user-1"

func newTestEngine(uc *fakeAuthUsecase, devMode bool) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h := handler.NewAuthHandler(uc, logger, devMode)

	// Stands in for the auth middleware.
	authed := func(c *gin.Context) {
		c.Set("userID", testUserID)
		c.Next()
	}

	r := gin.New()
	r.POST("/send-code", h.SendCode)
	r.POST("/verify", h.Verify)
	r.POST("/refresh-token", h.Refresh)
	r.PUT("/complete-profile", authed, h.CompleteProfile)
	r.POST("/logout", authed, h.Logout)
	r.GET("/me", authed, h.Me)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return m
}

func sampleUser() *domain.User {
	hash, refresh := "$2a$10$hash", "refresh-token"
	return &domain.User{
		ID:           testUserID,
		Username:     "user4567",
		FirstName:    "User",
		LastName:     "4567",
		Email:        domain.TempEmail("15551234567"),
		PhoneNumber:  "+15551234567",
		Role:         domain.RoleUser,
		PasswordHash: hash,
		RefreshToken: &refresh,
		IsOnline:     true,
	}
}

func sampleCreds() domain.SessionCredentials {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.SessionCredentials{
		Access:  domain.Token{Token: "access-jwt", Expires: now.Add(24 * time.Hour)},
		Refresh: domain.Token{Token: "refresh-jwt", Expires: now.Add(7 * 24 * time.Hour)},
	}
}

// ---- SendCode ----

func TestSendCode_InvalidJSON_Returns400(t *testing.T) {
	w := do(t, newTestEngine(&fakeAuthUsecase{}, false), http.MethodPost, "/send-code", `{bad json}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSendCode_MissingPhone_Returns400(t *testing.T) {
	uc := &fakeAuthUsecase{
		requestCode: func(_ context.Context, _ string) (*usecase.RequestCodeResult, error) {
			return nil, fmt.Errorf("%w: phone number is required", domain.ErrValidation)
		},
	}
	w := do(t, newTestEngine(uc, false), http.MethodPost, "/send-code", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if msg, _ := decode(t, w)["error"].(string); !strings.Contains(msg, "phone number is required") {
		t.Errorf("error = %q", msg)
	}
}

func TestSendCode_Success_OmitsCodeOutsideDevMode(t *testing.T) {
	var gotPhone string
	uc := &fakeAuthUsecase{
		requestCode: func(_ context.Context, phoneNumber string) (*usecase.RequestCodeResult, error) {
			gotPhone = phoneNumber
			return &usecase.RequestCodeResult{PhoneNumber: "+15551234567"}, nil
		},
	}
	w := do(t, newTestEngine(uc, false), http.MethodPost, "/send-code", `{"phoneNumber":"15551234567"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotPhone != "15551234567" {
		t.Errorf("usecase got %q", gotPhone)
	}
	body := decode(t, w)
	if body["phoneNumber"] != "+15551234567" || body["message"] == "" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["verificationCode"]; ok {
		t.Error("verificationCode must not be present")
	}
}

func TestSendCode_DevMode_EchoesCode(t *testing.T) {
	uc := &fakeAuthUsecase{
		requestCode: func(_ context.Context, _ string) (*usecase.RequestCodeResult, error) {
			return &usecase.RequestCodeResult{PhoneNumber: "+15551234567", Code: "482913"}, nil
		},
	}
	w := do(t, newTestEngine(uc, true), http.MethodPost, "/send-code", `{"phoneNumber":"+15551234567"}`)

	if got := decode(t, w)["verificationCode"]; got != "482913" {
		t.Errorf("verificationCode = %v, want 482913", got)
	}
}

func TestSendCode_DeliveryFailed_Returns500(t *testing.T) {
	uc := &fakeAuthUsecase{
		requestCode: func(_ context.Context, _ string) (*usecase.RequestCodeResult, error) {
			return nil, domain.ErrDeliveryFailed
		},
	}
	w := do(t, newTestEngine(uc, false), http.MethodPost, "/send-code", `{"phoneNumber":"+15551234567"}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---- Verify ----

func TestVerify_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: missing", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrCodeNotFound, http.StatusBadRequest},
		{domain.ErrCodeExpired, http.StatusBadRequest},
		{domain.ErrCodeMismatch, http.StatusBadRequest},
		{domain.ErrTooManyAttempts, http.StatusTooManyRequests},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			uc := &fakeAuthUsecase{
				verifyCode: func(_ context.Context, _, _ string) (*usecase.VerifyResult, error) {
					return nil, tc.err
				},
			}
			w := do(t, newTestEngine(uc, false), http.MethodPost, "/verify",
				`{"phoneNumber":"+15551234567","verificationCode":"000000"}`)

			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
			body := decode(t, w)
			if msg, _ := body["error"].(string); msg == "" {
				t.Error("missing error message")
			}
			if _, ok := body["detail"]; ok {
				t.Error("detail must be stripped outside dev mode")
			}
		})
	}
}

func TestVerify_Expired_MessageMentionsExpiry(t *testing.T) {
	uc := &fakeAuthUsecase{
		verifyCode: func(_ context.Context, _, _ string) (*usecase.VerifyResult, error) {
			return nil, domain.ErrCodeExpired
		},
	}
	w := do(t, newTestEngine(uc, false), http.MethodPost, "/verify",
		`{"phoneNumber":"+15551234567","verificationCode":"482913"}`)

	if msg, _ := decode(t, w)["error"].(string); !strings.Contains(msg, "expired") {
		t.Errorf("error = %q, want an expiry message", msg)
	}
}

func TestVerify_InternalError_DevModeIncludesDetail(t *testing.T) {
	uc := &fakeAuthUsecase{
		verifyCode: func(_ context.Context, _, _ string) (*usecase.VerifyResult, error) {
			return nil, fmt.Errorf("record login: %w", errors.New("connection refused"))
		},
	}
	w := do(t, newTestEngine(uc, true), http.MethodPost, "/verify",
		`{"phoneNumber":"+15551234567","verificationCode":"482913"}`)

	body := decode(t, w)
	if body["error"] != "Internal server error" {
		t.Errorf("error = %v", body["error"])
	}
	if detail, _ := body["detail"].(string); !strings.Contains(detail, "connection refused") {
		t.Errorf("detail = %q", detail)
	}
}

func TestVerify_Success_ShapesResponse(t *testing.T) {
	uc := &fakeAuthUsecase{
		verifyCode: func(_ context.Context, phoneNumber, code string) (*usecase.VerifyResult, error) {
			if phoneNumber != "+15551234567" || code != "482913" {
				t.Errorf("usecase got %q/%q", phoneNumber, code)
			}
			return &usecase.VerifyResult{User: sampleUser(), Tokens: sampleCreds(), IsNewUser: true}, nil
		},
	}
	w := do(t, newTestEngine(uc, false), http.MethodPost, "/verify",
		`{"phoneNumber":"+15551234567","verificationCode":"482913"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if strings.Contains(w.Body.String(), "$2a$10$hash") || strings.Contains(w.Body.String(), "refresh-token\"") {
		t.Error("response leaks secrets")
	}

	body := decode(t, w)
	if body["isNewUser"] != true {
		t.Errorf("isNewUser = %v", body["isNewUser"])
	}
	user, _ := body["user"].(map[string]any)
	if user["id"] != testUserID || user["phoneNumber"] != "+15551234567" {
		t.Errorf("user = %v", user)
	}
	if _, ok := user["password"]; ok {
		t.Error("password field present")
	}
	tokens, _ := body["tokens"].(map[string]any)
	access, _ := tokens["access"].(map[string]any)
	refresh, _ := tokens["refresh"].(map[string]any)
	if access["token"] != "access-jwt" || refresh["token"] != "refresh-jwt" {
		t.Errorf("tokens = %v", tokens)
	}
	if access["expires"] == nil || refresh["expires"] == nil {
		t.Error("missing expiry timestamps")
	}
}

// ---- CompleteProfile ----

func TestCompleteProfile_PassesUserIDAndInput(t *testing.T) {
	var gotID string
	var gotIn usecase.ProfileInput
	uc := &fakeAuthUsecase{
		completeProfile: func(_ context.Context, userID string, in usecase.ProfileInput) (*usecase.CompleteProfileResult, error) {
			gotID, gotIn = userID, in
			u := sampleUser()
			u.Email = in.Email
			return &usecase.CompleteProfileResult{User: u, UpdatedFromTemp: true}, nil
		},
	}
	w := do(t, newTestEngine(uc, false), http.MethodPut, "/complete-profile",
		`{"email":"amel@example.com","firstName":"Amel","lastName":"Ben Ali","username":"amel","gender":"female"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotID != testUserID {
		t.Errorf("userID = %q", gotID)
	}
	if gotIn.Username != "amel" || gotIn.Gender == nil || *gotIn.Gender != "female" {
		t.Errorf("input = %+v", gotIn)
	}
	body := decode(t, w)
	if body["updatedFromTemp"] != true || body["message"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestCompleteProfile_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("%w: email is required", domain.ErrValidation), http.StatusBadRequest, "email"},
		{domain.ErrEmailTaken, http.StatusBadRequest, "Email is already in use"},
		{domain.ErrUsernameTaken, http.StatusBadRequest, "Username is already taken"},
		{domain.ErrUserNotFound, http.StatusNotFound, "User not found"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			uc := &fakeAuthUsecase{
				completeProfile: func(_ context.Context, _ string, _ usecase.ProfileInput) (*usecase.CompleteProfileResult, error) {
					return nil, tc.err
				},
			}
			w := do(t, newTestEngine(uc, false), http.MethodPut, "/complete-profile", `{}`)

			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
			if msg, _ := decode(t, w)["error"].(string); !strings.Contains(msg, tc.msg) {
				t.Errorf("error = %q, want it to contain %q", msg, tc.msg)
			}
		})
	}
}

// ---- sessions ----

func TestRefresh_InvalidToken_Returns401(t *testing.T) {
	uc := &fakeAuthUsecase{
		refreshSession: func(_ context.Context, _ string) (domain.SessionCredentials, error) {
			return domain.SessionCredentials{}, domain.ErrTokenInvalid
		},
	}
	w := do(t, newTestEngine(uc, false), http.MethodPost, "/refresh-token", `{"refreshToken":"stale"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRefresh_Success_ReturnsTokens(t *testing.T) {
	uc := &fakeAuthUsecase{
		refreshSession: func(_ context.Context, raw string) (domain.SessionCredentials, error) {
			if raw != "refresh-jwt" {
				t.Errorf("refresh token = %q", raw)
			}
			return sampleCreds(), nil
		},
	}
	w := do(t, newTestEngine(uc, false), http.MethodPost, "/refresh-token", `{"refreshToken":"refresh-jwt"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if _, ok := decode(t, w)["tokens"].(map[string]any); !ok {
		t.Error("missing tokens")
	}
}

func TestLogout_Returns204(t *testing.T) {
	var gotID string
	uc := &fakeAuthUsecase{
		logout: func(_ context.Context, userID string) error {
			gotID = userID
			return nil
		},
	}
	w := do(t, newTestEngine(uc, false), http.MethodPost, "/logout", ``)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if gotID != testUserID {
		t.Errorf("userID = %q", gotID)
	}
}

func TestMe_ReturnsUser(t *testing.T) {
	uc := &fakeAuthUsecase{
		getUser: func(_ context.Context, _ string) (*domain.User, error) { return sampleUser(), nil },
	}
	w := do(t, newTestEngine(uc, false), http.MethodGet, "/me", ``)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	user, _ := decode(t, w)["user"].(map[string]any)
	if user["username"] != "user4567" {
		t.Errorf("user = %v", user)
	}
}
