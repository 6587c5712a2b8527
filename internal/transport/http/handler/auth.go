package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
	"github.com/ErlanBelekov/fallah-auth/internal/usecase"
)

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	RequestCode(ctx context.Context, phoneNumber string) (*usecase.RequestCodeResult, error)
	VerifyCode(ctx context.Context, phoneNumber, code string) (*usecase.VerifyResult, error)
	CompleteProfile(ctx context.Context, userID string, in usecase.ProfileInput) (*usecase.CompleteProfileResult, error)
	RefreshSession(ctx context.Context, refreshToken string) (domain.SessionCredentials, error)
	Logout(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

type AuthHandler struct {
	authUsecase authUsecaser
	logger      *slog.Logger
	// devMode adds the wrapped error chain to error bodies.
	devMode bool
}

func NewAuthHandler(authUsecase authUsecaser, logger *slog.Logger, devMode bool) *AuthHandler {
	return &AuthHandler{
		authUsecase: authUsecase,
		logger:      logger.With("component", "auth_handler"),
		devMode:     devMode,
	}
}

type sendCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type sendCodeResponse struct {
	Message          string `json:"message"`
	PhoneNumber      string `json:"phoneNumber"`
	VerificationCode string `json:"verificationCode,omitempty"`
}

type verifyRequest struct {
	PhoneNumber      string `json:"phoneNumber"`
	VerificationCode string `json:"verificationCode"`
}

type tokenResponse struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type tokensResponse struct {
	Access  tokenResponse `json:"access"`
	Refresh tokenResponse `json:"refresh"`
}

// userResponse never carries the password hash or refresh token.
type userResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phoneNumber"`
	Role        string     `json:"role"`
	Gender      *string    `json:"gender"`
	IsOnline    bool       `json:"isOnline"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type verifyResponse struct {
	User      userResponse   `json:"user"`
	Tokens    tokensResponse `json:"tokens"`
	IsNewUser bool           `json:"isNewUser"`
}

type completeProfileRequest struct {
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Username  string  `json:"username"`
	Gender    *string `json:"gender"`
}

type completeProfileResponse struct {
	User            userResponse `json:"user"`
	Message         string       `json:"message"`
	UpdatedFromTemp bool         `json:"updatedFromTemp"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
		Gender:      u.Gender,
		IsOnline:    u.IsOnline,
		LastLogin:   u.LastLogin,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func toTokensResponse(creds domain.SessionCredentials) tokensResponse {
	return tokensResponse{
		Access:  tokenResponse{Token: creds.Access.Token, Expires: creds.Access.Expires},
		Refresh: tokenResponse{Token: creds.Refresh.Token, Expires: creds.Refresh.Expires},
	}
}

// POST /send-code
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadBody(err))
		return
	}

	res, err := h.authUsecase.RequestCode(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, sendCodeResponse{
		Message:          msgCodeSent,
		PhoneNumber:      res.PhoneNumber,
		VerificationCode: res.Code,
	})
}

// POST /verify
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadBody(err))
		return
	}

	res, err := h.authUsecase.VerifyCode(c.Request.Context(), req.PhoneNumber, req.VerificationCode)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, verifyResponse{
		User:      toUserResponse(res.User),
		Tokens:    toTokensResponse(res.Tokens),
		IsNewUser: res.IsNewUser,
	})
}

// PUT /complete-profile
func (h *AuthHandler) CompleteProfile(c *gin.Context) {
	var req completeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadBody(err))
		return
	}

	res, err := h.authUsecase.CompleteProfile(c.Request.Context(), c.GetString("userID"), usecase.ProfileInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Gender:    req.Gender,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, completeProfileResponse{
		User:            toUserResponse(res.User),
		Message:         msgProfileCompleted,
		UpdatedFromTemp: res.UpdatedFromTemp,
	})
}

// POST /refresh-token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadBody(err))
		return
	}

	creds, err := h.authUsecase.RefreshSession(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": toTokensResponse(creds)})
}

// POST /logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authUsecase.Logout(c.Request.Context(), c.GetString("userID")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authUsecase.GetUser(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user)})
}

type badBodyError struct{ err error }

func (e badBodyError) Error() string { return "decode body: " + e.err.Error() }
func (e badBodyError) Unwrap() error { return e.err }

func errBadBody(err error) error { return badBodyError{err: err} }

// fail maps err onto a status and a human readable message. Unknown errors
// are logged and reported as 500.
func (h *AuthHandler) fail(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, errInternalServer

	var bad badBodyError
	switch {
	case errors.As(err, &bad):
		status, msg = http.StatusBadRequest, errInvalidBody
	case errors.Is(err, domain.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrCodeNotFound):
		status, msg = http.StatusBadRequest, errCodeNotFound
	case errors.Is(err, domain.ErrCodeExpired):
		status, msg = http.StatusBadRequest, errCodeExpired
	case errors.Is(err, domain.ErrCodeMismatch):
		status, msg = http.StatusBadRequest, errCodeMismatch
	case errors.Is(err, domain.ErrTooManyAttempts):
		status, msg = http.StatusTooManyRequests, errTooManyAttempts
	case errors.Is(err, domain.ErrEmailTaken):
		status, msg = http.StatusBadRequest, errEmailTaken
	case errors.Is(err, domain.ErrUsernameTaken):
		status, msg = http.StatusBadRequest, errUsernameTaken
	case errors.Is(err, domain.ErrConflict):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUserNotFound):
		status, msg = http.StatusNotFound, errUserNotFound
	case errors.Is(err, domain.ErrTokenInvalid):
		status, msg = http.StatusUnauthorized, errTokenInvalid
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, errUnauthorized
	case errors.Is(err, domain.ErrDeliveryFailed):
		msg = errDeliveryFailed
		h.logger.ErrorContext(c.Request.Context(), "deliver verification code", "error", err)
	default:
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
	}

	body := gin.H{"error": msg}
	if h.devMode {
		body["detail"] = err.Error()
	}
	c.JSON(status, body)
}
