package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
	"github.com/ErlanBelekov/fallah-auth/internal/email"
	"github.com/ErlanBelekov/fallah-auth/internal/metrics"
	"github.com/ErlanBelekov/fallah-auth/internal/otp"
	"github.com/ErlanBelekov/fallah-auth/internal/phone"
	"github.com/ErlanBelekov/fallah-auth/internal/repository"
	"github.com/ErlanBelekov/fallah-auth/internal/security"
)

const (
	defaultCodeTTL     = 5 * time.Minute
	defaultMaxAttempts = 5

	maxUsernameSuffix  = 50
	provisionRetries   = 3
	placeholderPwBytes = 16
	placeholderFirst   = "User"
)

// Notifier delivers a code out of band and reports whether it got through.
type Notifier interface {
	Deliver(ctx context.Context, phoneNumber, code string) bool
}

type SessionIssuer interface {
	Issue(userID string) (domain.SessionCredentials, error)
	ParseRefresh(raw string) (domain.Identity, error)
}

type PasswordHasher interface {
	Hash(password []byte) (string, error)
}

type AuthConfig struct {
	CodeTTL time.Duration
	// MaxAttempts caps wrong guesses per pending code; 0 disables the cap.
	MaxAttempts int
	// DevMode echoes codes back to the caller.
	DevMode bool
}

type AuthUsecase struct {
	users  repository.UserRepository
	codes  repository.VerificationStore
	sms    Notifier
	tokens SessionIssuer
	hasher PasswordHasher
	mailer email.Sender
	logger *slog.Logger

	codeTTL     time.Duration
	maxAttempts int
	devMode     bool

	generate func() (string, error)
	now      func() time.Time
}

type Option func(*AuthUsecase)

func WithClock(now func() time.Time) Option {
	return func(u *AuthUsecase) { u.now = now }
}

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(u *AuthUsecase) { u.generate = gen }
}

func NewAuthUsecase(
	users repository.UserRepository,
	codes repository.VerificationStore,
	sms Notifier,
	tokens SessionIssuer,
	hasher PasswordHasher,
	mailer email.Sender,
	logger *slog.Logger,
	cfg AuthConfig,
	opts ...Option,
) *AuthUsecase {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	u := &AuthUsecase{
		users:       users,
		codes:       codes,
		sms:         sms,
		tokens:      tokens,
		hasher:      hasher,
		mailer:      mailer,
		logger:      logger.With("component", "auth_usecase"),
		codeTTL:     cfg.CodeTTL,
		maxAttempts: cfg.MaxAttempts,
		devMode:     cfg.DevMode,
		generate:    otp.Generate,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type RequestCodeResult struct {
	PhoneNumber string
	// Code is only set in dev mode.
	Code string
}

// RequestCode issues a new code for the number, replacing any pending one,
// and sends it by SMS. When delivery fails the stored code stays valid and
// domain.ErrDeliveryFailed is returned.
func (u *AuthUsecase) RequestCode(ctx context.Context, rawPhone string) (*RequestCodeResult, error) {
	if strings.TrimSpace(rawPhone) == "" {
		return nil, fmt.Errorf("%w: phone number is required", domain.ErrValidation)
	}
	phoneNumber := phone.Normalize(rawPhone)
	if !phone.Valid(phoneNumber) {
		return nil, fmt.Errorf("%w: phone number must be in international format", domain.ErrValidation)
	}

	code, err := u.generate()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	if err := u.codes.Put(ctx, phoneNumber, code, u.codeTTL); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}

	if !u.sms.Deliver(ctx, phoneNumber, code) {
		metrics.CodesRequestedTotal.WithLabelValues("delivery_failed").Inc()
		return nil, domain.ErrDeliveryFailed
	}
	metrics.CodesRequestedTotal.WithLabelValues("sent").Inc()

	res := &RequestCodeResult{PhoneNumber: phoneNumber}
	if u.devMode {
		res.Code = code
	}
	return res, nil
}

type VerifyResult struct {
	User      *domain.User
	Tokens    domain.SessionCredentials
	IsNewUser bool
}

// VerifyCode redeems the pending code for the number, provisions the user on
// first sight and issues a session.
func (u *AuthUsecase) VerifyCode(ctx context.Context, rawPhone, code string) (*VerifyResult, error) {
	code = strings.TrimSpace(code)
	if strings.TrimSpace(rawPhone) == "" || code == "" {
		return nil, fmt.Errorf("%w: phone number and verification code are required", domain.ErrValidation)
	}
	phoneNumber := phone.Normalize(rawPhone)

	if err := u.redeem(ctx, phoneNumber, code); err != nil {
		metrics.VerificationsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	metrics.VerificationsTotal.WithLabelValues("success").Inc()

	user, err := u.resolveUser(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}

	creds, err := u.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		User:      user,
		Tokens:    creds,
		IsNewUser: domain.IsTempEmail(user.Email),
	}, nil
}

func (u *AuthUsecase) redeem(ctx context.Context, phoneNumber, code string) error {
	pending, err := u.codes.Get(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return domain.ErrCodeNotFound
		}
		return fmt.Errorf("load code: %w", err)
	}

	if pending.Expired(u.now()) {
		if err := u.codes.Delete(ctx, phoneNumber); err != nil {
			return fmt.Errorf("delete expired code: %w", err)
		}
		return domain.ErrCodeExpired
	}

	if !otp.Equal(code, pending.Code) {
		attempts, err := u.codes.IncrementAttempts(ctx, phoneNumber)
		if err != nil && !errors.Is(err, domain.ErrCodeNotFound) {
			return fmt.Errorf("count attempt: %w", err)
		}
		if u.maxAttempts > 0 && attempts >= u.maxAttempts {
			if err := u.codes.Delete(ctx, phoneNumber); err != nil {
				return fmt.Errorf("delete exhausted code: %w", err)
			}
			u.logger.WarnContext(ctx, "verification attempts exhausted", "phone_number", phone.Mask(phoneNumber))
			return domain.ErrTooManyAttempts
		}
		return domain.ErrCodeMismatch
	}

	consumed, err := u.codes.Consume(ctx, phoneNumber, pending.Code)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if !consumed {
		// Redeemed or replaced by a concurrent request since the lookup.
		return domain.ErrCodeNotFound
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCodeExpired):
		return "expired"
	case errors.Is(err, domain.ErrCodeMismatch):
		return "mismatch"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too_many_attempts"
	default:
		return "error"
	}
}

func (u *AuthUsecase) resolveUser(ctx context.Context, phoneNumber string) (*domain.User, error) {
	user, err := u.users.FindByPhone(ctx, phoneNumber)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("find user by phone: %w", err)
	}

	for range provisionRetries {
		user, err = u.provisionUser(ctx, phoneNumber)
		switch {
		case err == nil:
			metrics.UsersProvisionedTotal.Inc()
			u.logger.InfoContext(ctx, "user provisioned", "user_id", user.ID, "phone_number", phone.Mask(phoneNumber))
			return user, nil
		case errors.Is(err, domain.ErrPhoneTaken):
			// Another verification for the same number won the insert.
			user, err = u.users.FindByPhone(ctx, phoneNumber)
			if err != nil {
				return nil, fmt.Errorf("find user by phone: %w", err)
			}
			return user, nil
		case errors.Is(err, domain.ErrUsernameTaken):
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("provision user: %w", err)
}

func (u *AuthUsecase) provisionUser(ctx context.Context, phoneNumber string) (*domain.User, error) {
	username, err := u.uniqueUsername(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}

	password, err := security.RandomPassword(placeholderPwBytes)
	if err != nil {
		return nil, err
	}
	hash, err := u.hasher.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hash placeholder password: %w", err)
	}

	created, err := u.users.Create(ctx, &domain.User{
		Username:     username,
		FirstName:    placeholderFirst,
		LastName:     phone.TrailingDigits(phoneNumber, 4),
		Email:        domain.TempEmail(phone.Digits(phoneNumber)),
		PhoneNumber:  phoneNumber,
		Role:         domain.RoleUser,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// uniqueUsername derives "user<last four digits>" and appends _1, _2, ...
// until the name is free.
func (u *AuthUsecase) uniqueUsername(ctx context.Context, phoneNumber string) (string, error) {
	base := "user" + phone.TrailingDigits(phoneNumber, 4)
	for i := 0; i <= maxUsernameSuffix; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		exists, err := u.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8], nil
}

func (u *AuthUsecase) startSession(ctx context.Context, user *domain.User) (domain.SessionCredentials, error) {
	creds, err := u.tokens.Issue(user.ID)
	if err != nil {
		return domain.SessionCredentials{}, fmt.Errorf("issue tokens: %w", err)
	}

	now := u.now()
	if err := u.users.RecordLogin(ctx, user.ID, creds.Refresh.Token, now); err != nil {
		return domain.SessionCredentials{}, fmt.Errorf("record login: %w", err)
	}
	user.RefreshToken = &creds.Refresh.Token
	user.LastLogin = &now
	user.IsOnline = true
	return creds, nil
}

type ProfileInput struct {
	Email     string
	FirstName string
	LastName  string
	Username  string
	Gender    *string
}

type CompleteProfileResult struct {
	User            *domain.User
	UpdatedFromTemp bool
}

// CompleteProfile replaces the placeholder identity fields of a
// phone-provisioned user.
func (u *AuthUsecase) CompleteProfile(ctx context.Context, userID string, in ProfileInput) (*CompleteProfileResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Username = strings.TrimSpace(in.Username)
	if in.Email == "" || in.FirstName == "" || in.LastName == "" || in.Username == "" {
		return nil, fmt.Errorf("%w: email, first name, last name and username are required", domain.ErrValidation)
	}
	if domain.IsTempEmail(in.Email) {
		return nil, fmt.Errorf("%w: a real email address is required", domain.ErrValidation)
	}
	if in.Gender != nil {
		g := strings.ToLower(strings.TrimSpace(*in.Gender))
		switch g {
		case "":
			in.Gender = nil
		case domain.GenderMale, domain.GenderFemale, domain.GenderOther:
			in.Gender = &g
		default:
			return nil, fmt.Errorf("%w: gender must be male, female or other", domain.ErrValidation)
		}
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	taken, err := u.users.EmailTakenByOther(ctx, in.Email, userID)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return nil, domain.ErrEmailTaken
	}
	taken, err = u.users.UsernameTakenByOther(ctx, in.Username, userID)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return nil, domain.ErrUsernameTaken
	}

	updatedFromTemp := domain.IsTempEmail(user.Email)

	updated, err := u.users.UpdateProfile(ctx, userID, domain.ProfileUpdate{
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Username:  in.Username,
		Gender:    in.Gender,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if updatedFromTemp {
		subject, body := email.Welcome(updated.FirstName)
		if err := u.mailer.Send(ctx, updated.Email, subject, body); err != nil {
			u.logger.ErrorContext(ctx, "send welcome email", "user_id", userID, "error", err)
		}
	}

	return &CompleteProfileResult{User: updated, UpdatedFromTemp: updatedFromTemp}, nil
}

// RefreshSession rotates the pair if rawRefresh is the token last issued to
// its user.
func (u *AuthUsecase) RefreshSession(ctx context.Context, rawRefresh string) (domain.SessionCredentials, error) {
	if rawRefresh == "" {
		return domain.SessionCredentials{}, domain.ErrTokenInvalid
	}
	ident, err := u.tokens.ParseRefresh(rawRefresh)
	if err != nil {
		return domain.SessionCredentials{}, domain.ErrTokenInvalid
	}

	user, err := u.users.FindByID(ctx, ident.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.SessionCredentials{}, domain.ErrTokenInvalid
		}
		return domain.SessionCredentials{}, fmt.Errorf("find user: %w", err)
	}
	if user.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(rawRefresh)) != 1 {
		return domain.SessionCredentials{}, domain.ErrTokenInvalid
	}

	return u.startSession(ctx, user)
}

func (u *AuthUsecase) Logout(ctx context.Context, userID string) error {
	if err := u.users.ClearSession(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (u *AuthUsecase) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
