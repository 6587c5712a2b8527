package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrCodeNotFound    = errors.New("no verification code was requested for this phone number")
	ErrCodeExpired     = errors.New("verification code has expired")
	ErrCodeMismatch    = errors.New("verification code is incorrect")
	ErrTooManyAttempts = errors.New("too many incorrect attempts")
	ErrDeliveryFailed  = errors.New("verification code could not be delivered")

	ErrConflict      = errors.New("conflict")
	ErrEmailTaken    = fmt.Errorf("%w: email is already in use", ErrConflict)
	ErrUsernameTaken = fmt.Errorf("%w: username is already taken", ErrConflict)
	ErrPhoneTaken    = fmt.Errorf("%w: phone number is already registered", ErrConflict)

	ErrUserNotFound = errors.New("user not found")
	ErrTokenInvalid = errors.New("token is invalid or expired")
	ErrUnauthorized = errors.New("unauthorized")
)

// TempEmailDomain marks the placeholder email assigned to users provisioned
// by phone verification until they complete their profile.
const TempEmailDomain = "temp.fallah-smart.local"

func TempEmail(localPart string) string {
	return localPart + "@" + TempEmailDomain
}

func IsTempEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(email), "@"+TempEmailDomain)
}

// PendingVerification is one outstanding code for a phone number.
type PendingVerification struct {
	PhoneNumber string
	Code        string
	ExpiresAt   time.Time
	Attempts    int
}

// Expired reports whether the code is no longer valid at now.
func (p *PendingVerification) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type Token struct {
	Token   string
	Expires time.Time
}

type SessionCredentials struct {
	Access  Token
	Refresh Token
}

// Identity is the authenticated caller, whatever claim shape the token used.
type Identity struct {
	UserID string
}
