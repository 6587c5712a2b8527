package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
)

// VerificationStore keeps at most one pending code per phone number.
// Get and IncrementAttempts return domain.ErrCodeNotFound for unknown numbers.
type VerificationStore interface {
	Put(ctx context.Context, phoneNumber, code string, ttl time.Duration) error
	Get(ctx context.Context, phoneNumber string) (*domain.PendingVerification, error)
	Delete(ctx context.Context, phoneNumber string) error
	// Consume deletes the entry only if it still holds code and reports
	// whether it did, so a code can be redeemed once even under concurrent
	// verifications.
	Consume(ctx context.Context, phoneNumber, code string) (bool, error)
	IncrementAttempts(ctx context.Context, phoneNumber string) (int, error)
	// List is for diagnostics and must never be routed on the public API.
	List(ctx context.Context) ([]domain.PendingVerification, error)
}
