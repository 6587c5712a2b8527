package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByPhone(ctx context.Context, phoneNumber string) (*domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	// Create returns domain.ErrPhoneTaken when the phone number is already registered.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	RecordLogin(ctx context.Context, id, refreshToken string, at time.Time) error
	ClearSession(ctx context.Context, id string) error
	EmailTakenByOther(ctx context.Context, email, excludeID string) (bool, error)
	UsernameTakenByOther(ctx context.Context, username, excludeID string) (bool, error)
	UpdateProfile(ctx context.Context, id string, p domain.ProfileUpdate) (*domain.User, error)
}
