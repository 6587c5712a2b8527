package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
)

const userColumns = `id::text, username, first_name, last_name, email, phone_number, role,
	gender, password, refresh_token, is_online, last_login, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	// Tokens may carry IDs from older deployments that are not UUIDs.
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrUserNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) FindByPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phoneNumber)
	return scanUser(row)
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("username exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (username, first_name, last_name, email, phone_number, role, gender, password)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, query,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PhoneNumber,
		user.Role,
		user.Gender,
		user.PasswordHash,
	)

	created, err := scanUser(row)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return nil, conflict
		}
		return nil, err
	}
	return created, nil
}

func (r *UserRepository) RecordLogin(ctx context.Context, id, refreshToken string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		SET    refresh_token = $2, is_online = TRUE, last_login = $3, updated_at = NOW()
		WHERE  id = $1`,
		id, refreshToken, at)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) ClearSession(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrUserNotFound
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token = NULL, is_online = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) EmailTakenByOther(ctx context.Context, email, excludeID string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) AND id <> $2)`,
		email, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("email taken: %w", err)
	}
	return taken, nil
}

func (r *UserRepository) UsernameTakenByOther(ctx context.Context, username, excludeID string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND id <> $2)`,
		username, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("username taken: %w", err)
	}
	return taken, nil
}

// UpdateProfile relies on the unique constraints to settle races that
// slip past the TakenByOther checks.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, p domain.ProfileUpdate) (*domain.User, error) {
	query := `
		UPDATE users
		SET    email = $2, first_name = $3, last_name = $4, username = $5, gender = $6, updated_at = NOW()
		WHERE  id = $1
		RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, query, id, p.Email, p.FirstName, p.LastName, p.Username, p.Gender)
	updated, err := scanUser(row)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return nil, conflict
		}
		return nil, err
	}
	return updated, nil
}

// uniqueViolation maps a 23505 error onto the conflict for its constraint,
// or returns nil for any other error.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "users_phone_number_key":
		return domain.ErrPhoneTaken
	case "users_username_key":
		return domain.ErrUsernameTaken
	case "users_email_lower_key":
		return domain.ErrEmailTaken
	default:
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PhoneNumber,
		&u.Role,
		&u.Gender,
		&u.PasswordHash,
		&u.RefreshToken,
		&u.IsOnline,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
