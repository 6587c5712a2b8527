package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
	"github.com/ErlanBelekov/fallah-auth/internal/repository"
)

const (
	keyPrefix = "otp:pending:"

	// Keys outlive their codes so a late lookup reports an expired code
	// rather than a missing one.
	staleRetention = 10 * time.Minute

	fieldCode      = "code"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// Returns -1 when the key is gone, so an increment never recreates an entry
// without a TTL.
const incrementScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
`

const consumeScript = `
if redis.call("HGET", KEYS[1], "code") == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// VerificationStore shares pending codes across service instances.
type VerificationStore struct {
	client    goredis.UniversalClient
	increment *goredis.Script
	consume   *goredis.Script
	now       func() time.Time
}

var _ repository.VerificationStore = (*VerificationStore)(nil)

type Option func(*VerificationStore)

func WithClock(now func() time.Time) Option {
	return func(s *VerificationStore) { s.now = now }
}

func NewVerificationStore(client goredis.UniversalClient, opts ...Option) *VerificationStore {
	s := &VerificationStore{
		client:    client,
		increment: goredis.NewScript(incrementScript),
		consume:   goredis.NewScript(consumeScript),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(phoneNumber string) string {
	return keyPrefix + phoneNumber
}

func (s *VerificationStore) Put(ctx context.Context, phoneNumber, code string, ttl time.Duration) error {
	k := key(phoneNumber)
	expiresAt := s.now().Add(ttl)

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldCode, code,
			fieldExpiresAt, strconv.FormatInt(expiresAt.UnixMilli(), 10),
			fieldAttempts, 0,
		)
		pipe.PExpire(ctx, k, ttl+staleRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store verification: %w", err)
	}
	return nil
}

func (s *VerificationStore) Get(ctx context.Context, phoneNumber string) (*domain.PendingVerification, error) {
	fields, err := s.client.HGetAll(ctx, key(phoneNumber)).Result()
	if err != nil {
		return nil, fmt.Errorf("load verification: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrCodeNotFound
	}
	return decode(phoneNumber, fields)
}

func (s *VerificationStore) Delete(ctx context.Context, phoneNumber string) error {
	if err := s.client.Del(ctx, key(phoneNumber)).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("delete verification: %w", err)
	}
	return nil
}

func (s *VerificationStore) Consume(ctx context.Context, phoneNumber, code string) (bool, error) {
	n, err := s.consume.Run(ctx, s.client, []string{key(phoneNumber)}, code).Int()
	if err != nil {
		return false, fmt.Errorf("consume verification: %w", err)
	}
	return n == 1, nil
}

func (s *VerificationStore) IncrementAttempts(ctx context.Context, phoneNumber string) (int, error) {
	n, err := s.increment.Run(ctx, s.client, []string{key(phoneNumber)}, fieldAttempts).Int()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	if n < 0 {
		return 0, domain.ErrCodeNotFound
	}
	return n, nil
}

// List scans the pending keys. On a cluster client it only sees the node the
// scan lands on, which is enough for diagnostics.
func (s *VerificationStore) List(ctx context.Context) ([]domain.PendingVerification, error) {
	var out []domain.PendingVerification

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		fields, err := s.client.HGetAll(ctx, k).Result()
		if err != nil {
			return nil, fmt.Errorf("load verification %s: %w", k, err)
		}
		if len(fields) == 0 {
			continue
		}
		p, err := decode(strings.TrimPrefix(k, keyPrefix), fields)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan verifications: %w", err)
	}
	return out, nil
}

func decode(phoneNumber string, fields map[string]string) (*domain.PendingVerification, error) {
	ms, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(fields[fieldAttempts])
	if err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	return &domain.PendingVerification{
		PhoneNumber: phoneNumber,
		Code:        fields[fieldCode],
		ExpiresAt:   time.UnixMilli(ms),
		Attempts:    attempts,
	}, nil
}
