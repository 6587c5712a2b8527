package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
	"github.com/ErlanBelekov/fallah-auth/internal/infrastructure/redis"
)

const testPhone = "+15551234567"

func newStore(t *testing.T) (*redis.VerificationStore, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := redis.NewVerificationStore(client, redis.WithClock(func() time.Time { return now }))
	return store, mr, &now
}

func TestPutGet(t *testing.T) {
	s, mr, now := newStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testPhone, "482913", 5*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	p, err := s.Get(ctx, testPhone)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Code != "482913" || p.PhoneNumber != testPhone || p.Attempts != 0 {
		t.Errorf("got %+v", p)
	}
	if want := now.Add(5 * time.Minute); !p.ExpiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", p.ExpiresAt, want)
	}

	if ttl := mr.TTL("otp:pending:" + testPhone); ttl <= 5*time.Minute {
		t.Errorf("key ttl = %v, want longer than the code ttl", ttl)
	}
}

func TestGet_Missing(t *testing.T) {
	s, _, _ := newStore(t)
	if _, err := s.Get(context.Background(), testPhone); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Errorf("want ErrCodeNotFound, got %v", err)
	}
}

func TestExpiredCodeStillReadableUntilKeyTTL(t *testing.T) {
	s, mr, now := newStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, testPhone, "482913", 5*time.Minute)
	*now = now.Add(6 * time.Minute)
	mr.FastForward(6 * time.Minute)

	p, err := s.Get(ctx, testPhone)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !p.Expired(*now) {
		t.Errorf("entry should report expired at %v (expiresAt %v)", *now, p.ExpiresAt)
	}

	mr.FastForward(time.Hour)
	if _, err := s.Get(ctx, testPhone); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Errorf("want ErrCodeNotFound once the key is evicted, got %v", err)
	}
}

func TestPut_OverwritesAndResetsAttempts(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, testPhone, "111111", time.Minute)
	_, _ = s.IncrementAttempts(ctx, testPhone)
	_ = s.Put(ctx, testPhone, "222222", time.Minute)

	p, err := s.Get(ctx, testPhone)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Code != "222222" || p.Attempts != 0 {
		t.Errorf("got code=%q attempts=%d, want 222222/0", p.Code, p.Attempts)
	}
}

func TestIncrementAttempts(t *testing.T) {
	s, mr, _ := newStore(t)
	ctx := context.Background()

	if _, err := s.IncrementAttempts(ctx, testPhone); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("want ErrCodeNotFound, got %v", err)
	}
	if mr.Exists("otp:pending:" + testPhone) {
		t.Fatal("increment on a missing entry must not create the key")
	}

	_ = s.Put(ctx, testPhone, "482913", time.Minute)
	for want := 1; want <= 3; want++ {
		got, err := s.IncrementAttempts(ctx, testPhone)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Errorf("attempts = %d, want %d", got, want)
		}
	}
}

func TestConsume(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	_ = s.Put(ctx, testPhone, "482913", time.Minute)

	ok, err := s.Consume(ctx, testPhone, "000000")
	if err != nil || ok {
		t.Fatalf("consume with other code = %v, %v; want false, nil", ok, err)
	}
	ok, err = s.Consume(ctx, testPhone, "482913")
	if err != nil || !ok {
		t.Fatalf("consume = %v, %v; want true, nil", ok, err)
	}
	if _, err := s.Get(ctx, testPhone); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Errorf("entry still present after consume: %v", err)
	}
	ok, _ = s.Consume(ctx, testPhone, "482913")
	if ok {
		t.Fatal("second consume succeeded")
	}
}

func TestDeleteAndList(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "+15550000001", "111111", time.Minute)
	_ = s.Put(ctx, "+15550000002", "222222", time.Minute)

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list len = %d, want 2", len(list))
	}

	if err := s.Delete(ctx, "+15550000001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = s.List(ctx)
	if len(list) != 1 || list[0].PhoneNumber != "+15550000002" {
		t.Errorf("after delete list = %+v", list)
	}
}
