// Package token mints and parses the HS256 access/refresh pair.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
)

// Older clients were issued tokens carrying the user ID under "id" or
// "userId"; they are still accepted and normalized to domain.Identity.
var legacyIDClaims = []string{"id", "userId"}

type Issuer struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*Issuer)

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Issuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token: signing secrets must be set")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= accessTTL {
		return nil, fmt.Errorf("token: refresh ttl (%s) must exceed access ttl (%s)", refreshTTL, accessTTL)
	}
	i := &Issuer{
		accessKey:  []byte(accessSecret),
		refreshKey: []byte(refreshSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a fresh pair for userID. Expiry instants are returned alongside
// each token for clients to cache.
func (i *Issuer) Issue(userID string) (domain.SessionCredentials, error) {
	now := i.now()

	access, err := sign(i.accessKey, userID, now, now.Add(i.accessTTL))
	if err != nil {
		return domain.SessionCredentials{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := sign(i.refreshKey, userID, now, now.Add(i.refreshTTL))
	if err != nil {
		return domain.SessionCredentials{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return domain.SessionCredentials{Access: access, Refresh: refresh}, nil
}

func (i *Issuer) ParseAccess(raw string) (domain.Identity, error) {
	return i.parse(raw, i.accessKey)
}

func (i *Issuer) ParseRefresh(raw string) (domain.Identity, error) {
	return i.parse(raw, i.refreshKey)
}

func sign(key []byte, userID string, iat, exp time.Time) (domain.Token, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": iat.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return domain.Token{}, err
	}
	return domain.Token{Token: signed, Expires: exp}, nil
}

func (i *Issuer) parse(raw string, key []byte) (domain.Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return domain.Identity{}, domain.ErrTokenInvalid
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, domain.ErrTokenInvalid
	}
	userID := userIDFromClaims(claims)
	if userID == "" {
		return domain.Identity{}, domain.ErrTokenInvalid
	}
	return domain.Identity{UserID: userID}, nil
}

func userIDFromClaims(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	for _, name := range legacyIDClaims {
		switch v := claims[name].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
