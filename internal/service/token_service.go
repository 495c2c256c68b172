// Package service implements the authentication token lifecycle:
// issuance, stateless access-token validation, refresh-token rotation
// with reuse detection, and revocation.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luli-tech/task-manager/internal/repository"
	"github.com/luli-tech/task-manager/internal/utils"
)

// ErrInvalidCredential is the single error surfaced for every bad-token
// condition: wrong signature, malformed claims, expiry, unknown refresh
// token, revoked refresh token, or detected reuse. Collapsing the causes
// keeps callers from probing which tokens exist or in what state.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is the authenticated principal extracted from a valid
// access token. It carries exactly what role-gated routing needs.
type Identity struct {
	UserID uint64
	Role   string
}

// TokenPair is the result of issuing or rotating credentials.
type TokenPair struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// RefreshTokenStore is the credential-store surface the service needs.
// *repository.TokenRepo implements it; tests substitute an in-memory
// fake with the same conditional-write semantics.
type RefreshTokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Rotate(ctx context.Context, oldHash, newHash string, exp time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// UserRoleStore resolves the role claim for rotated tokens.
type UserRoleStore interface {
	GetRole(ctx context.Context, userID uint64) (string, error)
}

// TokenService mints and validates access tokens and manages the
// stored refresh-token lifecycle. Access tokens are self-contained:
// ValidateAccess never touches the store, so a leaked access token is
// only live until its own expiry. One clock function feeds both
// issuance and validation so the two can never drift apart.
type TokenService struct {
	tokens           RefreshTokenStore
	users            UserRoleStore
	secret           string
	accessTTL        time.Duration
	refreshTTL       time.Duration
	revokeAllOnReuse bool
	now              func() time.Time
}

// NewTokenService builds a TokenService. accessTTL and refreshTTL are
// independent: typically minutes versus days.
func NewTokenService(tokens RefreshTokenStore, users UserRoleStore, secret string, accessTTL, refreshTTL time.Duration, revokeAllOnReuse bool) *TokenService {
	return &TokenService{
		tokens:           tokens,
		users:            users,
		secret:           secret,
		accessTTL:        accessTTL,
		refreshTTL:       refreshTTL,
		revokeAllOnReuse: revokeAllOnReuse,
		now:              time.Now,
	}
}

// Issue creates a fresh access/refresh pair for a user. Exactly one
// refresh-token row is inserted per call; nothing is ever reused.
func (s *TokenService) Issue(ctx context.Context, userID uint64, role string) (TokenPair, error) {
	now := s.now()
	access, err := utils.NewAccessToken(s.secret, userID, role, s.accessTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := utils.NewRefreshToken(s.refreshTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.tokens.StoreRefresh(ctx, userID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   refresh.Raw,
		RefreshExpires: refresh.Exp,
	}, nil
}

// ValidateAccess verifies an access token's signature and expiry and
// returns the embedded identity. There is no store lookup on this
// path; a valid signature plus an unexpired exp claim is the whole
// check.
func (s *TokenService) ValidateAccess(token string) (Identity, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return []byte(s.secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidCredential
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidCredential
	}
	sub, ok := claims["sub"].(float64)
	if !ok || sub < 1 {
		return Identity{}, ErrInvalidCredential
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return Identity{}, ErrInvalidCredential
	}
	return Identity{UserID: uint64(sub), Role: role}, nil
}

// Rotate exchanges a valid refresh token for a fresh pair. The old
// token is revoked and the new one inserted in a single storage
// transaction, so concurrent rotations of one token produce exactly
// one winner. Presenting an already-rotated token is treated as a
// possible theft signal: the call fails closed, and when the service
// is configured for it, every other live session of that user is
// revoked too.
func (s *TokenService) Rotate(ctx context.Context, rawRefresh string) (TokenPair, uint64, error) {
	now := s.now()
	refresh, err := utils.NewRefreshToken(s.refreshTTL, now)
	if err != nil {
		return TokenPair{}, 0, err
	}
	userID, err := s.tokens.Rotate(ctx, utils.HashRefreshRaw(rawRefresh), utils.HashRefreshRaw(refresh.Raw), refresh.Exp)
	if err != nil {
		if errors.Is(err, repository.ErrTokenReused) {
			log.Printf("token-service: refresh token reuse detected for user %d", userID)
			if s.revokeAllOnReuse && userID != 0 {
				if revErr := s.tokens.RevokeAllForUser(ctx, userID); revErr != nil {
					log.Printf("token-service: revoke-all after reuse failed for user %d: %v", userID, revErr)
				}
			}
			return TokenPair{}, 0, ErrInvalidCredential
		}
		if errors.Is(err, repository.ErrTokenInvalid) {
			return TokenPair{}, 0, ErrInvalidCredential
		}
		return TokenPair{}, 0, err
	}

	role, err := s.users.GetRole(ctx, userID)
	if errors.Is(err, repository.ErrUserInactive) {
		return TokenPair{}, 0, ErrInvalidCredential
	}
	if err != nil {
		return TokenPair{}, 0, err
	}
	access, err := utils.NewAccessToken(s.secret, userID, role, s.accessTTL, now)
	if err != nil {
		return TokenPair{}, 0, err
	}
	return TokenPair{
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   refresh.Raw,
		RefreshExpires: refresh.Exp,
	}, userID, nil
}

// Revoke marks a refresh token revoked. It is idempotent and succeeds
// for unknown or already-revoked tokens so that the response never
// reveals whether the presented value was live.
func (s *TokenService) Revoke(ctx context.Context, rawRefresh string) error {
	return s.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(rawRefresh))
}

// AccessTTL exposes the configured access-token lifetime for
// expires_in fields in issuance responses.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL exposes the configured refresh-token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }
