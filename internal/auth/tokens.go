// Package auth issues and verifies JWTs, hashes passwords and carries the
// authenticated principal through request contexts.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess        = "access"
	TokenTypeRefresh       = "refresh"
	TokenTypePasswordReset = "password_reset"
)

const issuer = "minerva"

// ErrInvalidToken is returned for malformed, expired or mismatched tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	Fingerprint string `json:"fp,omitempty"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// TokenService signs HS256 tokens.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(secret string, accessTTL, refreshTTL, resetTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// AccessTTL returns the access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssuePair signs a fresh access/refresh pair for userID.
func (s *TokenService) IssuePair(userID int64) (*TokenPair, error) {
	now := s.now()
	access, accessExp, err := s.sign(userID, TokenTypeAccess, "", now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.sign(userID, TokenTypeRefresh, "", now, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssuePasswordReset signs a reset token bound to the user's current
// credentials. Changing the password or logging in invalidates it.
func (s *TokenService) IssuePasswordReset(userID int64, passwordHash string, lastLogin time.Time) (string, error) {
	token, _, err := s.sign(userID, TokenTypePasswordReset, fingerprint(passwordHash, lastLogin), s.now(), s.resetTTL)
	return token, err
}

// ParseAccess validates an access token.
func (s *TokenService) ParseAccess(token string) (*Claims, error) {
	return s.parse(token, TokenTypeAccess)
}

// ParseRefresh validates a refresh token.
func (s *TokenService) ParseRefresh(token string) (*Claims, error) {
	return s.parse(token, TokenTypeRefresh)
}

// ParsePasswordReset validates a reset token against the user's current credentials.
func (s *TokenService) ParsePasswordReset(token string, passwordHash string, lastLogin time.Time) (*Claims, error) {
	claims, err := s.parse(token, TokenTypePasswordReset)
	if err != nil {
		return nil, err
	}
	if claims.Fingerprint != fingerprint(passwordHash, lastLogin) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) sign(userID int64, tokenType, fp string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		TokenType:   tokenType,
		UserID:      userID,
		Fingerprint: fp,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, expiresAt, nil
}

func (s *TokenService) parse(token, tokenType string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenType != tokenType || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func fingerprint(passwordHash string, lastLogin time.Time) string {
	sum := sha256.Sum256([]byte(passwordHash + "|" + lastLogin.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:8])
}
