package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// ErrInvalidToken is returned for tokens that fail validation
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the JWT claims of accounts and admins
type Claims struct {
	AccountID int64     `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Type      TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Config configures a JWTManager
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenPair is the result of a successful login
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// JWTManager handles JWT token generation and validation
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg Config) (*JWTManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("JWT secrets cannot be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "qwork"
	}

	return &JWTManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}, nil
}

// AccessTTL returns the lifetime of access tokens
func (jm *JWTManager) AccessTTL() time.Duration {
	return jm.accessTTL
}

// IssuePair issues an access and a refresh token for the subject
func (jm *JWTManager) IssuePair(id int64, email, role string) (*TokenPair, error) {
	access, err := jm.issue(TokenAccess, id, email, role)
	if err != nil {
		return nil, err
	}
	refresh, err := jm.issue(TokenRefresh, id, email, role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(jm.accessTTL.Seconds()),
	}, nil
}

// IssueAccess issues an access token for the subject
func (jm *JWTManager) IssueAccess(id int64, email, role string) (*TokenPair, error) {
	access, err := jm.issue(TokenAccess, id, email, role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, ExpiresIn: int64(jm.accessTTL.Seconds())}, nil
}

func (jm *JWTManager) issue(typ TokenType, id int64, email, role string) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("subject ID must be positive")
	}

	secret, ttl := jm.accessSecret, jm.accessTTL
	if typ == TokenRefresh {
		secret, ttl = jm.refreshSecret, jm.refreshTTL
	}

	now := jm.now()
	claims := &Claims{
		AccountID: id,
		Email:     email,
		Role:      role,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    jm.issuer,
			Subject:   strconv.FormatInt(id, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token of the given type and returns its claims
func (jm *JWTManager) Validate(tokenString string, typ TokenType) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	secret := jm.accessSecret
	if typ == TokenRefresh {
		secret = jm.refreshSecret
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jm.issuer),
		jwt.WithTimeFunc(jm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Type != typ {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
