package token

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Class selects which signing key a token is issued or verified under.
type Class int

const (
	// ClassAccess is the short-lived per-request token class.
	ClassAccess Class = iota
	// ClassRefresh is the long-lived rotation token class.
	ClassRefresh
)

var (
	// ErrExpired is returned when a token's exp claim has passed.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned when a token's structure or signature is invalid.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongKey is returned when a token verifies under the other key class.
	ErrWrongKey = errors.New("token signed under wrong key class")
)

// Config carries the signing keys and expiries for both token classes.
// It is injected at construction; verification never reads process state.
type Config struct {
	AccessKey  []byte
	RefreshKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

// Claims is the signed claim set: sub (principal id), iat, exp, and a
// unique jti per issued token.
type Claims struct {
	jwt.RegisteredClaims
}

// PrincipalID returns the sub claim.
func (c *Claims) PrincipalID() string {
	return c.Subject
}

// Issuer signs and verifies tokens for both key classes.
type Issuer struct {
	config Config
}

// NewIssuer validates the configuration and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessKey) == 0 || len(cfg.RefreshKey) == 0 {
		return nil, errors.New("both access and refresh signing keys are required")
	}
	if bytes.Equal(cfg.AccessKey, cfg.RefreshKey) {
		return nil, errors.New("access and refresh signing keys must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Issuer{config: cfg}, nil
}

// IssueAccess signs a short-lived access token for principalID.
func (i *Issuer) IssueAccess(principalID string) (string, error) {
	return i.issue(principalID, ClassAccess)
}

// IssueRefresh signs a long-lived refresh token for principalID.
func (i *Issuer) IssueRefresh(principalID string) (string, error) {
	return i.issue(principalID, ClassRefresh)
}

func (i *Issuer) issue(principalID string, class Class) (string, error) {
	if principalID == "" {
		return "", errors.New("empty principal id")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl(class))),
			// Timestamps truncate to whole seconds, so the jti is what keeps
			// two tokens minted back to back from being byte-identical.
			ID: uuid.NewString(),
		},
	}
	if i.config.Issuer != "" {
		claims.Issuer = i.config.Issuer
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.key(class))
}

// Verify parses tokenStr under the given key class. Failures are classified:
// an expired token returns ErrExpired regardless of which class signed it, a
// token valid under the opposite class returns ErrWrongKey, and everything
// else returns ErrMalformed.
func (i *Issuer) Verify(tokenStr string, class Class) (*Claims, error) {
	claims, err := i.parse(tokenStr, class)
	if err == nil {
		return claims, nil
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpired
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		// Expiry is reported independent of signature validity: a stale token
		// is stale no matter which key it was signed under.
		if i.expiredUnverified(tokenStr) {
			return nil, ErrExpired
		}
		if _, otherErr := i.parse(tokenStr, otherClass(class)); otherErr == nil {
			return nil, ErrWrongKey
		}
		return nil, ErrMalformed
	}
	return nil, ErrMalformed
}

func (i *Issuer) parse(tokenStr string, class Class) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.key(class), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// expiredUnverified checks the exp claim without validating the signature.
func (i *Issuer) expiredUnverified(tokenStr string) bool {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now().Add(-i.config.Leeway))
}

func (i *Issuer) key(class Class) []byte {
	if class == ClassRefresh {
		return i.config.RefreshKey
	}
	return i.config.AccessKey
}

func (i *Issuer) ttl(class Class) time.Duration {
	if class == ClassRefresh {
		return i.config.RefreshTTL
	}
	return i.config.AccessTTL
}

func otherClass(class Class) Class {
	if class == ClassAccess {
		return ClassRefresh
	}
	return ClassAccess
}
