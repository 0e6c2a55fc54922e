package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testConfig() Config {
	return Config{
		AccessKey:  []byte("access-signing-key-0123456789ab"),
		RefreshKey: []byte("refresh-signing-key-0123456789a"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 10 * 24 * time.Hour,
		Issuer:     "sessionauth-test",
	}
}

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testConfig())
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}
	return iss
}

func TestNewIssuerValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing access key", func(c *Config) { c.AccessKey = nil }},
		{"missing refresh key", func(c *Config) { c.RefreshKey = nil }},
		{"identical keys", func(c *Config) { c.RefreshKey = c.AccessKey }},
		{"zero access TTL", func(c *Config) { c.AccessTTL = 0 }},
		{"zero refresh TTL", func(c *Config) { c.RefreshTTL = 0 }},
		{"refresh TTL not longer", func(c *Config) { c.RefreshTTL = c.AccessTTL }},
		{"negative leeway", func(c *Config) { c.Leeway = -time.Second }},
		{"excessive leeway", func(c *Config) { c.Leeway = 3 * time.Minute }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := NewIssuer(cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	iss := newTestIssuer(t)

	for _, class := range []Class{ClassAccess, ClassRefresh} {
		tok, err := iss.issue("principal-1", class)
		if err != nil {
			t.Fatalf("issue error: %v", err)
		}
		claims, err := iss.Verify(tok, class)
		if err != nil {
			t.Fatalf("Verify error: %v", err)
		}
		if claims.PrincipalID() != "principal-1" {
			t.Fatalf("unexpected sub: %s", claims.PrincipalID())
		}
		if claims.IssuedAt == nil || claims.ExpiresAt == nil {
			t.Fatal("expected iat and exp to be set")
		}
	}
}

func TestIssuedTokensAreUniqueWithinOneSecond(t *testing.T) {
	iss := newTestIssuer(t)

	// iat and exp truncate to whole seconds, so back-to-back issuance for
	// the same principal must still produce distinct token strings.
	for _, class := range []Class{ClassAccess, ClassRefresh} {
		seen := make(map[string]bool)
		for i := 0; i < 10; i++ {
			tok, err := iss.issue("principal-1", class)
			if err != nil {
				t.Fatalf("issue error: %v", err)
			}
			if seen[tok] {
				t.Fatalf("duplicate token issued for class %d", class)
			}
			seen[tok] = true
		}
	}
}

func TestIssueEmptyPrincipal(t *testing.T) {
	iss := newTestIssuer(t)
	if _, err := iss.IssueAccess(""); err == nil {
		t.Fatal("expected error for empty principal id")
	}
}

func TestVerifyWrongKeyClass(t *testing.T) {
	iss := newTestIssuer(t)

	refresh, err := iss.IssueRefresh("principal-1")
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}
	if _, err := iss.Verify(refresh, ClassAccess); !errors.Is(err, ErrWrongKey) {
		t.Fatalf("expected ErrWrongKey, got %v", err)
	}

	access, err := iss.IssueAccess("principal-1")
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	if _, err := iss.Verify(access, ClassRefresh); !errors.Is(err, ErrWrongKey) {
		t.Fatalf("expected ErrWrongKey, got %v", err)
	}
}

func signExpired(t *testing.T, key []byte, issuer string) string {
	t.Helper()
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "principal-1",
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}
	return signed
}

func TestVerifyExpired(t *testing.T) {
	cfg := testConfig()
	iss := newTestIssuer(t)

	expired := signExpired(t, cfg.AccessKey, cfg.Issuer)
	if _, err := iss.Verify(expired, ClassAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyExpiredUnderWrongKey(t *testing.T) {
	// Expiry wins over signature classification: a stale token is rejected
	// as expired even when presented to the other key class.
	cfg := testConfig()
	iss := newTestIssuer(t)

	expired := signExpired(t, cfg.RefreshKey, cfg.Issuer)
	if _, err := iss.Verify(expired, ClassAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	iss := newTestIssuer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"truncated", "eyJhbGciOiJIUzI1NiJ9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := iss.Verify(tt.token, ClassAccess); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestVerifyForeignKey(t *testing.T) {
	// Signed under a key that belongs to neither class.
	iss := newTestIssuer(t)
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "principal-1",
			Issuer:    testConfig().Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-other-service-key-000000000"))
	if err != nil {
		t.Fatalf("signing foreign token: %v", err)
	}
	if _, err := iss.Verify(foreign, ClassAccess); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestVerifyMissingSubject(t *testing.T) {
	cfg := testConfig()
	iss := newTestIssuer(t)

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.AccessKey)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	if _, err := iss.Verify(signed, ClassAccess); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestVerifyRejectsUnsignedAlg(t *testing.T) {
	iss := newTestIssuer(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "principal-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none-alg token: %v", err)
	}
	if _, err := iss.Verify(unsigned, ClassAccess); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
