package sessionauth

import (
	"context"
	"time"
)

// Principal is the stored identity record a session authenticates against.
// SecretDigest is computed at registration and mutated only by ChangeSecret;
// CurrentRefreshToken mirrors the single live refresh token (empty when no
// session is live) and is mutated only by the Manager through the
// [SessionStore].
type Principal struct {
	ID           string
	Username     string
	Email        string
	DisplayName  string
	SecretDigest string

	// CurrentRefreshToken is populated by stores that keep the session slot
	// alongside the principal record (see the postgres implementation).
	// Redis-backed deployments leave it empty on reads.
	CurrentRefreshToken string

	// Profile fields owned by the registration flow, opaque to the token
	// lifecycle.
	AvatarURL string
	CoverURL  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenPair bundles a short-lived access token and a long-lived refresh
// token. It is a transport artifact: only the refresh half is mirrored
// server-side.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterInput carries the fields required to create a principal. Avatar
// and cover URLs are produced by the caller (typically via objstore) before
// registration; the Manager never performs uploads itself.
type RegisterInput struct {
	Username    string
	Email       string
	DisplayName string
	Secret      string
	AvatarURL   string
	CoverURL    string
}

// PrincipalStore is the persistence contract callers must implement to
// integrate sessionauth with their user database. Implementations must
// enforce username/email uniqueness (username case-insensitive) and return
// [ErrNotFound] / [ErrConflict] accordingly.
type PrincipalStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	Create(ctx context.Context, principal *Principal) error
	UpdateSecretDigest(ctx context.Context, id, digest string) error
	UpdateProfile(ctx context.Context, id, displayName, email string) error
}

// SessionStore reads and writes the single currently valid refresh-token
// value per principal. Get returns the empty string when no session is
// live. Implementations must make the Get/Set pair for one principal id
// linearizable with respect to other calls for the same id; last-write-wins
// is acceptable. Cross-principal calls are fully independent.
type SessionStore interface {
	Get(ctx context.Context, principalID string) (string, error)
	Set(ctx context.Context, principalID, refreshToken string) error
	Clear(ctx context.Context, principalID string) error
}
