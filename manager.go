package sessionauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sessionauth/sessionauth/token"
)

// Manager owns the session lifecycle: it verifies credentials, issues
// token pairs, rotates the single refresh slot, and clears it on logout.
// Construct through [Builder.Build]; all methods are safe for concurrent
// use once built.
type Manager struct {
	config     Config
	issuer     *token.Issuer
	hasher     secretHasher
	principals PrincipalStore
	sessions   SessionStore
	audit      *auditDispatcher
	metrics    *Metrics

	// dummyDigest is hashed at build time with the configured parameters.
	// Login verifies unknown identifiers against it so the failure path
	// costs the same as a real mismatch.
	dummyDigest string
}

// secretHasher is what the Manager needs from the password package.
type secretHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
	NeedsUpgrade(digest string) (bool, error)
}

func (m *Manager) ready() error {
	if m == nil || m.issuer == nil || m.hasher == nil || m.principals == nil || m.sessions == nil {
		return ErrManagerNotReady
	}
	return nil
}

// Register creates a principal with a freshly computed secret digest.
// Username and email are lowercased before storage; duplicates surface
// as [ErrConflict]. The returned Principal has SecretDigest blanked.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*Principal, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	displayName := strings.TrimSpace(in.DisplayName)

	if username == "" || email == "" || displayName == "" || in.Secret == "" {
		m.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrInvalidInput, func() map[string]string {
			return map[string]string{
				"username": username,
				"reason":   "missing_fields",
			}
		})
		return nil, ErrInvalidInput
	}

	digest, err := m.hasher.Hash(in.Secret)
	if err != nil {
		m.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrInternal, func() map[string]string {
			return map[string]string{
				"username": username,
				"reason":   "hash_failure",
			}
		})
		return nil, ErrInternal
	}

	now := time.Now().UTC()
	principal := &Principal{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		SecretDigest: digest,
		AvatarURL:    in.AvatarURL,
		CoverURL:     in.CoverURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, ErrConflict) {
			m.metricInc(MetricRegisterConflict)
			m.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrConflict, func() map[string]string {
				return map[string]string{
					"username": username,
					"reason":   "duplicate_identifier",
				}
			})
			return nil, ErrConflict
		}
		m.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrInternal, func() map[string]string {
			return map[string]string{
				"username": username,
				"reason":   "store_failure",
			}
		})
		return nil, ErrInternal
	}

	m.metricInc(MetricRegisterSuccess)
	m.emitAudit(ctx, auditEventRegisterSuccess, true, principal.ID, nil, nil)

	out := *principal
	out.SecretDigest = ""
	return &out, nil
}

// Login resolves identifier (username or email), verifies the secret,
// and on success issues a token pair and overwrites the refresh slot.
// Unknown identifier and wrong secret both return
// [ErrInvalidCredentials]; the audit event carries the distinction.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*TokenPair, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || secret == "" {
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidInput, func() map[string]string {
			return map[string]string{
				"reason": "empty_input",
			}
		})
		return nil, ErrInvalidInput
	}

	principal, err := m.principals.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn the same hashing work as the known-identifier path.
			_, _ = m.hasher.Verify(secret, m.dummyDigest)
			m.metricInc(MetricLoginFailure)
			m.metricInc(MetricLoginUnknownPrincipal)
			m.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
					"reason":     "unknown_identifier",
				}
			})
			return nil, ErrInvalidCredentials
		}
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInternal, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "store_failure",
			}
		})
		return nil, ErrInternal
	}

	ok, err := m.hasher.Verify(secret, principal.SecretDigest)
	if err != nil {
		// A malformed stored digest is an internal invariant violation,
		// reported to the caller as a plain credential failure.
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "malformed_digest",
			}
		})
		return nil, ErrInvalidCredentials
	}
	if !ok {
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "secret_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if m.config.RehashOnLogin {
		m.maybeRehash(ctx, principal.ID, secret, principal.SecretDigest)
	}

	pair, err := m.issueAndPersist(ctx, principal.ID)
	if err != nil {
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, ErrInternal, func() map[string]string {
			return map[string]string{
				"reason": "issue_failure",
			}
		})
		return nil, ErrInternal
	}

	m.metricInc(MetricLoginSuccess)
	m.emitAudit(ctx, auditEventLoginSuccess, true, principal.ID, nil, nil)

	return pair, nil
}

// Refresh rotates the session: it verifies the presented refresh token
// under the refresh key class, checks it byte-for-byte against the
// stored slot, and on match issues and persists a new pair. A verified
// token that does not match the slot is a rotated-out or stolen copy
// and is rejected with [ErrUnauthorized].
func (m *Manager) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	if presented == "" {
		m.metricInc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventRefreshRejected, false, "", ErrUnauthorized, func() map[string]string {
			return map[string]string{
				"reason": "empty_token",
			}
		})
		return nil, ErrUnauthorized
	}

	claims, err := m.issuer.Verify(presented, token.ClassRefresh)
	if err != nil {
		reason := refreshRejectReason(err)
		m.metricInc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventRefreshRejected, false, "", ErrUnauthorized, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return nil, ErrUnauthorized
	}

	principalID := claims.PrincipalID()
	principal, err := m.principals.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Principal deleted after issuance.
			m.metricInc(MetricRefreshFailure)
			m.emitAudit(ctx, auditEventRefreshRejected, false, principalID, ErrUnauthorized, func() map[string]string {
				return map[string]string{
					"reason": "principal_missing",
				}
			})
			return nil, ErrUnauthorized
		}
		m.metricInc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventRefreshRejected, false, principalID, ErrInternal, func() map[string]string {
			return map[string]string{
				"reason": "store_failure",
			}
		})
		return nil, ErrInternal
	}

	current, err := m.sessions.Get(ctx, principal.ID)
	if err != nil {
		m.metricInc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventRefreshRejected, false, principal.ID, ErrInternal, func() map[string]string {
			return map[string]string{
				"reason": "session_store_failure",
			}
		})
		return nil, ErrInternal
	}

	if current == "" || subtle.ConstantTimeCompare([]byte(current), []byte(presented)) != 1 {
		m.metricInc(MetricRefreshFailure)
		m.metricInc(MetricRefreshReuseDetected)
		m.emitAudit(ctx, auditEventRefreshReuse, false, principal.ID, ErrUnauthorized, func() map[string]string {
			return map[string]string{
				"reason": "token_reuse",
			}
		})
		return nil, ErrUnauthorized
	}

	pair, err := m.issueAndPersist(ctx, principal.ID)
	if err != nil {
		m.metricInc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventRefreshRejected, false, principal.ID, ErrInternal, func() map[string]string {
			return map[string]string{
				"reason": "issue_failure",
			}
		})
		return nil, ErrInternal
	}

	m.metricInc(MetricRefreshSuccess)
	m.emitAudit(ctx, auditEventRefreshSuccess, true, principal.ID, nil, nil)

	return pair, nil
}

// Logout clears the refresh slot. Every previously issued refresh token
// for the principal becomes permanently unusable. Logging out a
// principal with no live session is a no-op, not an error.
func (m *Manager) Logout(ctx context.Context, principalID string) error {
	if err := m.ready(); err != nil {
		return err
	}
	if principalID == "" {
		return ErrInvalidInput
	}

	if err := m.sessions.Clear(ctx, principalID); err != nil {
		m.emitAudit(ctx, auditEventLogout, false, principalID, ErrInternal, func() map[string]string {
			return map[string]string{
				"reason": "session_store_failure",
			}
		})
		return ErrInternal
	}

	m.metricInc(MetricLogout)
	m.emitAudit(ctx, auditEventLogout, true, principalID, nil, nil)

	return nil
}

// ChangeSecret verifies the current secret and stores a digest of the
// new one. When Config.RevokeOnSecretChange is set the refresh slot is
// cleared as well, ending the live session.
func (m *Manager) ChangeSecret(ctx context.Context, principalID, oldSecret, newSecret string) error {
	if err := m.ready(); err != nil {
		return err
	}
	if principalID == "" || oldSecret == "" || newSecret == "" {
		return ErrInvalidInput
	}

	principal, err := m.principals.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		m.emitAudit(ctx, auditEventSecretChangeFail, false, principalID, ErrInternal, func() map[string]string {
			return map[string]string{
				"reason": "store_failure",
			}
		})
		return ErrInternal
	}

	ok, err := m.hasher.Verify(oldSecret, principal.SecretDigest)
	if err != nil {
		m.metricInc(MetricSecretChangeInvalidOld)
		m.emitAudit(ctx, auditEventSecretChangeFail, false, principal.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "malformed_digest",
			}
		})
		return ErrInvalidCredentials
	}
	if !ok {
		m.metricInc(MetricSecretChangeInvalidOld)
		m.emitAudit(ctx, auditEventSecretChangeFail, false, principal.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "old_secret_mismatch",
			}
		})
		return ErrInvalidCredentials
	}

	digest, err := m.hasher.Hash(newSecret)
	if err != nil {
		m.emitAudit(ctx, auditEventSecretChangeFail, false, principal.ID, ErrInternal, func() map[string]string {
			return map[string]string{
				"reason": "hash_failure",
			}
		})
		return ErrInternal
	}

	if err := m.principals.UpdateSecretDigest(ctx, principal.ID, digest); err != nil {
		m.emitAudit(ctx, auditEventSecretChangeFail, false, principal.ID, ErrInternal, func() map[string]string {
			return map[string]string{
				"reason": "store_failure",
			}
		})
		return ErrInternal
	}

	if m.config.RevokeOnSecretChange {
		if err := m.sessions.Clear(ctx, principal.ID); err != nil {
			m.emitAudit(ctx, auditEventSecretChangeFail, false, principal.ID, ErrInternal, func() map[string]string {
				return map[string]string{
					"reason": "revoke_failure",
				}
			})
			return ErrInternal
		}
	}

	m.metricInc(MetricSecretChangeSuccess)
	m.emitAudit(ctx, auditEventSecretChanged, true, principal.ID, nil, func() map[string]string {
		return map[string]string{
			"revoked": boolString(m.config.RevokeOnSecretChange),
		}
	})

	return nil
}

// ValidateAccess verifies an access token and returns the principal id
// it was issued to. Any verification failure, including a refresh token
// presented under the access class, maps to [ErrUnauthorized].
func (m *Manager) ValidateAccess(ctx context.Context, accessToken string) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	if accessToken == "" {
		return "", ErrUnauthorized
	}

	claims, err := m.issuer.Verify(accessToken, token.ClassAccess)
	if err != nil {
		return "", ErrUnauthorized
	}

	return claims.PrincipalID(), nil
}

// Close flushes and stops the audit dispatcher. The Manager must not be
// used after Close.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	if m.audit != nil {
		m.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}

// MetricsSnapshot returns a copy of all counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil || m.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return m.metrics.Snapshot()
}

// issueAndPersist mints a fresh pair and overwrites the refresh slot.
// The pair is returned only after the slot write succeeded, so the
// caller never observes a token the store does not know about.
func (m *Manager) issueAndPersist(ctx context.Context, principalID string) (*TokenPair, error) {
	access, err := m.issuer.IssueAccess(principalID)
	if err != nil {
		return nil, err
	}
	refresh, err := m.issuer.IssueRefresh(principalID)
	if err != nil {
		return nil, err
	}

	if err := m.sessions.Set(ctx, principalID, refresh); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// maybeRehash upgrades a digest whose cost parameters fall below the
// configured ones. Best-effort: a failed upgrade never fails the login.
func (m *Manager) maybeRehash(ctx context.Context, principalID, secret, digest string) {
	upgrade, err := m.hasher.NeedsUpgrade(digest)
	if err != nil || !upgrade {
		return
	}
	fresh, err := m.hasher.Hash(secret)
	if err != nil {
		return
	}
	_ = m.principals.UpdateSecretDigest(ctx, principalID, fresh)
}

func (m *Manager) metricInc(id MetricID) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Inc(id)
}

func (m *Manager) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["user_agent"] = ua
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = code
	}

	m.audit.Emit(ctx, event)
}

func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "duplicate"
	default:
		return "internal_error"
	}
}

func refreshRejectReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrWrongKey):
		return "wrong_key"
	default:
		return "malformed"
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
