// Package sessionauth manages the credential and session-token lifecycle:
// argon2id secret verification, dual-key JWT issuance, and single-slot
// refresh-token rotation with reuse detection.
//
// The package is designed for concurrent server workloads: Manager methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// sessionauth is the public surface. It exposes [Manager], [Builder],
// [Config], the error taxonomy, and the collaborator contracts
// ([PrincipalStore], [SessionStore], [AuditSink]). The leaf components live
// in the token, password, and session subpackages; ready-made collaborator
// implementations live in postgres and objstore.
//
// # Session model
//
// Exactly one refresh token per principal is live at any moment: the value
// written to the [SessionStore] slot on login and on every successful
// refresh. Presenting any other refresh token, however well signed and
// unexpired, is rejected as reuse. Logout clears the slot, ending the
// session for every copy of the token.
//
// # What this package must NOT do
//
//   - Persist principal records itself; that is the caller's store.
//   - Call object storage; uploads belong to the registration transport.
//   - Read signing keys or TTLs from ambient process state; all
//     configuration enters through [Config] at Build time.
package sessionauth
