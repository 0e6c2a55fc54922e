// Package session provides Redis-backed storage for the single currently
// valid refresh token per principal.
//
// # Storage model
//
// Each principal owns exactly one slot keyed by principal id. The slot holds
// the most recently issued refresh-token value and expires with the token's
// own lifetime, so abandoned sessions clean themselves up. Writes are
// last-write-wins: a second login silently supersedes the first session.
//
// # Architecture boundaries
//
// This package owns Redis operations only. It does NOT interpret token
// contents, compare presented tokens against stored ones, or enforce
// rotation policy — those responsibilities belong to the Manager.
//
// # What this package must NOT do
//
//   - Import sessionauth, token, or password (no upward imports).
//   - Parse or validate JWTs.
//   - Make authentication decisions.
package session
