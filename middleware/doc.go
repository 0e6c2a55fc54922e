// Package middleware exposes an HTTP guard built on sessionauth access-token
// validation.
//
// [RequireAccess] reads the Authorization header, calls Manager.ValidateAccess,
// and injects the authenticated principal id into the request context, where
// handlers retrieve it with [PrincipalIDFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Manager calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the Manager).
//   - Touch the session store (access checks are stateless).
//   - Make authorization decisions beyond pass/reject.
package middleware
