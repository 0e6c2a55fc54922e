// Package token issues and verifies the signed access and refresh tokens used
// by the session lifecycle.
//
// # Key classes
//
// Access and refresh tokens are HS256 JWTs carrying {sub, iat, exp}, signed
// under two independent keys. The classes are strictly separated: a token
// signed under one class never verifies under the other, so a leaked
// access-signing key cannot mint long-lived refresh tokens.
//
// # Architecture boundaries
//
// This package owns signing and verification only. It performs no I/O, reads
// no ambient process state, and knows nothing about principals, storage, or
// rotation policy — those belong to the Manager.
package token
