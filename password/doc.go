// Package password implements one-way secret hashing and verification with
// Argon2id defaults.
//
// # Output format
//
// Digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashing is salted per call, so two digests of the same secret differ;
// verification recovers the parameters and salt from the digest itself.
// [Argon2.NeedsUpgrade] reports whether a stored digest was produced with
// weaker parameters so the caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Secret policy and the
// decision of what a malformed stored digest means are enforced by the
// Manager.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets — callers supply plaintext and receive digests.
//   - Import any other sessionauth package.
//   - Log plaintext secrets or digest parameters at runtime.
package password
