package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// ErrEmptySecret is returned by Hash when the plaintext is empty. Any
// non-empty secret hashes successfully; length policy belongs to the caller.
var ErrEmptySecret = errors.New("empty secret")

// ErrMalformedDigest is returned by Verify and NeedsUpgrade when the stored
// digest is not a valid PHC string. A malformed digest is an internal
// invariant violation, not a property of the presented secret.
var ErrMalformedDigest = errors.New("malformed secret digest")

// Config holds the Argon2id cost parameters used when producing new digests.
type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Argon2 hashes secrets and verifies plaintexts against stored digests.
// Construct via [NewArgon2]; the zero value is not usable.
type Argon2 struct {
	config Config
}

// NewArgon2 validates the cost parameters and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("secret hash memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return nil, errors.New("secret hash time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("secret hash parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("secret hash salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("secret hash key length must be >= 16")
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a salted PHC-encoded digest from plaintext. The salt is drawn
// fresh per call, so the output is non-deterministic.
func (a *Argon2) Hash(plaintext string) (string, error) {
	// Raw string bytes exactly as provided; no Unicode normalization.
	if plaintext == "" {
		return "", ErrEmptySecret
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(plaintext),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches the stored digest. The comparison
// is constant-time over the derived key. A digest that cannot be parsed
// yields (false, ErrMalformedDigest) so the caller can log the invariant
// violation while still treating the attempt as a mismatch.
func (a *Argon2) Verify(plaintext string, digest string) (bool, error) {
	parsed, err := parseDigest(digest)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(plaintext),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.key)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsUpgrade reports whether the digest was produced with cost parameters
// weaker than the hasher's current configuration.
func (a *Argon2) NeedsUpgrade(digest string) (bool, error) {
	parsed, err := parseDigest(digest)
	if err != nil {
		return false, err
	}

	if a.config.Memory > parsed.memory {
		return true, nil
	}
	if a.config.Time > parsed.time {
		return true, nil
	}
	if a.config.Parallelism > parsed.parallelism {
		return true, nil
	}
	if int(a.config.KeyLength) != len(parsed.key) {
		return true, nil
	}
	return false, nil
}

type digestFields struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parseDigest(digest string) (*digestFields, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedDigest
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, ErrMalformedDigest
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, ErrMalformedDigest
	}

	fields := &digestFields{}
	if err := parseCostParams(parts[3], fields); err != nil {
		return nil, err
	}

	var err error
	fields.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(fields.salt) < int(minSaltLength) {
		return nil, ErrMalformedDigest
	}
	fields.key, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(fields.key) == 0 {
		return nil, ErrMalformedDigest
	}

	return fields, nil
}

func parseCostParams(part string, fields *digestFields) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return ErrMalformedDigest
	}

	var memorySet, timeSet, parallelismSet bool
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return ErrMalformedDigest
		}

		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return ErrMalformedDigest
			}
			fields.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return ErrMalformedDigest
			}
			fields.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return ErrMalformedDigest
			}
			fields.parallelism = uint8(v)
			parallelismSet = true
		default:
			return ErrMalformedDigest
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return ErrMalformedDigest
	}
	return nil
}
