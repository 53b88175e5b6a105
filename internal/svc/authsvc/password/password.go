// Package password hashes and verifies account passwords with argon2id.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

const (
	saltLength = 16
	// maxMemory bounds the cost a stored hash may ask for, in KiB.
	maxMemory = 1 << 20
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// Config holds the argon2id cost parameters used for new hashes.
// Existing hashes are verified with the parameters encoded in them.
type Config struct {
	// Memory is the memory cost in KiB
	Memory uint32 `env:"MEMORY" default:"65536"`
	// Iterations is the time cost
	Iterations uint32 `env:"ITERATIONS" default:"1"`
	// Parallelism is the number of lanes
	Parallelism uint8 `env:"PARALLELISM" default:"4"`
	// KeyLength is the derived key size in bytes
	KeyLength uint32 `env:"KEY_LENGTH" default:"32"`
}

// DefaultConfig returns the OWASP recommended argon2id parameters.
func DefaultConfig() Config {
	return Config{Memory: 64 * 1024, Iterations: 1, Parallelism: 4, KeyLength: 32}
}

// Hasher turns passwords into salted one-way hashes and checks them.
type Hasher interface {
	// Hash produces an encoded hash of password with a fresh random salt.
	Hash(password string) (string, error)

	// Verify reports whether password matches hash.
	// Any malformed hash verifies as false.
	Verify(password, hash string) bool
}

// Argon2idHasher implements Hasher using argon2id and the PHC string format.
type Argon2idHasher struct {
	cfg Config
}

var _ Hasher = (*Argon2idHasher)(nil)

// NewArgon2idHasher creates a new Argon2idHasher. Zero parameters fall back to DefaultConfig.
func NewArgon2idHasher(cfg Config) *Argon2idHasher {
	def := DefaultConfig()

	if cfg.Memory == 0 {
		cfg.Memory = def.Memory
	}

	if cfg.Iterations == 0 {
		cfg.Iterations = def.Iterations
	}

	if cfg.Parallelism == 0 {
		cfg.Parallelism = def.Parallelism
	}

	if cfg.KeyLength == 0 {
		cfg.KeyLength = def.KeyLength
	}

	return &Argon2idHasher{cfg: cfg}
}

// Hash implements Hasher.Hash.
// The result looks like $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cfg.Memory,
		h.cfg.Iterations,
		h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify implements Hasher.Verify in constant time with respect to the key.
func (h *Argon2idHasher) Verify(password, hash string) bool {
	params, salt, key, err := decode(hash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	return subtle.ConstantTimeCompare(computed, key) == 1
}

// NeedsRehash reports whether hash was produced with other parameters than the current ones.
func (h *Argon2idHasher) NeedsRehash(hash string) bool {
	params, _, _, err := decode(hash)

	return err != nil || params != h.cfg
}

func decode(hash string) (Config, []byte, []byte, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	} else if version != argon2.Version {
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	switch {
	case memory == 0 || memory > maxMemory:
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("memory cost out of range: %d", memory)
	case iterations == 0 || iterations > 64:
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("time cost out of range: %d", iterations)
	case threads == 0 || threads > 255:
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("parallelism out of range: %d", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if len(key) == 0 || len(key) > 1024 {
		return Config{}, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid key length: %d", len(key))
	}

	params := Config{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: uint8(threads),
		KeyLength:   uint32(len(key)), //nolint:gosec
	}

	return params, salt, key, nil
}
