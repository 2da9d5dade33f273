// Package harden implements the client-side password pre-processing that runs
// before a password enters the PAKE blinding step. The raw password is never
// used directly: it is normalized, salted with a value derived from the user
// ID, and stretched through Argon2id so that an exfiltrated registration
// envelope still costs an attacker a memory-hard evaluation per guess.
package harden

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/unicode/norm"
)

// ErrHardeningFailed wraps any failure of the underlying KDF. Callers must
// abort the whole registration or login attempt; no partial state may survive.
var ErrHardeningFailed = errors.New("password hardening failed")

// saltDomain separates the salt derivation from any other SHA-256 use of the
// user ID. Changing it invalidates every existing registration.
const saltDomain = "bastion/salt/v1"

// SaltLen is the length in bytes of the deterministic per-user salt.
const SaltLen = 32

// SecretLen is the length in bytes of a hardened secret.
const SecretLen = 32

// Params are the Argon2id cost parameters. The defaults match the interactive
// profile used elsewhere in the codebase; they are deliberately expensive and
// run only on the party that knows the password.
type Params struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultParams returns the recommended cost parameters.
func DefaultParams() Params {
	return Params{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
	}
}

func (p Params) validate() error {
	if p.Time == 0 {
		return fmt.Errorf("time cost must be at least 1")
	}
	if p.MemoryKiB < 8*uint32(p.Parallelism) {
		return fmt.Errorf("memory %d KiB too small for parallelism %d", p.MemoryKiB, p.Parallelism)
	}
	if p.Parallelism == 0 {
		return fmt.Errorf("parallelism must be at least 1")
	}
	return nil
}

// Salt derives the deterministic salt for a user. The same user always
// re-derives the same salt without a server round trip, and distinct users get
// distinct salts, so a single precomputed table cannot cover multiple targets.
func Salt(userID string) []byte {
	h := sha256.New()
	h.Write([]byte(saltDomain))
	h.Write([]byte(norm.NFKC.String(userID)))
	return h.Sum(nil)
}

// Harden stretches the password into the secret fed to the PAKE blinding
// step. The password is NFKC-normalized first so that visually identical
// input composed differently by two keyboards yields the same secret.
func Harden(password string, salt []byte, params Params) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", ErrHardeningFailed)
	}
	if len(salt) != SaltLen {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrHardeningFailed, SaltLen, len(salt))
	}
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHardeningFailed, err)
	}
	normalized := norm.NFKC.String(password)
	key := argon2.IDKey([]byte(normalized), salt, params.Time, params.MemoryKiB, params.Parallelism, SecretLen)
	return key, nil
}
