package pake

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cretz/gopaque/gopaque"
	"go.dedis.ch/kyber/v3"
)

const serverKeyFile = "server_key.bin"

// LoadOrCreateServerKey returns the long-term server private key, reading it
// from dir if present and otherwise generating and persisting a fresh one.
// The key must stay stable for the lifetime of the credential store: every
// stored envelope is bound to it, and rotating it invalidates all of them.
func LoadOrCreateServerKey(dir string) (kyber.Scalar, error) {
	path := filepath.Join(dir, serverKeyFile)
	raw, err := os.ReadFile(path)
	if err == nil {
		key := gopaque.CryptoDefault.Scalar()
		if err := key.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("decoding server key %s: %w", path, err)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading server key: %w", err)
	}

	key := gopaque.CryptoDefault.NewKey(nil)
	raw, err = key.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding server key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("writing server key: %w", err)
	}
	// Round-trip the fresh key through its wire form. Pick'd scalars can
	// carry a non-canonical internal representation, and the in-memory key
	// must compare equal to what a reload will produce.
	canonical := gopaque.CryptoDefault.Scalar()
	if err := canonical.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("encoding server key: %w", err)
	}
	return canonical, nil
}
