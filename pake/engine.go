// Package pake wraps the OPAQUE password-authenticated key exchange behind a
// small capability interface. The orchestration layer never touches the
// underlying math: it moves opaque byte blobs between the wire, the
// credential store, and this package.
package pake

import (
	"crypto/sha256"
	"errors"

	"go.dedis.ch/kyber/v3"
)

// ErrEngineRejected is returned when the engine cannot parse or process its
// input, e.g. malformed wire bytes or a corrupt stored envelope.
var ErrEngineRejected = errors.New("pake engine rejected input")

// ErrCryptoRejected is returned when a login-finish message fails
// cryptographic verification, i.e. the initiator does not know the password
// that produced the stored envelope.
var ErrCryptoRejected = errors.New("authentication rejected")

// SessionKeyLen is the length in bytes of a derived session key.
const SessionKeyLen = sha256.Size

// LoginState is the server-side handshake transcript produced by LoginStart
// and consumed exactly once by LoginFinish. It is opaque to callers; the
// orchestration layer only parks it in the pending-login store between the
// two messages.
type LoginState struct {
	auth *serverAuthState
}

// Engine is the server-side PAKE capability. Implementations must be safe for
// concurrent use; a LoginState, however, is single-use and must not be shared.
type Engine interface {
	// RegisterStart processes the initiator's blinded registration request
	// and returns the opaque response to send back. It keeps no state: the
	// per-user OPRF key is re-derived from the server key material, so the
	// registration exchange needs no pending-state store.
	RegisterStart(userID string, request []byte) ([]byte, error)

	// SealEnvelope validates the initiator's finished registration record
	// and returns the canonical envelope to persist. The envelope's
	// cryptographic validity is self-certifying; only its framing is checked.
	SealEnvelope(userID string, record []byte) ([]byte, error)

	// LoginStart combines the stored envelope with the initiator's blinded
	// login request. It returns the opaque server response and the handshake
	// state the matching LoginFinish requires.
	LoginStart(userID string, envelope, request []byte) ([]byte, *LoginState, error)

	// LoginFinish verifies the initiator's finishing message against the
	// handshake state. On acceptance it returns the shared session key; on
	// rejection it returns ErrCryptoRejected. The state must be discarded
	// either way.
	LoginFinish(state *LoginState, finish []byte) ([]byte, error)

	// DecoyEnvelope returns a deterministic, plausible-looking envelope for
	// an unregistered user ID. Running LoginStart against it makes an
	// unknown user indistinguishable on the wire from a wrong password.
	DecoyEnvelope(userID string) []byte
}

// sessionKey derives the fixed-length session key from the key-exchange
// shared secret. Both sides of the protocol must apply the same derivation.
func sessionKey(shared kyber.Point) ([]byte, error) {
	b, err := shared.MarshalBinary()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}
