package pake

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/cretz/gopaque/gopaque"
	"go.dedis.ch/kyber/v3"
)

// Key-derivation discriminators. Changing any of these invalidates every
// registration envelope tied to the current server key.
const (
	oprfKeyInfo   = "bastion/oprf-key/v1:"
	decoyKeyInfo  = "bastion/decoy-key/v1:"
	decoySeedInfo = "bastion/decoy-env/v1:"
)

// decoyEnvULen matches the length of a genuine envelope ciphertext: a 64-byte
// plaintext (user private scalar + server public point) CBC-padded to 80
// bytes, plus a 16-byte IV and a 32-byte MAC.
const decoyEnvULen = aes.BlockSize + 80 + sha256.Size

// Server implements Engine on top of gopaque with the Ed25519 kyber suite.
// The zero value is not usable; construct with NewServer.
type Server struct {
	crypto gopaque.Crypto
	key    kyber.Scalar
}

var _ Engine = (*Server)(nil)

type serverAuthState struct {
	auth *gopaque.ServerAuth
	kex  *gopaque.KeyExchangeSigma
}

// NewServer creates an engine bound to the given long-lived server key.
func NewServer(key kyber.Scalar) *Server {
	return &Server{crypto: gopaque.CryptoDefault, key: key}
}

func (s *Server) publicKey() kyber.Point {
	return s.crypto.Point().Mul(s.key, nil)
}

// oprfKey derives the per-user OPRF key from the server key material. The
// derivation is deterministic, which keeps the registration exchange
// stateless and gives unregistered user IDs the same OPRF behavior as
// registered ones.
func (s *Server) oprfKey(userID string) kyber.Scalar {
	return s.crypto.DeriveKey(s.key, []byte(oprfKeyInfo+userID))
}

func (s *Server) RegisterStart(userID string, request []byte) ([]byte, error) {
	var init gopaque.UserRegisterInit
	if err := init.FromBytes(s.crypto, request); err != nil {
		return nil, fmt.Errorf("%w: parsing register request: %v", ErrEngineRejected, err)
	}
	if !bytes.Equal(init.UserID, []byte(userID)) {
		return nil, fmt.Errorf("%w: request user ID does not match", ErrEngineRejected)
	}

	resp := &gopaque.ServerRegisterInit{ServerPublicKey: s.publicKey()}
	resp.V, resp.Beta = gopaque.OPRFServerStep2(s.crypto, init.Alpha, s.oprfKey(userID))

	out, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: encoding register response: %v", ErrEngineRejected, err)
	}
	return out, nil
}

func (s *Server) SealEnvelope(userID string, record []byte) ([]byte, error) {
	var complete gopaque.UserRegisterComplete
	if err := complete.FromBytes(s.crypto, record); err != nil {
		return nil, fmt.Errorf("%w: parsing registration record: %v", ErrEngineRejected, err)
	}
	out, err := complete.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: encoding envelope: %v", ErrEngineRejected, err)
	}
	return out, nil
}

func (s *Server) LoginStart(userID string, envelope, request []byte) ([]byte, *LoginState, error) {
	var init gopaque.UserAuthInit
	if err := init.FromBytes(s.crypto, request); err != nil {
		return nil, nil, fmt.Errorf("%w: parsing login request: %v", ErrEngineRejected, err)
	}
	if !bytes.Equal(init.UserID, []byte(userID)) {
		return nil, nil, fmt.Errorf("%w: request user ID does not match", ErrEngineRejected)
	}

	var stored gopaque.UserRegisterComplete
	if err := stored.FromBytes(s.crypto, envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: parsing stored envelope: %v", ErrEngineRejected, err)
	}
	regInfo := &gopaque.ServerRegisterComplete{
		UserID:           []byte(userID),
		ServerPrivateKey: s.key,
		UserPublicKey:    stored.UserPublicKey,
		EnvU:             stored.EnvU,
		KU:               s.oprfKey(userID),
	}

	kex := gopaque.NewKeyExchangeSigma(s.crypto)
	auth := gopaque.NewServerAuth(s.crypto, kex)
	complete, err := auth.Complete(&init, regInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: login start: %v", ErrEngineRejected, err)
	}
	out, err := complete.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encoding login response: %v", ErrEngineRejected, err)
	}
	return out, &LoginState{auth: &serverAuthState{auth: auth, kex: kex}}, nil
}

func (s *Server) LoginFinish(state *LoginState, finish []byte) ([]byte, error) {
	if state == nil || state.auth == nil {
		return nil, fmt.Errorf("%w: missing handshake state", ErrEngineRejected)
	}
	var complete gopaque.UserAuthComplete
	if err := complete.FromBytes(s.crypto, finish); err != nil {
		return nil, fmt.Errorf("%w: parsing finish message: %v", ErrCryptoRejected, err)
	}
	if err := state.auth.auth.Finish(&complete); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoRejected, err)
	}
	key, err := sessionKey(state.auth.kex.SharedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving session key: %v", ErrEngineRejected, err)
	}
	return key, nil
}

// DecoyEnvelope fabricates the envelope used for unregistered user IDs. It is
// deterministic per user so that repeated probes observe a stable envelope,
// exactly as they would for a registered user, and its ciphertext section has
// the length of a genuine one. No party knows a password that decrypts it.
func (s *Server) DecoyEnvelope(userID string) []byte {
	userKey := s.crypto.DeriveKey(s.key, []byte(decoyKeyInfo+userID))
	fake := &gopaque.UserRegisterComplete{
		UserPublicKey: s.crypto.Point().Mul(userKey, nil),
		EnvU:          s.decoyEnvU(userID),
	}
	out, err := fake.ToBytes()
	if err != nil {
		// Marshalling a point we just derived cannot fail.
		panic(err)
	}
	return out
}

func (s *Server) decoyEnvU(userID string) []byte {
	seedScalar := s.crypto.DeriveKey(s.key, []byte(decoySeedInfo+userID))
	seed, err := seedScalar.MarshalBinary()
	if err != nil {
		panic(err)
	}
	out := make([]byte, 0, decoyEnvULen)
	var ctr [8]byte
	for i := uint64(0); len(out) < decoyEnvULen; i++ {
		binary.BigEndian.PutUint64(ctr[:], i)
		h := sha256.New()
		h.Write(seed)
		h.Write(ctr[:])
		out = h.Sum(out)
	}
	return out[:decoyEnvULen]
}
