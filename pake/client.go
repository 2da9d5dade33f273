package pake

import (
	"fmt"

	"github.com/cretz/gopaque/gopaque"
)

// The flows below are the user side of the protocol. They exist for the CLI
// client and the tests; a production deployment would typically run this half
// in the end-user's client. The secret passed in is the hardened secret from
// the harden package, never the raw password.

// RegisterFlow drives the two-message registration exchange from the
// initiator's side. Create one per registration attempt and never reuse it.
type RegisterFlow struct {
	user *gopaque.UserRegister
}

// NewRegisterFlow starts a registration for userID and returns the blinded
// request bytes to send to register-init.
func NewRegisterFlow(userID string, secret []byte) (*RegisterFlow, []byte, error) {
	user := gopaque.NewUserRegister(gopaque.CryptoDefault, []byte(userID), nil)
	init := user.Init(secret)
	request, err := init.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("encoding register request: %w", err)
	}
	return &RegisterFlow{user: user}, request, nil
}

// Complete consumes the register-init response and returns the finished
// registration record to send to register-finish.
func (f *RegisterFlow) Complete(response []byte) ([]byte, error) {
	var serverInit gopaque.ServerRegisterInit
	if err := serverInit.FromBytes(gopaque.CryptoDefault, response); err != nil {
		return nil, fmt.Errorf("%w: parsing register response: %v", ErrEngineRejected, err)
	}
	record, err := f.user.Complete(&serverInit).ToBytes()
	if err != nil {
		return nil, fmt.Errorf("encoding registration record: %w", err)
	}
	return record, nil
}

// LoginFlow drives the two-message login exchange from the initiator's side.
// Create one per login attempt and never reuse it.
type LoginFlow struct {
	user *gopaque.UserAuth
	kex  *gopaque.KeyExchangeSigma
}

// NewLoginFlow starts a login for userID and returns the blinded request
// bytes to send to login-init.
func NewLoginFlow(userID string, secret []byte) (*LoginFlow, []byte, error) {
	kex := gopaque.NewKeyExchangeSigma(gopaque.CryptoDefault)
	user := gopaque.NewUserAuth(gopaque.CryptoDefault, []byte(userID), kex)
	init, err := user.Init(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("starting login: %w", err)
	}
	request, err := init.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("encoding login request: %w", err)
	}
	return &LoginFlow{user: user, kex: kex}, request, nil
}

// Complete consumes the login-init response. On success it returns the finish
// message for login-finish together with the session key this side derived.
// ErrCryptoRejected means the secret does not open the server's envelope,
// i.e. the password is wrong (or the server never had this user).
func (f *LoginFlow) Complete(response []byte) (finish []byte, key []byte, err error) {
	var serverComplete gopaque.ServerAuthComplete
	if err := serverComplete.FromBytes(gopaque.CryptoDefault, response); err != nil {
		return nil, nil, fmt.Errorf("%w: parsing login response: %v", ErrEngineRejected, err)
	}
	_, userComplete, err := f.user.Complete(&serverComplete)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCryptoRejected, err)
	}
	finish, err = userComplete.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("encoding finish message: %w", err)
	}
	key, err = sessionKey(f.kex.SharedSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving session key: %w", err)
	}
	return finish, key, nil
}
