package pake

import (
	"testing"

	"github.com/cretz/gopaque/gopaque"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(gopaque.CryptoDefault.NewKey(nil))
}

func register(t *testing.T, srv *Server, userID string, secret []byte) []byte {
	t.Helper()
	flow, request, err := NewRegisterFlow(userID, secret)
	require.NoError(t, err)
	response, err := srv.RegisterStart(userID, request)
	require.NoError(t, err)
	record, err := flow.Complete(response)
	require.NoError(t, err)
	envelope, err := srv.SealEnvelope(userID, record)
	require.NoError(t, err)
	return envelope
}

func TestRegisterAndLoginRoundTrip(t *testing.T) {
	srv := testServer(t)
	secret := []byte("hardened-secret-material")
	envelope := register(t, srv, "alice", secret)

	flow, request, err := NewLoginFlow("alice", secret)
	require.NoError(t, err)
	response, state, err := srv.LoginStart("alice", envelope, request)
	require.NoError(t, err)
	finish, clientKey, err := flow.Complete(response)
	require.NoError(t, err)
	serverKey, err := srv.LoginFinish(state, finish)
	require.NoError(t, err)

	assert.Len(t, serverKey, SessionKeyLen)
	assert.Equal(t, clientKey, serverKey, "both sides must derive the same session key")
}

func TestLoginWrongPassword(t *testing.T) {
	srv := testServer(t)
	envelope := register(t, srv, "alice", []byte("right-secret"))

	flow, request, err := NewLoginFlow("alice", []byte("wrong-secret"))
	require.NoError(t, err)
	response, _, err := srv.LoginStart("alice", envelope, request)
	require.NoError(t, err)

	_, _, err = flow.Complete(response)
	require.ErrorIs(t, err, ErrCryptoRejected)
}

func TestLoginForgedFinish(t *testing.T) {
	srv := testServer(t)
	secret := []byte("secret")
	envelope := register(t, srv, "alice", secret)

	flow, request, err := NewLoginFlow("alice", secret)
	require.NoError(t, err)
	response, state, err := srv.LoginStart("alice", envelope, request)
	require.NoError(t, err)
	finish, _, err := flow.Complete(response)
	require.NoError(t, err)

	forged := append([]byte(nil), finish...)
	forged[len(forged)-1] ^= 0xff
	_, err = srv.LoginFinish(state, forged)
	require.ErrorIs(t, err, ErrCryptoRejected)
}

func TestRegisterStartUserIDMismatch(t *testing.T) {
	srv := testServer(t)
	_, request, err := NewRegisterFlow("alice", []byte("secret"))
	require.NoError(t, err)
	_, err = srv.RegisterStart("mallory", request)
	require.ErrorIs(t, err, ErrEngineRejected)
}

func TestLoginStartUserIDMismatch(t *testing.T) {
	srv := testServer(t)
	envelope := register(t, srv, "alice", []byte("secret"))
	_, request, err := NewLoginFlow("alice", []byte("secret"))
	require.NoError(t, err)
	_, _, err = srv.LoginStart("mallory", envelope, request)
	require.ErrorIs(t, err, ErrEngineRejected)
}

func TestMalformedInputs(t *testing.T) {
	srv := testServer(t)
	junk := []byte("not a protocol message")

	_, err := srv.RegisterStart("alice", junk)
	assert.ErrorIs(t, err, ErrEngineRejected)

	_, err = srv.SealEnvelope("alice", junk)
	assert.ErrorIs(t, err, ErrEngineRejected)

	_, _, err = srv.LoginStart("alice", junk, junk)
	assert.ErrorIs(t, err, ErrEngineRejected)

	_, err = srv.LoginFinish(nil, junk)
	assert.ErrorIs(t, err, ErrEngineRejected)
}

func TestDecoyEnvelope(t *testing.T) {
	srv := testServer(t)

	first := srv.DecoyEnvelope("ghost")
	second := srv.DecoyEnvelope("ghost")
	assert.Equal(t, first, second, "decoy must be stable across probes")

	other := srv.DecoyEnvelope("phantom")
	assert.NotEqual(t, first, other, "decoys must differ per user")

	real := register(t, srv, "alice", []byte("secret"))
	assert.Len(t, first, len(real), "decoy must match a genuine envelope's length")

	// A login against the decoy proceeds through start and only fails at the
	// client's envelope-opening step, same as a wrong password would.
	flow, request, err := NewLoginFlow("ghost", []byte("any-guess"))
	require.NoError(t, err)
	response, _, err := srv.LoginStart("ghost", first, request)
	require.NoError(t, err)
	_, _, err = flow.Complete(response)
	require.ErrorIs(t, err, ErrCryptoRejected)
}

func TestEnvelopeBoundToServerKey(t *testing.T) {
	secret := []byte("secret")
	srvA := testServer(t)
	envelope := register(t, srvA, "alice", secret)

	// A different server key cannot complete a login against the envelope.
	srvB := testServer(t)
	flow, request, err := NewLoginFlow("alice", secret)
	require.NoError(t, err)
	response, _, err := srvB.LoginStart("alice", envelope, request)
	require.NoError(t, err)
	_, _, err = flow.Complete(response)
	require.ErrorIs(t, err, ErrCryptoRejected)
}
