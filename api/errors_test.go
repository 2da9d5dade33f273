package api

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderw/bastion/pake"
	"github.com/calderw/bastion/store"
)

// failingStore returns the same error from every operation.
type failingStore struct{ err error }

func (s failingStore) Put(string, *store.Record) error         { return s.err }
func (s failingStore) Get(string) (*store.Record, error)       { return nil, s.err }
func (s failingStore) AttachSecondFactor(string, string) error { return s.err }
func (s failingStore) List() (map[string]*store.Record, error) { return nil, s.err }

type stubEngine struct{}

func (stubEngine) RegisterStart(string, []byte) ([]byte, error) { return []byte("ok"), nil }
func (stubEngine) SealEnvelope(string, []byte) ([]byte, error)  { return []byte("env"), nil }
func (stubEngine) LoginStart(string, []byte, []byte) ([]byte, *pake.LoginState, error) {
	return []byte("resp"), &pake.LoginState{}, nil
}
func (stubEngine) LoginFinish(*pake.LoginState, []byte) ([]byte, error) {
	return nil, pake.ErrCryptoRejected
}
func (stubEngine) DecoyEnvelope(string) []byte { return []byte("decoy") }

func TestInternalErrorUsesInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	a := New(failingStore{err: errors.New("disk unavailable")}, stubEngine{},
		WithLogger(logger), WithTimingFloor(0))
	t.Cleanup(a.Close)

	body := strings.NewReader(`{"user_id":"alice","request":"aGk="}`)
	r := httptest.NewRequest(http.MethodPost, "/login-init", body)
	w := httptest.NewRecorder()
	a.LoginInit(w, r)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "failed to load credential record")
	assert.Contains(t, buf.String(), "disk unavailable")
}
