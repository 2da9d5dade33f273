package bbolt

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderw/bastion/store"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewFromFile(filepath.Join(t.TempDir(), "users.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record() *store.Record {
	return &store.Record{
		Envelope:  []byte{9, 8, 7},
		CreatedAt: time.Now().UTC(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put("alice", record()))

	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, got.Envelope)
}

func TestGetNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.Get("nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPutConflict(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put("alice", record()))
	assert.ErrorIs(t, s.Put("alice", record()), store.ErrAlreadyRegistered)
}

func TestAttachSecondFactor(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put("alice", record()))
	require.NoError(t, s.AttachSecondFactor("alice", "SECRET"))

	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.True(t, got.TOTPEnabled)
	assert.Equal(t, "SECRET", got.TOTPSecret)

	assert.ErrorIs(t, s.AttachSecondFactor("nobody", "x"), store.ErrNotFound)
}

func TestList(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put("alice", record()))
	require.NoError(t, s.Put("bob", record()))
	require.NoError(t, s.AttachSecondFactor("bob", "SECRET"))

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []byte{9, 8, 7}, all["alice"].Envelope)
	assert.True(t, all["bob"].TOTPEnabled)
}

func TestListEmpty(t *testing.T) {
	s := openStore(t)
	all, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.db")

	s, err := NewFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put("alice", record()))
	require.NoError(t, s.Close())

	s, err = NewFromFile(path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, got.Envelope)
}
