package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionalKeys_PutTake(t *testing.T) {
	p := newProvisionalKeys(time.Minute)
	key := []byte("0123456789abcdef0123456789abcdef")

	ref := p.Put("alice", key)
	require.NotEmpty(t, ref)

	got := p.Take("alice")
	assert.Equal(t, key, got)
}

func TestProvisionalKeys_PutLeavesCallerBufferIntact(t *testing.T) {
	p := newProvisionalKeys(time.Minute)
	key := []byte("0123456789abcdef0123456789abcdef")
	want := append([]byte(nil), key...)

	p.Put("alice", key)
	assert.Equal(t, want, key, "sealing must not wipe the caller's slice")
	assert.Equal(t, want, p.Take("alice"))
}

func TestProvisionalKeys_TakeConsumes(t *testing.T) {
	p := newProvisionalKeys(time.Minute)
	p.Put("alice", []byte("0123456789abcdef0123456789abcdef"))

	require.NotNil(t, p.Take("alice"))
	assert.Nil(t, p.Take("alice"))
}

func TestProvisionalKeys_Drop(t *testing.T) {
	p := newProvisionalKeys(time.Minute)
	p.Put("alice", []byte("0123456789abcdef0123456789abcdef"))

	p.Drop("alice")
	assert.Nil(t, p.Take("alice"))
}

func TestProvisionalKeys_TTLExpiry(t *testing.T) {
	p := newProvisionalKeys(10 * time.Millisecond)
	p.Put("alice", []byte("0123456789abcdef0123456789abcdef"))

	time.Sleep(30 * time.Millisecond)
	assert.Nil(t, p.Take("alice"))
}

func TestProvisionalKeys_PutSupersedes(t *testing.T) {
	p := newProvisionalKeys(time.Minute)
	first := p.Put("alice", []byte("first-key-material-0123456789abc"))
	second := p.Put("alice", []byte("second-key-material-0123456789ab"))
	assert.NotEqual(t, first, second)

	got := p.Take("alice")
	assert.Equal(t, []byte("second-key-material-0123456789ab"), got)
}
