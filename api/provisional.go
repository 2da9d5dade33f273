package api

import (
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
)

const defaultProvisionalTTL = 5 * time.Minute

// provisionalKeys holds session keys that passed the handshake but still owe
// a second factor. The key bytes live in a memguard enclave until promoted;
// a wrong code destroys them, forcing a full new handshake.
type provisionalKeys struct {
	mu      sync.Mutex
	entries map[string]provisionalEntry
	ttl     time.Duration
}

type provisionalEntry struct {
	ref       string
	enclave   *memguard.Enclave
	createdAt time.Time
}

func newProvisionalKeys(ttl time.Duration) *provisionalKeys {
	if ttl <= 0 {
		ttl = defaultProvisionalTTL
	}
	return &provisionalKeys{
		entries: make(map[string]provisionalEntry),
		ttl:     ttl,
	}
}

// Put seals the session key for the user and returns an opaque reference.
// The caller's slice is left intact. Any earlier provisional key for the
// user is superseded.
func (p *provisionalKeys) Put(userID string, sessionKey []byte) string {
	ref := uuid.NewString()
	// NewEnclave wipes the slice it is given; seal a copy so the caller's
	// buffer survives.
	enclave := memguard.NewEnclave(append([]byte(nil), sessionKey...))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[userID] = provisionalEntry{ref: ref, enclave: enclave, createdAt: time.Now()}
	return ref
}

// Take removes and opens the user's provisional key. It returns nil when no
// entry exists or the entry has expired; the entry is consumed either way.
func (p *provisionalKeys) Take(userID string) []byte {
	p.mu.Lock()
	entry, ok := p.entries[userID]
	if ok {
		delete(p.entries, userID)
	}
	p.mu.Unlock()
	if !ok || time.Since(entry.createdAt) > p.ttl {
		return nil
	}
	buf, err := entry.enclave.Open()
	if err != nil {
		return nil
	}
	defer buf.Destroy()
	key := make([]byte, len(buf.Bytes()))
	copy(key, buf.Bytes())
	return key
}

// Drop discards the user's provisional key without opening it.
func (p *provisionalKeys) Drop(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, userID)
}

// sweep evicts expired entries.
func (p *provisionalKeys) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for userID, entry := range p.entries {
		if now.Sub(entry.createdAt) > p.ttl {
			delete(p.entries, userID)
		}
	}
}
