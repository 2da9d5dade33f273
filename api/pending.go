package api

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/calderw/bastion/pake"
)

const (
	pendingShards     = 32
	defaultPendingTTL = 60 * time.Second
	pendingSweepEvery = 30 * time.Second
)

// pendingLogins parks the server-side handshake state between login-init and
// login-finish. Entries are keyed by user ID and sharded so concurrent
// handshakes for different users never contend on one lock.
//
// The contract carries the protocol's ordering guarantees: Put replaces any
// earlier handshake for the same user, and Take consumes the entry whether or
// not it is still fresh, so a finish message can never be replayed and always
// meets the most recent init's state.
type pendingLogins struct {
	shards [pendingShards]pendingShard
	ttl    time.Duration
}

type pendingShard struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
}

type pendingEntry struct {
	state     *pake.LoginState
	createdAt time.Time
}

func newPendingLogins(ttl time.Duration) *pendingLogins {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	p := &pendingLogins{ttl: ttl}
	for i := range p.shards {
		p.shards[i].entries = make(map[string]pendingEntry)
	}
	return p
}

func (p *pendingLogins) shard(userID string) *pendingShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &p.shards[h.Sum32()%pendingShards]
}

// Put stores handshake state for the user, superseding any earlier entry.
func (p *pendingLogins) Put(userID string, state *pake.LoginState) {
	s := p.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = pendingEntry{state: state, createdAt: time.Now()}
}

// Take removes and returns the user's handshake state. It returns nil when no
// entry exists or the entry has outlived the TTL; either way nothing remains
// for a second Take.
func (p *pendingLogins) Take(userID string) *pake.LoginState {
	s := p.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[userID]
	if !ok {
		return nil
	}
	delete(s.entries, userID)
	if time.Since(entry.createdAt) > p.ttl {
		return nil
	}
	return entry.state
}

// sweep evicts expired entries. Call periodically from a background goroutine.
func (p *pendingLogins) sweep() {
	now := time.Now()
	for i := range p.shards {
		s := &p.shards[i]
		s.mu.Lock()
		for userID, entry := range s.entries {
			if now.Sub(entry.createdAt) > p.ttl {
				delete(s.entries, userID)
			}
		}
		s.mu.Unlock()
	}
}

// sweepLoop runs sweep until stop is closed.
func (p *pendingLogins) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pendingSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-stop:
			return
		}
	}
}
