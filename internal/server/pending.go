package server

import (
	"log/slog"
	"sync"
	"time"
)

// pendingRegistration is the registrant metadata parked between /auth/start
// and /auth/callback, keyed by the anti-forgery state token.
type pendingRegistration struct {
	Name      string
	Email     string
	Company   string
	createdAt time.Time
}

// pendingStore holds in-flight registrations. Entries live server-side so a
// forged callback cannot invent one; they expire after the TTL and are
// consumed at most once.
type pendingStore struct {
	entries       map[string]*pendingRegistration
	mu            sync.Mutex
	ttl           time.Duration
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	logger        *slog.Logger
}

// newPendingStore creates a pending-registration store and starts its
// expiry sweep.
func newPendingStore(ttl time.Duration, logger *slog.Logger) *pendingStore {
	if logger == nil {
		logger = slog.Default()
	}

	p := &pendingStore{
		entries:       make(map[string]*pendingRegistration),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(time.Minute),
		cleanupDone:   make(chan struct{}),
		logger:        logger,
	}

	go p.sweepExpired()
	return p
}

// Put parks a registration under the given state token.
func (p *pendingStore) Put(state string, reg *pendingRegistration) {
	reg.createdAt = time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[state] = reg
}

// Take consumes the registration for a state token. The second return is
// false for an unknown, already consumed, or expired state.
func (p *pendingStore) Take(state string) (*pendingRegistration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reg, ok := p.entries[state]
	if !ok {
		return nil, false
	}
	delete(p.entries, state)

	if time.Since(reg.createdAt) > p.ttl {
		return nil, false
	}
	return reg, true
}

// Len returns the number of parked registrations.
func (p *pendingStore) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// sweepExpired periodically drops registrations that were never completed.
func (p *pendingStore) sweepExpired() {
	for {
		select {
		case <-p.cleanupTicker.C:
			p.mu.Lock()
			now := time.Now()
			expired := 0
			for state, reg := range p.entries {
				if now.Sub(reg.createdAt) > p.ttl {
					delete(p.entries, state)
					expired++
				}
			}
			p.mu.Unlock()
			if expired > 0 {
				p.logger.Info("dropped abandoned registrations", "count", expired)
			}
		case <-p.cleanupDone:
			return
		}
	}
}

// Stop halts the expiry sweep.
func (p *pendingStore) Stop() {
	if p.cleanupTicker != nil {
		p.cleanupTicker.Stop()
	}
	if p.cleanupDone != nil {
		close(p.cleanupDone)
	}
}
