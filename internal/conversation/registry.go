package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultRegistryTTL        = 24 * time.Hour
	DefaultRegistryMaxEntries = 4096
)

// ContinueFunc produces the assistant answer for an extended turn list and
// returns it together with the id of the bot message that delivered it. That
// id becomes the chain's next live key.
type ContinueFunc func(ctx context.Context, turns []Turn) (answer string, newKey string, err error)

// session is one stateless reply chain. mu serializes continuations of the
// chain; turns is only read or replaced while mu is held. touched and dead
// belong to the registry's bookkeeping and are guarded by Registry.mu, so
// sweeps and continuations observe them consistently.
type session struct {
	mu      sync.Mutex
	turns   []Turn
	touched time.Time
	dead    bool
}

// Registry maps the bot's most recent reply id in a stateless conversation to
// the accumulated turn list. Each continuation re-roots the entry at the new
// bot message id; earlier keys in the chain are tombstoned, so at any instant
// a chain has exactly one live key.
//
// Entries expire after a TTL and the registry holds at most maxEntries,
// evicting the least recently touched chain first. Continuations of the same
// chain serialize on a per-session lock.
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*session
	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger
}

func NewRegistry(log *slog.Logger, ttl time.Duration, maxEntries int) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultRegistryTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultRegistryMaxEntries
	}
	return &Registry{
		entries:    make(map[string]*session),
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     log.With(slog.String("service", "registry")),
	}
}

// Remember stores or overwrites the turn list for a bot reply id.
func (r *Registry) Remember(key string, turns []Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(time.Now())
	r.entries[key] = &session{
		turns:   append([]Turn(nil), turns...),
		touched: time.Now(),
	}
}

// Known reports whether key is currently a live stateless conversation.
// Callers use it to skip expensive input processing for ordinary replies.
func (r *Registry) Known(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Continue resumes the chain rooted at key with userText. It reports false
// when key is not a live stateless conversation, letting the caller fall
// through to command parsing. On success the chain is re-keyed to the bot
// message id returned by fn; a fn error leaves the chain untouched and
// continuable under the old key. A chain swept while fn is in flight stays
// dead: the new key is never inserted and Continue reports false.
func (r *Registry) Continue(ctx context.Context, key, userText string, fn ContinueFunc) (bool, error) {
	r.mu.Lock()
	r.sweepLocked(time.Now())
	s, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r.mu.Lock()
	if s.dead {
		// Lost the race against a concurrent continuation or a sweep that
		// already retired this chain.
		r.mu.Unlock()
		return false, nil
	}
	s.touched = time.Now()
	r.mu.Unlock()

	turns := append(append([]Turn(nil), s.turns...), Turn{Role: RoleUser, Content: userText})
	answer, newKey, err := fn(ctx, turns)
	if err != nil {
		return true, err
	}
	turns = append(turns, Turn{Role: RoleAssistant, Content: answer})

	r.mu.Lock()
	defer r.mu.Unlock()
	if s.dead {
		// The chain was evicted while the answer was in flight.
		return false, nil
	}
	s.dead = true
	delete(r.entries, key)
	r.entries[newKey] = &session{turns: turns, touched: time.Now()}
	return true, nil
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// sweepLocked drops expired entries, then evicts the least recently touched
// entries until the registry fits maxEntries again. Callers hold r.mu.
func (r *Registry) sweepLocked(now time.Time) {
	expireBefore := now.Add(-r.ttl)
	for key, s := range r.entries {
		if s.touched.Before(expireBefore) {
			s.dead = true
			delete(r.entries, key)
		}
	}
	for len(r.entries) >= r.maxEntries {
		var oldestKey string
		var oldest time.Time
		for key, s := range r.entries {
			if oldestKey == "" || s.touched.Before(oldest) {
				oldestKey = key
				oldest = s.touched
			}
		}
		if oldestKey == "" {
			return
		}
		r.logger.Debug("evicting stateless conversation", slog.String("key", oldestKey))
		r.entries[oldestKey].dead = true
		delete(r.entries, oldestKey)
	}
}
