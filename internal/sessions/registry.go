// Package sessions keeps live negotiation sessions in a bounded, expiring
// cache and serializes work per session.
package sessions

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/hermes"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/metrics"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/negotiation"
)

type entry struct {
	sess *negotiation.Session
	lock chan struct{} // one slot; held while a request runs
}

// Registry maps session ids to sessions. Sessions are created on first
// contact, dropped when the cache is full (least recently used first) or
// after ttl without activity.
type Registry struct {
	mu      sync.Mutex // guards get-or-create
	cache   *expirable.LRU[string, *entry]
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a registry holding at most size sessions. A non-positive size
// means unbounded; a non-positive ttl means sessions never expire.
func New(size int, ttl time.Duration, logger *slog.Logger, m *metrics.Collector) *Registry {
	r := &Registry{logger: logger, metrics: m}
	r.cache = expirable.NewLRU[string, *entry](max(size, 0), r.onEvict, ttl)
	return r
}

func (r *Registry) onEvict(id string, _ *entry) {
	r.logger.Info("session evicted", "session_id", id)
	r.metrics.SessionEvicted()
}

func normalizeID(id string) string {
	if id == "" {
		return negotiation.DefaultSessionID
	}
	return id
}

func (r *Registry) entry(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cache.Get(id); ok {
		// Re-adding refreshes the expiry.
		r.cache.Add(id, e)
		return e
	}
	e := &entry{
		sess: negotiation.NewSession(id, r.logger),
		lock: make(chan struct{}, 1),
	}
	r.cache.Add(id, e)
	r.metrics.SessionsActive(r.cache.Len())
	r.logger.Info("session created", "session_id", id)
	return e
}

// Do runs fn with exclusive access to the session, creating it if needed.
// Calls for the same id run one at a time; calls for different ids run in
// parallel. Waiting honours ctx.
func (r *Registry) Do(ctx context.Context, id string, fn func(*negotiation.Session) error) error {
	e := r.entry(normalizeID(id))
	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.lock }()
	return fn(e.sess)
}

// Peek returns an existing session without creating or refreshing it.
func (r *Registry) Peek(id string) (*negotiation.Session, bool) {
	e, ok := r.cache.Peek(normalizeID(id))
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// Remove drops a session. It reports whether the session existed.
func (r *Registry) Remove(id string) bool {
	ok := r.cache.Remove(normalizeID(id))
	r.metrics.SessionsActive(r.cache.Len())
	return ok
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// HandleSessionEnd is the NATS handler for negotiation.session.end.
func (r *Registry) HandleSessionEnd(subject string, data []byte) {
	var evt hermes.SessionEnd
	if err := json.Unmarshal(data, &evt); err != nil {
		r.logger.Error("failed to parse session end event", "subject", subject, "error", err)
		return
	}
	if evt.SessionID == "" {
		r.logger.Warn("session end event without session id", "subject", subject)
		return
	}
	if r.Remove(evt.SessionID) {
		r.logger.Info("session ended", "session_id", evt.SessionID, "reason", evt.Reason)
	}
}
