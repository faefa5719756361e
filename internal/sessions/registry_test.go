package sessions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/negotiation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_CreatesLazily(t *testing.T) {
	r := New(10, time.Hour, discardLogger(), nil)

	if _, ok := r.Peek("a"); ok {
		t.Fatal("expected no session before first contact")
	}

	var first, second *negotiation.Session
	r.Do(context.Background(), "a", func(s *negotiation.Session) error { first = s; return nil })
	r.Do(context.Background(), "a", func(s *negotiation.Session) error { second = s; return nil })

	if first == nil || first != second {
		t.Fatal("expected the same session for the same id")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 session, got %d", r.Len())
	}
}

func TestRegistry_DefaultID(t *testing.T) {
	r := New(10, time.Hour, discardLogger(), nil)
	var got string
	r.Do(context.Background(), "", func(s *negotiation.Session) error { got = s.ID; return nil })
	if got != negotiation.DefaultSessionID {
		t.Errorf("expected %q, got %q", negotiation.DefaultSessionID, got)
	}
	if _, ok := r.Peek(negotiation.DefaultSessionID); !ok {
		t.Error("expected default session to be stored under its id")
	}
}

func TestRegistry_ReturnsFnError(t *testing.T) {
	r := New(10, time.Hour, discardLogger(), nil)
	want := errors.New("boom")
	if err := r.Do(context.Background(), "a", func(*negotiation.Session) error { return want }); !errors.Is(err, want) {
		t.Errorf("expected fn error, got %v", err)
	}
}

func TestRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	r := New(2, time.Hour, discardLogger(), nil)
	noop := func(*negotiation.Session) error { return nil }

	r.Do(context.Background(), "a", noop)
	r.Do(context.Background(), "b", noop)
	r.Do(context.Background(), "a", noop)
	r.Do(context.Background(), "c", noop)

	if _, ok := r.Peek("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, id := range []string{"a", "c"} {
		if _, ok := r.Peek(id); !ok {
			t.Errorf("expected %s to survive", id)
		}
	}
}

func TestRegistry_Expires(t *testing.T) {
	r := New(10, 50*time.Millisecond, discardLogger(), nil)
	r.Do(context.Background(), "a", func(*negotiation.Session) error { return nil })

	time.Sleep(150 * time.Millisecond)

	if _, ok := r.Peek("a"); ok {
		t.Error("expected session to expire")
	}
}

func TestRegistry_SerializesSameSession(t *testing.T) {
	r := New(10, time.Hour, discardLogger(), nil)

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Do(context.Background(), "shared", func(*negotiation.Session) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("expected at most one concurrent call per session, saw %d", peak)
	}
}

func TestRegistry_DoHonoursContext(t *testing.T) {
	r := New(10, time.Hour, discardLogger(), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	go r.Do(context.Background(), "busy", func(*negotiation.Session) error {
		close(started)
		<-release
		return nil
	})
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Do(ctx, "busy", func(*negotiation.Session) error {
		t.Error("fn must not run while the session is busy")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRegistry_HandleSessionEnd(t *testing.T) {
	r := New(10, time.Hour, discardLogger(), nil)
	r.Do(context.Background(), "s1", func(*negotiation.Session) error { return nil })

	r.HandleSessionEnd("negotiation.session.end", []byte(`{"session_id":"s1","reason":"done"}`))
	if _, ok := r.Peek("s1"); ok {
		t.Error("expected session to be removed")
	}

	// Malformed and empty events are ignored.
	r.HandleSessionEnd("negotiation.session.end", []byte(`not json`))
	r.HandleSessionEnd("negotiation.session.end", []byte(`{}`))
	if r.Remove("s1") {
		t.Error("expected session to stay removed")
	}
}
