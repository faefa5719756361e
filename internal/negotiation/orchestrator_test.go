package negotiation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/extractor"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/graph"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/hermes"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/policy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedGenerator returns canned replies in order and records requests.
type scriptedGenerator struct {
	replies  []string
	err      error
	requests []Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req Request) (string, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if len(g.requests) > len(g.replies) {
		return "Let me think about that.", nil
	}
	return g.replies[len(g.requests)-1], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]any
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]any)
	}
	p.events[subject] = append(p.events[subject], data)
	return nil
}

func (p *recordingPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[subject])
}

type archivedTurn struct {
	session      string
	conversation string
	turn         graph.Turn
	limit        int
	offers       []graph.OfferRecord
}

type memoryArchive struct {
	turns []archivedTurn
	err   error
}

func (a *memoryArchive) RecordTurn(_ context.Context, sessionID, conversationID string, turn graph.Turn, limit int, offers []graph.OfferRecord) error {
	if a.err != nil {
		return a.err
	}
	a.turns = append(a.turns, archivedTurn{session: sessionID, conversation: conversationID, turn: turn, limit: limit, offers: offers})
	return nil
}

type harness struct {
	orch *Orchestrator
	sess *Session
	gen  *scriptedGenerator
	pub  *recordingPublisher
	arch *memoryArchive
}

func newHarness(replies ...string) *harness {
	h := &harness{
		gen:  &scriptedGenerator{replies: replies},
		pub:  &recordingPublisher{},
		arch: &memoryArchive{},
	}
	h.orch = New(Options{
		Policy:    policy.DefaultConfig(),
		Generator: h.gen,
		Publisher: h.pub,
		Archive:   h.arch,
		Logger:    discardLogger(),
	})
	h.sess = NewSession("test", discardLogger())
	return h
}

func (h *harness) say(t *testing.T, msg string) Reply {
	t.Helper()
	r := h.orch.Handle(context.Background(), h.sess, msg)
	if r.Err != nil {
		t.Fatalf("Handle(%q) failed: %v", msg, r.Err)
	}
	return r
}

// withPendingOffer drives the session to a pending agent offer of 120000.
func withPendingOffer(t *testing.T, extra ...string) *harness {
	t.Helper()
	replies := append([]string{
		"We can offer $110,000 base to start.",
		"How about $120,000?",
	}, extra...)
	h := newHarness(replies...)
	h.say(t, "I want 130k")
	h.say(t, "That's too low, I need 130k")

	pending, ok := h.sess.Pending()
	if !ok || pending.Details.Base != 120000 {
		t.Fatalf("expected pending offer of 120000, got %+v (%v)", pending, ok)
	}
	return h
}

func TestHandle_FirstTurn(t *testing.T) {
	h := newHarness("We can offer $110,000 base plus equity.")

	r := h.say(t, "I need at least $130k and remote work.")

	if r.Turn != 1 || r.Ceiling != 115000 {
		t.Errorf("expected turn 1 at ceiling 115000, got turn %d ceiling %d", r.Turn, r.Ceiling)
	}
	req := h.gen.requests[0]
	if len(req.History) != 0 {
		t.Errorf("expected empty history, got %d exchanges", len(req.History))
	}
	if req.Context != "Candidate Preferences: remote work." {
		t.Errorf("unexpected context %q", req.Context)
	}
	if req.AbsoluteMax != 135000 {
		t.Errorf("expected absolute max 135000, got %d", req.AbsoluteMax)
	}

	g := h.sess.Graph
	cand, ok := g.LastOffer(graph.Candidate)
	if !ok || cand.Details.Base != 130000 {
		t.Errorf("expected candidate offer 130000, got %+v", cand)
	}
	pending, ok := h.sess.Pending()
	if !ok || pending.Details.Base != 110000 || pending.Status != graph.StatusProposed {
		t.Errorf("expected pending agent offer 110000, got %+v", pending)
	}
	if want := []string{"stock options"}; len(pending.Details.Perks) != 1 || pending.Details.Perks[0] != want[0] {
		t.Errorf("expected perks %v, got %v", want, pending.Details.Perks)
	}
	if h.pub.count(hermes.SubjectTurnRecorded) != 1 {
		t.Errorf("expected one turn event, got %d", h.pub.count(hermes.SubjectTurnRecorded))
	}
	if len(h.arch.turns) != 1 || h.arch.turns[0].limit != 115000 || len(h.arch.turns[0].offers) != 2 {
		t.Errorf("unexpected archive contents %+v", h.arch.turns)
	}
}

func TestHandle_FirstTurnCeilingIgnoresInput(t *testing.T) {
	for _, msg := range []string{"hello", "I want 500k", "I want 20k", "ok deal"} {
		h := newHarness("Thanks for your interest.")
		if r := h.say(t, msg); r.Ceiling != 115000 {
			t.Errorf("Handle(%q) ceiling = %d, want 115000", msg, r.Ceiling)
		}
	}
}

func TestHandle_Acceptance(t *testing.T) {
	h := withPendingOffer(t)
	pending, _ := h.sess.Pending()

	r := h.say(t, "ok sounds good")

	if !r.Concluded {
		t.Fatal("expected the negotiation to conclude")
	}
	if !strings.Contains(r.Text, `{"base":120000}`) {
		t.Errorf("expected conclusion to reference the accepted offer, got %q", r.Text)
	}
	if !strings.HasPrefix(r.Text, "Great! Then we have a deal") {
		t.Errorf("unexpected conclusion text %q", r.Text)
	}
	if len(h.gen.requests) != 2 {
		t.Errorf("generator must not be called on acceptance, got %d calls", len(h.gen.requests))
	}

	g := h.sess.Graph
	accepted, _ := g.Offer(pending.ID)
	if accepted.Status != graph.StatusAccepted {
		t.Errorf("expected accepted status, got %s", accepted.Status)
	}
	if g.Decisions(pending.ID, graph.StatusAccepted) != 1 {
		t.Error("expected one acceptance edge")
	}
	if _, ok := h.sess.Pending(); ok {
		t.Error("expected the pending pointer to be cleared")
	}
	if !h.sess.Concluded() {
		t.Error("expected the session to be marked concluded")
	}

	turn, _ := g.Turn(r.Turn)
	if turn.AgentReply != r.Text {
		t.Errorf("expected stored reply to be the conclusion, got %q", turn.AgentReply)
	}
	if r.Turn != 3 || r.Ceiling != 122500 {
		t.Errorf("expected turn 3 at limit 122500, got %d / %d", r.Turn, r.Ceiling)
	}
	trigger, ok := g.LastOffer(graph.Candidate)
	if !ok || trigger.Status != graph.StatusAcceptedTrigger || trigger.Details.Trigger != extractor.AcceptanceMarker {
		t.Errorf("expected acceptance marker pseudo-offer, got %+v", trigger)
	}
	if h.pub.count(hermes.SubjectOfferAccepted) != 1 {
		t.Error("expected an offer accepted event")
	}
	if len(h.arch.turns) != 3 || h.arch.turns[2].turn.AgentReply != r.Text {
		t.Errorf("expected the conclusion turn to be archived, got %+v", h.arch.turns)
	}
	if offers := h.arch.turns[len(h.arch.turns)-1].offers; len(offers) != 2 || offers[0].Status != graph.StatusAccepted {
		t.Errorf("expected the accepted offer and the trigger to be archived, got %+v", offers)
	}
}

func TestHandle_AcceptanceRestatingSameBase(t *testing.T) {
	h := withPendingOffer(t)

	r := h.say(t, "Deal at $120,000, I'll take it")

	if !r.Concluded {
		t.Fatal("expected acceptance when the restated base matches")
	}
	trigger, _ := h.sess.Graph.LastOffer(graph.Candidate)
	if trigger.Details.Base != 120000 || trigger.Details.Trigger != "" {
		t.Errorf("expected restated details on the trigger offer, got %+v", trigger.Details)
	}
}

func TestHandle_AcceptanceNotTriggeredByDifferentBase(t *testing.T) {
	h := withPendingOffer(t, "I can stretch to $122,000.")
	pending, _ := h.sess.Pending()

	r := h.say(t, "ok, but can we do 125000")

	if r.Concluded {
		t.Fatal("a different restated base must not conclude")
	}
	if len(h.gen.requests) != 3 {
		t.Errorf("expected the generator to be called, got %d calls", len(h.gen.requests))
	}
	g := h.sess.Graph
	prev, _ := g.Offer(pending.ID)
	if prev.Status != graph.StatusRejected {
		t.Errorf("expected the countered offer to be rejected, got %s", prev.Status)
	}
	// Candidate counter, rejected offer and new agent offer.
	if offers := h.arch.turns[2].offers; len(offers) != 3 || offers[1].ID != pending.ID {
		t.Errorf("unexpected archived offers %+v", offers)
	}
	cand, _ := g.LastOffer(graph.Candidate)
	if cand.Turn != 3 || cand.Details.Base != 125000 {
		t.Errorf("expected candidate counter of 125000 at turn 3, got %+v", cand)
	}
	next, ok := h.sess.Pending()
	if !ok || next.Details.Base != 122000 {
		t.Errorf("expected new pending offer 122000, got %+v", next)
	}
}

func TestHandle_AffirmationWithoutPendingOffer(t *testing.T) {
	h := newHarness("Glad to hear it. We can offer $110,000.")

	r := h.say(t, "ok")
	if r.Concluded {
		t.Fatal("nothing to accept on the first turn")
	}
	if len(h.gen.requests) != 1 {
		t.Errorf("expected a normal turn, got %d generator calls", len(h.gen.requests))
	}
}

func TestHandle_SupersedesUnansweredOffer(t *testing.T) {
	h := newHarness(
		"We can offer $110,000 base.",
		"We could also do $112,000 with remote work.",
	)
	h.say(t, "I want 130k")
	first, _ := h.sess.Pending()

	h.say(t, "What about remote work?")

	prev, _ := h.sess.Graph.Offer(first.ID)
	if prev.Status != graph.StatusSuperseded {
		t.Errorf("expected unanswered offer to be superseded, got %s", prev.Status)
	}
	if h.sess.Graph.Decisions(first.ID, graph.StatusRejected) != 0 {
		t.Error("superseding must not count as a rejection")
	}
	next, _ := h.sess.Pending()
	if next.Details.Base != 112000 {
		t.Errorf("expected new pending offer 112000, got %+v", next)
	}
}

func TestHandle_RepeatedRejectedOfferIsLinked(t *testing.T) {
	h := newHarness(
		"We can offer $110,000 base.",
		"We can offer $110,000 base again, plus stock options.",
	)
	h.say(t, "I want 130k")
	first, _ := h.sess.Pending()

	h.say(t, "No, I need 128k")
	second, ok := h.sess.Pending()
	if !ok || second.ID == first.ID {
		t.Fatalf("expected a new pending offer, got %+v", second)
	}

	g := h.sess.Graph
	if got := g.SimilarOffers(second.ID); len(got) != 1 || got[0] != first.ID {
		t.Errorf("SimilarOffers(second) = %v, want [%d]", got, first.ID)
	}
	if got := g.SimilarOffers(first.ID); len(got) != 1 || got[0] != second.ID {
		t.Errorf("SimilarOffers(first) = %v, want [%d]", got, second.ID)
	}
}

func TestHandle_PolicyBreach(t *testing.T) {
	h := newHarness(
		"We can offer $110,000 base.",
		"Fine, we can offer $130,000.",
	)
	h.say(t, "I want 130k")

	r := h.say(t, "Still too low, 130k please")

	if !r.Breach {
		t.Fatal("expected a policy breach for 130000 above ceiling 122500")
	}
	if r.Err != nil {
		t.Errorf("a breach must not surface as an error, got %v", r.Err)
	}
	if _, ok := h.sess.Pending(); ok {
		t.Error("expected no pending offer after a breach")
	}
	for _, o := range h.sess.Graph.TurnOffers(r.Turn) {
		if o.OfferedBy == graph.Agent {
			t.Errorf("breaching offer must not be recorded, got %+v", o)
		}
	}
	if h.pub.count(hermes.SubjectPolicyBreach) != 1 {
		t.Error("expected a policy breach event")
	}

	// With nothing pending, an affirmation cannot conclude.
	if r := h.say(t, "ok deal"); r.Concluded {
		t.Error("expected no conclusion after a breach cleared the pending offer")
	}
}

func TestHandle_PerkOnlyReplyIsAuditedNotPending(t *testing.T) {
	h := newHarness("We can add remote work and a relocation package.")

	r := h.say(t, "Anything besides salary?")

	offers := h.sess.Graph.TurnOffers(r.Turn)
	if len(offers) != 1 || offers[0].OfferedBy != graph.Agent || offers[0].Details.HasBase() {
		t.Fatalf("expected one perk-only agent offer, got %+v", offers)
	}
	if _, ok := h.sess.Pending(); ok {
		t.Error("perk-only offer must not be pending")
	}
}

func TestHandle_GeneratorErrorCommitsNothing(t *testing.T) {
	h := newHarness()
	h.gen.err = errors.New("backend down")

	r := h.orch.Handle(context.Background(), h.sess, "I want 130k")

	if r.Err == nil || r.Text != "Error: backend down" {
		t.Errorf("unexpected reply %+v", r)
	}
	if r.Turn != 0 {
		t.Errorf("expected no committed turn, got %d", r.Turn)
	}
	g := h.sess.Graph
	if g.TurnCount() != 0 {
		t.Errorf("expected no turns, got %d", g.TurnCount())
	}
	if _, ok := g.LastOffer(""); ok {
		t.Error("expected no offers after a failed turn")
	}
	if len(h.arch.turns) != 0 || h.pub.count(hermes.SubjectTurnRecorded) != 0 {
		t.Error("failed turns must not be archived or published")
	}
}

func TestHandle_GeneratorTimeout(t *testing.T) {
	orch := New(Options{
		Policy: policy.DefaultConfig(),
		Generator: GeneratorFunc(func(ctx context.Context, _ Request) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
		Timeout: 20 * time.Millisecond,
		Logger:  discardLogger(),
	})
	sess := NewSession("slow", discardLogger())

	r := orch.Handle(context.Background(), sess, "hello")

	if !errors.Is(r.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", r.Err)
	}
	if sess.Graph.TurnCount() != 0 {
		t.Error("timed out turn must not be committed")
	}
}

func TestHandle_NoGenerator(t *testing.T) {
	orch := New(Options{Policy: policy.DefaultConfig(), Logger: discardLogger()})
	r := orch.Handle(context.Background(), NewSession("", discardLogger()), "hello")
	if !errors.Is(r.Err, ErrGeneratorUnavailable) {
		t.Errorf("expected ErrGeneratorUnavailable, got %v", r.Err)
	}
}

func TestHandle_ArchiveFailureDoesNotAffectReply(t *testing.T) {
	h := newHarness("We can offer $110,000 base.")
	h.arch.err = errors.New("disk full")

	r := h.say(t, "I want 130k")
	if r.Text != "We can offer $110,000 base." || r.Turn != 1 {
		t.Errorf("unexpected reply %+v", r)
	}
}

func TestHandle_ReusedSessionIDArchivesSeparately(t *testing.T) {
	h := newHarness("We can offer $110,000 base.", "Hello again, what brings you here?")
	h.say(t, "I want 130k")

	// Same caller-facing id, new conversation (after eviction or an explicit end).
	first := h.sess
	h.sess = NewSession(first.ID, discardLogger())
	h.say(t, "hi, I'm a different conversation")

	if first.ConversationID == "" || first.ConversationID == h.sess.ConversationID {
		t.Fatalf("expected distinct conversation ids, got %q and %q", first.ConversationID, h.sess.ConversationID)
	}
	if len(h.arch.turns) != 2 {
		t.Fatalf("expected 2 archived turns, got %d", len(h.arch.turns))
	}
	a, b := h.arch.turns[0], h.arch.turns[1]
	if a.session != b.session || a.turn.Number != 1 || b.turn.Number != 1 {
		t.Errorf("expected turn 1 of the same session id twice, got %+v / %+v", a, b)
	}
	if a.conversation != first.ConversationID || b.conversation != h.sess.ConversationID {
		t.Errorf("archived turns carry the wrong conversation ids: %q, %q", a.conversation, b.conversation)
	}
}

func TestHandle_CeilingsNeverDecrease(t *testing.T) {
	h := newHarness(
		"We can offer $110,000 base.",
		"We can offer $118,000.",
		"Let's talk perks first.",
		"We can offer $125,000.",
		"Our final offer is $134,000.",
		"That is our best.",
	)
	for _, msg := range []string{
		"I want 130k",
		"No, 150k",
		"Hmm, 90k would be an insult",
		"I still want 140k",
		"Make it 135k",
		"What about equity?",
	} {
		h.say(t, msg)
	}

	limits := h.sess.Graph.LimitHistory()
	if len(limits) != 6 {
		t.Fatalf("expected 6 limits, got %v", limits)
	}
	for i := 1; i < len(limits); i++ {
		if limits[i] < limits[i-1] {
			t.Errorf("limit dropped at turn %d: %v", i+1, limits)
		}
		if limits[i] > 135000 {
			t.Errorf("limit above max at turn %d: %v", i+1, limits)
		}
	}
	if limits[0] != 115000 {
		t.Errorf("expected first limit 115000, got %d", limits[0])
	}
}

func TestSession_HistoryFromGraph(t *testing.T) {
	h := newHarness("We can offer $110,000 base.", "How about $120,000?")
	h.say(t, "I want 130k")
	h.say(t, "Too low")

	if got := len(h.gen.requests[1].History); got != 1 {
		t.Fatalf("expected one prior exchange, got %d", got)
	}
	ex := h.gen.requests[1].History[0]
	if ex.Candidate != "I want 130k" || ex.Agent != "We can offer $110,000 base." {
		t.Errorf("unexpected exchange %+v", ex)
	}
	if NewSession("", discardLogger()).ID != DefaultSessionID {
		t.Error("expected empty id to map to the default session")
	}
}
