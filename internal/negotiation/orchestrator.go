// Package negotiation runs the per-turn negotiation state machine on top of
// the session graph.
package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/extractor"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/graph"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/hermes"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/metrics"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/policy"
)

const (
	agreementPlaceholder = "Agreement Reached."
	conclusionFormat     = "Great! Then we have a deal based on our last offer: %s. I'm thrilled to have you join the team and will follow up with the formal offer letter shortly."
)

// Publisher emits negotiation events. *hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Archive durably records committed turns together with every offer the
// turn created or moved to a new status. Turns and offers are keyed by
// conversationID; sessionID only groups conversations for lookup.
type Archive interface {
	RecordTurn(ctx context.Context, sessionID, conversationID string, turn graph.Turn, limit int, offers []graph.OfferRecord) error
}

// Options configures an Orchestrator. Publisher, Archive and Metrics are
// optional.
type Options struct {
	Extractor  *extractor.Extractor
	Policy     policy.Config
	Acceptance *AcceptanceMatcher
	Generator  Generator
	Publisher  Publisher
	Archive    Archive
	Metrics    *metrics.Collector
	Timeout    time.Duration // bound on each generator call; zero means none
	Logger     *slog.Logger
}

// Orchestrator is shared by all sessions and holds no per-session state.
type Orchestrator struct {
	ext       *extractor.Extractor
	policy    policy.Config
	accept    *AcceptanceMatcher
	gen       Generator
	publisher Publisher
	archive   Archive
	metrics   *metrics.Collector
	timeout   time.Duration
	logger    *slog.Logger
}

func New(opts Options) *Orchestrator {
	if opts.Extractor == nil {
		opts.Extractor = extractor.New(extractor.DefaultRules())
	}
	if opts.Acceptance == nil {
		opts.Acceptance = NewAcceptanceMatcher(DefaultAcceptKeywords)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		ext:       opts.Extractor,
		policy:    opts.Policy,
		accept:    opts.Acceptance,
		gen:       opts.Generator,
		publisher: opts.Publisher,
		archive:   opts.Archive,
		metrics:   opts.Metrics,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
}

// Reply is the outcome of one candidate message.
type Reply struct {
	Text      string
	Turn      int // zero when nothing was committed
	Ceiling   int
	Concluded bool
	Breach    bool  // the generated offer exceeded the ceiling
	Err       error // generator failure; Text carries the user-visible form
}

// Handle processes one candidate message. The caller must serialize calls
// for the same session.
func (o *Orchestrator) Handle(ctx context.Context, s *Session, message string) Reply {
	if r, ok := o.conclude(ctx, s, message); ok {
		return r
	}
	return o.negotiate(ctx, s, message)
}

// conclude closes the deal when the candidate affirms the pending agent
// offer without restating a different base.
func (o *Orchestrator) conclude(ctx context.Context, s *Session, message string) (Reply, bool) {
	pending, ok := s.Pending()
	if !ok || !o.accept.Matches(message) {
		return Reply{}, false
	}
	if !pending.Details.HasBase() {
		return Reply{}, false
	}
	restated := o.ext.ExtractOffer(message)
	if restated.HasBase() && restated.Base != pending.Details.Base {
		o.logger.Debug("affirmation with a different base, continuing negotiation",
			"session_id", s.ID, "pending_base", pending.Details.Base, "restated_base", restated.Base)
		return Reply{}, false
	}

	g := s.Graph
	g.UpdateOfferStatus(pending.ID, graph.StatusAccepted)

	limit, ok := g.CurrentLimit()
	if !ok {
		limit = o.policy.InitialLimit
	}
	turn := g.AddTurn(message, agreementPlaceholder, limit)

	trigger := restated
	if trigger.IsEmpty() {
		trigger = extractor.Offer{Trigger: extractor.AcceptanceMarker}
	}
	triggerID, _ := g.AddOffer(turn, trigger, graph.Candidate, graph.StatusAcceptedTrigger)

	text := fmt.Sprintf(conclusionFormat, pending.Details.JSON())
	g.SetTurnReply(turn, text)

	s.pending = 0
	s.concluded = true

	o.logger.Info("offer accepted", "session_id", s.ID, "turn", turn, "offer_id", pending.ID, "base", pending.Details.Base)
	o.metrics.TurnHandled(metrics.OutcomeConcluded)
	o.publish(hermes.SubjectOfferAccepted, hermes.OfferAccepted{
		SessionID: s.ID,
		Turn:      turn,
		OfferID:   int(pending.ID),
		Details:   json.RawMessage(pending.Details.JSON()),
		Timestamp: time.Now().UTC(),
	})
	o.record(ctx, s, turn, limit, pending.ID, triggerID)

	return Reply{Text: text, Turn: turn, Ceiling: limit, Concluded: true}, true
}

func (o *Orchestrator) negotiate(ctx context.Context, s *Session, message string) Reply {
	g := s.Graph

	o.ext.ExtractPreferences(message, g)
	candidate := o.ext.ExtractOffer(message)

	ceiling := policy.FromGraph(o.policy, g)
	o.metrics.CeilingComputed(ceiling)

	req := Request{
		History:     s.History(),
		Message:     message,
		Ceiling:     ceiling,
		AbsoluteMax: o.policy.AbsoluteMax,
		Context:     BuildContext(g),
	}

	text, err := o.generate(ctx, req)
	if err != nil {
		o.logger.Error("reply generation failed", "session_id", s.ID, "ceiling", ceiling, "error", err)
		o.metrics.TurnHandled(metrics.OutcomeError)
		return Reply{Text: "Error: " + err.Error(), Ceiling: ceiling, Err: err}
	}

	turn := g.AddTurn(message, text, ceiling)
	var touched []graph.OfferID

	// A counter-offer rejects whatever the agent had on the table.
	if !candidate.IsEmpty() {
		id, _ := g.AddOffer(turn, candidate, graph.Candidate, graph.StatusProposed)
		touched = append(touched, id)
		if prev, ok := s.Pending(); ok && prev.Status == graph.StatusProposed {
			g.UpdateOfferStatus(prev.ID, graph.StatusRejected)
			touched = append(touched, prev.ID)
		}
	}

	reply := Reply{Text: text, Turn: turn, Ceiling: ceiling}
	agent := o.ext.ExtractOffer(text)
	switch {
	case agent.HasBase() && agent.Base <= ceiling:
		if prev, ok := s.Pending(); ok && prev.Status == graph.StatusProposed {
			g.UpdateOfferStatus(prev.ID, graph.StatusSuperseded)
			touched = append(touched, prev.ID)
		}
		id, ok := g.AddOffer(turn, agent, graph.Agent, graph.StatusProposed)
		if !ok {
			s.pending = 0
			break
		}
		s.pending = id
		touched = append(touched, id)
		o.linkRepeatedOffer(g, id, agent.Base)

	case agent.HasBase():
		reply.Breach = true
		s.pending = 0
		o.logger.Warn("generated offer exceeds ceiling, not tracking it",
			"session_id", s.ID, "turn", turn, "ceiling", ceiling, "offered", agent.Base)
		o.metrics.PolicyBreach()
		o.publish(hermes.SubjectPolicyBreach, hermes.PolicyBreach{
			SessionID: s.ID,
			Turn:      turn,
			Ceiling:   ceiling,
			Offered:   agent.Base,
			Timestamp: time.Now().UTC(),
		})

	default:
		// Nothing concrete to accept. Perk-only replies are still kept for audit.
		if perks := o.ext.Perks(text); len(perks) > 0 {
			id, _ := g.AddOffer(turn, extractor.Offer{Perks: perks}, graph.Agent, graph.StatusProposed)
			touched = append(touched, id)
		}
		s.pending = 0
	}

	o.logger.Info("turn recorded", "session_id", s.ID, "turn", turn, "ceiling", ceiling,
		"candidate_base", candidate.Base, "agent_base", agent.Base, "breach", reply.Breach)
	o.metrics.TurnHandled(metrics.OutcomeNegotiated)
	o.publish(hermes.SubjectTurnRecorded, hermes.TurnRecorded{
		SessionID:      s.ID,
		Turn:           turn,
		Ceiling:        ceiling,
		CandidateBase:  candidate.Base,
		AgentBase:      agent.Base,
		PreferenceTags: g.CandidatePreferences(),
		Timestamp:      time.Now().UTC(),
	})
	o.record(ctx, s, turn, ceiling, touched...)

	return reply
}

// linkRepeatedOffer relates a new agent offer to the most recent rejected
// agent offer with the same base.
func (o *Orchestrator) linkRepeatedOffer(g *graph.Graph, id graph.OfferID, base int) {
	for _, rejected := range g.OffersByStatus(graph.StatusRejected, graph.Agent) {
		if rejected.ID != id && rejected.Details.Base == base {
			g.AddSimilarOfferRelation(id, rejected.ID)
			o.logger.Info("agent repeated a rejected offer", "session_id", g.SessionID(),
				"offer_id", id, "rejected_offer_id", rejected.ID, "base", base)
			return
		}
	}
}

func (o *Orchestrator) generate(ctx context.Context, req Request) (string, error) {
	if o.gen == nil {
		return "", ErrGeneratorUnavailable
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := o.gen.Generate(ctx, req)
	o.metrics.GeneratorCall(err, time.Since(start))
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("generate reply: %w", ctx.Err())
	}
	return text, err
}

func (o *Orchestrator) publish(subject string, evt any) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(subject, evt); err != nil {
		o.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, s *Session, turn, limit int, touched ...graph.OfferID) {
	if o.archive == nil {
		return
	}
	t, ok := s.Graph.Turn(turn)
	if !ok {
		return
	}
	offers := make([]graph.OfferRecord, 0, len(touched))
	for _, id := range touched {
		if rec, ok := s.Graph.Offer(id); ok {
			offers = append(offers, rec)
		}
	}
	if err := o.archive.RecordTurn(ctx, s.ID, s.ConversationID, t, limit, offers); err != nil {
		o.metrics.ArchiveError()
		o.logger.Error("failed to archive turn", "session_id", s.ID, "conversation_id", s.ConversationID, "turn", turn, "error", err)
	}
}
