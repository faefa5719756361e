// Package graph is the per-session negotiation memory: an append-mostly
// store of turns, limits, offers and candidate preferences with typed
// relations between them. Nodes are never deleted, only annotated.
//
// A Graph is not safe for concurrent mutation; callers serialize access per
// session.
package graph

import (
	"log/slog"
	"strings"
	"time"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/extractor"
)

// Party identifies who made an offer.
type Party string

const (
	Candidate Party = "candidate"
	Agent     Party = "agent"
)

// Status is an offer's lifecycle state.
type Status string

const (
	StatusProposed        Status = "proposed"
	StatusRejected        Status = "rejected"
	StatusAccepted        Status = "accepted"
	StatusSuperseded      Status = "superseded"
	StatusAcceptedTrigger Status = "accepted_trigger"
)

// OfferID is a stable handle to an offer node. The zero value is never issued.
type OfferID int

// Turn is one candidate message / agent reply exchange.
type Turn struct {
	Number           int       `json:"number"`
	CandidateMessage string    `json:"candidate_message"`
	AgentReply       string    `json:"agent_reply"`
	Timestamp        time.Time `json:"timestamp"`
}

// OfferRecord is a read-only view of an offer node.
type OfferRecord struct {
	ID        OfferID         `json:"id"`
	Turn      int             `json:"turn"`
	OfferedBy Party           `json:"offered_by"`
	Details   extractor.Offer `json:"details"`
	Status    Status          `json:"status"`
}

type offerNode struct {
	id      OfferID
	turn    int
	by      Party
	details extractor.Offer
	status  Status
}

type offerKey struct {
	turn int
	by   Party
}

// responseGroup is the implicit per-turn "agent response" node that
// justifies the agent's offer for that turn.
type responseGroup struct {
	turn      int
	justifies []OfferID
}

// lifecycleEdge records a candidate decision on an offer. Edges accumulate.
type lifecycleEdge struct {
	offer OfferID
	kind  Status
	at    time.Time
}

type similarPair struct {
	a, b OfferID // a < b
}

func newPair(x, y OfferID) similarPair {
	if x > y {
		x, y = y, x
	}
	return similarPair{a: x, b: y}
}

// Graph holds one negotiation's history.
type Graph struct {
	sessionID string
	createdAt time.Time
	logger    *slog.Logger
	now       func() time.Time

	turns    []Turn      // turns[n-1] is turn n
	precedes [][2]int    // (prev, next) turn sequence relation
	limits   map[int]int // turn -> limit amount

	offers     []*offerNode // offers[id-1]
	offerIndex map[offerKey]OfferID
	turnOffers map[int][]OfferID
	responses  map[int]*responseGroup
	lifecycle  []lifecycleEdge

	perks   map[string]string // perk node key -> display name
	prefers []string          // candidate -> perk edges, insertion ordered

	similar      map[similarPair]struct{}
	similarOrder []similarPair
}

// New creates the graph for one session.
func New(sessionID string, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		sessionID:  sessionID,
		createdAt:  time.Now(),
		logger:     logger.With("session_id", sessionID),
		now:        time.Now,
		limits:     make(map[int]int),
		offerIndex: make(map[offerKey]OfferID),
		turnOffers: make(map[int][]OfferID),
		responses:  make(map[int]*responseGroup),
		perks:      make(map[string]string),
		similar:    make(map[similarPair]struct{}),
	}
}

// SessionID returns the session this graph belongs to.
func (g *Graph) SessionID() string { return g.sessionID }

// CreatedAt returns when the session root was created.
func (g *Graph) CreatedAt() time.Time { return g.createdAt }

// TurnCount returns the number of recorded turns.
func (g *Graph) TurnCount() int { return len(g.turns) }

// AddTurn records a turn and the limit in effect for it, and returns the
// new turn number. Turn numbers start at 1 and have no gaps.
func (g *Graph) AddTurn(candidateMsg, agentReply string, limit int) int {
	n := len(g.turns) + 1
	g.turns = append(g.turns, Turn{
		Number:           n,
		CandidateMessage: candidateMsg,
		AgentReply:       agentReply,
		Timestamp:        g.now(),
	})
	g.limits[n] = limit
	if n > 1 {
		g.precedes = append(g.precedes, [2]int{n - 1, n})
	}
	return n
}

// Turn returns turn n.
func (g *Graph) Turn(n int) (Turn, bool) {
	if n < 1 || n > len(g.turns) {
		return Turn{}, false
	}
	return g.turns[n-1], true
}

// Turns returns all turns in ascending order.
func (g *Graph) Turns() []Turn {
	out := make([]Turn, len(g.turns))
	copy(out, g.turns)
	return out
}

// SetTurnReply replaces the agent reply of an existing turn. It is the only
// mutation a turn accepts after creation.
func (g *Graph) SetTurnReply(n int, reply string) {
	if n < 1 || n > len(g.turns) {
		g.logger.Warn("turn not found for reply update", "turn", n)
		return
	}
	g.turns[n-1].AgentReply = reply
}

// Limit returns the limit recorded for turn n.
func (g *Graph) Limit(n int) (int, bool) {
	v, ok := g.limits[n]
	return v, ok
}

// CurrentLimit returns the limit of the latest turn, falling back one turn
// if the latest has none.
func (g *Graph) CurrentLimit() (int, bool) {
	n := len(g.turns)
	if n == 0 {
		return 0, false
	}
	if v, ok := g.limits[n]; ok {
		return v, true
	}
	if n > 1 {
		if v, ok := g.limits[n-1]; ok {
			return v, true
		}
	}
	return 0, false
}

// LimitHistory returns the recorded limits in turn order.
func (g *Graph) LimitHistory() []int {
	out := make([]int, 0, len(g.turns))
	for n := 1; n <= len(g.turns); n++ {
		if v, ok := g.limits[n]; ok {
			out = append(out, v)
		}
	}
	return out
}

func perkKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// AddCandidatePreference records that the candidate prefers a perk. Repeats
// are no-ops.
func (g *Graph) AddCandidatePreference(name string) {
	key := perkKey(name)
	if key == "" {
		return
	}
	if _, ok := g.perks[key]; ok {
		return
	}
	g.perks[key] = name
	g.prefers = append(g.prefers, key)
}

// CandidatePreferences returns preferred perk names in the order first seen.
func (g *Graph) CandidatePreferences() []string {
	out := make([]string, 0, len(g.prefers))
	for _, key := range g.prefers {
		out = append(out, g.perks[key])
	}
	return out
}
