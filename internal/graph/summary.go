package graph

import (
	"fmt"
	"strings"
	"time"
)

// Summary renders the negotiation as a human-readable transcript.
func (g *Graph) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Negotiation Summary (Session: %s, Turns: %d):\n", g.sessionID, len(g.turns))
	if prefs := g.CandidatePreferences(); len(prefs) > 0 {
		fmt.Fprintf(&b, "Candidate Preferences: %s\n", strings.Join(prefs, ", "))
	}

	for _, t := range g.turns {
		fmt.Fprintf(&b, "\nTurn %d:\n", t.Number)
		fmt.Fprintf(&b, "  Candidate: %s\n", t.CandidateMessage)
		fmt.Fprintf(&b, "  Agent: %s\n", t.AgentReply)
		if limit, ok := g.limits[t.Number]; ok {
			fmt.Fprintf(&b, "  Agent Limit for this turn: $%d\n", limit)
		} else {
			b.WriteString("  Agent Limit for this turn: $N/A\n")
		}
		for _, o := range g.TurnOffers(t.Number) {
			fmt.Fprintf(&b, "  %s Offer (%s): %s\n", partyTitle(o.OfferedBy), o.Status, o.Details.JSON())
		}
	}
	return b.String()
}

func partyTitle(p Party) string {
	s := string(p)
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// SimilarPair is an unordered similarity relation between two offers.
type SimilarPair struct {
	A OfferID `json:"a"`
	B OfferID `json:"b"`
}

// Snapshot is a plain, serializable copy of the graph.
type Snapshot struct {
	SessionID   string        `json:"session_id"`
	CreatedAt   time.Time     `json:"created_at"`
	Turns       []Turn        `json:"turns"`
	Limits      []int         `json:"limits"`
	Offers      []OfferRecord `json:"offers"`
	Preferences []string      `json:"preferences"`
	Similar     []SimilarPair `json:"similar"`
}

// Snapshot copies the current graph state.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{
		SessionID:   g.sessionID,
		CreatedAt:   g.createdAt,
		Turns:       g.Turns(),
		Limits:      g.LimitHistory(),
		Offers:      make([]OfferRecord, 0, len(g.offers)),
		Preferences: g.CandidatePreferences(),
		Similar:     make([]SimilarPair, 0, len(g.similarOrder)),
	}
	for _, n := range g.offers {
		s.Offers = append(s.Offers, n.record())
	}
	for _, p := range g.similarOrder {
		s.Similar = append(s.Similar, SimilarPair{A: p.a, B: p.b})
	}
	return s
}
