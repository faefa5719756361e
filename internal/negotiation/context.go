package negotiation

import (
	"fmt"
	"strings"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/graph"
)

const (
	noContext       = "No specific context from Knowledge Graph yet."
	maxRejectedInfo = 2
)

// BuildContext summarizes the graph for the generator: preferences, the most
// recent rejected agent offers, the latest agent offer with its status and
// the latest candidate offer.
func BuildContext(g *graph.Graph) string {
	var parts []string

	if prefs := g.CandidatePreferences(); len(prefs) > 0 {
		parts = append(parts, fmt.Sprintf("Candidate Preferences: %s.", strings.Join(prefs, ", ")))
	}

	if rejected := g.OffersByStatus(graph.StatusRejected, graph.Agent); len(rejected) > 0 {
		summaries := make([]string, 0, maxRejectedInfo)
		for _, o := range rejected[:min(len(rejected), maxRejectedInfo)] {
			summaries = append(summaries, fmt.Sprintf("Turn %d: %s", o.Turn, o.Details.JSON()))
		}
		parts = append(parts, fmt.Sprintf("Recently Rejected Agent Offers: [%s]. Avoid similar offers.", strings.Join(summaries, "; ")))
	}

	// Prefer the newest offer still on the table.
	var lastAgent graph.OfferRecord
	var ok bool
	if proposed := g.OffersByStatus(graph.StatusProposed, graph.Agent); len(proposed) > 0 {
		lastAgent, ok = proposed[0], true
	} else {
		lastAgent, ok = g.LastOffer(graph.Agent)
	}
	if ok {
		parts = append(parts, fmt.Sprintf("Last Agent Offer (Turn %d, Status: %s): %s.", lastAgent.Turn, lastAgent.Status, lastAgent.Details.JSON()))
	}

	if lastCand, ok := g.LastOffer(graph.Candidate); ok {
		parts = append(parts, fmt.Sprintf("Last Candidate Offer (Turn %d): %s.", lastCand.Turn, lastCand.Details.JSON()))
	}

	if len(parts) == 0 {
		return noContext
	}
	return strings.Join(parts, " ")
}
