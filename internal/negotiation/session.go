package negotiation

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/graph"
)

// DefaultSessionID is used when a caller does not name a session.
const DefaultSessionID = "default_session"

// Session is the per-conversation state: the graph plus the handle of the
// agent offer currently awaiting the candidate's answer. Offer details are
// always read back from the graph.
//
// ID is the caller-facing name and is reused once a session is evicted or
// ended. ConversationID is minted per Session and tells archived
// conversations under the same ID apart.
type Session struct {
	ID             string
	ConversationID string
	Graph          *graph.Graph

	pending   graph.OfferID
	concluded bool
}

func NewSession(id string, logger *slog.Logger) *Session {
	if id == "" {
		id = DefaultSessionID
	}
	return &Session{ID: id, ConversationID: uuid.NewString(), Graph: graph.New(id, logger)}
}

// Pending returns the agent offer the candidate may accept, if any.
func (s *Session) Pending() (graph.OfferRecord, bool) {
	if s.pending == 0 {
		return graph.OfferRecord{}, false
	}
	return s.Graph.Offer(s.pending)
}

// Concluded reports whether an agreement has been reached in this session.
func (s *Session) Concluded() bool {
	return s.concluded
}

// History returns the committed exchanges, oldest first.
func (s *Session) History() []Exchange {
	turns := s.Graph.Turns()
	out := make([]Exchange, 0, len(turns))
	for _, t := range turns {
		out = append(out, Exchange{Candidate: t.CandidateMessage, Agent: t.AgentReply})
	}
	return out
}
