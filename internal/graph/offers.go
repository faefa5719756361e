package graph

import (
	"sort"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/extractor"
)

func (g *Graph) node(id OfferID) (*offerNode, bool) {
	if id < 1 || int(id) > len(g.offers) {
		return nil, false
	}
	return g.offers[id-1], true
}

func (n *offerNode) record() OfferRecord {
	return OfferRecord{
		ID:        n.id,
		Turn:      n.turn,
		OfferedBy: n.by,
		Details:   n.details,
		Status:    n.status,
	}
}

// AddOffer attaches an offer to an existing turn. At most one offer exists
// per (turn, party): a second write replaces details and status in place and
// keeps the handle. Agent offers are linked from the turn's response group.
// Returns false, after logging, when the turn does not exist.
func (g *Graph) AddOffer(turn int, details extractor.Offer, by Party, status Status) (OfferID, bool) {
	if turn < 1 || turn > len(g.turns) {
		g.logger.Warn("turn not found for adding offer", "turn", turn, "offered_by", by)
		return 0, false
	}
	if status == "" {
		status = StatusProposed
	}

	key := offerKey{turn: turn, by: by}
	id, exists := g.offerIndex[key]
	if exists {
		n := g.offers[id-1]
		g.logger.Debug("overwriting offer", "offer_id", id, "turn", turn, "offered_by", by, "old_status", n.status)
		n.details = details
		n.status = status
	} else {
		id = OfferID(len(g.offers) + 1)
		g.offers = append(g.offers, &offerNode{id: id, turn: turn, by: by, details: details, status: status})
		g.offerIndex[key] = id
		g.turnOffers[turn] = append(g.turnOffers[turn], id)
	}

	if by == Agent {
		rg, ok := g.responses[turn]
		if !ok {
			rg = &responseGroup{turn: turn}
			g.responses[turn] = rg
		}
		if !containsOffer(rg.justifies, id) {
			rg.justifies = append(rg.justifies, id)
		}
	}
	return id, true
}

func containsOffer(ids []OfferID, id OfferID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Offer returns the offer with the given handle.
func (g *Graph) Offer(id OfferID) (OfferRecord, bool) {
	n, ok := g.node(id)
	if !ok {
		return OfferRecord{}, false
	}
	return n.record(), true
}

// TurnOffers returns the offers attached to turn n, in insertion order.
func (g *Graph) TurnOffers(n int) []OfferRecord {
	ids := g.turnOffers[n]
	out := make([]OfferRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.offers[id-1].record())
	}
	return out
}

// ResponseOffers returns the agent offers justified by turn n's response group.
func (g *Graph) ResponseOffers(n int) []OfferID {
	rg, ok := g.responses[n]
	if !ok {
		return nil
	}
	out := make([]OfferID, len(rg.justifies))
	copy(out, rg.justifies)
	return out
}

// canTransition allows moves out of proposed and re-application of the
// current status. Terminal statuses never move.
func canTransition(from, to Status) bool {
	return from == to || from == StatusProposed
}

// UpdateOfferStatus moves an offer along its lifecycle. Unknown handles and
// backward transitions are logged and ignored. Rejections and acceptances
// also add a candidate decision edge; repeated updates add repeated edges.
func (g *Graph) UpdateOfferStatus(id OfferID, status Status) {
	n, ok := g.node(id)
	if !ok {
		g.logger.Warn("offer not found for status update", "offer_id", id, "status", status)
		return
	}
	if !canTransition(n.status, status) {
		g.logger.Warn("ignoring backward offer status transition", "offer_id", id, "from", n.status, "to", status)
		return
	}
	n.status = status
	if status == StatusRejected || status == StatusAccepted {
		g.lifecycle = append(g.lifecycle, lifecycleEdge{offer: id, kind: status, at: g.now()})
	}
}

// Decisions returns how many candidate decision edges of the given kind point
// at an offer.
func (g *Graph) Decisions(id OfferID, kind Status) int {
	count := 0
	for _, e := range g.lifecycle {
		if e.offer == id && e.kind == kind {
			count++
		}
	}
	return count
}

func (g *Graph) collect(match func(*offerNode) bool) []OfferRecord {
	var out []OfferRecord
	for _, n := range g.offers {
		if match(n) {
			out = append(out, n.record())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Turn > out[j].Turn })
	return out
}

// LastOffer returns the offer with the highest turn number, optionally
// restricted to one party.
func (g *Graph) LastOffer(by Party) (OfferRecord, bool) {
	offers := g.collect(func(n *offerNode) bool { return by == "" || n.by == by })
	if len(offers) == 0 {
		return OfferRecord{}, false
	}
	return offers[0], true
}

// OffersByStatus returns matching offers, newest turn first. An empty party
// matches both.
func (g *Graph) OffersByStatus(status Status, by Party) []OfferRecord {
	return g.collect(func(n *offerNode) bool {
		return n.status == status && (by == "" || n.by == by)
	})
}

// AddSimilarOfferRelation marks two offers as having the same base amount.
// The relation is symmetric; self-relations, non-offers and existing pairs
// are logged and ignored.
func (g *Graph) AddSimilarOfferRelation(a, b OfferID) {
	if _, ok := g.node(a); !ok {
		g.logger.Warn("offer not found for similarity relation", "offer_id", a)
		return
	}
	if _, ok := g.node(b); !ok {
		g.logger.Warn("offer not found for similarity relation", "offer_id", b)
		return
	}
	if a == b {
		return
	}
	p := newPair(a, b)
	if _, exists := g.similar[p]; exists {
		return
	}
	g.similar[p] = struct{}{}
	g.similarOrder = append(g.similarOrder, p)
}

// SimilarOffers returns the unique offers related to id, ascending.
func (g *Graph) SimilarOffers(id OfferID) []OfferID {
	seen := make(map[OfferID]struct{})
	var out []OfferID
	for _, p := range g.similarOrder {
		var other OfferID
		switch id {
		case p.a:
			other = p.b
		case p.b:
			other = p.a
		default:
			continue
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
