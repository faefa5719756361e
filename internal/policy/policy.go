// Package policy computes the agent's per-turn concession ceiling.
package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/graph"
)

// Config holds the tunable concession constants.
type Config struct {
	AbsoluteMax          int
	InitialLimit         int
	MidpointFallbackRate float64 // applied when the candidate offer has no base
	SingleRejectionRate  float64 // applied after exactly one rejected agent offer
}

func DefaultConfig() Config {
	return Config{
		AbsoluteMax:          135000,
		InitialLimit:         115000,
		MidpointFallbackRate: 1.05,
		SingleRejectionRate:  1.08,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.InitialLimit <= 0 {
		errs = append(errs, fmt.Errorf("initial limit must be positive, got %d", c.InitialLimit))
	}
	if c.InitialLimit > c.AbsoluteMax {
		errs = append(errs, fmt.Errorf("initial limit %d exceeds absolute max %d", c.InitialLimit, c.AbsoluteMax))
	}
	if c.MidpointFallbackRate < 1 {
		errs = append(errs, fmt.Errorf("midpoint fallback rate must be >= 1, got %g", c.MidpointFallbackRate))
	}
	if c.SingleRejectionRate < 1 {
		errs = append(errs, fmt.Errorf("rejection rate must be >= 1, got %g", c.SingleRejectionRate))
	}
	return errors.Join(errs...)
}

// Input is the slice of negotiation history the ceiling depends on.
type Input struct {
	Turn              int // 1-based number of the turn being computed
	PrevLimit         int
	HasPrevLimit      bool
	Rejections        int // rejected agent offers so far
	HasCandidateOffer bool
	CandidateBase     int // zero when the candidate offer has no base
}

// Ceiling applies the concession rules in order:
//
//	turn 1                          -> initial limit
//	no rejections, candidate offer  -> midpoint with the candidate's base, or prev × fallback rate
//	one rejection                   -> prev × rejection rate
//	two or more rejections          -> absolute max
//
// The result never drops below the previous limit and never exceeds the
// absolute max. With no rejections and no candidate offer the previous
// limit holds. Earlier versions jumped straight to the absolute max in that
// gap.
func Ceiling(cfg Config, in Input) int {
	if in.Turn <= 1 {
		return min(cfg.InitialLimit, cfg.AbsoluteMax)
	}

	prev := cfg.InitialLimit
	if in.HasPrevLimit {
		prev = in.PrevLimit
	}

	var next int
	switch {
	case in.Rejections == 0 && in.HasCandidateOffer:
		if in.CandidateBase > 0 {
			next = (prev + in.CandidateBase) / 2
		} else {
			next = scale(prev, cfg.MidpointFallbackRate)
		}
	case in.Rejections == 1:
		next = scale(prev, cfg.SingleRejectionRate)
	case in.Rejections >= 2:
		next = cfg.AbsoluteMax
	default:
		next = prev
	}

	return clamp(next, prev, cfg.AbsoluteMax)
}

func scale(v int, rate float64) int {
	return int(math.Round(float64(v) * rate))
}

func clamp(v, floor, ceil int) int {
	if v < floor {
		v = floor
	}
	if v > ceil {
		v = ceil
	}
	return v
}

// History is the graph view the policy reads.
type History interface {
	TurnCount() int
	CurrentLimit() (int, bool)
	OffersByStatus(status graph.Status, by graph.Party) []graph.OfferRecord
	LastOffer(by graph.Party) (graph.OfferRecord, bool)
}

// InputFrom assembles the policy input for the turn about to be recorded.
func InputFrom(h History) Input {
	in := Input{
		Turn:       h.TurnCount() + 1,
		Rejections: len(h.OffersByStatus(graph.StatusRejected, graph.Agent)),
	}
	in.PrevLimit, in.HasPrevLimit = h.CurrentLimit()
	if last, ok := h.LastOffer(graph.Candidate); ok {
		in.HasCandidateOffer = true
		in.CandidateBase = last.Details.Base
	}
	return in
}

// FromGraph computes the ceiling for the next turn of h.
func FromGraph(cfg Config, h History) int {
	return Ceiling(cfg, InputFrom(h))
}
