package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/anthropic"
)

// Completer is the slice of the Anthropic client the generator uses.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// BreakerConfig controls when the generator circuit opens.
type BreakerConfig struct {
	MaxRequests      uint32        // requests allowed while half-open
	Interval         time.Duration // closed-state counter reset period
	Timeout          time.Duration // open-state duration before a trial request
	MinRequests      uint32
	FailureThreshold float64
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		MinRequests:      5,
		FailureThreshold: 0.6,
	}
}

// LLMGenerator renders the negotiation prompt and asks the model for a reply
// behind a circuit breaker.
type LLMGenerator struct {
	llm       Completer
	maxTokens int
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

func NewLLMGenerator(llm Completer, maxTokens int, bc BreakerConfig, logger *slog.Logger) *LLMGenerator {
	g := &LLMGenerator{llm: llm, maxTokens: maxTokens, logger: logger}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generator",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a backend failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return g
}

// Messages flattens history into alternating user/assistant turns ending
// with the current candidate message.
func Messages(req Request) []anthropic.Message {
	msgs := make([]anthropic.Message, 0, 2*len(req.History)+1)
	for _, ex := range req.History {
		msgs = append(msgs,
			anthropic.Message{Role: "user", Content: ex.Candidate},
			anthropic.Message{Role: "assistant", Content: ex.Agent},
		)
	}
	return append(msgs, anthropic.Message{Role: "user", Content: req.Message})
}

func (g *LLMGenerator) Generate(ctx context.Context, req Request) (string, error) {
	system, err := renderPrompt(req)
	if err != nil {
		return "", err
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.llm.Complete(ctx, system, Messages(req), g.maxTokens)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrGeneratorUnavailable, err)
		}
		return "", fmt.Errorf("generate reply: %w", err)
	}

	reply := strings.TrimSpace(out.(string))
	if reply == "" {
		return "", errors.New("generate reply: empty completion")
	}
	return reply, nil
}
