package negotiation

import (
	"context"
	"errors"
)

// ErrGeneratorUnavailable is returned while the generator circuit is open.
var ErrGeneratorUnavailable = errors.New("generator unavailable")

// Exchange is one committed candidate message and agent reply.
type Exchange struct {
	Candidate string
	Agent     string
}

// Request is everything the generator needs to produce the next reply.
type Request struct {
	History     []Exchange
	Message     string
	Ceiling     int
	AbsoluteMax int
	Context     string
}

// Generator produces the agent's reply text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
