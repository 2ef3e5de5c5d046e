// Package middleware implements a composable onion-style pipeline
// around an LLM call: each middleware can inspect/modify the request,
// invoke the next link in the chain, and inspect/modify the response.
package middleware

import (
	"context"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// Request encapsulates everything needed for a single LLM call.
type Request struct {
	Messages      []harnesstypes.Msg
	Model         string
	MaxTokens     int
	Temperature   float64
	Tools         []map[string]any
	ToolChoice    string
	ContextLength int
	Metadata      map[string]any

	// PriorToolError carries the previous step's tool-execution error
	// (e.g. a registry "Unknown tool: ..." or argument-validation
	// failure) so recovery middleware can classify and correct it on
	// the very next call, instead of only seeing anomalies in the raw
	// LLM response itself.
	PriorToolError string
}

// Clone returns a shallow copy of r with its own Messages slice, safe
// to mutate without affecting the original request.
func (r Request) Clone() Request {
	out := r
	out.Messages = append([]harnesstypes.Msg(nil), r.Messages...)
	return out
}

// NextFn continues the middleware chain, ultimately reaching the
// actual LLM client call at the core of the pipeline.
type NextFn func(context.Context, Request) harnesstypes.LLMResponse

// Middleware processes a request, optionally modifying it, calls next,
// and optionally modifies the resulting response.
type Middleware interface {
	Process(ctx context.Context, req Request, next NextFn) harnesstypes.LLMResponse
}

// Pipeline chains middleware around a core LLM call. Middleware runs
// in registration order (first added = outermost).
type Pipeline struct {
	core        NextFn
	middlewares []Middleware
}

// NewPipeline builds a Pipeline whose innermost call is core — the
// function that actually performs the LLM request.
func NewPipeline(core NextFn) *Pipeline {
	return &Pipeline{core: core}
}

// Use registers a middleware and returns the Pipeline for chaining.
func (p *Pipeline) Use(m Middleware) *Pipeline {
	p.middlewares = append(p.middlewares, m)
	return p
}

// Execute runs the full middleware chain and returns the final
// response.
func (p *Pipeline) Execute(ctx context.Context, req Request) harnesstypes.LLMResponse {
	chain := p.core
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		mw := p.middlewares[i]
		next := chain
		chain = func(ctx context.Context, req Request) harnesstypes.LLMResponse {
			return mw.Process(ctx, req, next)
		}
	}
	return chain(ctx, req)
}
