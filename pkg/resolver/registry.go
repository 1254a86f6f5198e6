// Package resolver rewrites human-readable tool parameters (station names, place
// names) into the canonical ids and coordinates the tools expect.
//
// Resolvers form an ordered chain: the first resolver whose CanResolve accepts a
// call rewrites its parameters and the chain stops there.
package resolver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
)

// ExecuteFunc runs an auxiliary tool lookup on behalf of a resolver.
type ExecuteFunc func(ctx context.Context, tool string, params map[string]any) domain.ToolResult

// Resolver rewrites the parameters of a tool call.
type Resolver interface {
	Name() string
	CanResolve(tool string, params map[string]any) bool
	// Resolve returns the rewritten parameters. It must not modify params and
	// returns them unchanged when resolution fails.
	Resolve(ctx context.Context, tool string, params map[string]any, exec ExecuteFunc) map[string]any
}

// Registry holds resolvers in registration order.
type Registry struct {
	mu        sync.RWMutex
	resolvers []Resolver
	logger    *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for resolution events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefaultRegistry registers the station resolver, then the location resolver.
func NewDefaultRegistry(opts ...Option) *Registry {
	r := NewRegistry(opts...)
	r.Register(NewStationResolver())
	r.Register(NewLocationResolver())
	return r
}

// Register appends res to the chain.
func (r *Registry) Register(res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers = append(r.resolvers, res)
}

// Names lists the registered resolvers in chain order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.resolvers))
	for i, res := range r.resolvers {
		names[i] = res.Name()
	}
	return names
}

// Resolve applies the first matching resolver. Without a match params are returned as is.
func (r *Registry) Resolve(ctx context.Context, tool string, params map[string]any, exec ExecuteFunc) map[string]any {
	r.mu.RLock()
	chain := make([]Resolver, len(r.resolvers))
	copy(chain, r.resolvers)
	r.mu.RUnlock()

	for _, res := range chain {
		if !res.CanResolve(tool, params) {
			continue
		}
		out := res.Resolve(ctx, tool, params, exec)
		r.logger.Debug("Parameters resolved", "tool", tool, "resolver", res.Name())
		return out
	}
	return params
}

func clone(params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	return out
}
