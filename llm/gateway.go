// Completion gateway - one request/response cycle against a routed model.
//
// Information Hiding:
// - Backend construction and caching per provider
// - Per-provider and per-model option filtering
// - Request timeout
// - Usage reporting

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sync"
	"time"
)

// DefaultTimeout bounds one completion call.
const DefaultTimeout = 180 * time.Second

// DefaultNoOptionModels are model globs that reject sampling options.
var DefaultNoOptionModels = []string{"grok-4", "gpt-5-*", "o*"}

// UsageRecord describes one completed backend call.
type UsageRecord struct {
	Model    string
	Provider string
	Usage    *TokenUsage
	Duration time.Duration
	Err      error
}

// UsageRecorder receives one record per completion call.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord)
}

// ProviderFactory builds a backend for a provider entry.
type ProviderFactory func(name string, cfg ProviderConfig) (Provider, error)

// Gateway routes chat requests to backends.
type Gateway struct {
	mu       sync.RWMutex
	routes   RoutingTable
	backends map[string]Provider

	factory   ProviderFactory
	timeout   time.Duration
	noOptions []string
	usage     UsageRecorder
	logger    *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithNoOptionModels replaces the model globs whose requests are sent
// without sampling options.
func WithNoOptionModels(globs []string) GatewayOption {
	return func(g *Gateway) { g.noOptions = append([]string(nil), globs...) }
}

// WithUsageRecorder reports every call to r.
func WithUsageRecorder(r UsageRecorder) GatewayOption {
	return func(g *Gateway) { g.usage = r }
}

// WithProviderFactory overrides backend construction.
func WithProviderFactory(f ProviderFactory) GatewayOption {
	return func(g *Gateway) { g.factory = f }
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway creates a gateway over a routing table.
func NewGateway(routes RoutingTable, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		routes:    routes.Clone(),
		backends:  make(map[string]Provider),
		timeout:   DefaultTimeout,
		noOptions: DefaultNoOptionModels,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.factory == nil {
		client := &http.Client{Timeout: g.timeout}
		g.factory = func(name string, cfg ProviderConfig) (Provider, error) {
			return NewProvider(name, cfg, client)
		}
	}
	return g
}

// Routes returns a copy of the current routing table.
func (g *Gateway) Routes() RoutingTable {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.routes.Clone()
}

// SetRoutes swaps the routing table. Cached backends are dropped so the
// next call picks up changed endpoints and credentials.
func (g *Gateway) SetRoutes(routes RoutingTable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = routes.Clone()
	g.backends = make(map[string]Provider)
}

// Chat resolves req.Model and issues one completion call.
func (g *Gateway) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	route, backend, err := g.route(req.Model)
	if err != nil {
		return nil, err
	}

	req.Options = g.filterOptions(route, req.Model, req.Options)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := backend.Chat(ctx, req)
	elapsed := time.Since(start)

	rec := UsageRecord{Model: req.Model, Provider: route.Provider, Duration: elapsed, Err: err}
	if resp != nil {
		rec.Usage = resp.Usage
	}
	if g.usage != nil {
		g.usage.RecordUsage(ctx, rec)
	}

	if err != nil {
		g.logger.Error("completion failed",
			"model", req.Model, "provider", route.Provider, "elapsed", elapsed, "error", err)
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrCompletion, route.Provider, req.Model, err)
	}

	resp.Model = req.Model
	resp.Provider = route.Provider
	g.logger.Debug("completion finished",
		"model", req.Model, "provider", route.Provider, "elapsed", elapsed,
		"tool_calls", len(resp.Message.ToolCalls))
	return resp, nil
}

// route resolves model and returns its backend. Both come from the same
// routing table snapshot so a concurrent SetRoutes cannot pair a route
// with a backend built for another table.
func (g *Gateway) route(model string) (Route, Provider, error) {
	g.mu.RLock()
	route, err := g.routes.Resolve(model)
	p, ok := g.backends[route.Provider]
	g.mu.RUnlock()
	if err != nil {
		return Route{}, nil, err
	}
	if !ok {
		route, p, err = g.buildBackend(model)
		if err != nil {
			return Route{}, nil, err
		}
	}
	if route.Fallback {
		g.logger.Warn("model not claimed by any provider, using fallback",
			"model", model, "provider", route.Provider)
	}
	return route, p, nil
}

func (g *Gateway) buildBackend(model string) (Route, Provider, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	route, err := g.routes.Resolve(model)
	if err != nil {
		return Route{}, nil, err
	}
	if p, ok := g.backends[route.Provider]; ok {
		return route, p, nil
	}
	p, err := g.factory(route.Provider, route.Config)
	if err != nil {
		return Route{}, nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	g.backends[route.Provider] = p
	return route, p, nil
}

// filterOptions drops sampling options the target rejects.
func (g *Gateway) filterOptions(route Route, model string, opts Options) Options {
	if opts.IsZero() {
		return opts
	}
	if route.Config.StripOptions {
		return Options{}
	}
	for _, glob := range g.noOptions {
		if ok, _ := path.Match(glob, model); ok {
			return Options{}
		}
	}
	return opts
}
