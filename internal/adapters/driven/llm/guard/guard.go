// Package guard wraps a Generator with client-side protections: a token-bucket
// rate limit, a per-call timeout, an LRU cache of query rewrites and a circuit
// breaker that fails fast while the backend is unhealthy.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/logger"
)

// Ensure Generator implements the interfaces.
var (
	_ driven.Generator        = (*Generator)(nil)
	_ driven.PromptStoreAware = (*Generator)(nil)
)

// Default configuration values.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurstSize         = 10
	DefaultTimeout           = 30 * time.Second
	DefaultCacheSize         = 256
	DefaultFailureThreshold  = 5
	DefaultOpenTimeout       = 30 * time.Second
)

// Options configures a Generator.
type Options struct {
	// RequestsPerSecond is the sustained call rate. Zero uses the default.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size. Zero uses the default.
	BurstSize int

	// Timeout bounds each call to the wrapped generator.
	Timeout time.Duration

	// CacheSize is the number of rewrites kept. Negative disables the cache.
	CacheSize int

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before a trial call.
	OpenTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if o.BurstSize <= 0 {
		o.BurstSize = DefaultBurstSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.CacheSize == 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	return o
}

// Generator decorates another Generator.
type Generator struct {
	next    driven.Generator
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   *lru.Cache // nil when disabled
	timeout time.Duration
}

// New wraps next with the configured protections.
func New(next driven.Generator, opts Options) (*Generator, error) {
	if next == nil {
		return nil, fmt.Errorf("guard: %w", domain.ErrGeneratorUnavailable)
	}
	opts = opts.withDefaults()

	g := &Generator{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.BurstSize),
		timeout: opts.Timeout,
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating rewrite cache: %w", err)
		}
		g.cache = cache
	}

	threshold := opts.FailureThreshold
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generator",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a backend failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("%s circuit breaker: %s -> %s", name, from, to)
		},
	})

	return g, nil
}

// Rewrite returns a cached rewrite when the same query and history were seen before.
func (g *Generator) Rewrite(ctx context.Context, query string, history []domain.Message) (string, error) {
	key := rewriteKey(query, history)
	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			logger.Debug("rewrite cache hit")
			return v.(string), nil
		}
	}

	out, err := g.call(ctx, func(callCtx context.Context) (string, error) {
		return g.next.Rewrite(callCtx, query, history)
	})
	if err != nil {
		return "", err
	}

	if g.cache != nil && strings.TrimSpace(out) != "" {
		g.cache.Add(key, out)
	}
	return out, nil
}

// Complete forwards to the wrapped generator. Completions are not cached.
func (g *Generator) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return g.call(ctx, func(callCtx context.Context) (string, error) {
		return g.next.Complete(callCtx, prompt, maxTokens, temperature)
	})
}

// SetPromptStore forwards the prompt store when the wrapped generator accepts one.
func (g *Generator) SetPromptStore(store driven.PromptStore) {
	if aware, ok := g.next.(driven.PromptStoreAware); ok {
		aware.SetPromptStore(store)
	}
}

// State reports the breaker state ("closed", "half-open" or "open").
func (g *Generator) State() string {
	return g.breaker.State().String()
}

func (g *Generator) call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fn(callCtx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneratorUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func rewriteKey(query string, history []domain.Message) string {
	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(string(m.Role))
		sb.WriteByte(0x1f)
		sb.WriteString(m.Content)
		sb.WriteByte(0x1e)
	}
	sb.WriteString(query)
	return sb.String()
}
