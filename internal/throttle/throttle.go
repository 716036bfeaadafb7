// Package throttle enforces a fixed minimum delay between calls to the same
// third-party service, shared by every job in the process.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Well-known service keys.
const (
	ServiceWeb        = "web"
	ServiceGitHub     = "github"
	ServiceLLM        = "llm"
	ServiceScreenshot = "screenshot"
)

// DefaultDelay is the spacing used for services without an explicit delay.
const DefaultDelay = 1 * time.Second

// Registry hands out one limiter per service. Limiters have burst 1 so
// consecutive calls are spaced by at least the configured delay.
type Registry struct {
	mu       sync.Mutex
	delays   map[string]time.Duration
	limiters map[string]*rate.Limiter
	fallback time.Duration
}

// NewRegistry creates a registry. delays maps service keys to their minimum
// inter-call delay; a zero delay disables throttling for that service.
func NewRegistry(delays map[string]time.Duration) *Registry {
	d := make(map[string]time.Duration, len(delays))
	for k, v := range delays {
		d[k] = v
	}
	return &Registry{
		delays:   d,
		limiters: make(map[string]*rate.Limiter),
		fallback: DefaultDelay,
	}
}

// Unlimited returns a registry that never waits. Used in tests.
func Unlimited() *Registry {
	r := NewRegistry(nil)
	r.fallback = 0
	return r
}

// Wait blocks until a call to service may proceed or ctx is done.
func (r *Registry) Wait(ctx context.Context, service string) error {
	if r == nil {
		return nil
	}
	return r.limiter(service).Wait(ctx)
}

// Delay returns the configured delay for service.
func (r *Registry) Delay(service string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delayLocked(service)
}

func (r *Registry) delayLocked(service string) time.Duration {
	if d, ok := r.delays[service]; ok {
		return d
	}
	return r.fallback
}

func (r *Registry) limiter(service string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[service]; ok {
		return l
	}
	limit := rate.Inf
	if d := r.delayLocked(service); d > 0 {
		limit = rate.Every(d)
	}
	l := rate.NewLimiter(limit, 1)
	r.limiters[service] = l
	return l
}
