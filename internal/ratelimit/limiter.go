package ratelimit

import (
	"context"
	"os"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the external services we fetch raw snapshots from.
type API string

const (
	// APIJustETF represents the justETF web site.
	APIJustETF API = "justetf"
	// APIFCAFirds represents the FCA FIRDS file registry API.
	APIFCAFirds API = "fca_firds"
)

// Limiter manages rate limits for the external sources. Limits are shared
// process-wide so concurrent batch workers hitting the same source stay
// under one budget.
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

var (
	instance *Limiter
	once     sync.Once
)

// GetLimiter returns the singleton rate limiter instance.
func GetLimiter() *Limiter {
	once.Do(func() {
		instance = &Limiter{
			limiters: make(map[API]*rate.Limiter),
		}
		instance.initLimiters()
	})
	return instance
}

func (l *Limiter) initLimiters() {
	// Unlimited in test mode so the suite is not paced by scrape budgets.
	if os.Getenv("GO_TESTING") == "1" || isTestMode() {
		l.limiters[APIJustETF] = rate.NewLimiter(rate.Inf, 1)
		l.limiters[APIFCAFirds] = rate.NewLimiter(rate.Inf, 1)
		return
	}

	// justETF has no published budget; one page per two seconds keeps
	// batch runs well below anything that trips their protection.
	l.limiters[APIJustETF] = rate.NewLimiter(rate.Limit(0.5), 1)

	// FCA FIRDS documents 10 requests per second; stay under half of it.
	l.limiters[APIFCAFirds] = rate.NewLimiter(rate.Limit(4), 1)
}

func isTestMode() bool {
	for _, arg := range os.Args {
		if len(arg) > 6 && arg[:6] == "-test." {
			return true
		}
	}
	return false
}

// Wait blocks until the limiter permits a request to the given API, or the
// context is canceled.
func (l *Limiter) Wait(ctx context.Context, api API) error {
	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		return nil
	}
	return limiter.Wait(ctx)
}

// Allow reports whether a request to the given API may happen now.
func (l *Limiter) Allow(api API) bool {
	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		return true
	}
	return limiter.Allow()
}
