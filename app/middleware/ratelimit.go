package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-record-locks/app/dto"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
	"golang.org/x/time/rate"
)

// limiterIdleAfter is how long a holder's bucket may sit unused before it
// becomes eligible for eviction.
const limiterIdleAfter = 10 * time.Minute

// HolderLimiter hands out one token bucket per lock holder.
type HolderLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	limiters  map[string]*holderBucket
	lastPrune time.Time
	now       func() time.Time
}

type holderBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewHolderLimiter builds a limiter allowing rps requests per second per holder.
// A non-positive rps disables limiting.
func NewHolderLimiter(rps float64, burst int) *HolderLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &HolderLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*holderBucket),
		now:      time.Now,
	}
}

// Allow reports whether holder may make another request now.
func (l *HolderLimiter) Allow(holder string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	now := l.now()
	l.prune(now)
	b, ok := l.limiters[holder]
	if !ok {
		b = &holderBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[holder] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	l.mu.Unlock()
	return allowed
}

// prune drops buckets that have been idle long enough to refill completely.
// Evicting them loses nothing. Caller holds mu.
func (l *HolderLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < limiterIdleAfter {
		return
	}
	l.lastPrune = now
	for holder, b := range l.limiters {
		if now.Sub(b.lastSeen) >= limiterIdleAfter && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, holder)
		}
	}
}

// RateLimit rejects requests above the holder's budget with 429.
// It must run after an identity middleware.
func RateLimit(limiter *HolderLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := service.IdentityFromContext(c.Request().Context())
			if !ok {
				return next(c)
			}
			if !limiter.Allow(identity.HolderID) {
				return c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: "too many lock requests"})
			}
			return next(c)
		}
	}
}
