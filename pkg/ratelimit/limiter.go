package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"fedialt/pkg/config"
	"fedialt/pkg/logger"
)

// Window names used for scope keys and config maps.
const (
	windowMinute = "minute"
	windowHour   = "hour"
	windowDay    = "day"
)

var windowDurations = map[string]time.Duration{
	windowMinute: time.Minute,
	windowHour:   time.Hour,
	windowDay:    24 * time.Hour,
}

// lowQuotaThreshold is the server-reported remaining quota at or below
// which a warning is logged during header reconciliation.
const lowQuotaThreshold = 5

// ScopeStats holds cumulative counters for one scope. Waited is the total
// time callers spent suspended in Wait on account of this scope.
type ScopeStats struct {
	Allowed int64
	Denied  int64
	Waited  time.Duration
}

// Limiter enforces request budgets across multiple simultaneous scopes:
// global minute/hour/day buckets plus optional per-endpoint, per-platform,
// and per-platform-per-endpoint buckets. A request may proceed only when
// every applicable bucket has a token; on success exactly one token is
// taken from each. Scopes without configuration are unlimited.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*TokenBucket
	stats   map[string]*ScopeStats
	log     logger.Logger
}

// New builds a Limiter from the rate-limit configuration. Buckets for the
// optional scope maps are created eagerly; anything absent from the config
// never blocks.
func New(cfg config.RateLimitConfig, log logger.Logger) *Limiter {
	if log == nil {
		log = logger.GetLogger()
	}

	l := &Limiter{
		buckets: make(map[string]*TokenBucket),
		stats:   make(map[string]*ScopeStats),
		log:     log,
	}

	addWindows := func(prefix string, limits config.WindowLimits) {
		for window, ceiling := range map[string]int{
			windowMinute: limits.PerMinute,
			windowHour:   limits.PerHour,
			windowDay:    limits.PerDay,
		} {
			if ceiling <= 0 {
				continue
			}
			// The burst ceiling bounds instantaneous emission, so it caps
			// only the shortest window; hour/day buckets keep their full
			// ceilings and pace the sustained rate.
			burst := 0
			if window == windowMinute {
				burst = cfg.MaxBurst
			}
			l.buckets[prefix+":"+window] = newTokenBucket(ceiling, windowDurations[window], burst)
		}
	}

	addWindows("global", config.WindowLimits{
		PerMinute: cfg.PerMinute,
		PerHour:   cfg.PerHour,
		PerDay:    cfg.PerDay,
	})
	for endpoint, limits := range cfg.Endpoints {
		addWindows("endpoint:"+endpoint, limits)
	}
	for platform, limits := range cfg.Platforms {
		addWindows("platform:"+platform, limits)
	}
	for platform, endpoints := range cfg.PlatformEndpoints {
		for endpoint, limits := range endpoints {
			addWindows("platform:"+platform+":endpoint:"+endpoint, limits)
		}
	}

	return l
}

// scopeKeys returns the bucket-key prefixes applicable to a call.
func scopeKeys(endpoint, platform string) []string {
	keys := []string{"global"}
	if endpoint != "" {
		keys = append(keys, "endpoint:"+endpoint)
	}
	if platform != "" {
		keys = append(keys, "platform:"+platform)
	}
	if endpoint != "" && platform != "" {
		keys = append(keys, "platform:"+platform+":endpoint:"+endpoint)
	}
	return keys
}

// applicable collects existing buckets for the call's scopes. Must be
// called with the mutex held.
func (l *Limiter) applicable(endpoint, platform string) []*TokenBucket {
	var buckets []*TokenBucket
	for _, prefix := range scopeKeys(endpoint, platform) {
		for _, window := range []string{windowMinute, windowHour, windowDay} {
			if b, ok := l.buckets[prefix+":"+window]; ok {
				buckets = append(buckets, b)
			}
		}
	}
	return buckets
}

// Check decides whether a request scoped to (endpoint, platform) may
// proceed now. It never blocks. When allowed, one token is consumed from
// every applicable bucket; otherwise the returned wait is the maximum of
// the per-bucket waits, so the caller waits long enough to satisfy the
// slowest-to-refill scope.
func (l *Limiter) Check(endpoint, platform string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	buckets := l.applicable(endpoint, platform)

	allowed := true
	var wait time.Duration
	for _, b := range buckets {
		if !b.hasToken(now) {
			allowed = false
			if w := b.timeUntilToken(now); w > wait {
				wait = w
			}
		}
	}

	if !allowed {
		l.bumpStats(endpoint, platform, false)
		return false, wait
	}

	for _, b := range buckets {
		b.consume()
	}
	l.bumpStats(endpoint, platform, true)
	return true, 0
}

// bumpStats updates counters for every scope of the call. Must be called
// with the mutex held.
func (l *Limiter) bumpStats(endpoint, platform string, allowed bool) {
	for _, key := range scopeKeys(endpoint, platform) {
		s, ok := l.stats[key]
		if !ok {
			s = &ScopeStats{}
			l.stats[key] = s
		}
		if allowed {
			s.Allowed++
		} else {
			s.Denied++
		}
	}
}

// bumpWaited credits suspension time to every scope of the call.
func (l *Limiter) bumpWaited(endpoint, platform string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range scopeKeys(endpoint, platform) {
		s, ok := l.stats[key]
		if !ok {
			s = &ScopeStats{}
			l.stats[key] = s
		}
		s.Waited += d
	}
}

// Wait suspends the caller until the rate limit allows the request, and
// returns the total time spent waiting. Cancellation while waiting
// consumes no token. This is the limiter's only suspension point.
func (l *Limiter) Wait(ctx context.Context, endpoint, platform string) (time.Duration, error) {
	var total time.Duration
	for {
		allowed, wait := l.Check(endpoint, platform)
		if allowed {
			if total > 0 {
				l.bumpWaited(endpoint, platform, total)
			}
			return total, nil
		}

		l.log.DebugWithFields("rate limit reached, waiting", map[string]interface{}{
			"endpoint": endpoint,
			"platform": platform,
			"wait":     wait,
		})

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			total += wait
		case <-ctx.Done():
			timer.Stop()
			return total, ctx.Err()
		}
	}
}

// UpdateFromHeaders reconciles local bucket state with the server-reported
// quota on a best-effort basis. Malformed headers are ignored; a warning
// is logged when the remaining quota is critically low. Control flow is
// never affected.
func (l *Limiter) UpdateFromHeaders(headers http.Header, platform string) {
	remainingStr := headers.Get("X-RateLimit-Remaining")
	if remainingStr == "" {
		return
	}
	remaining, err := strconv.ParseFloat(remainingStr, 64)
	if err != nil {
		return
	}

	if remaining <= lowQuotaThreshold {
		l.log.WarnWithFields("server rate limit quota critically low", map[string]interface{}{
			"platform":  platform,
			"remaining": int(remaining),
			"reset":     headers.Get("X-RateLimit-Reset"),
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Clamp the finest-grained minute bucket we track for this platform,
	// falling back to the global minute bucket.
	for _, key := range []string{"platform:" + platform + ":" + windowMinute, "global:" + windowMinute} {
		if b, ok := l.buckets[key]; ok {
			b.refill(time.Now())
			b.clampTokens(remaining)
			return
		}
	}
}

// Stats returns a snapshot of the cumulative per-scope counters.
func (l *Limiter) Stats() map[string]ScopeStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]ScopeStats, len(l.stats))
	for key, s := range l.stats {
		out[key] = *s
	}
	return out
}

// ResetStats zeroes all counters atomically.
func (l *Limiter) ResetStats() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats = make(map[string]*ScopeStats)
}

// String describes the limiter's configured buckets, for debug logging.
func (l *Limiter) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("ratelimit.Limiter(%d buckets)", len(l.buckets))
}
