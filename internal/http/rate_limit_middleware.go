package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Counter is a fixed-window attempt counter. Both attempt stores used for
// login throttling satisfy it, so request rate limiting shares whatever
// backend the throttle runs on.
type Counter interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

const rateKeyPrefix = "neev:rate:"

// withRateLimit caps how often a key may hit a route within a window. The
// counter backend failing does not block traffic.
func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if limit <= 0 || r.counter == nil {
			next(w, req)
			return
		}
		if window <= 0 {
			window = time.Minute
		}
		key := keyFn(req)
		if key == "" {
			key = rateLimitKeyIP(req)
		}
		count, err := r.counter.Increment(req.Context(), rateKeyPrefix+route+":"+key, window)
		if err != nil {
			r.logger.Warn("rate counter unavailable", "route", route, "error", err)
			next(w, req)
			return
		}
		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(limit) {
			r.recordRateLimitHit(route, rateMetricKey(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// handlerAuthRate authenticates first so the limit keys on the user rather
// than the source address.
func (r *Router) handlerAuthRate(route string, limit int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, limit, window, r.rateLimitKeyUser, next))
}

func (r *Router) rateLimitKeyUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return ""
}

func rateLimitKeyIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func rateMetricKey(key string) string {
	if key == "" {
		return "unknown"
	}
	if idx := strings.IndexRune(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}
