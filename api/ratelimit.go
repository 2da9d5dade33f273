package api

import (
	"hash/fnv"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	rateShards        = 32
	defaultRateWindow = 1 * time.Minute
	defaultRateMax    = 10
	rateSweepEvery    = 5 * time.Minute
)

// routeRateLimiter enforces a fixed-window attempt cap per (client IP, route)
// pair. It runs before any protocol work so an attacker cannot burn server
// CPU on the memory-hard and group operations behind the handshake routes.
// Buckets are sharded so attempts from unrelated clients never contend on
// one lock.
type routeRateLimiter struct {
	shards [rateShards]rateShard
	window time.Duration
	max    int
}

type rateShard struct {
	mu      sync.Mutex
	buckets map[rateKey]*rateBucket
}

type rateKey struct {
	ip    string
	route string
}

type rateBucket struct {
	count       int
	windowStart time.Time
}

func newRouteRateLimiter(window time.Duration, max int) *routeRateLimiter {
	if window <= 0 {
		window = defaultRateWindow
	}
	if max <= 0 {
		max = defaultRateMax
	}
	rl := &routeRateLimiter{window: window, max: max}
	for i := range rl.shards {
		rl.shards[i].buckets = make(map[rateKey]*rateBucket)
	}
	return rl
}

func (rl *routeRateLimiter) shard(key rateKey) *rateShard {
	h := fnv.New32a()
	h.Write([]byte(key.ip))
	h.Write([]byte{0})
	h.Write([]byte(key.route))
	return &rl.shards[h.Sum32()%rateShards]
}

// allow records an attempt and reports whether it may proceed. When blocked,
// retryAfter is the time until the current window rolls over.
func (rl *routeRateLimiter) allow(ip, route string) (ok bool, retryAfter time.Duration) {
	key := rateKey{ip: ip, route: route}
	s := rl.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	b, found := s.buckets[key]
	if !found || now.Sub(b.windowStart) >= rl.window {
		s.buckets[key] = &rateBucket{count: 1, windowStart: now}
		return true, 0
	}
	if b.count >= rl.max {
		return false, b.windowStart.Add(rl.window).Sub(now)
	}
	b.count++
	return true, 0
}

// sweep removes buckets whose window has long passed.
func (rl *routeRateLimiter) sweep() {
	now := time.Now()
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		for key, b := range s.buckets {
			if now.Sub(b.windowStart) >= 2*rl.window {
				delete(s.buckets, key)
			}
		}
		s.mu.Unlock()
	}
}

// limit wraps a handler with the per-(IP, route) attempt cap.
func (a *API) limit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := a.extractClientIP(r)
		if ok, retryAfter := a.rateLimiter.allow(clientIP, route); !ok {
			a.audit.logFailure(AuditLoginRateLimited, r, "rate limited",
				slog.String("client_ip", clientIP), slog.String("route", route))
			writeRateLimited(w, retryAfter)
			return
		}
		next(w, r)
	}
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, "too many requests; try again later")
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// ---------------------------------------------------------------------------
// Helper: extract client IP
// ---------------------------------------------------------------------------

// extractClientIP returns the client IP for rate limiting, honoring proxy
// headers only when the direct peer is a configured trusted proxy.
func (a *API) extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, a.trustedProxies)
}

// extractClientIPWithProxies returns the best-effort client IP address.
//
// Proxy headers (X-Forwarded-For, Forwarded, X-Real-IP) are only honored
// if trustedProxies is non-empty AND the request's RemoteAddr falls within
// one of the trusted CIDR ranges. This prevents untrusted clients from
// spoofing their source IP via headers.
//
// When trustedProxies is nil or empty (the default), proxy headers are
// never consulted and RemoteAddr is always returned.
//
// Priority when proxy headers are trusted:
// 1. First valid entry in X-Forwarded-For
// 2. First valid "for=" value in Forwarded
// 3. X-Real-IP
// 4. RemoteAddr
func extractClientIPWithProxies(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	proxyTrusted := false
	if len(trustedProxies) > 0 && remoteIP != "" {
		if addr, err := netip.ParseAddr(remoteIP); err == nil {
			for _, prefix := range trustedProxies {
				if prefix.Contains(addr) {
					proxyTrusted = true
					break
				}
			}
		}
	}

	if proxyTrusted {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip, ok := parseIPCandidate(part); ok {
					return ip
				}
			}
		}

		if fwd := strings.TrimSpace(r.Header.Get("Forwarded")); fwd != "" {
			for _, elem := range strings.Split(fwd, ",") {
				for _, param := range strings.Split(elem, ";") {
					param = strings.TrimSpace(param)
					if !strings.HasPrefix(strings.ToLower(param), "for=") {
						continue
					}
					raw := strings.TrimSpace(param[4:])
					if ip, ok := parseIPCandidate(raw); ok {
						return ip
					}
				}
			}
		}

		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			if ip, ok := parseIPCandidate(xrip); ok {
				return ip
			}
		}
	}

	if remoteIP != "" {
		return remoteIP
	}
	return ""
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"")
	if s == "" {
		return "", false
	}

	// RFC 7239 quoted IPv6 may appear as [::1]:1234.
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}

	// Remove IPv6 brackets if present.
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	// Drop zone if any (e.g. fe80::1%eth0).
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}

	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.String(), true
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip.String(), true
	}
	return "", false
}
