package mw

import (
	"context"
	"dexarb/internal/config"
	"dexarb/internal/security"
	rdb "dexarb/internal/stores/redis"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"
)

const defaultBucketTTL = 2 * time.Minute

// RateLimitMiddleware applies two token buckets: per client IP and per JWT subject
type RateLimitMiddleware struct {
	Cfg      *config.RateLimitConfig
	Rdb      *rdb.Client
	Verifier *security.RS256Verifier // optional, used when auth runs after the limiter
}

func NewRateLimit(cfg *config.RateLimitConfig, rdb *rdb.Client, verifier *security.RS256Verifier) *RateLimitMiddleware {
	if cfg == nil {
		panic("rate limit config cannot be nil")
	}
	if rdb == nil {
		panic("redis client cannot be nil")
	}

	if cfg.ByJWT.TTL == 0 {
		cfg.ByJWT.TTL = defaultBucketTTL
	}
	if cfg.ByIP.TTL == 0 {
		cfg.ByIP.TTL = defaultBucketTTL
	}

	return &RateLimitMiddleware{Cfg: cfg, Rdb: rdb, Verifier: verifier}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now()

		ip := extractClientIP(r, m.Cfg.TrustedProxiesList)
		okIP, leftIP := m.allow(ctx, "rl:ip:"+ip, now, m.Cfg.ByIP)
		w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(m.Cfg.ByIP.Burst))
		w.Header().Set("X-RateLimit-Remaining-IP", strconv.FormatInt(leftIP, 10))

		okJWT := true
		if sub := m.subject(r); sub != "" {
			var leftJWT int64
			okJWT, leftJWT = m.allow(ctx, "rl:jwt:"+sub, now, m.Cfg.ByJWT)
			w.Header().Set("X-RateLimit-Limit-JWT", strconv.Itoa(m.Cfg.ByJWT.Burst))
			w.Header().Set("X-RateLimit-Remaining-JWT", strconv.FormatInt(leftJWT, 10))
		}

		if !okIP || !okJWT {
			w.Header().Set("Retry-After", strconv.Itoa(m.calculateRetryAfter(okIP, okJWT)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) subject(r *http.Request) string {
	if sub := subjectFromContext(r); sub != "" {
		return sub
	}
	if m.Verifier == nil {
		return ""
	}

	cl, err := m.Verifier.VerifyBearer(r.Header.Get("Authorization"))
	if err != nil {
		return ""
	}
	if rc, ok := cl.(*jwt.RegisteredClaims); ok {
		return rc.Subject
	}
	return ""
}

// calculateRetryAfter returns whole seconds until the slowest exhausted bucket gets a token
func (m *RateLimitMiddleware) calculateRetryAfter(okIP, okJWT bool) int {
	wait := 0.0
	if !okIP && m.Cfg.ByIP.RefillPerSec > 0 {
		wait = math.Max(wait, 1/float64(m.Cfg.ByIP.RefillPerSec))
	}
	if !okJWT && m.Cfg.ByJWT.RefillPerSec > 0 {
		wait = math.Max(wait, 1/float64(m.Cfg.ByJWT.RefillPerSec))
	}

	secs := int(math.Ceil(wait))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func subjectFromContext(r *http.Request) string {
	if v := r.Context().Value(claimsCtxKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// --- redis token-bucket (Lua), one round trip and atomic ---
var luaTokenBucket = goredis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec
-- ARGV[3] = burst
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return {allowed, math.floor(tokens)}
`)

// allow fails open: a redis outage must not take the API down
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucket) (bool, int64) {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = int(defaultBucketTTL.Seconds())
	}

	res, err := luaTokenBucket.Run(ctx, m.Rdb, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Int64Slice()
	if err != nil || len(res) < 2 {
		return true, int64(b.Burst)
	}

	return res[0] == 1, res[1]
}

// extractClientIP trusts forwarding headers only when the peer is a trusted proxy,
// an empty list means every peer is a proxy
func extractClientIP(r *http.Request, trusted []string) string {
	peer := remoteAddrIP(r.RemoteAddr)
	if len(trusted) > 0 && !isTrusted(peer, trusted) {
		return peer
	}

	if chain := parseXFF(r.Header.Get("X-Forwarded-For")); len(chain) > 0 {
		for _, ip := range chain {
			if isPublicIP(ip) {
				return ip
			}
		}
		return chain[0]
	}

	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xrip) != nil {
		return xrip
	}

	return peer
}

func parseXFF(xff string) []string {
	out := []string{}
	for _, part := range strings.Split(xff, ",") {
		ip := strings.TrimSpace(part)
		if net.ParseIP(ip) != nil {
			out = append(out, ip)
		}
	}
	return out
}

func remoteAddrIP(addr string) string {
	addr = strings.TrimSpace(addr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if net.ParseIP(host) == nil {
		return "unknown"
	}
	return host
}

func isTrusted(ip string, trusted []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, t := range trusted {
		if strings.Contains(t, "/") {
			if _, cidr, err := net.ParseCIDR(t); err == nil && cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if other := net.ParseIP(t); other != nil && other.Equal(parsed) {
			return true
		}
	}
	return false
}

func isPublicIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !parsed.IsPrivate() &&
		!parsed.IsLoopback() &&
		!parsed.IsLinkLocalUnicast() &&
		!parsed.IsLinkLocalMulticast() &&
		!parsed.IsUnspecified() &&
		!parsed.IsMulticast()
}
