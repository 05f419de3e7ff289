// Package ratelimit throttles credential endpoints with fixed windows in Redis.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/autoescola/internal/http/response"
	"github.com/diagnosis/autoescola/pkg/logger"
)

// Counter increments a key within a window and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	rdb redis.Cmdable
}

func NewRedisCounter(rdb redis.Cmdable) Counter {
	return &redisCounter{rdb: rdb}
}

func (c *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rate limit incr: %w", err)
	}
	return incr.Val(), nil
}

type Config struct {
	Requests int
	Window   time.Duration
	// TrustedProxies are the peers whose X-Forwarded-For is believed by the
	// default KeyFunc.
	TrustedProxies []netip.Prefix
	// KeyFunc returns the identities to count. Every key must stay under
	// the limit.
	KeyFunc func(r *http.Request) []string
}

type Limiter struct {
	counter Counter
	config  Config
}

func New(counter Counter, config Config) *Limiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKey(config.TrustedProxies)
	}
	return &Limiter{counter: counter, config: config}
}

// Middleware rejects requests over the limit with 429. Counter failures let
// the request through.
func (l *Limiter) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, key := range l.config.KeyFunc(r) {
				count, err := l.counter.Incr(r.Context(), hashKey(scope, key), l.config.Window)
				if err != nil {
					logger.WarnContext(r.Context(), "Rate limiter unavailable", "error", err, "scope", scope)
					break
				}
				if count > int64(l.config.Requests) {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(l.config.Window.Seconds())))
					response.RateLimit(w, "Muitas tentativas. Tente novamente em instantes.")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hashKey(scope, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("ratelimit:%s:%x", scope, sum)
}

// ParseTrustedProxies accepts bare addresses and CIDR prefixes.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// ClientIPKey keys by the caller's address. Forwarding headers are only
// read when the connecting peer is one of the trusted proxies.
func ClientIPKey(trusted []netip.Prefix) func(r *http.Request) []string {
	return func(r *http.Request) []string {
		if ip := ClientIP(r, trusted); ip != "" {
			return []string{"ip:" + ip}
		}
		return nil
	}
}

// ClientIP walks X-Forwarded-For from the right and returns the first hop
// that is not a trusted proxy.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !isTrusted(peer, trusted) {
		return peer.String()
	}

	hops := forwardedHops(r.Header)
	if len(hops) == 0 {
		if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return xri.Unmap().String()
		}
		return peer.String()
	}

	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(hops[i])
		if err != nil {
			break
		}
		client = hop.Unmap()
		if !isTrusted(client, trusted) {
			break
		}
	}
	return client.String()
}

func peerAddr(remote string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func forwardedHops(h http.Header) []string {
	var hops []string
	for _, value := range h.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(value, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
