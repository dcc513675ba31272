package middleware

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/searchktools/fast-dispatch/core/http"
	"github.com/searchktools/fast-dispatch/logging"
)

// Request-scoped keys set by the common steps
const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-Id"
)

// RequestID tags each request with an id, reusing the client's
// X-Request-ID when present. The id is echoed in the response.
func RequestID() Step {
	var counter atomic.Uint64

	return func(req *http.Request) Outcome {
		id := req.Header(RequestIDHeader)
		if id == "" {
			id = strconv.FormatUint(counter.Add(1), 10)
		}

		req.Set(RequestIDKey, id)
		req.SetResponseHeader(RequestIDHeader, id)
		req.WithContext(logging.WithRequestID(req.Context(), id))
		return Next()
	}
}

// Logger attaches a request logger carrying method, path and remote address
// to the request context.
func Logger(base *zerolog.Logger) Step {
	if base == nil {
		base = logging.Default()
	}

	return func(req *http.Request) Outcome {
		parent := logging.FromContext(req.Context())
		if parent == logging.Default() {
			parent = base
		}

		l := parent.With().
			Str("method", req.Method.String()).
			Str("path", req.Path).
			Str("remote", req.RemoteAddr).
			Logger()
		req.WithContext(logging.WithLogger(req.Context(), &l))

		l.Debug().Msg("request received")
		return Next()
	}
}

// CORSConfig configures the CORS step
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// CORS adds CORS headers and answers preflight requests with 204.
func CORS(cfg CORSConfig) Step {
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	if len(cfg.AllowMethods) == 0 {
		cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = []string{"Content-Type", "Authorization"}
	}
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")

	allowed := func(origin string) string {
		for _, o := range cfg.AllowOrigins {
			if o == "*" {
				return "*"
			}
			if strings.EqualFold(o, origin) {
				return origin
			}
		}
		return ""
	}

	return func(req *http.Request) Outcome {
		origin := req.Header("Origin")
		if origin == "" {
			return Next()
		}
		allow := allowed(origin)
		if allow == "" {
			return Next()
		}

		req.SetResponseHeader("Access-Control-Allow-Origin", allow)
		if allow != "*" {
			req.SetResponseHeader("Vary", "Origin")
		}

		if req.Method == http.MethodOptions && req.Header("Access-Control-Request-Method") != "" {
			extra := []http.Header{
				{Name: "Access-Control-Allow-Methods", Value: methods},
				{Name: "Access-Control-Allow-Headers", Value: headers},
			}
			if cfg.MaxAge > 0 {
				extra = append(extra, http.Header{
					Name:  "Access-Control-Max-Age",
					Value: strconv.Itoa(int(cfg.MaxAge.Seconds())),
				})
			}
			return Invalid(http.WithHeaders(http.Status(204), extra...))
		}
		return Next()
	}
}

// RateLimitConfig configures the RateLimit step
type RateLimitConfig struct {
	// RPS is the sustained rate per key; defaults to 5
	RPS float64
	// Burst is the bucket size per key; defaults to 10
	Burst int
	// Key selects the bucket; defaults to the client IP
	Key func(req *http.Request) string
	// IdleTTL evicts buckets unused for this long; defaults to 10 minutes
	IdleTTL time.Duration
}

// RateLimit rejects requests over the per-key rate with a 429 JSON error
func RateLimit(cfg RateLimitConfig) Step {
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	pool := newLimiterPool(cfg)

	return func(req *http.Request) Outcome {
		if pool.allow(cfg.Key(req), time.Now()) {
			return Next()
		}
		return Invalid(http.WithHeaders(
			http.Error(429, "too many requests", http.ErrorJSON),
			http.Header{Name: "Retry-After", Value: "1"},
		))
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
}

func newLimiterPool(cfg RateLimitConfig) *limiterPool {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &limiterPool{
		m:     make(map[string]*limiterEntry),
		rps:   rate.Limit(rps),
		burst: burst,
		ttl:   ttl,
	}
}

func (p *limiterPool) allow(key string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastSweep) > p.ttl {
		for k, e := range p.m {
			if now.Sub(e.lastSeen) > p.ttl {
				delete(p.m, k)
			}
		}
		p.lastSweep = now
	}

	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// ClientIP returns the host part of the request's remote address
func ClientIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// RequireHeader short-circuits with status when the named header is absent
func RequireHeader(name string, status int) Step {
	return func(req *http.Request) Outcome {
		if req.Header(name) == "" {
			return InvalidEmpty(status)
		}
		return Next()
	}
}
