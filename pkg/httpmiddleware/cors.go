package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const corsMethods = "GET, POST, PATCH, DELETE, OPTIONS"

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists trusted origins. Empty or "*" trusts every origin.
	AllowOrigins []string
	// AllowHeaders lists accepted request headers. When empty, the headers
	// a preflight asks for are accepted.
	AllowHeaders []string
	// AllowCredentials lets browsers send cookies and auth headers. A
	// wildcard policy then answers with the caller's origin.
	AllowCredentials bool
	// MaxAge is how long browsers may cache a preflight answer.
	MaxAge time.Duration
}

type corsPolicy struct {
	any     bool
	origins map[string]string
	headers string
	creds   bool
	maxAge  string
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	p := corsPolicy{
		any:     len(cfg.AllowOrigins) == 0,
		origins: make(map[string]string, len(cfg.AllowOrigins)),
		headers: strings.Join(cfg.AllowHeaders, ", "),
		creds:   cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.any = true
		}
		p.origins[strings.ToLower(o)] = o
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(cfg.MaxAge / time.Second))
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when origin is not trusted. Configured origins keep their spelling.
func (p corsPolicy) allowOrigin(origin string) string {
	switch {
	case p.any && p.creds:
		return origin
	case p.any:
		return "*"
	}
	return p.origins[strings.ToLower(origin)]
}

// varies reports whether the answer depends on the Origin header.
func (p corsPolicy) varies() bool {
	return !p.any || p.creds
}

func (p corsPolicy) preflight(w http.ResponseWriter, r *http.Request, allow string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")
	if allow != "" {
		h.Set("Access-Control-Allow-Origin", allow)
		h.Set("Access-Control-Allow-Methods", corsMethods)
		headers := p.headers
		if headers == "" {
			headers = r.Header.Get("Access-Control-Request-Headers")
		}
		if headers != "" {
			h.Set("Access-Control-Allow-Headers", headers)
		}
		if p.creds {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// CORS answers preflight requests with 204 and decorates the responses of
// trusted origins. Untrusted origins get no CORS headers. The request id
// header is always readable by scripts.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if p.varies() {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allow := p.allowOrigin(origin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, allow)
				return
			}

			h := w.Header()
			if p.varies() {
				h.Add("Vary", "Origin")
			}
			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
				if p.creds {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
