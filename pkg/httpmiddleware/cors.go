package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowMethods defaults to the methods the API routes use.
	AllowMethods []string
	// AllowHeaders defaults to echoing Access-Control-Request-Headers.
	AllowHeaders  []string
	ExposeHeaders []string
	// AllowCredentials forces the request origin to be echoed instead of "*".
	AllowCredentials bool
	// MaxAge in seconds for preflight caching. Zero omits the header.
	MaxAge int
}

var defaultCORSMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

type cors struct {
	cfg     CORSConfig
	any     bool
	origins map[string]string // lowercase to configured spelling
	methods string
	headers string
	exposed string
	maxAge  string
}

// CORS answers preflight requests and decorates cross-origin responses.
func CORS(cfg CORSConfig) Middleware {
	c := &cors{
		cfg:     cfg,
		any:     len(cfg.AllowOrigins) == 0,
		origins: make(map[string]string, len(cfg.AllowOrigins)),
		headers: strings.Join(cfg.AllowHeaders, ", "),
		exposed: strings.Join(cfg.ExposeHeaders, ", "),
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.any = true
			continue
		}
		c.origins[strings.ToLower(o)] = o
	}
	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	c.methods = strings.Join(methods, ", ")
	switch {
	case cfg.MaxAge > 0:
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		c.maxAge = "0"
	}

	return c.wrap
}

// allowOrigin returns the Access-Control-Allow-Origin value or "".
func (c *cors) allowOrigin(origin string) string {
	if c.any {
		if c.cfg.AllowCredentials {
			return origin
		}
		return "*"
	}
	return c.origins[strings.ToLower(origin)]
}

func (c *cors) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		origin := r.Header.Get("Origin")
		if origin == "" {
			h.Add("Vary", "Origin")
			next.ServeHTTP(w, r)
			return
		}
		allowed := c.allowOrigin(origin)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Allow-Methods", c.methods)
				if c.headers != "" {
					h.Set("Access-Control-Allow-Headers", c.headers)
				} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
					h.Set("Access-Control-Allow-Headers", req)
				}
				if c.cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if c.maxAge != "" {
					h.Set("Access-Control-Max-Age", c.maxAge)
				}
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h.Add("Vary", "Origin")
		if allowed != "" {
			h.Set("Access-Control-Allow-Origin", allowed)
			if c.cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if c.exposed != "" {
				h.Set("Access-Control-Expose-Headers", c.exposed)
			}
		}
		next.ServeHTTP(w, r)
	})
}
