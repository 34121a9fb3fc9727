package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"groupdecide/pkg/logger"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins lists exact origins, "*" or "https://*.example.com"
	// style wildcard subdomains. Empty allows any origin.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns a default CORS configuration
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"If-None-Match",
			UserIDHeader,
			RequestIDHeader,
		},
		ExposedHeaders: []string{
			"ETag",
			"Retry-After",
			RequestIDHeader,
		},
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}
}

// originMatcher answers whether a request origin may read responses
type originMatcher struct {
	any      bool
	exact    map[string]bool
	suffixes []string // "https://" + ".example.com" pairs for wildcards
	schemes  []string
}

func newOriginMatcher(origins []string) *originMatcher {
	m := &originMatcher{any: len(origins) == 0, exact: make(map[string]bool)}
	for _, origin := range origins {
		switch {
		case origin == "*":
			m.any = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*")
			m.schemes = append(m.schemes, scheme+"://")
			m.suffixes = append(m.suffixes, host)
		default:
			m.exact[strings.TrimSuffix(origin, "/")] = true
		}
	}
	return m
}

func (m *originMatcher) allows(origin string) bool {
	if m.any || m.exact[origin] {
		return true
	}
	for i, suffix := range m.suffixes {
		if strings.HasPrefix(origin, m.schemes[i]) && strings.HasSuffix(origin, suffix) &&
			len(origin) > len(m.schemes[i])+len(suffix) {
			return true
		}
	}
	return false
}

// CORS creates a CORS middleware. Allowed origins are echoed back rather than
// answered with "*" so credentialed requests keep working.
func CORS(config *CORSConfig, logger *logger.Logger) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCORSConfig()
	}

	matcher := newOriginMatcher(config.AllowedOrigins)
	allowedMethods := strings.Join(config.AllowedMethods, ", ")
	allowedHeaders := strings.Join(config.AllowedHeaders, ", ")
	exposedHeaders := strings.Join(config.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			header := w.Header()
			header.Add("Vary", "Origin")

			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !matcher.allows(origin) {
				logger.WithFields(map[string]interface{}{
					"origin": origin,
					"method": r.Method,
					"path":   r.URL.Path,
				}).Debug("CORS origin rejected")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			header.Set("Access-Control-Allow-Origin", origin)
			if config.AllowCredentials {
				header.Set("Access-Control-Allow-Credentials", "true")
			}
			if exposedHeaders != "" {
				header.Set("Access-Control-Expose-Headers", exposedHeaders)
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowedMethods != "" {
					header.Set("Access-Control-Allow-Methods", allowedMethods)
				}
				if allowedHeaders != "" {
					header.Set("Access-Control-Allow-Headers", allowedHeaders)
				}
				if config.MaxAge > 0 {
					header.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
