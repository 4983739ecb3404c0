package middleware

import (
	"net/http"
	"strings"
)

// CORSConfig holds CORS settings. The same origin list gates websocket
// upgrades. An entry may be "*", an exact origin, or a subdomain pattern
// such as "https://*.example.com".
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" mapstructure:"allow_credentials"`
}

// CORS sets CORS headers and answers OPTIONS preflight requests.
func CORS(cfg *CORSConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			setCORSHeaders(w.Header(), r.Header.Get("Origin"), cfg)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AllowsOrigin reports whether a browser origin may connect. An empty
// origin (non-browser client) is always allowed.
func (cfg *CORSConfig) AllowsOrigin(origin string) bool {
	return origin == "" || isAllowedOrigin(origin, cfg.AllowedOrigins)
}

func setCORSHeaders(h http.Header, origin string, cfg *CORSConfig) {
	if origin == "" || !isAllowedOrigin(origin, cfg.AllowedOrigins) {
		return
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
	if len(cfg.AllowedMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
	}
	if len(cfg.AllowedHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
	}
	if cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

func isAllowedOrigin(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || origin == a || matchSubdomain(origin, a) {
			return true
		}
	}
	return false
}

// matchSubdomain matches "scheme://*.host" against "scheme://sub.host". The
// bare host itself does not match.
func matchSubdomain(origin, pattern string) bool {
	scheme, host, ok := strings.Cut(pattern, "://*.")
	if !ok {
		return false
	}
	prefix := scheme + "://"
	if !strings.HasPrefix(origin, prefix) {
		return false
	}
	sub := strings.TrimPrefix(origin, prefix)
	return strings.HasSuffix(sub, "."+host) && len(sub) > len(host)+1
}
