package gateway

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin handling.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. "*" permits any. Default: "*".
	AllowOrigins []string

	// AllowHeaders lists request headers a preflight may ask for.
	// Default: Content-Type, Authorization and the request ID header.
	AllowHeaders []string

	ExposeHeaders    []string
	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight may be cached.
	MaxAge int
}

// preflightMethods are the methods a preflight may be answered for.
var preflightMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost,
	http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// CORS returns middleware that answers preflight requests and sets CORS
// headers on actual requests. Allowed methods for a preflight are the ones
// the contract declares for the requested path, so undeclared methods are
// never advertised. A preflight for a path the contract does not know
// proceeds to the pipeline and fails as NotFound.
func (g *Gateway) CORS(cfg CORSConfig) Middleware {
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = []string{"Content-Type", "Authorization", g.idHeader}
	}
	anyOrigin := slices.Contains(cfg.AllowOrigins, "*")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	expose := strings.Join(cfg.ExposeHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
			if !anyOrigin && !slices.Contains(cfg.AllowOrigins, origin) {
				next.ServeHTTP(w, r)
				return
			}

			allowed := origin
			if anyOrigin && !cfg.AllowCredentials {
				allowed = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				if expose != "" {
					w.Header().Set("Access-Control-Expose-Headers", expose)
				}
				next.ServeHTTP(w, r)
				return
			}

			methods := g.declaredMethods(r.URL.EscapedPath())
			if len(methods) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", headers)
			if cfg.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// declaredMethods returns the methods the contract declares for path.
func (g *Gateway) declaredMethods(path string) []string {
	var out []string
	for _, m := range preflightMethods {
		if op, _ := g.contract.Match(m, path); op != nil {
			out = append(out, m)
		}
	}
	return out
}
