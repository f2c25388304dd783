package gateway

import (
	"net/http"
	"strconv"
)

// SecureHeadersConfig configures the SecureHeaders middleware. Empty string
// fields are not sent.
type SecureHeadersConfig struct {
	ContentTypeOptions string // X-Content-Type-Options
	FrameOptions       string // X-Frame-Options
	ReferrerPolicy     string // Referrer-Policy
	ContentSecurity    string // Content-Security-Policy

	// HSTSMaxAge enables Strict-Transport-Security when positive. It is only
	// sent on TLS requests.
	HSTSMaxAge int
}

// DefaultSecureHeaders returns the configuration SecureHeaders uses when
// given none.
func DefaultSecureHeaders() SecureHeadersConfig {
	return SecureHeadersConfig{
		ContentTypeOptions: "nosniff",
		FrameOptions:       "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}
}

// SecureHeaders returns middleware that sets security response headers on
// every response, error payloads included.
func SecureHeaders(cfg ...SecureHeadersConfig) Middleware {
	c := DefaultSecureHeaders()
	if len(cfg) > 0 {
		c = cfg[0]
	}

	static := map[string]string{
		"X-Content-Type-Options":  c.ContentTypeOptions,
		"X-Frame-Options":         c.FrameOptions,
		"Referrer-Policy":         c.ReferrerPolicy,
		"Content-Security-Policy": c.ContentSecurity,
	}
	for k, v := range static {
		if v == "" {
			delete(static, k)
		}
	}
	hsts := ""
	if c.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(c.HSTSMaxAge) + "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range static {
				h.Set(k, v)
			}
			if hsts != "" && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}
