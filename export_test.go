package gateway

import "net/http"

// Test-only exports for internal functions.
var (
	HasParamTags  = hasParamTags
	HasBodyField  = hasBodyField
	HasRawRequest = hasRawRequest
	Truncate      = truncate
	PruneNulls    = pruneNulls
)

// CheckValue exposes checkValue for external tests.
func (c *Contract) CheckValue(s *JSONSchema, v any, path string) *Failure {
	return c.checkValue(s, v, path)
}

// CoerceParam exposes coerceParam for external tests.
func (c *Contract) CoerceParam(s *JSONSchema, raw []string) (any, error) {
	return c.coerceParam(s, raw)
}

// NewIncident exposes newIncident for external tests.
func NewIncident(r *http.Request, rc *RequestContext, res Resolution) *Incident {
	return newIncident(r, rc, res)
}

// SetBody sets the buffered request body, as the validation stage does.
func (rc *RequestContext) SetBody(b []byte) { rc.body = b }
