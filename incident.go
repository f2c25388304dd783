package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IncidentPayloadLimit caps the serialized request payload in an incident,
// in characters.
const IncidentPayloadLimit = 1000

// Incident is the record persisted for an unclassified failure in production.
type Incident struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id,omitempty"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Status    int       `json:"status"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Stack     string    `json:"stack"`
	Headers   string    `json:"headers"`
	Payload   string    `json:"payload"`
	User      string    `json:"user,omitempty"`
}

// Reporter persists incidents. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, inc *Incident) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, inc *Incident) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, inc *Incident) error { return f(ctx, inc) }

// LogReporter returns a Reporter that writes incidents to logger at Error level.
func LogReporter(logger *slog.Logger) Reporter {
	return ReporterFunc(func(ctx context.Context, inc *Incident) error {
		logger.ErrorContext(ctx, inc.Name,
			"incident_id", inc.ID,
			"key", inc.Key,
			"method", inc.Method,
			"url", inc.URL,
			"stack", inc.Stack,
			"headers", inc.Headers,
			"payload", inc.Payload,
			"user", inc.User,
			"request_id", inc.RequestID,
		)
		return nil
	})
}

// redactedHeaders are replaced before headers are serialized into an incident.
var redactedHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"proxy-authorization": true,
}

func newIncident(r *http.Request, rc *RequestContext, res Resolution) *Incident {
	inc := &Incident{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Name:    res.Payload.Name,
		Key:     res.Key,
		Status:  res.Payload.Status,
		Method:  r.Method,
		URL:     r.URL.RequestURI(),
		Stack:   incidentStack(res.Failure),
		Headers: indentJSON(flattenHeaders(r.Header)),
		Payload: truncate(indentJSON(requestPayload(r, rc)), IncidentPayloadLimit),
	}
	if rc != nil {
		inc.RequestID = rc.RequestID
		if rc.Principal != nil {
			inc.User = indentJSON(rc.Principal)
		}
	}
	return inc
}

// incidentStack prefers the recovered stack, then the message, then the name.
func incidentStack(f *Failure) string {
	switch {
	case len(f.stack) > 0:
		return string(f.stack)
	case f.Message != "":
		return f.Message
	default:
		return f.Name
	}
}

// requestPayload is the query for read and delete style methods and the
// body otherwise.
func requestPayload(r *http.Request, rc *RequestContext) any {
	if r.Method == http.MethodGet || r.Method == http.MethodDelete {
		return flattenValues(r.URL.Query())
	}
	if rc == nil || len(rc.body) == 0 {
		return nil
	}
	var body any
	if err := json.Unmarshal(rc.body, &body); err != nil {
		return string(rc.body)
	}
	return body
}

func flattenValues(v url.Values) map[string]any {
	out := make(map[string]any, len(v))
	for k, vals := range v {
		if len(vals) == 1 {
			out[k] = vals[0]
		} else {
			out[k] = vals
		}
	}
	return out
}

func flattenHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k, vals := range h {
		key := strings.ToLower(k)
		if redactedHeaders[key] {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = strings.Join(vals, ", ")
	}
	return out
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
