package gateway

import (
	"encoding/json"
	"maps"
	"net/http"
)

// Payload is the client-facing error body:
//
//	{"name": ..., "message": ..., "status": ..., "field"?: ..., ...extra}
//
// A Payload is built fresh for every failure and not modified afterwards.
type Payload struct {
	Name    string
	Message string
	Status  int
	Field   string
	Extra   map[string]any
}

// Error returns the message, so a Payload can travel as an error.
func (p *Payload) Error() string { return p.Message }

// StatusCode returns the payload status.
func (p *Payload) StatusCode() int { return p.Status }

func (p *Payload) fields() map[string]any {
	m := make(map[string]any, len(p.Extra)+4)
	maps.Copy(m, p.Extra)
	m["name"] = p.Name
	m["message"] = p.Message
	m["status"] = p.Status
	if p.Field != "" {
		m["field"] = p.Field
	}
	return m
}

// MarshalJSON flattens extra fields next to the core ones. Core fields win
// on collision.
func (p *Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.fields())
}

// MarshalYAML flattens extra fields like MarshalJSON.
func (p *Payload) MarshalYAML() (any, error) {
	return p.fields(), nil
}

// UnmarshalJSON reads the core fields and keeps the rest as extras.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*p = Payload{}
	if v, ok := m["name"].(string); ok {
		p.Name = v
	}
	if v, ok := m["message"].(string); ok {
		p.Message = v
	}
	if v, ok := m["status"].(float64); ok {
		p.Status = int(v)
	}
	if v, ok := m["field"].(string); ok {
		p.Field = v
	}
	for _, k := range []string{"name", "message", "status", "field"} {
		delete(m, k)
	}
	if len(m) > 0 {
		p.Extra = m
	}
	return nil
}

// Resolution is the outcome of resolving one failure.
type Resolution struct {
	Payload *Payload

	// Key is the classification key for logs and metrics. It is the
	// operation-qualified name ({path}.{method}.{name}) when the local table
	// matched, and the plain name otherwise.
	Key string

	// Local reports whether the operation's own table matched.
	Local bool

	// Unclassified reports that the failure resolved to the generic server
	// error and should be reported as an incident.
	Unclassified bool

	// Failure is the normalized failure that was resolved.
	Failure *Failure
}

// Resolver turns raised failures into payloads with a three-tier lookup:
// operation-local table (only while processing), global catalog, then the
// generic server error. It is stateless and safe for concurrent use.
type Resolver struct {
	catalog *Catalog
}

// NewResolver returns a resolver over catalog.
func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve classifies raised against rc. raised may be a string, an error, a
// *Failure, or any panic value. Neither raised nor rc is modified, so
// resolving the same failure twice yields equal payloads.
func (rv *Resolver) Resolve(raised any, rc *RequestContext) Resolution {
	f := Normalize(raised)
	if f.Name == "" {
		f.Name = NameInternal
	}

	entry, key, local, ok := rv.lookup(f, rc)
	if !ok {
		f.Name = NameInternal
		key = NameInternal
		entry = ErrorEntry{}
	}

	p := &Payload{
		Name:    f.Name,
		Message: firstNonEmpty(f.Message, entry.Message, DefaultMessage),
		Status:  firstNonZero(f.Status, entry.Status, http.StatusInternalServerError),
		Field:   f.Field,
	}
	if len(entry.Extra) > 0 || len(f.Extra) > 0 {
		p.Extra = make(map[string]any, len(entry.Extra)+len(f.Extra))
		maps.Copy(p.Extra, entry.Extra)
		maps.Copy(p.Extra, f.Extra)
	}

	return Resolution{
		Payload:      p,
		Key:          key,
		Local:        local,
		Unclassified: f.Name == NameInternal,
		Failure:      f,
	}
}

func (rv *Resolver) lookup(f *Failure, rc *RequestContext) (entry ErrorEntry, key string, local, ok bool) {
	if rc != nil && rc.Processing && rc.Operation != nil {
		if e, found := rc.Operation.Errors[f.Name]; found {
			base, _ := rv.catalog.Lookup(f.Name)
			return base.merge(e), rc.Operation.QualifiedKey(f.Name), true, true
		}
	}
	e, found := rv.catalog.Lookup(f.Name)
	return e, f.Name, false, found
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
