package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// SelfValidator is implemented by request types that validate themselves.
type SelfValidator interface {
	Validate() error
}

// Validator validates any request.
type Validator interface {
	Validate(req any) error
}

// validate checks the request against the matched operation: declared
// parameters first, then the body. The body is buffered on the
// RequestContext so handlers and incident reports can read it again.
func (g *Gateway) validate(_ *ResponseWriter, r *http.Request) error {
	rc := RequestContextFrom(r.Context())
	if rc.Operation == nil {
		return nil
	}
	if err := g.checkParams(r, rc.Operation); err != nil {
		return err
	}
	return g.checkBody(r, rc)
}

func (g *Gateway) checkParams(r *http.Request, op *Operation) error {
	query := r.URL.Query()
	for _, p := range op.Parameters {
		field := p.In + "." + p.Name
		raw := paramValues(r, query, p)
		if len(raw) == 0 {
			if p.Required || p.In == "path" {
				return Invalid(field, "is required")
			}
			continue
		}

		v, err := g.contract.coerceParam(p.Schema, raw)
		if err != nil {
			return Invalid(field, err.Error())
		}
		if f := g.contract.checkValue(p.Schema, v, field); f != nil {
			return f
		}
	}
	return nil
}

func paramValues(r *http.Request, query map[string][]string, p Parameter) []string {
	switch p.In {
	case "path":
		if v := r.PathValue(p.Name); v != "" {
			return []string{v}
		}
	case "query":
		return query[p.Name]
	case "header":
		return r.Header.Values(p.Name)
	case "cookie":
		if c, err := r.Cookie(p.Name); err == nil {
			return []string{c.Value}
		}
	}
	return nil
}

func (g *Gateway) checkBody(r *http.Request, rc *RequestContext) error {
	if r.Body != nil && r.Body != http.NoBody {
		body := r.Body
		if g.bodyLimit > 0 {
			body = http.MaxBytesReader(nil, r.Body, g.bodyLimit)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return Fail(NamePayloadTooLarge).Wrap(err)
			}
			return Fail(NameBadRequest).Wrap(err)
		}
		rc.body = data
		r.Body = io.NopCloser(bytes.NewReader(data))
	}

	op := rc.Operation
	if op.RequestBody == nil {
		return nil
	}
	if len(bytes.TrimSpace(rc.body)) == 0 {
		if op.RequestBody.Required {
			return Invalid("body", "is required")
		}
		return nil
	}

	schema := op.bodySchema()
	if schema == nil || !isJSON(r.Header.Get("Content-Type")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(rc.body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Invalid("body", "must be valid JSON").Wrap(err)
	}
	if f := g.contract.checkValue(schema, v, "body"); f != nil {
		return f
	}
	return nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, _ := strings.Cut(contentType, ";")
	mt = strings.TrimSpace(strings.ToLower(mt))
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
