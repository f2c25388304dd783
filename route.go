package gateway

import (
	"fmt"
	"net/url"
	"strings"
)

// OperationRouter resolves (method, path) to a declared operation. Matching
// is exact on method and structural on the path template; the first matching
// template in document order wins.
type OperationRouter struct {
	routes []route
}

type route struct {
	method   string
	segments []segment
	op       *Operation
}

// segment is one "/"-separated piece of a template. A placeholder segment
// may carry a literal prefix and suffix, as in "{name}.json".
type segment struct {
	literal string
	param   string
	prefix  string
	suffix  string
}

func newOperationRouter(ops []*Operation) (*OperationRouter, error) {
	or := &OperationRouter{routes: make([]route, 0, len(ops))}
	for _, op := range ops {
		segs, err := parseTemplate(op.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op.Key(), err)
		}
		or.routes = append(or.routes, route{method: op.Method, segments: segs, op: op})
	}
	return or, nil
}

func parseTemplate(template string) ([]segment, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, fmt.Errorf("path template %q must start with /", template)
	}
	parts := splitPath(template)
	segs := make([]segment, len(parts))
	for i, part := range parts {
		open := strings.IndexByte(part, '{')
		if open < 0 {
			segs[i] = segment{literal: part}
			continue
		}
		closing := strings.IndexByte(part[open:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("unclosed placeholder in %q", template)
		}
		closing += open
		name := part[open+1 : closing]
		if name == "" || strings.ContainsAny(part[closing+1:], "{}") {
			return nil, fmt.Errorf("invalid placeholder in %q", template)
		}
		segs[i] = segment{param: name, prefix: part[:open], suffix: part[closing+1:]}
	}
	return segs, nil
}

// splitPath splits a path into segments, ignoring a trailing slash.
func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Match returns the first operation whose method and template match, and the
// unescaped placeholder values. It returns nil when nothing matches.
func (or *OperationRouter) Match(method, path string) (*Operation, map[string]string) {
	parts := splitPath(path)
	method = strings.ToUpper(method)

	for i := range or.routes {
		rt := &or.routes[i]
		if rt.method != method || len(rt.segments) != len(parts) {
			continue
		}
		if params, ok := rt.match(parts); ok {
			return rt.op, params
		}
	}
	return nil, nil
}

func (rt *route) match(parts []string) (map[string]string, bool) {
	var params map[string]string
	for i, seg := range rt.segments {
		part, err := url.PathUnescape(parts[i])
		if err != nil {
			return nil, false
		}
		if seg.param == "" {
			if part != seg.literal {
				return nil, false
			}
			continue
		}
		if len(seg.prefix)+len(seg.suffix) >= len(part) ||
			!strings.HasPrefix(part, seg.prefix) || !strings.HasSuffix(part, seg.suffix) {
			return nil, false
		}
		val := part[len(seg.prefix) : len(part)-len(seg.suffix)]
		if params == nil {
			params = make(map[string]string, len(rt.segments))
		}
		params[seg.param] = val
	}
	return params, true
}
