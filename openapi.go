package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Contract is a parsed OpenAPI document. It is loaded once at startup and
// read-only afterwards.
type Contract struct {
	OpenAPI    string                `yaml:"openapi"`
	Info       Info                  `yaml:"info"`
	Paths      Paths                 `yaml:"paths"`
	Security   []SecurityRequirement `yaml:"security"`
	Components Components            `yaml:"components"`
	Errors     ErrorTable            `yaml:"x-errors"`

	document   map[string]any
	operations []*Operation
	byID       map[string]*Operation
	routes     *OperationRouter
}

// Info holds API metadata.
type Info struct {
	Title       string `yaml:"title"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// Components holds reusable schemas and security schemes.
type Components struct {
	Schemas         map[string]*JSONSchema    `yaml:"schemas"`
	SecuritySchemes map[string]SecurityScheme `yaml:"securitySchemes"`
}

// SecurityScheme describes a named security scheme.
type SecurityScheme struct {
	Type         string `yaml:"type"`
	Scheme       string `yaml:"scheme"`
	BearerFormat string `yaml:"bearerFormat"`
	Name         string `yaml:"name"`
	In           string `yaml:"in"`
	Description  string `yaml:"description"`
}

// SecurityRequirement maps scheme names to required scopes. All schemes in
// one requirement must pass; an empty requirement allows anonymous access.
type SecurityRequirement map[string][]string

// Paths is the ordered list of path templates in document order.
type Paths []PathEntry

// PathEntry is one path template and its operations.
type PathEntry struct {
	Template string
	Item     PathItem
}

// UnmarshalYAML keeps path templates in document order, which decides
// matching precedence.
func (p *Paths) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("paths: expected mapping, got %s", nodeKind(node))
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		template := node.Content[i].Value
		var item PathItem
		if err := node.Content[i+1].Decode(&item); err != nil {
			return fmt.Errorf("path %s: %w", template, err)
		}
		*p = append(*p, PathEntry{Template: template, Item: item})
	}
	return nil
}

// PathItem maps HTTP methods to operations.
type PathItem struct {
	Parameters []Parameter `yaml:"parameters"`
	Get        *Operation  `yaml:"get"`
	Put        *Operation  `yaml:"put"`
	Post       *Operation  `yaml:"post"`
	Delete     *Operation  `yaml:"delete"`
	Patch      *Operation  `yaml:"patch"`
	Head       *Operation  `yaml:"head"`
	Options    *Operation  `yaml:"options"`
}

func (pi *PathItem) methods() []struct {
	method string
	op     *Operation
} {
	return []struct {
		method string
		op     *Operation
	}{
		{http.MethodGet, pi.Get},
		{http.MethodPut, pi.Put},
		{http.MethodPost, pi.Post},
		{http.MethodDelete, pi.Delete},
		{http.MethodPatch, pi.Patch},
		{http.MethodHead, pi.Head},
		{http.MethodOptions, pi.Options},
	}
}

// Operation describes a single declared (path, method) endpoint.
type Operation struct {
	OperationID string                 `yaml:"operationId"`
	Summary     string                 `yaml:"summary"`
	Description string                 `yaml:"description"`
	Tags        []string               `yaml:"tags"`
	Parameters  []Parameter            `yaml:"parameters"`
	RequestBody *RequestBody           `yaml:"requestBody"`
	Responses   map[string]ResponseObj `yaml:"responses"`
	Security    *[]SecurityRequirement `yaml:"security"`
	Deprecated  bool                   `yaml:"deprecated"`

	// Errors is the operation-local error table. Entries are layered atop the
	// global catalog and only consulted while the handler is processing.
	Errors ErrorTable `yaml:"x-errors"`

	// Timeout bounds the operation when the Timeout middleware is in use.
	Timeout time.Duration `yaml:"x-timeout"`

	Path   string `yaml:"-"`
	Method string `yaml:"-"`
}

// Parameter describes a single operation parameter.
type Parameter struct {
	Name        string      `yaml:"name"`
	In          string      `yaml:"in"`
	Description string      `yaml:"description"`
	Required    bool        `yaml:"required"`
	Schema      *JSONSchema `yaml:"schema"`
}

// RequestBody describes the request body.
type RequestBody struct {
	Required bool                `yaml:"required"`
	Content  map[string]MediaObj `yaml:"content"`
}

// MediaObj is a media type object with an optional schema.
type MediaObj struct {
	Schema *JSONSchema `yaml:"schema"`
}

// ResponseObj describes a single response.
type ResponseObj struct {
	Description string              `yaml:"description"`
	Content     map[string]MediaObj `yaml:"content"`
}

// Key returns "METHOD /template".
func (op *Operation) Key() string { return op.Method + " " + op.Path }

// QualifiedKey returns the operation-qualified classification key for a
// locally resolved error name: {path}.{method}.{name}.
func (op *Operation) QualifiedKey(name string) string {
	return op.Path + "." + strings.ToLower(op.Method) + "." + name
}

// SuccessStatus returns the lowest declared 2xx status, or 200.
func (op *Operation) SuccessStatus() int {
	best := 0
	for code := range op.Responses {
		n, err := strconv.Atoi(code)
		if err != nil || n < 200 || n > 299 {
			continue
		}
		if best == 0 || n < best {
			best = n
		}
	}
	if best == 0 {
		return http.StatusOK
	}
	return best
}

// DeclaresStatus reports whether the operation documents the given status,
// either exactly, through a range like "2XX", or through "default".
func (op *Operation) DeclaresStatus(status int) bool {
	if len(op.Responses) == 0 {
		return true
	}
	code := strconv.Itoa(status)
	if _, ok := op.Responses[code]; ok {
		return true
	}
	if _, ok := op.Responses[code[:1]+"XX"]; ok {
		return true
	}
	_, ok := op.Responses["default"]
	return ok
}

// EffectiveSecurity returns the operation's requirements, or the global ones
// when the operation declares none.
func (op *Operation) EffectiveSecurity(global []SecurityRequirement) []SecurityRequirement {
	if op.Security != nil {
		return *op.Security
	}
	return global
}

// bodySchema returns the JSON schema of the request body, if declared.
func (op *Operation) bodySchema() *JSONSchema {
	if op.RequestBody == nil {
		return nil
	}
	for _, ct := range []string{"application/json", "application/*+json", "*/*"} {
		if m, ok := op.RequestBody.Content[ct]; ok {
			return m.Schema
		}
	}
	for ct, m := range op.RequestBody.Content {
		if strings.HasSuffix(ct, "+json") {
			return m.Schema
		}
	}
	return nil
}

// Errors returned when loading a contract.
var (
	ErrDuplicateOperation = errors.New("duplicate operationId")
	ErrInvalidContract    = errors.New("invalid contract")
)

// LoadContract reads an OpenAPI document (YAML or JSON) from path. Overlays
// are deep-merged onto it in order before decoding; they carry definitions
// computed at startup, such as server URLs or extra x-errors.
func LoadContract(path string, overlays ...[]byte) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading contract: %w", err)
	}
	c, err := ParseContract(data, overlays...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseContract parses an OpenAPI document and applies overlays.
func ParseContract(data []byte, overlays ...[]byte) (*Contract, error) {
	root, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	for i, o := range overlays {
		overlay, err := parseDocument(o)
		if err != nil {
			return nil, fmt.Errorf("overlay %d: %w", i, err)
		}
		mergeNodes(root, overlay)
	}

	c := &Contract{}
	if err := root.Decode(c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContract, err)
	}
	if err := root.Decode(&c.document); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContract, err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseDocument(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContract, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidContract)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping, got %s", ErrInvalidContract, nodeKind(root))
	}
	return root, nil
}

// mergeNodes deep-merges overlay into base. Mappings merge key by key;
// anything else in overlay replaces the base value. New keys are appended,
// so document order is preserved.
func mergeNodes(base, overlay *yaml.Node) {
	for i := 0; i+1 < len(overlay.Content); i += 2 {
		key, val := overlay.Content[i], overlay.Content[i+1]
		found := false
		for j := 0; j+1 < len(base.Content); j += 2 {
			if base.Content[j].Value != key.Value {
				continue
			}
			found = true
			if base.Content[j+1].Kind == yaml.MappingNode && val.Kind == yaml.MappingNode {
				mergeNodes(base.Content[j+1], val)
			} else {
				base.Content[j+1] = val
			}
			break
		}
		if !found {
			base.Content = append(base.Content, key, val)
		}
	}
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}

// index fills operation paths and methods, merges path-level parameters,
// and builds the route table.
func (c *Contract) index() error {
	c.byID = make(map[string]*Operation)
	for i := range c.Paths {
		entry := &c.Paths[i]
		for _, m := range entry.Item.methods() {
			if m.op == nil {
				continue
			}
			op := m.op
			op.Path = entry.Template
			op.Method = m.method
			op.Parameters = mergeParameters(entry.Item.Parameters, op.Parameters)
			if op.OperationID != "" {
				if prev, ok := c.byID[op.OperationID]; ok {
					return fmt.Errorf("%w %q: %s and %s", ErrDuplicateOperation, op.OperationID, prev.Key(), op.Key())
				}
				c.byID[op.OperationID] = op
			}
			c.operations = append(c.operations, op)
		}
	}

	routes, err := newOperationRouter(c.operations)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidContract, err)
	}
	c.routes = routes
	return nil
}

// mergeParameters returns path-level parameters overridden by
// operation-level ones with the same (name, in).
func mergeParameters(pathLevel, opLevel []Parameter) []Parameter {
	if len(pathLevel) == 0 {
		return opLevel
	}
	out := make([]Parameter, 0, len(pathLevel)+len(opLevel))
	for _, p := range pathLevel {
		overridden := false
		for _, o := range opLevel {
			if o.Name == p.Name && o.In == p.In {
				overridden = true
				break
			}
		}
		if !overridden {
			out = append(out, p)
		}
	}
	return append(out, opLevel...)
}

// Version returns info.version.
func (c *Contract) Version() string { return c.Info.Version }

// Operations returns all operations in document order.
func (c *Contract) Operations() []*Operation { return c.operations }

// Operation finds an operation by operationId or by "METHOD /template".
func (c *Contract) Operation(ref string) (*Operation, bool) {
	if op, ok := c.byID[ref]; ok {
		return op, true
	}
	for _, op := range c.operations {
		if op.Key() == ref {
			return op, true
		}
	}
	return nil, false
}

// Match resolves a request method and path to a declared operation.
func (c *Contract) Match(method, path string) (*Operation, map[string]string) {
	return c.routes.Match(method, path)
}

// Document returns the merged document as generic data, for serving.
func (c *Contract) Document() map[string]any { return c.document }

// SchemeNames returns the declared security scheme names, sorted.
func (c *Contract) SchemeNames() []string {
	names := make([]string, 0, len(c.Components.SecuritySchemes))
	for name := range c.Components.SecuritySchemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve follows a local $ref (#/components/schemas/Name).
func (c *Contract) resolve(s *JSONSchema) *JSONSchema {
	for depth := 0; s != nil && s.Ref != "" && depth < 32; depth++ {
		name, ok := strings.CutPrefix(s.Ref, "#/components/schemas/")
		if !ok {
			return s
		}
		s = c.Components.Schemas[name]
	}
	return s
}
