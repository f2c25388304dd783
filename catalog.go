package gateway

import (
	"maps"
	"net/http"
)

// Reserved classification names. NameNotFound and NameInternal always resolve,
// even when the contract declares no x-errors.
const (
	NameBadRequest      = "BadRequest"
	NameValidation      = "ValidationError"
	NameUnauthorized    = "Unauthorized"
	NameForbidden       = "Forbidden"
	NameNotFound        = "NotFound"
	NameConflict        = "Conflict"
	NamePayloadTooLarge = "PayloadTooLarge"
	NameTooManyRequests = "TooManyRequests"
	NameInternal        = "InternalServerError"
	NameTimeout         = "Timeout"
)

// DefaultMessage is used when neither the failure nor its entry has a message.
const DefaultMessage = "Internal server error"

// ErrorEntry is one row of an error table: the status and message a
// classification name resolves to, plus any extra payload fields.
type ErrorEntry struct {
	Status  int            `yaml:"status,omitempty" json:"status,omitempty"`
	Message string         `yaml:"message,omitempty" json:"message,omitempty"`
	Extra   map[string]any `yaml:",inline" json:"-"`
}

// ErrorTable maps classification names to entries. It is the Go form of an
// x-errors block.
type ErrorTable map[string]ErrorEntry

var defaultErrors = ErrorTable{
	NameBadRequest:      {Status: http.StatusBadRequest, Message: "Bad request"},
	NameValidation:      {Status: http.StatusBadRequest, Message: "Request validation failed"},
	NameUnauthorized:    {Status: http.StatusUnauthorized, Message: "Authentication required"},
	NameForbidden:       {Status: http.StatusForbidden, Message: "Access denied"},
	NameNotFound:        {Status: http.StatusNotFound, Message: "Resource not found"},
	NameConflict:        {Status: http.StatusConflict, Message: "Resource conflict"},
	NamePayloadTooLarge: {Status: http.StatusRequestEntityTooLarge, Message: "Request body too large"},
	NameTooManyRequests: {Status: http.StatusTooManyRequests, Message: "Too many requests"},
	NameInternal:        {Status: http.StatusInternalServerError, Message: DefaultMessage},
	NameTimeout:         {Status: http.StatusGatewayTimeout, Message: "Request timed out"},
}

// statusNames maps a status code to its canonical classification name.
var statusNames = map[int]string{
	http.StatusBadRequest:            NameBadRequest,
	http.StatusUnauthorized:          NameUnauthorized,
	http.StatusForbidden:             NameForbidden,
	http.StatusNotFound:              NameNotFound,
	http.StatusConflict:              NameConflict,
	http.StatusRequestEntityTooLarge: NamePayloadTooLarge,
	http.StatusTooManyRequests:       NameTooManyRequests,
	http.StatusInternalServerError:   NameInternal,
	http.StatusGatewayTimeout:        NameTimeout,
}

func nameForStatus(status int) string {
	return statusNames[status]
}

// DefaultErrors returns a copy of the built-in error table.
func DefaultErrors() ErrorTable {
	return MergeErrors(nil, defaultErrors)
}

// merge layers over atop e. Zero-valued fields of over keep e's value;
// extra fields are merged key by key.
func (e ErrorEntry) merge(over ErrorEntry) ErrorEntry {
	out := ErrorEntry{Status: e.Status, Message: e.Message, Extra: maps.Clone(e.Extra)}
	if over.Status != 0 {
		out.Status = over.Status
	}
	if over.Message != "" {
		out.Message = over.Message
	}
	if len(over.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(over.Extra))
		}
		maps.Copy(out.Extra, over.Extra)
	}
	return out
}

// MergeErrors returns a new table holding base with overrides layered on top.
// Neither input is modified.
func MergeErrors(base, overrides ErrorTable) ErrorTable {
	out := make(ErrorTable, len(base)+len(overrides))
	for name, e := range base {
		out[name] = ErrorEntry{}.merge(e)
	}
	for name, e := range overrides {
		out[name] = out[name].merge(e)
	}
	return out
}

// Catalog is the global error table: the built-in defaults with the
// contract's top-level x-errors layered on top. It is read-only after
// construction and safe for concurrent use.
type Catalog struct {
	entries ErrorTable
}

// NewCatalog builds a catalog from the defaults and the given overrides.
func NewCatalog(overrides ErrorTable) *Catalog {
	return &Catalog{entries: MergeErrors(defaultErrors, overrides)}
}

// Lookup returns a copy of the entry for name.
func (c *Catalog) Lookup(name string) (ErrorEntry, bool) {
	e, ok := c.entries[name]
	if !ok {
		return ErrorEntry{}, false
	}
	return ErrorEntry{}.merge(e), true
}

// Len returns the number of classification names the catalog resolves.
func (c *Catalog) Len() int { return len(c.entries) }
