package gateway

// JSONSchema represents a JSON Schema object (subset used by OpenAPI 3).
type JSONSchema struct {
	Type        string                 `yaml:"type"`
	Format      string                 `yaml:"format"`
	Properties  map[string]*JSONSchema `yaml:"properties"`
	Items       *JSONSchema            `yaml:"items"`
	Required    []string               `yaml:"required"`
	Description string                 `yaml:"description"`
	Enum        []any                  `yaml:"enum"`
	Ref         string                 `yaml:"$ref"`
	Nullable    bool                   `yaml:"nullable"`
	Default     any                    `yaml:"default"`

	Minimum   *float64 `yaml:"minimum"`
	Maximum   *float64 `yaml:"maximum"`
	MinLength *int     `yaml:"minLength"`
	MaxLength *int     `yaml:"maxLength"`
	Pattern   string   `yaml:"pattern"`
	MinItems  *int     `yaml:"minItems"`
	MaxItems  *int     `yaml:"maxItems"`
}
