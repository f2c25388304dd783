package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// checkValue validates v against s and returns the first violation as a
// validation failure naming path. Values come from JSON decoding (numbers as
// json.Number) or from coerceParam.
func (c *Contract) checkValue(s *JSONSchema, v any, path string) *Failure {
	s = c.resolve(s)
	if s == nil {
		return nil
	}

	if v == nil {
		if s.Nullable || s.Type == "" || s.Type == "null" {
			return nil
		}
		return Invalid(path, "must not be null")
	}

	if s.Type != "" && !matchesType(s.Type, v) {
		return Invalid(path, "must be of type "+s.Type)
	}

	if len(s.Enum) > 0 && !inEnum(s.Enum, v) {
		return Invalid(path, fmt.Sprintf("must be one of %s", enumString(s.Enum)))
	}

	switch val := v.(type) {
	case string:
		n := utf8.RuneCountInString(val)
		if s.MinLength != nil && n < *s.MinLength {
			return Invalid(path, fmt.Sprintf("must be at least %d characters", *s.MinLength))
		}
		if s.MaxLength != nil && n > *s.MaxLength {
			return Invalid(path, fmt.Sprintf("must be at most %d characters", *s.MaxLength))
		}
		if s.Pattern != "" {
			if matched, err := regexp.MatchString(s.Pattern, val); err == nil && !matched {
				return Invalid(path, "must match pattern "+s.Pattern)
			}
		}

	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return Invalid(path, "must be a number")
		}
		if s.Minimum != nil && f < *s.Minimum {
			return Invalid(path, "must be at least "+formatFloat(*s.Minimum))
		}
		if s.Maximum != nil && f > *s.Maximum {
			return Invalid(path, "must be at most "+formatFloat(*s.Maximum))
		}

	case []any:
		if s.MinItems != nil && len(val) < *s.MinItems {
			return Invalid(path, fmt.Sprintf("must have at least %d items", *s.MinItems))
		}
		if s.MaxItems != nil && len(val) > *s.MaxItems {
			return Invalid(path, fmt.Sprintf("must have at most %d items", *s.MaxItems))
		}
		for i, item := range val {
			if f := c.checkValue(s.Items, item, path+"["+strconv.Itoa(i)+"]"); f != nil {
				return f
			}
		}

	case map[string]any:
		for _, name := range s.Required {
			if _, ok := val[name]; !ok {
				return Invalid(joinPath(path, name), "is required")
			}
		}
		names := make([]string, 0, len(s.Properties))
		for name := range s.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pv, ok := val[name]
			if !ok {
				continue
			}
			if f := c.checkValue(s.Properties[name], pv, joinPath(path, name)); f != nil {
				return f
			}
		}
	}

	return nil
}

// isIntegral reports whether n has no fractional part, so 1.0 and 1e2 count
// as integers.
func isIntegral(n json.Number) bool {
	if _, err := n.Int64(); err == nil {
		return true
	}
	f, err := n.Float64()
	return err == nil && !math.IsInf(f, 0) && f == math.Trunc(f)
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := v.(json.Number)
		return ok
	case "integer":
		n, ok := v.(json.Number)
		if !ok {
			return false
		}
		return isIntegral(n)
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

func inEnum(enum []any, v any) bool {
	s := fmt.Sprint(v)
	return slices.ContainsFunc(enum, func(e any) bool {
		return fmt.Sprint(e) == s
	})
}

func enumString(enum []any) string {
	parts := make([]string, len(enum))
	for i, e := range enum {
		parts[i] = fmt.Sprint(e)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// coerceParam converts raw parameter text into the value shape checkValue
// expects for the schema's type. Arrays take each raw value, or split a
// single comma-separated value.
func (c *Contract) coerceParam(s *JSONSchema, raw []string) (any, error) {
	s = c.resolve(s)
	if s == nil || len(raw) == 0 {
		if len(raw) == 0 {
			return nil, nil
		}
		return raw[0], nil
	}

	if s.Type == "array" {
		values := raw
		if len(raw) == 1 {
			values = strings.Split(raw[0], ",")
		}
		out := make([]any, len(values))
		for i, r := range values {
			v, err := coerceScalar(c.resolve(s.Items), r)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	return coerceScalar(s, raw[0])
}

func coerceScalar(s *JSONSchema, raw string) (any, error) {
	if s == nil {
		return raw, nil
	}
	switch s.Type {
	case "integer":
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("must be an integer")
		}
		return json.Number(raw), nil
	case "number":
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return json.Number(raw), nil
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("must be a boolean")
		}
		return b, nil
	default:
		return raw, nil
	}
}
