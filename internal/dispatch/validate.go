package dispatch

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// validateArgs checks raw against the reflected argument schema: the value
// must be an object, unknown fields are rejected, required fields must be
// present and non-blank, and every field must have the declared JSON type.
// Errors name the offending field.
func validateArgs(s *jsonschema.Schema, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	return validateObject("", s, raw)
}

func validateObject(path string, s *jsonschema.Schema, raw json.RawMessage) error {
	var fields map[string]json.RawMessage
	if raw[0] != '{' || json.Unmarshal(raw, &fields) != nil {
		if path == "" {
			return invalidArguments("arguments must be a JSON object")
		}
		return invalidArguments("field %q must be an object", path)
	}

	for name, val := range fields {
		var prop *jsonschema.Schema
		var ok bool
		if s.Properties != nil {
			prop, ok = s.Properties.Get(name)
		}
		if !ok {
			if s.AdditionalProperties == jsonschema.FalseSchema {
				return invalidArguments("unknown field %q", join(path, name))
			}
			prop = s.AdditionalProperties
		}
		if prop == nil || isNull(val) {
			continue
		}
		if err := validateValue(join(path, name), prop, val); err != nil {
			return err
		}
	}

	for _, name := range s.Required {
		val, ok := fields[name]
		if !ok || isNull(val) {
			return invalidArguments("missing required field %q", join(path, name))
		}
		if val[0] == '"' {
			var str string
			if json.Unmarshal(val, &str) == nil && strings.TrimSpace(str) == "" {
				return invalidArguments("field %q must not be empty", join(path, name))
			}
		}
	}
	return nil
}

func validateValue(path string, s *jsonschema.Schema, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	got := jsonType(raw)
	switch s.Type {
	case "":
		return nil
	case "object":
		if got != "object" {
			return wrongType(path, s.Type, got)
		}
		if s.Properties != nil && s.Properties.Len() > 0 {
			return validateObject(path, s, raw)
		}
		if s.AdditionalProperties != nil && s.AdditionalProperties != jsonschema.FalseSchema && s.AdditionalProperties.Type != "" {
			var m map[string]json.RawMessage
			_ = json.Unmarshal(raw, &m)
			for k, v := range m {
				if err := validateValue(join(path, k), s.AdditionalProperties, v); err != nil {
					return err
				}
			}
		}
		return nil
	case "array":
		if got != "array" {
			return wrongType(path, s.Type, got)
		}
		if s.Items == nil {
			return nil
		}
		var items []json.RawMessage
		_ = json.Unmarshal(raw, &items)
		for i, it := range items {
			if err := validateValue(path+"["+strconv.Itoa(i)+"]", s.Items, it); err != nil {
				return err
			}
		}
		return nil
	case "integer":
		if got != "number" {
			return wrongType(path, s.Type, got)
		}
		f, _ := strconv.ParseFloat(string(raw), 64)
		if f != math.Trunc(f) {
			return invalidArguments("field %q must be an integer, got %s", path, raw)
		}
		return checkRange(path, s, f)
	case "number":
		if got != "number" {
			return wrongType(path, s.Type, got)
		}
		f, _ := strconv.ParseFloat(string(raw), 64)
		return checkRange(path, s, f)
	default:
		if got != s.Type {
			return wrongType(path, s.Type, got)
		}
		return nil
	}
}

func checkRange(path string, s *jsonschema.Schema, f float64) error {
	if s.Minimum != "" {
		if lo, err := s.Minimum.Float64(); err == nil && f < lo {
			return invalidArguments("field %q must be at least %s", path, s.Minimum)
		}
	}
	if s.Maximum != "" {
		if hi, err := s.Maximum.Float64(); err == nil && f > hi {
			return invalidArguments("field %q must be at most %s", path, s.Maximum)
		}
	}
	return nil
}

func jsonType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

func wrongType(path, want, got string) error {
	return invalidArguments("field %q must be of type %s, got %s", path, want, got)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
