package tool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs decodes LLM-supplied arguments into a typed parameter struct.
// Numeric values are converted loosely since JSON decoding produces float64
// for every number.
func DecodeArgs(args map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	return nil
}

// ValidateArgs checks LLM-supplied arguments against the definition's
// parameter schema: required parameters must be present and value kinds must
// match the declared type.
func ValidateArgs(def Definition, args map[string]interface{}) error {
	for _, p := range def.Parameters {
		value, present := args[p.Name]
		if !present {
			if p.Required {
				return &ValidationError{Tool: def.Name, Field: p.Name, Message: "required parameter missing"}
			}
			continue
		}
		if value == nil {
			continue
		}
		if !kindMatches(p.Type, value) {
			return &ValidationError{
				Tool:    def.Name,
				Field:   p.Name,
				Message: fmt.Sprintf("expected %s, got %T", p.Type, value),
			}
		}
	}
	return nil
}

func kindMatches(declared string, value interface{}) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		default:
			return false
		}
	case "float":
		switch value.(type) {
		case float32, float64, int, int64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	default:
		// Unknown declared types are not validated.
		return true
	}
}
