package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	qjsonschema "github.com/qri-io/jsonschema"
)

// ReflectSchema derives an object schema from the Go type of v. Fields
// without omitempty are required and unknown properties are rejected.
func ReflectSchema(v interface{}) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(v)
	s.Version = ""
	s.ID = ""
	return s
}

// MarshalSchema renders a schema for the wire
func MarshalSchema(s *jsonschema.Schema) (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// Validator checks argument objects against a compiled JSON schema
type Validator struct {
	schema *qjsonschema.Schema
}

// ParseSchema compiles a JSON schema document. An empty document yields a
// validator accepting any object.
func ParseSchema(raw json.RawMessage) (*Validator, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	s := &qjsonschema.Schema{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// ValidationError lists every violation found in a value
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// ValidateArguments checks decoded JSON arguments against v. A nil
// argument map is validated as an empty object.
func ValidateArguments(ctx context.Context, v *Validator, args map[string]interface{}) error {
	if v == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	keyErrs, err := v.schema.ValidateBytes(ctx, data)
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if len(keyErrs) == 0 {
		return nil
	}
	problems := make([]string, 0, len(keyErrs))
	for _, ke := range keyErrs {
		path := ke.PropertyPath
		if path == "" || path == "/" {
			path = "arguments"
		} else {
			path = "arguments" + strings.ReplaceAll(path, "/", ".")
		}
		problems = append(problems, path+": "+ke.Message)
	}
	return &ValidationError{Problems: problems}
}
