package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Span locates a directive inside the model output it was extracted from.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Call is a capability invocation parsed from model output.
//
// ParseErr is set when the directive was recognized but its argument payload
// could not be recovered; the dispatcher turns such calls into error results
// without resolving the capability.
type Call struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Method      string `json:"method,omitempty"`
	Args        Args   `json:"args,omitempty"`
	TurnOrdinal int    `json:"turn_ordinal"`
	Source      string `json:"source"`
	Span        Span   `json:"span"`
	ParseErr    error  `json:"-"`
}

// Result is the outcome of executing a Call. Terminate ends the current
// monologue once the iteration completes; Data is opaque to the kernel.
type Result struct {
	Message   string         `json:"message"`
	Terminate bool           `json:"terminate,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// ErrorResult builds an error-flagged result with a formatted message.
func ErrorResult(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...), IsError: true}
}

// Args is the generic argument bag carried by a Call.
type Args map[string]any

// Has reports whether key is present.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the value at key rendered as a string. Non-string scalars
// are formatted; missing keys yield "".
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// Int returns the value at key as an int, or def when absent or not numeric.
func (a Args) Int(key string, def int) int {
	switch t := a[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}

// Float returns the value at key as a float64, or def.
func (a Args) Float(key string, def float64) float64 {
	switch t := a[key].(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns the value at key as a bool, or def.
func (a Args) Bool(key string, def bool) bool {
	switch t := a[key].(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

// Decode converts the bag into a typed struct through its JSON form.
func (a Args) Decode(into any) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

// ParamType is the coarse JSON type a capability expects for a parameter.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeNumber ParamType = "number"
	TypeBool   ParamType = "boolean"
	TypeObject ParamType = "object"
	TypeArray  ParamType = "array"
	TypeAny    ParamType = ""
)

// Param declares one argument of a capability.
type Param struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type,omitempty" yaml:"type,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate checks args against params. Unknown keys are allowed.
func Validate(params []Param, args Args) error {
	for _, p := range params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		if !matchesType(p.Type, v) {
			return fmt.Errorf("argument %q must be %s", p.Name, p.Type)
		}
	}
	return nil
}

func matchesType(t ParamType, v any) bool {
	switch t {
	case TypeAny:
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}
