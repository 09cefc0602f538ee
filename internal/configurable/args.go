// Package configurable implements named operations whose typed arguments are persisted as strings
// and coerced at evaluation time.
package configurable

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hanko-field/orderengine/internal/domain"
)

// ArgType is the declared type of a configuration argument.
type ArgType string

const (
	ArgTypeInt        ArgType = "int"
	ArgTypeMoney      ArgType = "money"
	ArgTypeFloat      ArgType = "float"
	ArgTypePercentage ArgType = "percentage"
	ArgTypeBoolean    ArgType = "boolean"
	ArgTypeDateTime   ArgType = "datetime"
	ArgTypeString     ArgType = "string"
	ArgTypeID         ArgType = "ID"
)

// Kind identifies which field of a Value is populated.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

func (t ArgType) kind() Kind {
	switch t {
	case ArgTypeInt, ArgTypeMoney:
		return KindInt
	case ArgTypeFloat, ArgTypePercentage:
		return KindFloat
	case ArgTypeBoolean:
		return KindBool
	case ArgTypeDateTime:
		return KindTime
	case ArgTypeString, ArgTypeID:
		return KindString
	default:
		return KindInvalid
	}
}

// ArgDefinition declares one expected argument of an operation.
type ArgDefinition struct {
	Name string
	Type ArgType
}

// Definition describes a registered operation and the arguments it accepts.
type Definition struct {
	Code        string
	Description string
	Args        []ArgDefinition
}

func (d Definition) lookup(name string) (ArgDefinition, bool) {
	for _, arg := range d.Args {
		if arg.Name == name {
			return arg, true
		}
	}
	return ArgDefinition{}, false
}

// Value is a coerced argument. Exactly one payload field is meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Type   ArgType
	Int    int64
	Float  float64
	Bool   bool
	Time   time.Time
	String string
}

// ErrUnknownArg is wrapped by ArgCoercionError when a stored argument has no definition.
var ErrUnknownArg = errors.New("configurable: unknown argument")

// ErrMissingArg is wrapped by ArgCoercionError when a getter asks for an argument that was not stored.
var ErrMissingArg = errors.New("configurable: missing argument")

// ErrKindMismatch is wrapped by ArgCoercionError when a getter asks for the wrong kind.
var ErrKindMismatch = errors.New("configurable: kind mismatch")

// ArgCoercionError reports a stored argument that could not be turned into its declared type.
type ArgCoercionError struct {
	Code  string
	Arg   string
	Type  ArgType
	Value string
	Err   error
}

func (e *ArgCoercionError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("configurable: operation %q argument %q", e.Code, e.Arg)
	if e.Type != "" {
		msg += fmt.Sprintf(" (%s)", e.Type)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" value %q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArgCoercionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// CoerceValue converts a raw string into the declared type.
func CoerceValue(argType ArgType, raw string) (Value, error) {
	value := Value{Kind: argType.kind(), Type: argType}
	trimmed := strings.TrimSpace(raw)
	switch value.Kind {
	case KindInt:
		parsed, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return Value{}, err
		}
		value.Int = parsed
	case KindFloat:
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return Value{}, err
		}
		value.Float = parsed
	case KindBool:
		value.Bool = truthy(trimmed)
	case KindTime:
		parsed, err := parseDate(trimmed)
		if err != nil {
			return Value{}, err
		}
		value.Time = parsed
	case KindString:
		value.String = raw
	default:
		return Value{}, fmt.Errorf("unsupported argument type %q", argType)
	}
	return value, nil
}

// truthy keeps the non-empty-string rule but honours the literals strconv understands, so a stored
// "false" or "0" is not read as true.
func truthy(raw string) bool {
	if raw == "" {
		return false
	}
	if parsed, err := strconv.ParseBool(raw); err == nil {
		return parsed
	}
	return true
}

func parseDate(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// CoerceArgs coerces every stored argument of op against the definition.
func CoerceArgs(def Definition, op domain.ConfigurableOperation) (Args, error) {
	args := Args{code: op.Code, values: make(map[string]Value, len(op.Args))}
	for _, stored := range op.Args {
		argDef, ok := def.lookup(stored.Name)
		if !ok {
			return Args{}, &ArgCoercionError{Code: op.Code, Arg: stored.Name, Value: stored.Value, Err: ErrUnknownArg}
		}
		value, err := CoerceValue(argDef.Type, stored.Value)
		if err != nil {
			return Args{}, &ArgCoercionError{Code: op.Code, Arg: stored.Name, Type: argDef.Type, Value: stored.Value, Err: err}
		}
		args.values[stored.Name] = value
	}
	return args, nil
}

// Coerce looks up the definition for op.Code and coerces its arguments.
func Coerce(definitions map[string][]ArgDefinition, op domain.ConfigurableOperation) (Args, error) {
	defs, ok := definitions[op.Code]
	if !ok {
		return Args{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op.Code)
	}
	return CoerceArgs(Definition{Code: op.Code, Args: defs}, op)
}

// Args holds coerced arguments keyed by name.
type Args struct {
	code   string
	values map[string]Value
}

// NewArgs builds Args directly from values; mostly useful to operations invoked outside a registry.
func NewArgs(code string, values map[string]Value) Args {
	copied := make(map[string]Value, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Args{code: code, values: copied}
}

// Has reports whether the argument was stored.
func (a Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Len returns the number of coerced arguments.
func (a Args) Len() int {
	return len(a.values)
}

// Value returns the raw coerced value.
func (a Args) Value(name string) (Value, bool) {
	v, ok := a.values[name]
	return v, ok
}

func (a Args) get(name string, kind Kind) (Value, error) {
	v, ok := a.values[name]
	if !ok {
		return Value{}, &ArgCoercionError{Code: a.code, Arg: name, Err: ErrMissingArg}
	}
	if v.Kind != kind {
		return Value{}, &ArgCoercionError{
			Code: a.code,
			Arg:  name,
			Type: v.Type,
			Err:  fmt.Errorf("%w: have %s, want %s", ErrKindMismatch, v.Kind, kind),
		}
	}
	return v, nil
}

// Int returns an int or money argument.
func (a Args) Int(name string) (int64, error) {
	v, err := a.get(name, KindInt)
	return v.Int, err
}

// Float returns a float or percentage argument.
func (a Args) Float(name string) (float64, error) {
	v, err := a.get(name, KindFloat)
	return v.Float, err
}

// Bool returns a boolean argument.
func (a Args) Bool(name string) (bool, error) {
	v, err := a.get(name, KindBool)
	return v.Bool, err
}

// Time returns a datetime argument.
func (a Args) Time(name string) (time.Time, error) {
	v, err := a.get(name, KindTime)
	return v.Time, err
}

// String returns a string or ID argument.
func (a Args) String(name string) (string, error) {
	v, err := a.get(name, KindString)
	return v.String, err
}

// BoolOr returns the boolean argument, or fallback when it was not stored.
func (a Args) BoolOr(name string, fallback bool) (bool, error) {
	if !a.Has(name) {
		return fallback, nil
	}
	return a.Bool(name)
}

// IntOr returns the int argument, or fallback when it was not stored.
func (a Args) IntOr(name string, fallback int64) (int64, error) {
	if !a.Has(name) {
		return fallback, nil
	}
	return a.Int(name)
}

// StringList splits a comma separated string argument, dropping blanks.
func (a Args) StringList(name string) ([]string, error) {
	raw, err := a.String(name)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}
