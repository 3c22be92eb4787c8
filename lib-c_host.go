package ctrlffi

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Arg is one positional value handed to Call.
type Arg interface {
	Value() any
}

// Assignable is an Arg that accepts the value read back after a call.
// Args without it (literals) are passed in but never written to.
type Assignable interface {
	Arg
	Assign(v any)
}

// Var is an assignable host variable.
type Var struct {
	V any
}

// Value - the current host value
func (v *Var) Value() any   { return v.V }
// Assign - stores the value read back after a call
func (v *Var) Assign(x any) { v.V = x }

type literal struct{ v any }

func (l literal) Value() any { return l.v }

// Lit wraps a value that must not receive write-back.
func Lit(v any) Arg { return literal{v} }

// Vars wraps each value as an assignable *Var.
func Vars(values ...any) []Arg {
	args := make([]Arg, len(values))
	for i, v := range values {
		args[i] = &Var{V: v}
	}
	return args
}

// WriteBack is the outcome of copying a native value into a host target.
type WriteBack int

const (
	Written WriteBack = iota
	SkippedNotAssignable
	SkippedNoValue
)

// isNilArg reports a missing target: a nil Arg or a nil *Var.
func isNilArg(a Arg) bool {
	if a == nil {
		return true
	}
	v, ok := a.(*Var)
	return ok && v == nil
}

func writeBack(target Arg, v any, ok bool) WriteBack {
	if !ok {
		return SkippedNoValue
	}
	if isNilArg(target) {
		return SkippedNotAssignable
	}
	a, assignable := target.(Assignable)
	if !assignable {
		return SkippedNotAssignable
	}
	a.Assign(v)
	return Written
}

// toInt64 converts a host value into the signed host family.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uintptr:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(s, 0, 64); err == nil {
			return int64(u), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), nil
		}
		return 0, newError(InvalidArgument, "convert", "cannot convert string %q to integer", n)
	}
	if b, ok := basic(v); ok {
		return toInt64(b)
	}
	return 0, newError(InvalidArgument, "convert", "cannot convert %T to integer", v)
}

// toUint64 converts a host value into the unsigned host family.
// Negative values wrap, as an unsigned C conversion would.
func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint:
		return uint64(n), nil
	case uint64:
		return n, nil
	case uintptr:
		return uint64(n), nil
	case float32:
		return floatToUint64(float64(n)), nil
	case float64:
		return floatToUint64(n), nil
	case string:
		s := strings.TrimSpace(n)
		if u, err := strconv.ParseUint(s, 0, 64); err == nil {
			return u, nil
		}
	default:
		if b, ok := basic(v); ok {
			return toUint64(b)
		}
	}
	i, err := toInt64(v)
	return uint64(i), err
}

func floatToUint64(f float64) uint64 {
	if f < 0 {
		return uint64(int64(f))
	}
	if f >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(f)
}

// toFloat64 converts a host value into the floating host family.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case uintptr:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, newError(InvalidArgument, "convert", "cannot convert string %q to float", n)
		}
		return f, nil
	default:
		if b, ok := basic(v); ok {
			return toFloat64(b)
		}
	}
	i, err := toInt64(v)
	return float64(i), err
}

// basic unwraps named numeric, bool and string types (TypeID, custom enums)
// to their underlying builtin type.
func basic(v any) (any, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), rv.Type() != reflect.TypeOf(int64(0))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), rv.Type() != reflect.TypeOf(uint64(0))
	case reflect.Float32, reflect.Float64:
		return rv.Float(), rv.Type() != reflect.TypeOf(float64(0))
	case reflect.Bool:
		return rv.Bool(), rv.Type() != reflect.TypeOf(false)
	case reflect.String:
		return rv.String(), rv.Type() != reflect.TypeOf("")
	}
	return nil, false
}

// toText converts a host value into text.
func toText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprintf("%v", v)
}
