package ast

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Identifiable is implemented by values that stand for a stored row, such as
// record entities. They are bound by their row id.
type Identifiable interface {
	ID() int64
}

// FormatArg converts a Go value into the form bound to a placeholder.
//
// Scalars become locale-independent strings, booleans become "1" or "0",
// byte slices pass through unchanged and nil (or a nil pointer) stays nil.
// Identifiable values are bound by id, with a zero id meaning NULL.
func FormatArg(value any) any {
	if value == nil {
		return nil
	}
	if b, ok := value.([]byte); ok {
		return b
	}
	if e, ok := value.(Identifiable); ok {
		v := reflect.ValueOf(value)
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil
		}
		if e.ID() == 0 {
			return nil
		}
		return strconv.FormatInt(e.ID(), 10)
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		if v.Bool() {
			return "1"
		}
		return "0"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Bytes()
		}
	}

	switch val := v.Interface().(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprintf("%v", v.Interface())
}

// FormatArgs applies FormatArg to every element.
func FormatArgs(values ...any) []any {
	if len(values) == 0 {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = FormatArg(v)
	}
	return out
}
