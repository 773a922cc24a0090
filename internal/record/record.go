// Package record holds flat relational rows keyed by column alias and the helpers used to
// overlay them without letting unset columns clobber values from an earlier layer.
package record

import (
	"math"
	"reflect"
)

// Record is one flat row as returned by pgx.RowToMap.
type Record map[string]any

// Compact returns a copy of r holding only the entries whose value is set. Nil, false,
// zero numbers, NaN, empty strings and nil pointers, slices or maps count as unset. Empty
// but non-nil slices and maps are kept.
func Compact(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if IsSet(v) {
			out[k] = v
		}
	}
	return out
}

// Merge overlays each record onto a fresh copy of base; later records win on conflict.
func Merge(base Record, overlays ...Record) Record {
	n := len(base)
	for _, o := range overlays {
		n += len(o)
	}
	out := make(Record, n)
	for k, v := range base {
		out[k] = v
	}
	for _, o := range overlays {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// IsSet reports whether v carries a meaningful value.
func IsSet(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return IsSet(rv.Elem().Interface())
	case reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}

// Int64 reads an integer-valued column regardless of the width pgx decoded it to.
func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case int16:
		return int64(v), true
	case float64:
		return int64(v), v == math.Trunc(v)
	default:
		return 0, false
	}
}
