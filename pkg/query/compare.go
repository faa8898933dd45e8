package query

import (
	"encoding/json"
	"reflect"
)

// ToFloat64 converts various numeric types to float64 for comparison
func ToFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Equal reports deep structural equality. Numbers compare by value whatever
// their Go type, so 27, int64(27) and 27.0 are equal; documents decoded from a
// journal or snapshot therefore still match queries written with Go literals.
func Equal(a, b interface{}) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}

	if fa, ok := ToFloat64(a); ok {
		fb, ok := ToFloat64(b)
		return ok && fa == fb
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ra.Kind() {
	case reflect.Map:
		return mapsEqual(ra, rb)
	case reflect.Slice, reflect.Array:
		return slicesEqual(ra, rb)
	}

	return reflect.DeepEqual(a, b)
}

func mapsEqual(ra, rb reflect.Value) bool {
	if rb.Kind() != reflect.Map || ra.Len() != rb.Len() {
		return false
	}
	if ra.Type().Key().Kind() != reflect.String || rb.Type().Key().Kind() != reflect.String {
		return reflect.DeepEqual(ra.Interface(), rb.Interface())
	}

	keyType := rb.Type().Key()
	iter := ra.MapRange()
	for iter.Next() {
		other := rb.MapIndex(reflect.ValueOf(iter.Key().String()).Convert(keyType))
		if !other.IsValid() {
			return false
		}
		if !Equal(iter.Value().Interface(), other.Interface()) {
			return false
		}
	}
	return true
}

func slicesEqual(ra, rb reflect.Value) bool {
	if (rb.Kind() != reflect.Slice && rb.Kind() != reflect.Array) || ra.Len() != rb.Len() {
		return false
	}
	for i := 0; i < ra.Len(); i++ {
		if !Equal(ra.Index(i).Interface(), rb.Index(i).Interface()) {
			return false
		}
	}
	return true
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// order compares two values that are both numbers or both text.
// ok is false when the comparison is undefined.
func order(actual, expected interface{}) (cmp int, ok bool) {
	if fa, isNum := ToFloat64(actual); isNum {
		fb, isNum := ToFloat64(expected)
		if !isNum {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	sa, isStr := actual.(string)
	if !isStr {
		return 0, false
	}
	sb, isStr := expected.(string)
	if !isStr {
		return 0, false
	}
	switch {
	case sa < sb:
		return -1, true
	case sa > sb:
		return 1, true
	}
	return 0, true
}
