package flexconfig

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	jsonUnmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	timeDurationType    = reflect.TypeOf(time.Duration(0))
	treeType            = reflect.TypeOf(Tree{})
)

var errNoValue = errors.New("no value")

// As converts t to T, returning the zero value when t is missing or cannot be
// converted.
func As[T any](t Tree) T {
	v, _ := Convert[T](t)
	return v
}

// AsOr converts t to T, returning fallback when t is missing or cannot be
// converted.
func AsOr[T any](t Tree, fallback T) T {
	v, err := Convert[T](t)
	if err != nil {
		return fallback
	}
	return v
}

// Convert converts t to T. Scalars are parsed from the leaf value, slices and
// arrays from indexed children (0, 1, ... up to the first gap), maps from the
// immediate children, and structs through Bind.
func Convert[T any](t Tree) (T, error) {
	var out T
	target := reflect.ValueOf(&out).Elem()
	if err := convertInto(t, target); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func convertInto(t Tree, target reflect.Value) error {
	targetType := target.Type()
	switch {
	case targetType == treeType:
		target.Set(reflect.ValueOf(t))
		return nil
	case targetType.Kind() == reflect.Pointer:
		elem := reflect.New(targetType.Elem())
		if err := convertInto(t, elem.Elem()); err != nil {
			return err
		}
		target.Set(elem)
		return nil
	}

	if raw, ok := t.Value(); ok && (isScalarKind(targetType) || !t.IsBranch()) {
		v, err := decodePrimitive(raw, targetType)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(v).Convert(targetType))
		return nil
	}

	switch targetType.Kind() {
	case reflect.Slice:
		if targetType.Elem().Kind() == reflect.Uint8 {
			return errNoValue
		}
		n := t.Len()
		if n == 0 && !t.Exists() {
			return errNoValue
		}
		out := reflect.MakeSlice(targetType, n, n)
		for i := 0; i < n; i++ {
			if err := convertInto(t.Index(i), out.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		target.Set(out)
		return nil
	case reflect.Array:
		if !t.Exists() {
			return errNoValue
		}
		for i := 0; i < targetType.Len(); i++ {
			child, ok := t.LookupIndex(i)
			if !ok {
				break
			}
			if err := convertInto(child, target.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	case reflect.Map:
		if !t.Exists() {
			return errNoValue
		}
		out := reflect.MakeMapWithSize(targetType, len(t.Keys()))
		for _, child := range t.Children() {
			key, err := decodePrimitive(child.Key(), targetType.Key())
			if err != nil {
				return fmt.Errorf("key %q: %w", child.Key(), err)
			}
			val := reflect.New(targetType.Elem()).Elem()
			if err := convertInto(child, val); err != nil {
				return fmt.Errorf("key %q: %w", child.Key(), err)
			}
			out.SetMapIndex(reflect.ValueOf(key).Convert(targetType.Key()), val)
		}
		target.Set(out)
		return nil
	case reflect.Struct:
		if !t.Exists() {
			return errNoValue
		}
		return t.bindValue(target)
	}
	return errNoValue
}

func isScalarKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	case reflect.Array, reflect.Map, reflect.Struct, reflect.Interface:
		return reflect.PointerTo(t).Implements(textUnmarshalerType)
	default:
		return true
	}
}

func decodeJSON(raw string, targetType reflect.Type) (any, error) {
	holder := reflect.New(targetType)
	if err := json.Unmarshal([]byte(raw), holder.Interface()); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return holder.Elem().Interface(), nil
}

func decodeTextFormat(raw string, targetType reflect.Type) (any, error) {
	dest := reflect.New(targetType)
	if err := dest.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw)); err != nil {
		return nil, fmt.Errorf("text decode: %w", err)
	}
	return dest.Elem().Interface(), nil
}

func decodePrimitive(raw string, targetType reflect.Type) (any, error) {
	if targetType != timeDurationType && reflect.PointerTo(targetType).Implements(textUnmarshalerType) {
		return decodeTextFormat(raw, targetType)
	}
	switch targetType.Kind() {
	case reflect.String:
		return raw, nil
	case reflect.Bool:
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse bool: %w", err)
		}
		return v, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if targetType == timeDurationType {
			d, err := parseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("parse duration: %w", err)
			}
			return d, nil
		}
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, targetType.Bits())
		if err != nil {
			return nil, fmt.Errorf("parse int: %w", err)
		}
		return reflect.ValueOf(v).Convert(targetType).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, targetType.Bits())
		if err != nil {
			return nil, fmt.Errorf("parse uint: %w", err)
		}
		return reflect.ValueOf(v).Convert(targetType).Interface(), nil
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), targetType.Bits())
		if err != nil {
			return nil, fmt.Errorf("parse float: %w", err)
		}
		return reflect.ValueOf(v).Convert(targetType).Interface(), nil
	case reflect.Slice:
		if targetType.Elem().Kind() == reflect.Uint8 {
			return []byte(raw), nil
		}
		return decodeJSON(raw, targetType)
	case reflect.Struct, reflect.Array, reflect.Map, reflect.Interface:
		if reflect.PointerTo(targetType).Implements(jsonUnmarshalerType) || isStructuredJSON(raw) || targetType.Kind() == reflect.Interface {
			if targetType.Kind() == reflect.Interface {
				return raw, nil
			}
			return decodeJSON(raw, targetType)
		}
		return nil, fmt.Errorf("cannot convert %q to %s", raw, targetType)
	default:
		return nil, fmt.Errorf("unsupported target type %s", targetType)
	}
}

// parseDuration accepts Go duration syntax ("1m30s") as well as the
// "[-][d.]hh:mm:ss[.fraction]" form used by .NET TimeSpan values.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if !strings.Contains(raw, ":") {
		// A bare integer is a number of days in TimeSpan syntax.
		days, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	neg := strings.HasPrefix(raw, "-")
	rest := strings.TrimPrefix(raw, "-")

	var days int64
	if dot := strings.Index(rest, "."); dot >= 0 && dot < strings.Index(rest, ":") {
		d, err := strconv.ParseInt(rest[:dot], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		days = d
		rest = rest[dot+1:]
	}
	var fraction string
	if dot := strings.LastIndex(rest, "."); dot >= 0 {
		fraction = rest[dot+1:]
		rest = rest[:dot]
	}
	parts := strings.Split(rest, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	limits := []int64{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	total := time.Duration(days) * 24 * time.Hour
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		total += time.Duration(n) * units[i]
	}
	if fraction != "" {
		if len(fraction) > 9 {
			fraction = fraction[:9]
		}
		n, err := strconv.ParseInt(fraction, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		for i := len(fraction); i < 9; i++ {
			n *= 10
		}
		total += time.Duration(n)
	}
	if neg {
		total = -total
	}
	return total, nil
}
