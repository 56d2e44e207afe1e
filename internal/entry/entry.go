// Package entry implements the bidirectional codec between an application
// value and the flat field->string map a Redis-compatible stream accepts
// on XADD and returns from XRANGE/XREADGROUP/XAUTOCLAIM.
package entry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/redisreactor/reactor/internal/reactorerr"
)

// Entry marks a type as opted into the generic flat-map codec. Types must
// implement it explicitly; there is no blanket codec for every
// serializable type, since a type's on-wire flat representation can be
// lossy (see DESIGN.md Open Question #1).
type Entry interface {
	IsReactorEntry()
}

// Field is one name/value pair of an encoded entry, used where callers
// need a deterministic, sorted-by-name ordering (e.g. XADD argument
// construction, reproducible tests).
type Field struct {
	Name  string
	Value string
}

// Encode converts v into a field->string map suitable for XADD.
func Encode[E Entry](v E) (map[string]string, error) {
	fields, err := EncodeOrdered(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Value
	}
	return out, nil
}

// EncodeOrdered converts v into a deterministic, name-sorted list of
// fields. Null leaves (nil pointers/interfaces/maps/slices) are omitted;
// bool and numeric leaves are rendered in canonical textual form; string
// leaves are copied verbatim; struct/map/slice/array leaves are
// JSON-encoded.
func EncodeOrdered[E Entry](v E) ([]Field, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("entry: Encode: nil %s", rv.Type())
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entry: Encode requires a struct-like value, got %s", rv.Kind())
	}
	rt := rv.Type()

	fields := make([]Field, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" {
			continue // unexported
		}
		name, omitempty := jsonTag(sf)
		if name == "-" {
			continue
		}
		fv := rv.Field(i)
		s, null, err := encodeValue(fv)
		if err != nil {
			return nil, fmt.Errorf("entry: encode field %q: %w", name, err)
		}
		if null {
			continue
		}
		if omitempty && fv.IsZero() {
			continue
		}
		fields = append(fields, Field{Name: name, Value: s})
	}

	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields, nil
}

func encodeValue(fv reflect.Value) (value string, isNull bool, err error) {
	switch fv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if fv.IsNil() {
			return "", true, nil
		}
		return encodeValue(fv.Elem())
	case reflect.String:
		return fv.String(), false, nil
	case reflect.Bool:
		return strconv.FormatBool(fv.Bool()), false, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(fv.Int(), 10), false, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(fv.Uint(), 10), false, nil
	case reflect.Float32:
		return strconv.FormatFloat(fv.Float(), 'f', -1, 32), false, nil
	case reflect.Float64:
		return strconv.FormatFloat(fv.Float(), 'f', -1, 64), false, nil
	case reflect.Map, reflect.Slice:
		if fv.IsNil() {
			return "", true, nil
		}
		b, err := json.Marshal(fv.Interface())
		if err != nil {
			return "", false, err
		}
		return string(b), false, nil
	case reflect.Struct, reflect.Array:
		b, err := json.Marshal(fv.Interface())
		if err != nil {
			return "", false, err
		}
		return string(b), false, nil
	default:
		return "", false, fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
}

// Decode converts a raw stream entry field map into E. Every raw value is
// validated as UTF-8 before use. Stringified booleans/integers/floats
// decode into their target scalar kind; struct/map/slice/array/interface
// leaves accept either a native JSON object/array string or a
// JSON-string-wrapped form (dual acceptance); pointer leaves decode as
// their element type.
func Decode[E Entry](fields map[string][]byte) (E, error) {
	var out E
	rv := reflect.ValueOf(&out).Elem()
	if rv.Kind() != reflect.Struct {
		return out, fmt.Errorf("entry: Decode requires a struct type, got %s", rv.Kind())
	}
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		name, _ := jsonTag(sf)
		if name == "-" {
			continue
		}
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if !utf8.Valid(raw) {
			return out, &reactorerr.ParseError{Field: name, Kind: reactorerr.KindUTF8, Cause: fmt.Errorf("invalid UTF-8 in field %q", name)}
		}
		if err := decodeValue(rv.Field(i), name, string(raw)); err != nil {
			return out, err
		}
	}
	return out, nil
}

func decodeValue(fv reflect.Value, name, s string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(s)
		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return &reactorerr.ParseError{Field: name, Kind: reactorerr.KindJSON, Cause: err}
		}
		fv.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return &reactorerr.ParseError{Field: name, Kind: reactorerr.KindInt, Cause: err}
		}
		fv.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return &reactorerr.ParseError{Field: name, Kind: reactorerr.KindInt, Cause: err}
		}
		fv.SetUint(n)
		return nil
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return &reactorerr.ParseError{Field: name, Kind: reactorerr.KindFloat, Cause: err}
		}
		fv.SetFloat(n)
		return nil
	case reflect.Pointer:
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		return decodeValue(fv.Elem(), name, s)
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array, reflect.Interface:
		return decodeNested(fv, name, s)
	default:
		return fmt.Errorf("entry: unsupported field kind %s for %q", fv.Kind(), name)
	}
}

// decodeNested implements dual acceptance: try s as a native JSON
// object/array first, then fall back to treating s as a JSON string whose
// contents are themselves the JSON to parse.
func decodeNested(fv reflect.Value, name, s string) error {
	target := reflect.New(fv.Type())
	firstErr := json.Unmarshal([]byte(s), target.Interface())
	if firstErr == nil {
		fv.Set(target.Elem())
		return nil
	}

	var inner string
	if err := json.Unmarshal([]byte(s), &inner); err == nil {
		target2 := reflect.New(fv.Type())
		if err2 := json.Unmarshal([]byte(inner), target2.Interface()); err2 == nil {
			fv.Set(target2.Elem())
			return nil
		}
	}

	return &reactorerr.ParseError{Field: name, Kind: reactorerr.KindJSON, Cause: firstErr}
}

func jsonTag(sf reflect.StructField) (name string, omitempty bool) {
	tag := sf.Tag.Get("json")
	if tag == "" {
		return sf.Name, false
	}
	parts := splitTag(tag)
	name = parts[0]
	if name == "" {
		name = sf.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty
}

func splitTag(tag string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			parts = append(parts, tag[start:i])
			start = i + 1
		}
	}
	parts = append(parts, tag[start:])
	return parts
}
