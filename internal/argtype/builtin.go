package argtype

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"
)

// Built-in type tags. The JSON-Schema primitive names are canonical; int,
// float and bool are accepted aliases used by older definitions.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
	TypeBinary  = "binary"

	TypeInt   = "int"
	TypeFloat = "float"
	TypeBool  = "bool"
)

// RegisterBuiltins installs the built-in vocabulary into r.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		tag   string
		codec Codec
	}{
		{TypeString, stringCodec},
		{TypeNumber, numberCodec},
		{TypeFloat, numberCodec},
		{TypeInteger, integerCodec},
		{TypeInt, integerCodec},
		{TypeBoolean, booleanCodec},
		{TypeBool, booleanCodec},
		{TypeArray, arrayCodec},
		{TypeObject, objectCodec},
		{TypeNull, nullCodec},
		{TypeBinary, binaryCodec},
	}
	for _, b := range builtins {
		if err := r.Register(b.tag, b.codec); err != nil {
			return err
		}
	}
	return nil
}

var stringCodec = Funcs{
	ValidateFunc: func(v any) bool {
		s, ok := v.(string)
		return ok && utf8.ValidString(s)
	},
	EncodeFunc: func(v any) ([]byte, error) {
		return json.Marshal(v.(string))
	},
	DecodeFunc: func(b []byte) (any, error) {
		var s string
		if err := strictUnmarshal(b, '"', &s); err != nil {
			return nil, err
		}
		return s, nil
	},
}

var integerCodec = Funcs{
	ValidateFunc: func(v any) bool {
		_, ok := toInt64(v)
		return ok
	},
	EncodeFunc: func(v any) ([]byte, error) {
		n, _ := toInt64(v)
		return []byte(strconv.FormatInt(n, 10)), nil
	},
	DecodeFunc: func(b []byte) (any, error) {
		n, err := strconv.ParseInt(string(bytes.TrimSpace(b)), 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	},
}

var numberCodec = Funcs{
	ValidateFunc: func(v any) bool {
		_, ok := toFloat64(v)
		return ok
	},
	EncodeFunc: func(v any) ([]byte, error) {
		f, _ := toFloat64(v)
		return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
	},
	DecodeFunc: func(b []byte) (any, error) {
		trimmed := bytes.TrimSpace(b)
		if string(trimmed) == "null" {
			return nil, fmt.Errorf("not a number: %q", b)
		}
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, err
		}
		return f, nil
	},
}

var booleanCodec = Funcs{
	ValidateFunc: func(v any) bool {
		_, ok := v.(bool)
		return ok
	},
	EncodeFunc: func(v any) ([]byte, error) {
		return []byte(strconv.FormatBool(v.(bool))), nil
	},
	DecodeFunc: func(b []byte) (any, error) {
		switch string(bytes.TrimSpace(b)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("not a boolean: %q", b)
	},
}

var arrayCodec = Funcs{
	ValidateFunc: func(v any) bool {
		if v == nil {
			return false
		}
		if _, ok := v.([]byte); ok {
			return false
		}
		k := reflect.TypeOf(v).Kind()
		return (k == reflect.Slice || k == reflect.Array) && jsonable(v) && validUTF8(reflect.ValueOf(v))
	},
	EncodeFunc: func(v any) ([]byte, error) {
		if reflect.ValueOf(v).Kind() == reflect.Slice && reflect.ValueOf(v).IsNil() {
			return []byte("[]"), nil
		}
		return json.Marshal(v)
	},
	DecodeFunc: func(b []byte) (any, error) {
		return decodeContainer(b, '[')
	},
}

var objectCodec = Funcs{
	ValidateFunc: func(v any) bool {
		if v == nil {
			return false
		}
		t := reflect.TypeOf(v)
		switch t.Kind() {
		case reflect.Map:
			if t.Key().Kind() != reflect.String {
				return false
			}
		case reflect.Struct:
		default:
			return false
		}
		return jsonable(v) && validUTF8(reflect.ValueOf(v))
	},
	EncodeFunc: func(v any) ([]byte, error) {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Map && rv.IsNil() {
			return []byte("{}"), nil
		}
		return json.Marshal(v)
	},
	DecodeFunc: func(b []byte) (any, error) {
		return decodeContainer(b, '{')
	},
}

var nullCodec = Funcs{
	ValidateFunc: func(v any) bool { return v == nil },
	EncodeFunc:   func(any) ([]byte, error) { return []byte("null"), nil },
	DecodeFunc: func(b []byte) (any, error) {
		if string(bytes.TrimSpace(b)) != "null" {
			return nil, fmt.Errorf("not null: %q", b)
		}
		return nil, nil
	},
}

var binaryCodec = Funcs{
	ValidateFunc: func(v any) bool {
		_, ok := v.([]byte)
		return ok
	},
	EncodeFunc: func(v any) ([]byte, error) {
		return bytes.Clone(v.([]byte)), nil
	},
	DecodeFunc: func(b []byte) (any, error) {
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	},
}

// strictUnmarshal decodes b into dst only if the JSON text opens with the
// expected delimiter, so that "null" is not accepted as an empty container.
func strictUnmarshal(b []byte, open byte, dst any) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != open {
		return fmt.Errorf("expected JSON value starting with %q", open)
	}
	return json.Unmarshal(trimmed, dst)
}

// decodeContainer decodes a JSON array or object. Numbers inside it come back
// as int64 when integral and float64 otherwise.
func decodeContainer(b []byte, open byte) (any, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != open {
		return nil, fmt.Errorf("expected JSON value starting with %q", open)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return normalizeNumbers(v)
}

func normalizeNumbers(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case []any:
		for i, e := range t {
			n, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
	case map[string]any:
		for k, e := range t {
			n, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
	}
	return v, nil
}

// validUTF8 reports whether every string reachable from v, map keys
// included, is valid UTF-8.
func validUTF8(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return utf8.ValidString(v.String())
	case reflect.Interface, reflect.Pointer:
		return v.IsNil() || validUTF8(v.Elem())
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return true
		}
		for i := 0; i < v.Len(); i++ {
			if !validUTF8(v.Index(i)) {
				return false
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if !validUTF8(iter.Key()) || !validUTF8(iter.Value()) {
				return false
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() && !validUTF8(v.Field(i)) {
				return false
			}
		}
	}
	return true
}

func jsonable(v any) bool {
	_, err := json.Marshal(v)
	return err == nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func uintToInt64(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		i, ok := toInt64(v)
		if !ok {
			return 0, false
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
