package decode

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which alternative of the PropertyValue sum type a Value
// holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindI64
	KindU64
	KindF64
	KindStr
	KindBytes
	KindArray
	KindStruct
)

// StructField is one member of a Struct value, preserving schema
// declaration order.
type StructField struct {
	Name  string
	Value Value
}

// Value is the PropertyValue sum type from spec.md §3: Null | Bool | I64 |
// U64 | F64 | Str | Bytes | Array<Value> | Struct<ordered fields>.
type Value struct {
	Kind   Kind
	Bool   bool
	I64    int64
	U64    uint64
	F64    float64
	Str    string
	Bytes  []byte
	Array  []Value
	Struct []StructField
}

func Null() Value              { return Value{Kind: KindNull} }
func Bool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func I64(v int64) Value        { return Value{Kind: KindI64, I64: v} }
func U64(v uint64) Value       { return Value{Kind: KindU64, U64: v} }
func F64(v float64) Value      { return Value{Kind: KindF64, F64: v} }
func Str(s string) Value       { return Value{Kind: KindStr, Str: s} }
func Bytes(b []byte) Value     { return Value{Kind: KindBytes, Bytes: b} }
func Array(vs []Value) Value   { return Value{Kind: KindArray, Array: vs} }
func Struct(f []StructField) Value {
	return Value{Kind: KindStruct, Struct: f}
}

// Field looks up a member of a Struct value by name. ok is false if v is
// not a Struct or has no such field.
func (v Value) Field(name string) (Value, bool) {
	if v.Kind != KindStruct {
		return Value{}, false
	}
	for _, f := range v.Struct {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// AsString renders v in the same textual form the decoder would have
// produced for a string-typed property, used by the filter engine and
// row-model adapter when comparing decoded values against filter/UI
// strings.
func (v Value) AsString() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindI64:
		return strconv.FormatInt(v.I64, 10)
	case KindU64:
		return strconv.FormatUint(v.U64, 10)
	case KindF64:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindStr:
		return v.Str
	case KindBytes:
		return fmt.Sprintf("% x", v.Bytes)
	case KindArray:
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = e.AsString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindStruct:
		parts := make([]string, len(v.Struct))
		for i, f := range v.Struct {
			parts[i] = f.Name + ": " + f.Value.AsString()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

// Equal reports whether v and o hold the same value, used by FindValue's
// recursive-equality search (spec.md §9) and by tests.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		// Allow cross-numeric-kind equality the way a filter literal
		// compares against a decoded property of a different numeric
		// representation.
		if isNumeric(v.Kind) && isNumeric(o.Kind) {
			return v.asFloat() == o.asFloat()
		}
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindI64:
		return v.I64 == o.I64
	case KindU64:
		return v.U64 == o.U64
	case KindF64:
		return v.F64 == o.F64
	case KindStr:
		return v.Str == o.Str
	case KindBytes:
		if len(v.Bytes) != len(o.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != o.Bytes[i] {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	case KindStruct:
		if len(v.Struct) != len(o.Struct) {
			return false
		}
		for i := range v.Struct {
			if v.Struct[i].Name != o.Struct[i].Name || !v.Struct[i].Value.Equal(o.Struct[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

func isNumeric(k Kind) bool { return k == KindI64 || k == KindU64 || k == KindF64 }

func (v Value) asFloat() float64 {
	switch v.Kind {
	case KindI64:
		return float64(v.I64)
	case KindU64:
		return float64(v.U64)
	case KindF64:
		return v.F64
	}
	return 0
}

// Contains implements FindValue's recursive search: true if needle equals
// v or any value reachable by walking v's array/struct children.
func (v Value) Contains(needle Value) bool {
	if v.Equal(needle) {
		return true
	}
	switch v.Kind {
	case KindArray:
		for _, e := range v.Array {
			if e.Contains(needle) {
				return true
			}
		}
	case KindStruct:
		for _, f := range v.Struct {
			if f.Value.Contains(needle) {
				return true
			}
		}
	}
	return false
}
