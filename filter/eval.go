package filter

import (
	"fmt"

	"github.com/tracehound/ketrace/decode"
)

// Event is the minimal view over a DecodedEvent the single-expression
// evaluator needs: spec.md §4.7's lookup_path_value column set.
type Event interface {
	Timestamp() decode.FileTime
	ProcessID() uint32
	ThreadID() uint32
	EventName() string
	OpcodeName() string
	Properties() decode.Value // KindStruct
}

// Evaluate walks expr against ev, short-circuiting && and ||.
func Evaluate(expr Expr, ev Event) (bool, error) {
	switch e := expr.(type) {
	case *ParenExpr:
		return Evaluate(e.Inner, ev)
	case *NotExpr:
		v, err := Evaluate(e.Inner, ev)
		if err != nil {
			return false, err
		}
		return !v, nil
	case *AndExpr:
		l, err := Evaluate(e.Left, ev)
		if err != nil {
			return false, err
		}
		if !l {
			return false, nil
		}
		return Evaluate(e.Right, ev)
	case *OrExpr:
		l, err := Evaluate(e.Left, ev)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return Evaluate(e.Right, ev)
	case *KvPair:
		return lookupPathValue(e.Path, e.Value, ev)
	case *FindValue:
		return ev.Properties().Contains(e.Value), nil
	}
	return false, fmt.Errorf("filter: unknown expression type %T", expr)
}

// lookupPathValue implements spec.md §4.7's per-column comparison rules.
// Type mismatches are surfaced as errors, never silently false.
func lookupPathValue(path Path, want decode.Value, ev Event) (bool, error) {
	switch path.Key {
	case "datetime":
		if want.Kind != decode.KindI64 {
			return false, fmt.Errorf("filter: datetime expects an integer, got %v", want.Kind)
		}
		return int64(ev.Timestamp()) == want.I64, nil

	case "process_id":
		if want.Kind != decode.KindI64 {
			return false, fmt.Errorf("filter: process_id expects an integer, got %v", want.Kind)
		}
		return ev.ProcessID() == uint32(want.I64), nil

	case "thread_id":
		if want.Kind != decode.KindI64 {
			return false, fmt.Errorf("filter: thread_id expects an integer, got %v", want.Kind)
		}
		return ev.ThreadID() == uint32(want.I64), nil

	case "event_name":
		if want.Kind != decode.KindStr {
			return false, fmt.Errorf("filter: event_name expects a string, got %v", want.Kind)
		}
		return ev.EventName() == want.Str, nil

	case "opcode_name":
		if want.Kind != decode.KindStr {
			return false, fmt.Errorf("filter: opcode_name expects a string, got %v", want.Kind)
		}
		return ev.OpcodeName() == want.Str, nil

	case "properties":
		if want.Kind != decode.KindStruct {
			return false, fmt.Errorf("filter: properties expects an object, got %v", want.Kind)
		}
		if !path.HasField {
			return false, fmt.Errorf("filter: properties requires a .field")
		}
		wantField, ok := want.Field(path.Field)
		if !ok {
			return false, fmt.Errorf("filter: object has no field %q", path.Field)
		}
		if wantField.Kind != decode.KindStr {
			return false, fmt.Errorf("filter: properties.%s expects a string value, got %v", path.Field, wantField.Kind)
		}
		gotField, ok := ev.Properties().Field(path.Field)
		if !ok {
			return false, nil
		}
		return gotField.AsString() == wantField.Str, nil
	}
	return false, fmt.Errorf("filter: unknown key %q", path.Key)
}
