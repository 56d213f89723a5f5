package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tracehound/ketrace/decode"
)

func TestParseSingleScenarioD(t *testing.T) {
	expr, err := ParseSingle(`(key1.field = 1.556) && key2 = 2.55`)
	require.NoError(t, err)

	want := &AndExpr{
		Left: &ParenExpr{Inner: &KvPair{
			Path:  Path{Key: "key1", Field: "field", HasField: true},
			Value: decode.F64(1.556),
		}},
		Right: &KvPair{
			Path:  Path{Key: "key2"},
			Value: decode.F64(2.55),
		},
	}
	require.Equal(t, want, expr)
}

func TestParseSingleUnmatchedParenIsError(t *testing.T) {
	_, err := ParseSingle(`(key1.field = 1.556 && key2 = 2.55`)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseSinglePrefersIntegerOverFloat(t *testing.T) {
	expr, err := ParseSingle(`key1 = 42`)
	require.NoError(t, err)
	kv := expr.(*KvPair)
	require.Equal(t, decode.KindI64, kv.Value.Kind)
	require.Equal(t, int64(42), kv.Value.I64)
}

type fakeEvent struct {
	ts         decode.FileTime
	pid, tid   uint32
	eventName  string
	opcodeName string
	props      decode.Value
}

func (e *fakeEvent) Timestamp() decode.FileTime  { return e.ts }
func (e *fakeEvent) ProcessID() uint32           { return e.pid }
func (e *fakeEvent) ThreadID() uint32            { return e.tid }
func (e *fakeEvent) EventName() string           { return e.eventName }
func (e *fakeEvent) OpcodeName() string          { return e.opcodeName }
func (e *fakeEvent) Properties() decode.Value    { return e.props }

func TestEvaluateKvPairProperties(t *testing.T) {
	expr, err := ParseSingle(`properties.Handle = {Handle: "0x40"}`)
	require.NoError(t, err)

	ev := &fakeEvent{
		eventName: "Object", opcodeName: "CreateHandle",
		props: decode.Struct([]decode.StructField{{Name: "Handle", Value: decode.Str("0x40")}}),
	}
	matched, err := Evaluate(expr, ev)
	require.NoError(t, err)
	require.True(t, matched)
}

func TestEvaluateFindValueRecursiveEquality(t *testing.T) {
	expr, err := ParseSingle(`42`)
	require.NoError(t, err)

	ev := &fakeEvent{
		props: decode.Struct([]decode.StructField{
			{Name: "Outer", Value: decode.Struct([]decode.StructField{
				{Name: "Inner", Value: decode.I64(42)},
			})},
		}),
	}
	matched, err := Evaluate(expr, ev)
	require.NoError(t, err)
	require.True(t, matched)
}

func TestParseSingleStableOnCanonicalString(t *testing.T) {
	const src = `(key1.field = 1.556) && key2 = 2.55`
	first, err := ParseSingle(src)
	require.NoError(t, err)
	second, err := ParseSingle(src)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAndOrLeftAssociativeRequiresParens(t *testing.T) {
	expr, err := ParseSingle(`key1 = 1 && key2 = 2 || key3 = 3`)
	require.NoError(t, err)
	// Without explicit parens, && and || are equal-precedence and
	// left-associative: (key1=1 && key2=2) || key3=3.
	or, ok := expr.(*OrExpr)
	require.True(t, ok)
	_, ok = or.Left.(*AndExpr)
	require.True(t, ok)
}
