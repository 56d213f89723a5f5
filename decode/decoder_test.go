package decode

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeFormatter formats scalar properties by reading propLength bytes (or
// the in-type's natural size when propLength is 0) little-endian off the
// front of data as an unsigned integer, enough to exercise Walk's control
// flow without real TDH calls.
type fakeFormatter struct {
	maps map[string]*EventMapInfo
}

func (f *fakeFormatter) EventMapInfo(name string) (*EventMapInfo, bool) {
	m, ok := f.maps[name]
	return m, ok
}

func (f *fakeFormatter) FormatProperty(inType InType, outType OutType, pointerSize int, propLength uint16, mapInfo *EventMapInfo, data []byte) (Value, int, error) {
	n := int(propLength)
	if n == 0 {
		switch inType {
		case InTypeInt8, InTypeUint8:
			n = 1
		case InTypeInt16, InTypeUint16:
			n = 2
		case InTypeInt64, InTypeUint64:
			n = 8
		default:
			n = 4
		}
	}
	if n > len(data) {
		n = len(data)
	}
	raw := uint64(0)
	for i := n - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(data[i])
	}
	if mapInfo != nil {
		if s, ok := mapInfo.ValueMap[raw]; ok {
			return Str(s), n, nil
		}
	}
	return U64(raw), n, nil
}

func TestWalkScalarAndCountBackReference(t *testing.T) {
	// Property 0: UInt32 count. Property 1: array of `count` UInt8s sized
	// by PropertyParamCount referencing index 0.
	info := &EventInfo{
		Properties: []PropertyInfo{
			{Name: "Count", InType: InTypeUint32, Count: 1},
			{
				Name:               "Items",
				InType:             InTypeUint8,
				Flags:              PropertyParamCount,
				CountPropertyIndex: 0,
			},
		},
	}
	userData := []byte{3, 0, 0, 0, 10, 20, 30}
	v, err := Walk(info, userData, 8, &fakeFormatter{})
	require.NoError(t, err)

	count, ok := v.Field("Count")
	require.True(t, ok)
	require.Equal(t, uint64(3), count.U64)

	items, ok := v.Field("Items")
	require.True(t, ok)
	require.Equal(t, KindArray, items.Kind)
	require.Len(t, items.Array, 3)
	require.Equal(t, uint64(10), items.Array[0].U64)
	require.Equal(t, uint64(20), items.Array[1].U64)
	require.Equal(t, uint64(30), items.Array[2].U64)
}

func TestWalkInvalidCountIndexStopsDecodeNotSession(t *testing.T) {
	info := &EventInfo{
		Properties: []PropertyInfo{
			{
				Name:               "Bad",
				InType:             InTypeUint8,
				Flags:              PropertyParamCount,
				CountPropertyIndex: 0, // refers to itself; invalid, must be < index
			},
		},
	}
	_, err := Walk(info, []byte{1, 2, 3}, 8, &fakeFormatter{})
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, 0, derr.PropertyIndex)
}

func TestWalkStructRecursionSharesCursor(t *testing.T) {
	// Top-level: one struct property (2 members), then a trailing scalar
	// that must read the bytes left after the struct's members consumed
	// their share of userData.
	info := &EventInfo{
		Properties: []PropertyInfo{
			{
				Name:               "Point",
				Flags:              PropertyStruct,
				Count:              1,
				StructStartIndex:   2,
				NumOfStructMembers: 2,
			},
			{Name: "Trailer", InType: InTypeUint8, Count: 1, Length: 1},
			{Name: "X", InType: InTypeUint8, Count: 1, Length: 1},
			{Name: "Y", InType: InTypeUint8, Count: 1, Length: 1},
		},
	}
	userData := []byte{1, 2, 99}
	v, err := Walk(info, userData, 8, &fakeFormatter{})
	require.NoError(t, err)

	point, ok := v.Field("Point")
	require.True(t, ok)
	x, _ := point.Field("X")
	y, _ := point.Field("Y")
	require.Equal(t, uint64(1), x.U64)
	require.Equal(t, uint64(2), y.U64)

	trailer, ok := v.Field("Trailer")
	require.True(t, ok)
	require.Equal(t, uint64(99), trailer.U64)
}

// failOnceFormatter fails FormatProperty the first time it's called for
// failInType, then behaves like fakeFormatter for every other call.
type failOnceFormatter struct {
	fakeFormatter
	failInType InType
	failed     bool
}

func (f *failOnceFormatter) FormatProperty(inType InType, outType OutType, pointerSize int, propLength uint16, mapInfo *EventMapInfo, data []byte) (Value, int, error) {
	if !f.failed && inType == f.failInType {
		f.failed = true
		return Value{}, 0, fmt.Errorf("simulated formatter failure")
	}
	return f.fakeFormatter.FormatProperty(inType, outType, pointerSize, propLength, mapInfo, data)
}

func TestWalkFormatterFailureSkipsOnlyThatProperty(t *testing.T) {
	info := &EventInfo{
		Properties: []PropertyInfo{
			{Name: "Bad", InType: InTypeUint32, Count: 1, Length: 4},
			{Name: "Good", InType: InTypeUint8, Count: 1, Length: 1},
		},
	}
	userData := []byte{1, 2, 3, 4, 99}
	f := &failOnceFormatter{failInType: InTypeUint32}
	v, err := Walk(info, userData, 8, f)
	require.NoError(t, err)

	bad, ok := v.Field("Bad")
	require.True(t, ok)
	require.Equal(t, KindNull, bad.Kind)

	good, ok := v.Field("Good")
	require.True(t, ok)
	require.Equal(t, uint64(1), good.U64)
}

func TestWalkEnumMapTranslatesValue(t *testing.T) {
	info := &EventInfo{
		Properties: []PropertyInfo{
			{Name: "State", InType: InTypeUint8, Count: 1, Length: 1, MapName: "StateMap"},
		},
	}
	f := &fakeFormatter{maps: map[string]*EventMapInfo{
		"StateMap": {Name: "StateMap", ValueMap: map[uint64]string{1: "Running"}},
	}}
	v, err := Walk(info, []byte{1}, 8, f)
	require.NoError(t, err)
	state, ok := v.Field("State")
	require.True(t, ok)
	require.Equal(t, "Running", state.Str)
}
