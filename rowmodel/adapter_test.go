package rowmodel

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tracehound/ketrace/correlate"
	"github.com/tracehound/ketrace/decode"
)

func TestProjectRowPreservesFieldOrder(t *testing.T) {
	ev := &decode.DecodedEvent{
		ProviderGUID: uuid.New(),
		EventName:    "Process",
		OpcodeName:   "Start",
		ProcessID:    1234,
		ThreadID:     5678,
		Timestamp:    decode.FileTime(133644663686383541),
		Properties: decode.Struct([]decode.StructField{
			{Name: "Zebra", Value: decode.I64(1)},
			{Name: "Apple", Value: decode.I64(2)},
		}),
	}
	row, err := ProjectRow(ev)
	require.NoError(t, err)
	require.Equal(t, uint32(1234), row.ProcessID)
	require.Equal(t, `{"Zebra":1,"Apple":2}`, row.Properties)

	var roundtrip map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(row.Properties), &roundtrip))
}

func TestStackFrameLinesFallback(t *testing.T) {
	sw := &correlate.StackWalk{Frames: []correlate.Frame{
		{Address: 0x1000, HasModule: true, ModuleID: 7, Offset: 0x20},
		{Address: 0x2000},
	}}
	lines := StackFrameLines(sw, func(id uint64) (string, bool) {
		if id == 7 {
			return "ntdll.dll", true
		}
		return "", false
	})
	require.Equal(t, []string{"0: 0x1000 ntdll.dll+0x20", "1: 0x2000"}, lines)
}
