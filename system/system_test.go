package system

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tracehound/ketrace/correlate"
	"github.com/tracehound/ketrace/decode"
	"github.com/tracehound/ketrace/notify"
	"github.com/tracehound/ketrace/schema"
	"github.com/tracehound/ketrace/trace"
)

func newTestSystem(t *testing.T, opts Options) *System {
	t.Helper()
	reg := schema.DefaultRegistry
	ctrl := trace.New(reg, trace.NewStubBackend())
	return New(reg, ctrl, opts)
}

// TestStackWalkAttachesToAppendedEntry is scenario (c): a synthetic event
// is appended and registered with the correlator, then a matching
// stack-walk arrives for the same (thread, timestamp) and attaches.
func TestStackWalkAttachesToAppendedEntry(t *testing.T) {
	s := newTestSystem(t, Options{})

	const threadID = uint32(44876)
	const ts = decode.FileTime(133644663686383541)

	ev := &decode.DecodedEvent{
		EventName:  "Process",
		OpcodeName: "Start",
		ThreadID:   threadID,
		Timestamp:  ts,
		Properties: decode.Struct(nil),
	}
	s.onEvent(ev)

	entry, ok := s.Events.Get(0)
	require.True(t, ok)
	require.Nil(t, entry.StackWalk())

	s.onStackWalk(threadID, ts, []uint64{0x1000, 0x2000, 0x3000})

	sw := entry.StackWalk()
	require.NotNil(t, sw)
	require.Len(t, sw.Frames, 3)
	require.Equal(t, uint64(0x1000), sw.Frames[0].Address)
	require.Equal(t, uint64(0x3000), sw.Frames[2].Address)

	require.True(t, s.Correlator.Cooled(correlate.Key{ThreadID: threadID, Timestamp: ts}))
}

// TestNotifyFiresOnAppend checks the coalescer sees each appended index
// once NotifyMax forces a flush.
func TestNotifyFiresOnAppend(t *testing.T) {
	var mu sync.Mutex
	var got []notify.Message

	s := newTestSystem(t, Options{
		NotifyMax: 1,
		OnNotify: func(msg notify.Message) {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
		},
	})

	ev := &decode.DecodedEvent{EventName: "Process", OpcodeName: "Start", Properties: decode.Struct(nil)}
	s.onEvent(ev)
	s.onEvent(ev)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	require.Equal(t, 0, got[0].Index)
	require.Equal(t, 1, got[1].Index)
}
