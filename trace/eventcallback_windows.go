//go:build windows

package trace

import (
	"log"
	"sync"
	"syscall"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"

	"github.com/tracehound/ketrace/decode"
	"github.com/tracehound/ketrace/schema"
)

// eventTraceLogfileW mirrors EVENT_TRACE_LOGFILEW's real-time-consumer
// shape: only the fields OpenTraceW actually reads for a real-time
// session (LoggerName + ProcessTraceMode + the EventRecordCallback
// union member) are populated; the rest stay zero.
type eventTraceLogfileW struct {
	LogFileName      *uint16
	LoggerName       *uint16
	CurrentTime      int64
	BuffersRead      uint32
	ProcessTraceMode uint32
	CurrentEvent     [16]byte // placeholder EVENT_TRACE, unused for EventRecordCallback mode
	LogfileHeader    [0]byte
	BufferCallback   uintptr
	BufferSize       uint32
	Filled           uint32
	EventsLost       uint32
	EventRecordCallback uintptr
	IsKernelTrace    uint32
	Context          uintptr
}

// eventHeader mirrors EVENT_HEADER's fields this module reads.
type eventHeader struct {
	Size            uint16
	HeaderType      uint16
	Flags           uint16
	EventProperty   uint16
	ThreadID        uint32
	ProcessID       uint32
	TimeStamp       int64
	ProviderID      windows.GUID
	EventDescriptor eventDescriptor
	KernelTime      uint32
	UserTime        uint32
	ActivityID      windows.GUID
}

type eventDescriptor struct {
	ID      uint16
	Version uint8
	Channel uint8
	Level   uint8
	Opcode  uint8
	Task    uint16
	Keyword uint64
}

// eventRecord mirrors EVENT_RECORD: header + the raw user-data blob.
type eventRecord struct {
	Header           eventHeader
	BufferContext    [4]byte
	ExtendedDataCount uint16
	UserDataLength   uint16
	ExtendedData     uintptr
	UserData         uintptr
	UserContext      uintptr
}

// classicStackWalkEvent mirrors the PERFINFO stack-walk event's payload:
// a fixed header followed by a variable count of 64-bit addresses,
// computed from the event's UserDataLength (spec.md §4.5).
type classicStackWalkEvent struct {
	EventTimeStamp int64
	StackProcess   uint32
	StackThread    uint32
}

var callbackRegistry sync.Map // uintptr(logfile ptr) -> *callbackState

type callbackState struct {
	onEvent     OnEvent
	onStackWalk OnRawStackWalk
	reg         *schema.Registry
	formatter   *tdhFormatter
}

// setEventCallback installs the EventRecordCallback trampoline for one
// OpenTraceW call. Go func values can't be passed directly as C callback
// pointers, so the state is registered by logfile address and the
// syscall.NewCallback trampoline looks it up.
func setEventCallback(logfile *eventTraceLogfileW, onEvent OnEvent, onStackWalk OnRawStackWalk, reg *schema.Registry) {
	state := &callbackState{onEvent: onEvent, onStackWalk: onStackWalk, reg: reg, formatter: &tdhFormatter{}}
	callbackRegistry.Store(uintptr(unsafe.Pointer(logfile)), state)
	logfile.EventRecordCallback = eventRecordCallbackPtr
	logfile.Context = uintptr(unsafe.Pointer(logfile))
}

var eventRecordCallbackPtr = syscall.NewCallback(eventRecordCallback)

// eventRecordCallback is the trampoline ETW invokes per event on the
// ProcessTrace thread. It decodes the event via TDH and dispatches to
// the registered onEvent/onStackWalk.
func eventRecordCallback(er *eventRecord) uintptr {
	v, ok := callbackRegistry.Load(er.UserContext)
	if !ok {
		return 0
	}
	state := v.(*callbackState)

	providerGUID := er.Header.ProviderID
	if isClassicStackWalkProvider(providerGUID) {
		dispatchStackWalk(er, state)
		return 0
	}

	info, err := state.formatter.getEventInformation(er)
	if err != nil {
		return 0
	}
	pointerSize := 8
	if er.Header.Flags&0x0020 != 0 { // EVENT_HEADER_FLAG_32_BIT_HEADER
		pointerSize = 4
	}
	userData := unsafe.Slice((*byte)(unsafe.Pointer(er.UserData)), int(er.UserDataLength))
	props, err := decode.Walk(info, userData, pointerSize, state.formatter)
	if err != nil {
		// Keep the properties decoded before the malformed one.
		log.Printf("decode: %v", err)
	}

	ev := decode.NewDecodedEvent(
		uuid.UUID(toUUID(providerGUID)),
		info,
		er.Header.ProcessID, er.Header.ThreadID,
		decode.FileTime(er.Header.TimeStamp),
		props,
	)
	if state.onEvent != nil {
		state.onEvent(&ev)
	}
	return 0
}

// systemTraceControlGUID identifies classic kernel events; the
// stack-walk event is EventType 32/34/35/36 under this provider
// (original_source/src/event_trace/callback.rs: is_stackwalk_event).
func isClassicStackWalkProvider(g windows.GUID) bool {
	return g == systemTraceControlGUID
}

func dispatchStackWalk(er *eventRecord, state *callbackState) {
	if state.onStackWalk == nil || int(er.UserDataLength) < 16 {
		return
	}
	hdr := (*classicStackWalkEvent)(unsafe.Pointer(er.UserData))
	addrBytes := int(er.UserDataLength) - 16
	count := addrBytes / 8
	if count <= 0 {
		return
	}
	addrs := unsafe.Slice((*uint64)(unsafe.Pointer(er.UserData+16)), count)
	frames := make([]uint64, count)
	copy(frames, addrs)
	state.onStackWalk(hdr.StackThread, decode.FileTime(hdr.EventTimeStamp), frames)
}

func toUUID(g windows.GUID) (out [16]byte) {
	out[0] = byte(g.Data1)
	out[1] = byte(g.Data1 >> 8)
	out[2] = byte(g.Data1 >> 16)
	out[3] = byte(g.Data1 >> 24)
	out[4] = byte(g.Data2)
	out[5] = byte(g.Data2 >> 8)
	out[6] = byte(g.Data3)
	out[7] = byte(g.Data3 >> 8)
	copy(out[8:], g.Data4[:])
	return out
}
