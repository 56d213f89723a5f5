package decode

import "encoding/binary"

// U16CStringAt exposes u16cstringAt to package trace's real TDH backend,
// which resolves name/map-name offsets out of the raw TRACE_EVENT_INFO
// and EVENT_MAP_INFO blobs TdhGetEventInformation/TdhGetEventMapInformation
// fill in.
func U16CStringAt(infoBlob []byte, off uint32) string { return u16cstringAt(infoBlob, off) }

// GrowAndRetry exposes growAndRetry to package trace for the same
// grow-on-ERROR_INSUFFICIENT_BUFFER retry TDH calls need.
func GrowAndRetry(initial int, call func(buf []byte) (need int, ok bool)) ([]byte, bool) {
	return growAndRetry(initial, call)
}

// mapEntry mirrors one fixed-size EVENT_MAP_ENTRY: a display-string
// offset paired with the integer value it names.
type mapEntry struct {
	NameOffset uint32
	Value      uint32
}

const eventMapInfoHeaderSize = 16 // NameOffset, Flag, EntryCount, union(FormatStringOffset)

// ParseEventMapInfo decodes a raw EVENT_MAP_INFO buffer (as filled in by
// TdhGetEventMapInformation) into a value->string table, following the
// WMISTR/EVENT_MAP_ENTRY layout: a fixed header followed by EntryCount
// {NameOffset,Value} pairs, with display strings stored later in the
// same buffer as NUL-terminated UTF-16LE.
func ParseEventMapInfo(name string, buf []byte) *EventMapInfo {
	if len(buf) < eventMapInfoHeaderSize {
		return &EventMapInfo{Name: name, ValueMap: map[uint64]string{}}
	}
	entryCount := binary.LittleEndian.Uint32(buf[8:12])
	values := make(map[uint64]string, entryCount)
	base := eventMapInfoHeaderSize
	for i := uint32(0); i < entryCount; i++ {
		off := base + int(i)*8
		if off+8 > len(buf) {
			break
		}
		e := mapEntry{
			NameOffset: binary.LittleEndian.Uint32(buf[off:]),
			Value:      binary.LittleEndian.Uint32(buf[off+4:]),
		}
		values[uint64(e.Value)] = u16cstringAt(buf, e.NameOffset)
	}
	return &EventMapInfo{Name: name, ValueMap: values}
}
