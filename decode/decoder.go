package decode

import (
	"fmt"
	"log"
)

// InType mirrors the TDH_INTYPE enumeration: the wire representation of a
// property's scalar value.
type InType uint16

const (
	InTypeNull          InType = 0
	InTypeUnicodeString InType = 1
	InTypeAnsiString    InType = 2
	InTypeInt8          InType = 3
	InTypeUint8         InType = 4
	InTypeInt16         InType = 5
	InTypeUint16        InType = 6
	InTypeInt32         InType = 7
	InTypeUint32        InType = 8
	InTypeInt64         InType = 9
	InTypeUint64        InType = 10
	InTypeFloat         InType = 11
	InTypeDouble        InType = 12
	InTypeBoolean       InType = 13
	InTypeBinary        InType = 14
	InTypeGUID          InType = 15
	InTypePointer       InType = 16
	InTypeFileTime      InType = 17
	InTypeSystemTime    InType = 18
	InTypeSID           InType = 19
	InTypeHexInt32      InType = 20
	InTypeHexInt64      InType = 21
)

// OutType mirrors TDH_OUTTYPE: a rendering hint layered over an InType.
type OutType uint16

const (
	OutTypeNull    OutType = 0
	OutTypeString  OutType = 1
	OutTypeHexInt32 OutType = 18
	OutTypeIPv6    OutType = 24
	OutTypeNoPrint OutType = 200
)

// PropertyFlags mirrors the EVENT_PROPERTY_INFO.Flags bitset.
type PropertyFlags uint32

const (
	PropertyStruct           PropertyFlags = 1 << 0
	PropertyParamLength      PropertyFlags = 1 << 1
	PropertyParamCount       PropertyFlags = 1 << 2
	PropertyWBEMXmlFragment  PropertyFlags = 1 << 3
	PropertyParamFixedLength PropertyFlags = 1 << 4
	PropertyParamFixedCount  PropertyFlags = 1 << 5
)

// PropertyInfo is one entry of an event's property schema, with name and
// map-name offsets already resolved to strings by the caller (the trace
// controller resolves these once per event against the TRACE_EVENT_INFO
// blob before invoking Walk).
type PropertyInfo struct {
	Name    string
	Flags   PropertyFlags
	InType  InType
	OutType OutType
	MapName string // "" if the property has no associated enumeration map

	Length              uint16 // declared length, meaningful when Flags has neither ParamLength bit
	Count               uint16 // declared count
	LengthPropertyIndex uint16 // valid when Flags&PropertyParamLength != 0
	CountPropertyIndex  uint16 // valid when Flags&PropertyParamCount != 0
	StructStartIndex    uint16 // valid when Flags&PropertyStruct != 0
	NumOfStructMembers  uint16
}

// EventInfo is the resolved TRACE_EVENT_INFO for one event: names plus an
// ordered property schema.
type EventInfo struct {
	ProviderName string
	LevelName    string
	ChannelName  string
	KeywordsName string
	EventName    string
	OpcodeName   string
	Properties   []PropertyInfo
}

// EventMapInfo is a resolved enumeration map: raw integer value to display
// string, the decoded form of an EVENT_MAP_INFO.
type EventMapInfo struct {
	Name     string
	ValueMap map[uint64]string
}

// Formatter abstracts the OS TDH formatting calls (TdhFormatProperty,
// TdhGetEventMapInformation) so Walk can be exercised by tests without a
// live ETW session; the real implementation lives in package trace on
// windows.
type Formatter interface {
	// EventMapInfo looks up the enumeration map named name. ok is false
	// if the property has no map (not an error).
	EventMapInfo(name string) (info *EventMapInfo, ok bool)
	// FormatProperty formats one scalar occurrence of a property from the
	// front of data, honoring pointerSize for pointer-typed properties.
	// It returns the formatted value and the number of bytes of data
	// consumed.
	FormatProperty(inType InType, outType OutType, pointerSize int, propLength uint16, mapInfo *EventMapInfo, data []byte) (Value, int, error)
}

// Error is a decode-time error naming the property index at which it
// occurred, so the caller can log a diagnostic and keep whatever was
// decoded before it (spec.md §7's decode error policy: abort the
// offending property, preserve what was decoded so far, continue the
// session).
type Error struct {
	PropertyIndex int
	Err           error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode: property %d: %v", e.PropertyIndex, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// enumInType reports whether t is one of the in-types the decoder will
// attempt an enumeration-map lookup for (spec.md §4.3 step 4).
func enumInType(t InType) bool {
	switch t {
	case InTypeUint8, InTypeUint16, InTypeUint32, InTypeHexInt32:
		return true
	}
	return false
}

// scalarIntInType reports whether t is a scalar-int type eligible for
// the forward-reference caching in step 1 of the property walk.
func scalarIntInType(t InType) bool {
	switch t {
	case InTypeInt8, InTypeUint8, InTypeInt16, InTypeUint16,
		InTypeInt32, InTypeUint32, InTypeHexInt32:
		return true
	}
	return false
}

// walker holds the mutable state threaded through one event's recursive
// property walk: the shared user-data cursor, the per-index scalar-int
// cache used for forward length/count references, and the formatter.
type walker struct {
	info      *EventInfo
	userData  []byte // remaining bytes, advances as properties are consumed
	pointerSize int
	formatter Formatter
	intValues []uint64 // cached scalar values, indexed by property index
}

// Walk decodes userData against info's property schema, following
// spec.md §4.3's property-walk algorithm, and returns the top-level
// Struct value (one field per top-level property, in schema order).
//
// pointerSize must be 4 or 8, derived by the caller from the event
// header's 32/64-bit flag (or the native pointer size if neither flag is
// set), since it must flow into every formatter invocation including
// inside nested structs.
func Walk(info *EventInfo, userData []byte, pointerSize int, f Formatter) (Value, error) {
	w := &walker{
		info:        info,
		userData:    userData,
		pointerSize: pointerSize,
		formatter:   f,
		intValues:   make([]uint64, len(info.Properties)),
	}
	fields, err := w.walkRange(0, uint16(len(info.Properties)))
	return Struct(fields), err
}

func (w *walker) walkRange(begin, end uint16) ([]StructField, error) {
	props := w.info.Properties
	fields := make([]StructField, 0, end-begin)
	for index := begin; index < end; index++ {
		p := &props[index]

		// Step 1: cache scalar-integer values for forward references.
		if p.Flags&(PropertyStruct|PropertyParamCount) == 0 && p.Count == 1 && scalarIntInType(p.InType) {
			w.cacheScalar(index, p.InType)
		}

		// Step 2: resolve prop_length.
		propLength, err := w.resolveLength(index, p)
		if err != nil {
			return fields, &Error{PropertyIndex: int(index), Err: err}
		}

		// Step 3: resolve (array_count, is_array).
		arrayCount, isArray, err := w.resolveCount(index, p)
		if err != nil {
			return fields, &Error{PropertyIndex: int(index), Err: err}
		}

		values := make([]Value, 0, arrayCount)
		for arrayIndex := uint16(0); arrayIndex != arrayCount && len(w.userData) > 0; arrayIndex++ {
			if p.Flags&PropertyStruct != 0 {
				memberFields, err := w.walkRange(p.StructStartIndex, p.StructStartIndex+p.NumOfStructMembers)
				if err != nil {
					// A malformed reference inside this struct's own
					// members aborts only the struct's remaining members
					// (the nested walkRange call already stopped early);
					// it does not abort the properties outside the struct.
					log.Printf("decode: property %d (%s): %v", index, p.Name, err)
					values = append(values, Struct(memberFields))
					break
				}
				values = append(values, Struct(memberFields))
				continue
			}

			var mapInfo *EventMapInfo
			if p.MapName != "" && enumInType(p.InType) {
				mapInfo, _ = w.formatter.EventMapInfo(p.MapName)
			}

			v, consumed, err := w.formatOne(p, propLength, mapInfo)
			if err != nil {
				// Formatter failure on one property is non-fatal: log a
				// diagnostic, keep whatever elements were already decoded
				// for this property, and move on to the next property
				// rather than aborting the rest of the event (spec.md §7's
				// "abort the offending property ... continue the session").
				log.Printf("decode: property %d (%s): %v", index, p.Name, err)
				break
			}
			values = append(values, v)
			if consumed > len(w.userData) {
				consumed = len(w.userData)
			}
			w.userData = w.userData[consumed:]
		}

		var fv Value
		if isArray {
			fv = Array(values)
		} else if len(values) > 0 {
			fv = values[0]
		} else {
			fv = Null()
		}
		fields = append(fields, StructField{Name: p.Name, Value: fv})
	}
	return fields, nil
}

func (w *walker) cacheScalar(index uint16, t InType) {
	switch t {
	case InTypeInt8, InTypeUint8:
		if len(w.userData) >= 1 {
			w.intValues[index] = uint64(w.userData[0])
		}
	case InTypeInt16, InTypeUint16:
		if len(w.userData) >= 2 {
			w.intValues[index] = uint64(newCursor(w.userData[:2]).u16())
		}
	case InTypeInt32, InTypeUint32, InTypeHexInt32:
		if len(w.userData) >= 4 {
			w.intValues[index] = uint64(newCursor(w.userData[:4]).u32())
		}
	}
}

func (w *walker) resolveLength(index uint16, p *PropertyInfo) (uint16, error) {
	if p.OutType == OutTypeIPv6 && p.InType == InTypeBinary && p.Length == 0 &&
		p.Flags&(PropertyParamLength|PropertyParamFixedLength) != 0 {
		return 16, nil // special case for incorrectly-defined IPv6 addresses
	}
	if p.Flags&PropertyParamLength != 0 {
		if p.LengthPropertyIndex >= index {
			return 0, fmt.Errorf("invalid length_property_index %d at index %d", p.LengthPropertyIndex, index)
		}
		return uint16(w.intValues[p.LengthPropertyIndex]), nil
	}
	return p.Length, nil
}

func (w *walker) resolveCount(index uint16, p *PropertyInfo) (count uint16, isArray bool, err error) {
	if p.Flags&PropertyParamCount != 0 {
		if p.CountPropertyIndex >= index {
			return 0, false, fmt.Errorf("invalid count_property_index %d at index %d", p.CountPropertyIndex, index)
		}
		return uint16(w.intValues[p.CountPropertyIndex]), true, nil
	}
	if p.Count == 1 {
		return 1, p.Flags&PropertyParamFixedCount != 0, nil
	}
	return p.Count, true, nil
}

func (w *walker) formatOne(p *PropertyInfo, propLength uint16, mapInfo *EventMapInfo) (Value, int, error) {
	// Zero-length counted strings and NULL in-type are materialized as
	// the empty string without invoking the formatter.
	if propLength == 0 && p.InType == InTypeNull {
		return Str(""), 0, nil
	}
	if propLength == 0 && p.Flags&(PropertyParamLength|PropertyParamFixedLength) != 0 &&
		(p.InType == InTypeUnicodeString || p.InType == InTypeAnsiString) {
		return Str(""), 0, nil
	}

	outType := p.OutType
	if outType == OutTypeNoPrint {
		outType = OutTypeNull
	}

	// A conforming Formatter grows its own buffer internally (see
	// growAndRetry) and only ever returns ErrInvalidEventData as a
	// retryable status; every other error is terminal for this property.
	for {
		v, consumed, err := w.formatter.FormatProperty(p.InType, outType, w.pointerSize, propLength, mapInfo, w.userData)
		if err == nil {
			return v, consumed, nil
		}
		if err == ErrInvalidEventData && mapInfo != nil {
			mapInfo = nil
			continue
		}
		return Value{}, 0, err
	}
}

// ErrInvalidEventData is returned by a Formatter when TdhFormatProperty
// reports ERROR_EVT_INVALID_EVENT_DATA; Walk retries once without the
// enumeration map, the same recovery the property walk algorithm
// specifies for a map that doesn't actually describe the wire data.
var ErrInvalidEventData error = fmt.Errorf("invalid event data")
