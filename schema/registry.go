// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package schema holds the static table of kernel event groups (majors and
// their minors), the per-session EnableState, and the derivation of a
// kernel group mask and classic-event-id list from that state.
package schema

import (
	"fmt"

	"github.com/google/uuid"
)

// Minor describes one opcode within a major event group.
type Minor struct {
	Name   string
	Opcode uint8
}

// Major describes one kernel event group: a display name, the provider
// GUID its minors are reported under, and the 32-bit enable flag whose
// high 3 bits select a word of the 8-word group mask (bits [31:29]) and
// whose low 29 bits are ORed into that word (bits [28:0]).
type Major struct {
	Name   string
	GUID   uuid.UUID
	Flag   uint32
	Minors []Minor
}

// wordIndex returns the group-mask word this flag belongs in.
func (m Major) wordIndex() int {
	return int(m.Flag >> 29)
}

// Registry is the immutable, globally addressable table of event
// descriptors. It is the single source of truth for enable semantics and
// for decoder/filter name lookup.
type Registry struct {
	Majors []Major

	byMajorName map[string]int
	byMinorName []map[string]int // indexed by major index
}

// NewRegistry builds a Registry from a static major table, indexing it for
// fast name lookup the way the event decoder and filter engine need.
func NewRegistry(majors []Major) *Registry {
	r := &Registry{
		Majors:      majors,
		byMajorName: make(map[string]int, len(majors)),
		byMinorName: make([]map[string]int, len(majors)),
	}
	for i, maj := range majors {
		r.byMajorName[maj.Name] = i
		minorMap := make(map[string]int, len(maj.Minors))
		for j, min := range maj.Minors {
			minorMap[min.Name] = j
		}
		r.byMinorName[i] = minorMap
	}
	return r
}

// MajorIndex returns the index of the major group named name.
func (r *Registry) MajorIndex(name string) (int, bool) {
	i, ok := r.byMajorName[name]
	return i, ok
}

// MinorIndex returns the index of the minor named name within majorIdx.
func (r *Registry) MinorIndex(majorIdx int, name string) (int, bool) {
	if majorIdx < 0 || majorIdx >= len(r.byMinorName) {
		return 0, false
	}
	i, ok := r.byMinorName[majorIdx][name]
	return i, ok
}

// EnableState is per-major and per-minor enable booleans. Minors length
// must match the registry's minor count for that major.
type EnableState struct {
	reg    *Registry
	majors []bool
	minors [][]bool
}

// NewEnableState builds an EnableState with every major and minor
// disabled, sized against reg.
func NewEnableState(reg *Registry) *EnableState {
	es := &EnableState{
		reg:    reg,
		majors: make([]bool, len(reg.Majors)),
		minors: make([][]bool, len(reg.Majors)),
	}
	for i, maj := range reg.Majors {
		es.minors[i] = make([]bool, len(maj.Minors))
	}
	return es
}

// ToggleMajor sets the enable bit for major i.
func (es *EnableState) ToggleMajor(i int, on bool) error {
	if i < 0 || i >= len(es.majors) {
		return fmt.Errorf("schema: major index %d out of range [0,%d)", i, len(es.majors))
	}
	es.majors[i] = on
	return nil
}

// ToggleMinor sets the enable bit for minor j of major i.
func (es *EnableState) ToggleMinor(i, j int, on bool) error {
	if i < 0 || i >= len(es.minors) {
		return fmt.Errorf("schema: major index %d out of range [0,%d)", i, len(es.minors))
	}
	if j < 0 || j >= len(es.minors[i]) {
		return fmt.Errorf("schema: minor index %d out of range [0,%d) for major %d", j, len(es.minors[i]), i)
	}
	es.minors[i][j] = on
	return nil
}

// MajorEnabled reports whether major i is enabled.
func (es *EnableState) MajorEnabled(i int) bool { return es.majors[i] }

// MinorEnabled reports whether minor j of major i is enabled.
func (es *EnableState) MinorEnabled(i, j int) bool { return es.minors[i][j] }

// Set replaces the whole enable vector, validating shape against the
// registry the way the original's set_events_enables does: a mismatched
// shape is rejected wholesale rather than partially applied.
func (es *EnableState) Set(majors []bool, minors [][]bool) error {
	if len(majors) != len(es.majors) {
		return fmt.Errorf("schema: invalid length of majors, expected %d, found %d", len(es.majors), len(majors))
	}
	if len(minors) != len(es.minors) {
		return fmt.Errorf("schema: invalid length of minors, expected %d, found %d", len(es.minors), len(minors))
	}
	for i := range minors {
		if len(minors[i]) != len(es.minors[i]) {
			return fmt.Errorf("schema: invalid length of minor at major %d, expected %d, found %d", i, len(es.minors[i]), len(minors[i]))
		}
	}
	copy(es.majors, majors)
	for i := range minors {
		copy(es.minors[i], minors[i])
	}
	return nil
}

// GroupMask derives the 8-word kernel group mask from es: the bitwise OR,
// per word, of enabled majors' flags placed in the word their high bits
// select. NoSysConfig and the base process flag are always included, the
// minimum viable stream a consumer always wants regardless of toggles.
func (r *Registry) GroupMask(es *EnableState) [8]uint32 {
	var masks [8]uint32
	orIn := func(flag uint32) {
		word := int(flag >> 29)
		masks[word] |= flag & 0x1fffffff
	}
	if i, ok := r.MajorIndex(NoSysConfigName); ok {
		_ = i
		orIn(NoSysConfigFlag)
	}
	if i, ok := r.MajorIndex(ProcessMajorName); ok {
		_ = i
		orIn(ProcessBaseFlag)
	}
	for i, maj := range r.Majors {
		if !es.majors[i] {
			continue
		}
		orIn(maj.Flag)
	}
	return masks
}

// ClassicEventID identifies one enabled (major, minor) pair for kernel
// stack-capture registration.
type ClassicEventID struct {
	ProviderGUID uuid.UUID
	Opcode       uint8
}

// ClassicEventIDs returns exactly one entry per enabled (major, minor)
// pair in es.
func (r *Registry) ClassicEventIDs(es *EnableState) []ClassicEventID {
	ids := make([]ClassicEventID, 0, 32)
	for i, maj := range r.Majors {
		if !es.majors[i] {
			continue
		}
		for j, min := range maj.Minors {
			if !es.minors[i][j] {
				continue
			}
			ids = append(ids, ClassicEventID{ProviderGUID: maj.GUID, Opcode: min.Opcode})
		}
	}
	return ids
}
