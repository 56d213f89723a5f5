// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package decode walks a self-describing event-property schema (a
// TRACE_EVENT_INFO-style property list) over a raw user-data byte buffer
// and produces a typed, ordered PropertyValue tree.
package decode

import (
	"encoding/binary"
	"unicode/utf16"
)

// cursor is a little-endian byte reader over a property info blob or a
// raw user-data buffer. ETW wire data is always little-endian regardless
// of host order.
type cursor struct {
	buf []byte
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

func (c *cursor) len() int { return len(c.buf) }

func (c *cursor) skip(n int) {
	if n > len(c.buf) {
		n = len(c.buf)
	}
	c.buf = c.buf[n:]
}

func (c *cursor) bytes(n int) []byte {
	if n > len(c.buf) {
		n = len(c.buf)
	}
	x := c.buf[:n]
	c.buf = c.buf[n:]
	return x
}

func (c *cursor) u8() uint8 {
	if len(c.buf) < 1 {
		return 0
	}
	x := c.buf[0]
	c.buf = c.buf[1:]
	return x
}

func (c *cursor) u16() uint16 {
	if len(c.buf) < 2 {
		return 0
	}
	x := binary.LittleEndian.Uint16(c.buf)
	c.buf = c.buf[2:]
	return x
}

func (c *cursor) u32() uint32 {
	if len(c.buf) < 4 {
		return 0
	}
	x := binary.LittleEndian.Uint32(c.buf)
	c.buf = c.buf[4:]
	return x
}

func (c *cursor) u64() uint64 {
	if len(c.buf) < 8 {
		return 0
	}
	x := binary.LittleEndian.Uint64(c.buf)
	c.buf = c.buf[8:]
	return x
}

// u16cstringAt decodes a NUL-terminated UTF-16LE string from infoBlob
// starting at byte offset off, the way property and map names are stored
// in TRACE_EVENT_INFO blobs. Returns "" if off is out of range.
func u16cstringAt(infoBlob []byte, off uint32) string {
	if int(off) >= len(infoBlob) {
		return ""
	}
	b := infoBlob[off:]
	var units []uint16
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// u16cstring decodes a NUL-terminated UTF-16LE string starting at the
// cursor and advances past the terminator.
func (c *cursor) u16cstring() string {
	var units []uint16
	i := 0
	for ; i+1 < len(c.buf); i += 2 {
		u := binary.LittleEndian.Uint16(c.buf[i:])
		if u == 0 {
			i += 2
			break
		}
		units = append(units, u)
	}
	c.buf = c.buf[min(i, len(c.buf)):]
	return string(utf16.Decode(units))
}
