// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eventlog implements the append-mostly, randomly-indexable event
// sequence shared between the trace ingestion thread and a UI reader
// (spec.md §4.5), using a growable segmented array per the chunk-list
// design note in spec.md §9 rather than the original's intrusive linked
// list.
package eventlog

import (
	"errors"
	"sync"
	"sync/atomic"
)

const chunkShift = 10
const chunkSize = 1 << chunkShift // 1024
const chunkMask = chunkSize - 1

// List is a concurrent, append-only sequence of T. One producer appends
// (the trace consumer thread); any number of readers call Get/Len
// concurrently with the producer and each other. Grounded on
// wbrown-janus-datalog/datalog/storage/database.go's sync.RWMutex +
// atomic.Uint64 split between a fast atomic length and a mutex-guarded
// mutable structure.
type List[T any] struct {
	length atomic.Uint64

	writeMu sync.Mutex
	chunks  [][]T // append-only; only writeMu holder appends a new chunk or element

	cursorMu  sync.Mutex
	cursorIdx uint64 // index the cursor currently points at; valid only if length > 0
}

// New returns an empty List.
func New[T any]() *List[T] {
	return &List[T]{chunks: make([][]T, 0, 16)}
}

// Len returns the number of appended entries. Acquire-load: any reader
// observing Len() >= i+1 may safely call Get(i).
func (l *List[T]) Len() int {
	return int(l.length.Load())
}

// Append adds entry to the end of the list and returns its index.
func (l *List[T]) Append(entry T) int {
	l.writeMu.Lock()
	idx := l.length.Load()
	chunkIdx := idx >> chunkShift
	for uint64(len(l.chunks)) <= chunkIdx {
		l.chunks = append(l.chunks, make([]T, 0, chunkSize))
	}
	l.chunks[chunkIdx] = append(l.chunks[chunkIdx], entry)
	l.writeMu.Unlock()

	l.length.Add(1) // release: publishes entry to readers that observe the new length
	return int(idx)
}

// Get returns the entry at index, or the zero value and false if
// index >= Len(). The internal reader cursor is set straight to index:
// a segmented array reaches any index in O(1), so there is no stepping
// from the previous cursor position or from either end of the list.
func (l *List[T]) Get(index int) (entry T, ok bool) {
	n := l.Len()
	if index < 0 || index >= n {
		var zero T
		return zero, false
	}

	l.cursorMu.Lock()
	l.cursorIdx = uint64(index)
	l.cursorMu.Unlock()

	chunkIdx := uint64(index) >> chunkShift
	slot := uint64(index) & chunkMask
	l.writeMu.Lock()
	v := l.chunks[chunkIdx][slot]
	l.writeMu.Unlock()
	return v, true
}

// ErrRemoveNotSupported is returned by Remove: within a session, appended
// entries are never reordered or removed (spec.md §4.5's invariant). The
// operation exists in the source for a pre-session editing mode this
// module doesn't carry forward; kept as a named, explicit error rather
// than silently no-oping.
var ErrRemoveNotSupported = errors.New("eventlog: remove is not supported during an active session")

// Remove always fails; see ErrRemoveNotSupported.
func (l *List[T]) Remove(index int) error {
	return ErrRemoveNotSupported
}

// CursorIndex returns the last index requested via Get, for tests that
// assert the cursor ends at the last requested index (spec.md §8,
// invariant 2).
func (l *List[T]) CursorIndex() (int, bool) {
	l.cursorMu.Lock()
	defer l.cursorMu.Unlock()
	if l.Len() == 0 {
		return 0, false
	}
	return int(l.cursorIdx), true
}
