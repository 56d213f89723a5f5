// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package system wires the session controller, correlator, event log,
// filter engine, and notify coalescer into one explicit handle, replacing
// the original's process-wide singletons (spec.md §9).
package system

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tracehound/ketrace/correlate"
	"github.com/tracehound/ketrace/decode"
	"github.com/tracehound/ketrace/eventlog"
	"github.com/tracehound/ketrace/filter"
	"github.com/tracehound/ketrace/notify"
	"github.com/tracehound/ketrace/schema"
	"github.com/tracehound/ketrace/trace"
)

// NotifyMaxBatch and NotifyInterval are the coalescer defaults used by
// New, matching scenario (f)'s parameters.
const (
	NotifyMaxBatch = 1000
	NotifyInterval = 50 * time.Millisecond
)

// System is the single owning handle for one trace session's whole
// pipeline: controller callback -> correlator -> filter engine (pair
// matching, then the single-event expression deciding whether the event
// is kept) -> event log -> notify coalescer.
// Constructed once by the boot sequence and injected into the UI
// adapter, per spec.md §9's explicit "System handle" design note.
type System struct {
	Registry   *schema.Registry
	Controller *trace.Controller
	Correlator *correlate.Correlator
	Events     *eventlog.List[*Entry]
	Filter     *filter.Engine
	Notify     *notify.Coalescer

	log  *log.Logger
	lock *sessionLock

	mu      sync.Mutex
	started bool
}

// Options configures New; the zero value is valid and uses spec.md's
// documented defaults everywhere.
type Options struct {
	Logger      *log.Logger
	LockPath    string // "" uses the platform default
	NotifyMax   int    // 0 uses NotifyMaxBatch
	NotifyEvery time.Duration
	OnNotify    func(notify.Message)
}

// New constructs a System around ctrl, an already-built trace.Controller
// (trace.New with trace.NewWindowsBackend on Windows, or
// trace.NewStubBackend elsewhere), with an empty event log, no active
// filters, and every major/minor disabled.
func New(reg *schema.Registry, ctrl *trace.Controller, opts Options) *System {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	maxBatch := opts.NotifyMax
	if maxBatch <= 0 {
		maxBatch = NotifyMaxBatch
	}
	every := opts.NotifyEvery
	if every <= 0 {
		every = NotifyInterval
	}
	onNotify := opts.OnNotify
	if onNotify == nil {
		onNotify = func(notify.Message) {}
	}

	return &System{
		Registry:   reg,
		Controller: ctrl,
		Correlator: correlate.New(logger),
		Events:     eventlog.New[*Entry](),
		Filter:     filter.NewEngine(),
		Notify:     notify.New(maxBatch, every, onNotify),
		log:        logger,
	}
}

// onEvent is the trace.OnEvent callback: copy the decoded event into an
// Entry, register it with the correlator as awaiting a stack-walk, run
// it through the filter engine, and, if it survives, append it to the
// log and notify (spec.md §2's controller -> decoder -> correlator ->
// filter -> append -> notify pipeline).
func (s *System) onEvent(ev *decode.DecodedEvent) {
	entry := &Entry{Event: *ev}
	s.Correlator.Insert(ev.ThreadID, ev.Timestamp, entry, ev.EventName+"/"+ev.OpcodeName)

	if matched, result := s.Filter.MatchPairs(entry, func(pe filter.PairEvent) uint32 { return pe.ProcessID() }); matched && result.Paired != nil {
		if paired, ok := result.Paired.(*Entry); ok {
			entry.SetPaired(paired)
			paired.SetPaired(entry)
		}
	}

	if expr := s.Filter.Single(); expr != nil {
		keep, err := filter.Evaluate(expr, entry)
		if err != nil {
			s.log.Printf("system: filter evaluation error: %v", err)
		} else if !keep {
			return
		}
	}

	index := s.Events.Append(entry)
	s.Notify.NotifyPush(index)
}

// onStackWalk is the trace.OnRawStackWalk callback: resolve frames
// against the correlator's pending/cooled maps.
func (s *System) onStackWalk(threadID uint32, ts decode.FileTime, frames []uint64) {
	sw := &correlate.StackWalk{EventTimestamp: ts, ThreadID: threadID, Frames: make([]correlate.Frame, len(frames))}
	for i, addr := range frames {
		sw.Frames[i] = correlate.Frame{Address: addr}
	}
	s.Correlator.Resolve(threadID, ts, sw)
}

// Start acquires the single-instance lock and begins the trace session,
// wiring the controller's callbacks to this System's pipeline (spec.md
// §9's "single-instance lock on session start remains necessary").
func (s *System) Start(lockPath string, onComplete trace.OnComplete) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("system: already started")
	}
	s.mu.Unlock()

	lk, err := acquireSessionLock(lockPath)
	if err != nil {
		return err
	}

	if err := s.Controller.Start(s.onEvent, s.onStackWalk, onComplete); err != nil {
		lk.release()
		return err
	}

	s.mu.Lock()
	s.lock = lk
	s.started = true
	s.mu.Unlock()
	return nil
}

// Stop ends the trace session and releases the single-instance lock.
func (s *System) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	lk := s.lock
	s.lock = nil
	s.started = false
	s.mu.Unlock()

	err := s.Controller.Stop()
	if lk != nil {
		if lerr := lk.release(); lerr != nil && err == nil {
			err = lerr
		}
	}
	return err
}
