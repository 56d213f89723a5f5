// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace drives the kernel trace session lifecycle: starting and
// stopping the kernel logger, programming enable masks and per-event
// stack-capture lists, and consuming the callback-driven event stream on
// a dedicated goroutine (spec.md §4.2).
package trace

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tracehound/ketrace/decode"
	"github.com/tracehound/ketrace/schema"
)

// State is the controller's lifecycle state machine:
// Stopped -> Starting -> Running -> Stopping -> Stopped.
type State uint8

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	}
	return "Unknown"
}

// OnEvent is invoked once per decoded kernel event, on the consumer
// goroutine. It must not block on unbounded work.
type OnEvent func(*decode.DecodedEvent)

// OnRawStackWalk is invoked for each raw stack-walk record, for the
// correlator to attach to its originating event.
type OnRawStackWalk func(threadID uint32, timestamp decode.FileTime, frames []uint64)

// OnComplete reports the first error that ends the session (nil on a
// clean stop), on the consumer goroutine after ProcessTrace returns.
type OnComplete func(error)

// backend is the platform-specific half of session control: issuing the
// real kernel-logger syscalls. controller_windows.go implements it with
// golang.org/x/sys/windows; controller_other.go stubs it out.
type backend interface {
	// startSession installs session properties, programs the group mask
	// and classic event ids, opens the consumer handle, and returns a
	// function that runs the blocking process-trace loop (to be called
	// on a dedicated goroutine) plus a function that stops the session.
	startSession(sessionName string, groupMask [8]uint32, classicIDs []schema.ClassicEventID, onEvent OnEvent, onStackWalk OnRawStackWalk) (run func() error, stop func() error, err error)
	// alreadyExists reports whether err corresponds to the OS's
	// "session already exists" status, the one retryable start error.
	alreadyExists(err error) bool
	// forceStopStale attempts to stop a pre-existing session with the
	// given name so start can retry once.
	forceStopStale(sessionName string) error
	sessionName() string
}

// ErrWrongState is returned when an operation is attempted outside the
// state it's valid in (start outside Stopped; set_enables mid-session is
// allowed but documented as not taking effect until next start).
var ErrWrongState = errors.New("trace: controller is not in the required state")

// ErrUnsupportedPlatform is returned by backends on non-Windows builds;
// the kernel trace interface is Windows-only (spec.md §6).
var ErrUnsupportedPlatform = errors.New("trace: kernel event tracing requires Windows")

// startupWindow is how long start waits for an early synchronous failure
// from the consumer goroutine before declaring success and returning
// with the session left running (spec.md §4.2).
const startupWindow = 200 * time.Millisecond

// Controller owns one kernel trace session's lifecycle. It is not safe
// for concurrent Start/Stop calls or EnableState mutations from multiple
// goroutines beyond what its internal mutex serializes; the event/stack-walk
// callbacks it invokes run on its own consumer goroutine.
type Controller struct {
	reg     *schema.Registry
	enables *schema.EnableState
	backend backend

	mu    sync.Mutex
	state State
	stop  func() error
	wg    sync.WaitGroup
}

// New constructs a Controller bound to reg's event schema, with every
// major/minor initially disabled.
func New(reg *schema.Registry, b backend) *Controller {
	return &Controller{
		reg:     reg,
		enables: schema.NewEnableState(reg),
		backend: b,
		state:   StateStopped,
	}
}

// Enables exposes the controller's EnableState for toggling. Mutations
// only take effect on the next Start (spec.md §4.2, §9's documented
// "restart required" behavior).
func (c *Controller) Enables() *schema.EnableState { return c.enables }

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins a kernel trace session. It is rejected outside Stopped.
// onEvent and onStackWalk run on the dedicated consumer goroutine;
// onComplete is invoked exactly once when the session ends, whether from
// a later failure or a clean Stop.
func (c *Controller) Start(onEvent OnEvent, onStackWalk OnRawStackWalk, onComplete OnComplete) error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return fmt.Errorf("%w: start requires Stopped, got %s", ErrWrongState, c.state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	groupMask := c.reg.GroupMask(c.enables)
	classicIDs := c.reg.ClassicEventIDs(c.enables)
	sessionName := c.backend.sessionName()

	run, stop, err := c.backend.startSession(sessionName, groupMask, classicIDs, onEvent, onStackWalk)
	if c.backend.alreadyExists(err) {
		if serr := c.backend.forceStopStale(sessionName); serr != nil {
			c.mu.Lock()
			c.state = StateStopped
			c.mu.Unlock()
			return fmt.Errorf("trace: stale session exists and could not be stopped: %w", serr)
		}
		run, stop, err = c.backend.startSession(sessionName, groupMask, classicIDs, onEvent, onStackWalk)
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		return fmt.Errorf("trace: failed to start session: %w", err)
	}

	c.mu.Lock()
	c.stop = stop
	c.state = StateRunning
	c.mu.Unlock()

	earlyErr := make(chan error, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := run()
		select {
		case earlyErr <- err:
		default:
			// Startup window already elapsed; report via onComplete only.
		}
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		if onComplete != nil {
			onComplete(err)
		}
	}()

	select {
	case err := <-earlyErr:
		if err != nil {
			return fmt.Errorf("trace: consumer failed during startup: %w", err)
		}
		return nil
	case <-time.After(startupWindow):
		return nil
	}
}

// Stop signals the session to stop, closes the consumer handle, and
// joins the consumer goroutine. Safe to call multiple times; a call in
// Stopped is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	stop := c.stop
	c.mu.Unlock()

	var err error
	if stop != nil {
		err = stop()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	return err
}
