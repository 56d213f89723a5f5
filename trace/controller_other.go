//go:build !windows

package trace

import "github.com/tracehound/ketrace/schema"

// StubBackend satisfies backend on platforms without kernel ETW, so the
// rest of the module (and its tests) build and run everywhere.
// startSession and forceStopStale report ErrUnsupportedPlatform;
// alreadyExists is always false and sessionName is empty.
type StubBackend struct{}

// NewStubBackend returns a backend that always fails to start a session.
// Non-Windows builds of cmd/ketrace construct a Controller with this so
// the binary still links and reports a clear error at runtime.
func NewStubBackend() *StubBackend { return &StubBackend{} }

func (StubBackend) startSession(string, [8]uint32, []schema.ClassicEventID, OnEvent, OnRawStackWalk) (func() error, func() error, error) {
	return nil, nil, ErrUnsupportedPlatform
}

func (StubBackend) alreadyExists(error) bool { return false }

func (StubBackend) forceStopStale(string) error { return ErrUnsupportedPlatform }

func (StubBackend) sessionName() string { return "" }
