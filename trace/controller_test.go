package trace

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tracehound/ketrace/schema"
)

type fakeBackend struct {
	mu            sync.Mutex
	startCalls    int
	failFirstWith error
	runErr        error
	blockRun      bool
	stopped       bool
	lastGroupMask [8]uint32

	stopCh chan struct{}
}

// startSession mimics ProcessTrace's real blocking behavior: when
// blockRun is set, run() does not return until stop() closes stopCh, so
// tests can observe the Running state persisting across a Start call
// that only waits out the startup window.
func (b *fakeBackend) startSession(name string, groupMask [8]uint32, ids []schema.ClassicEventID, onEvent OnEvent, onStackWalk OnRawStackWalk) (func() error, func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startCalls++
	b.lastGroupMask = groupMask
	if b.startCalls == 1 && b.failFirstWith != nil {
		return nil, nil, b.failFirstWith
	}
	stopCh := make(chan struct{})
	b.stopCh = stopCh
	run := func() error {
		if b.blockRun {
			<-stopCh
		}
		return b.runErr
	}
	stop := func() error {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()
		close(stopCh)
		return nil
	}
	return run, stop, nil
}

func (b *fakeBackend) alreadyExists(err error) bool {
	return errors.Is(err, errAlreadyExists)
}

func (b *fakeBackend) forceStopStale(string) error { return nil }

func (b *fakeBackend) sessionName() string { return "TestSession" }

var errAlreadyExists = errors.New("already exists")

func TestStartThenStopWithNoEvents(t *testing.T) {
	reg := schema.DefaultRegistry
	b := &fakeBackend{blockRun: true}
	c := New(reg, b)

	require.Equal(t, StateStopped, c.State())
	err := c.Start(nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StateRunning, c.State())

	err = c.Stop()
	require.NoError(t, err)
	require.Equal(t, StateStopped, c.State())
	require.True(t, b.stopped)
}

func TestStartRejectedWhenAlreadyRunning(t *testing.T) {
	reg := schema.DefaultRegistry
	b := &fakeBackend{blockRun: true}
	c := New(reg, b)
	require.NoError(t, c.Start(nil, nil, nil))

	err := c.Start(nil, nil, nil)
	require.ErrorIs(t, err, ErrWrongState)

	require.NoError(t, c.Stop())
}

func TestStartRetriesOnceOnAlreadyExists(t *testing.T) {
	reg := schema.DefaultRegistry
	b := &fakeBackend{failFirstWith: errAlreadyExists, blockRun: true}
	c := New(reg, b)

	require.NoError(t, c.Start(nil, nil, nil))
	require.Equal(t, 2, b.startCalls)
	require.NoError(t, c.Stop())
}

func TestEarlyConsumerFailureSurfacesFromStart(t *testing.T) {
	reg := schema.DefaultRegistry
	b := &fakeBackend{runErr: errors.New("process trace died immediately")}
	c := New(reg, b)

	err := c.Start(nil, nil, nil)
	require.Error(t, err)
	require.Eventually(t, func() bool { return c.State() == StateStopped }, time.Second, 5*time.Millisecond)
}

func TestGroupMaskReflectsEnabledMajor(t *testing.T) {
	reg := schema.DefaultRegistry
	b := &fakeBackend{blockRun: true}
	c := New(reg, b)

	idx, ok := reg.MajorIndex(schema.ProcessMajorName)
	require.True(t, ok)
	require.NoError(t, c.Enables().ToggleMajor(idx, true))

	require.NoError(t, c.Start(nil, nil, nil))
	defer c.Stop()

	require.NotEqual(t, [8]uint32{}, b.lastGroupMask)
}
