package eventlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendThenGetAllIndices(t *testing.T) {
	l := New[int]()
	const n = 5000
	for i := 0; i < n; i++ {
		idx := l.Append(i * 7)
		require.Equal(t, i, idx)
	}
	require.Equal(t, n, l.Len())

	for i := 0; i < n; i++ {
		v, ok := l.Get(i)
		require.True(t, ok)
		require.Equal(t, i*7, v)
	}
	_, ok := l.Get(n)
	require.False(t, ok)
}

func TestGetCursorEndsAtLastRequested(t *testing.T) {
	l := New[int]()
	for i := 0; i < 100; i++ {
		l.Append(i)
	}
	l.Get(10)
	l.Get(90)
	l.Get(3)
	idx, ok := l.CursorIndex()
	require.True(t, ok)
	require.Equal(t, 3, idx)
}

func TestConcurrentAppendAndGet(t *testing.T) {
	l := New[int]()
	const n = 20000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			l.Append(i)
		}
	}()

	// Concurrent readers never observe an index beyond what Len()
	// reports, and what they do observe matches the appended value.
	for i := 0; i < 1000; i++ {
		ln := l.Len()
		if ln == 0 {
			continue
		}
		v, ok := l.Get(ln - 1)
		require.True(t, ok)
		require.Equal(t, ln-1, v)
	}
	wg.Wait()
	require.Equal(t, n, l.Len())
}
