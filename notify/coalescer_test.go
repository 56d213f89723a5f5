package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushFlushesAtMaxCount(t *testing.T) {
	var mu sync.Mutex
	var msgs []Message
	c := New(10, time.Hour, func(m Message) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
	})
	defer c.Stop()

	for i := 0; i < 25; i++ {
		c.NotifyPush(i)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, msgs, 2) // two full batches of 10; 5 remain pending, unflushed
	require.Equal(t, Message{Kind: KindPush, Index: 0, Count: 10}, msgs[0])
	require.Equal(t, Message{Kind: KindPush, Index: 10, Count: 10}, msgs[1])
}

func TestCoverageNoOverlapNoGap(t *testing.T) {
	var mu sync.Mutex
	var msgs []Message
	c := New(1000, 10*time.Millisecond, func(m Message) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
	})

	const total = 100000
	for i := 0; i < total; i++ {
		c.NotifyPush(i)
	}
	time.Sleep(100 * time.Millisecond) // let the final partial batch flush via ticker
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	sum := 0
	expectedNext := 0
	for _, m := range msgs {
		require.Equal(t, expectedNext, m.Index)
		sum += m.Count
		expectedNext = m.Index + m.Count
	}
	require.Equal(t, total, sum)
}

func TestNonConsecutivePushPanics(t *testing.T) {
	c := New(10, time.Hour, func(Message) {})
	defer c.Stop()
	c.NotifyPush(0)
	require.Panics(t, func() { c.NotifyPush(5) })
}

func TestRemoveShiftsPendingIndex(t *testing.T) {
	var mu sync.Mutex
	var msgs []Message
	c := New(10, time.Hour, func(m Message) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
	})
	defer c.Stop()

	c.NotifyPush(5)
	c.NotifyRemove(2) // below the pending window [5, 6)
	require.Equal(t, 4, c.pendingIndex)
}

func TestRemoveInsidePendingWindowShrinksCountWithoutPosting(t *testing.T) {
	var mu sync.Mutex
	var msgs []Message
	c := New(10, time.Hour, func(m Message) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
	})
	defer c.Stop()

	c.NotifyPush(5)
	c.NotifyPush(6)
	c.NotifyPush(7) // pending window is now [5, 8), pendingCount == 3

	c.NotifyRemove(6) // falls inside the unflushed window

	require.Equal(t, 5, c.pendingIndex)
	require.Equal(t, 2, c.pendingCount)

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, msgs)
}
