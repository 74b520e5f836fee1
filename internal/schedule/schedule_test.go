package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClock_RunsInDeadlineOrder(t *testing.T) {
	clock := NewManualClock()
	var order []string

	clock.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	clock.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	stopped := clock.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	clock.Advance(15 * time.Millisecond)
	assert.Equal(t, []string{"a"}, order)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(15 * time.Millisecond)
	assert.Equal(t, []string{"a", "c"}, order)
	assert.Equal(t, 30*time.Millisecond, clock.Now())
}

func TestManualClock_TaskSchedulingTask(t *testing.T) {
	clock := NewManualClock()
	fired := 0
	clock.AfterFunc(10*time.Millisecond, func() {
		clock.AfterFunc(10*time.Millisecond, func() { fired++ })
	})

	clock.Advance(25 * time.Millisecond)
	assert.Equal(t, 1, fired)
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	clock := NewManualClock()
	d := NewDebouncer(clock, 500*time.Millisecond)

	var calls []int
	for i := 1; i <= 10; i++ {
		v := i
		d.Schedule(func() { calls = append(calls, v) })
		clock.Advance(50 * time.Millisecond)
	}
	assert.Empty(t, calls)
	assert.True(t, d.Pending())

	clock.Advance(500 * time.Millisecond)
	require.Len(t, calls, 1)
	assert.Equal(t, 10, calls[0])
	assert.False(t, d.Pending())
}

func TestDebouncer_Cancel(t *testing.T) {
	clock := NewManualClock()
	d := NewDebouncer(clock, 80*time.Millisecond)

	fired := false
	d.Schedule(func() { fired = true })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())

	clock.Advance(time.Second)
	assert.False(t, fired)
}

func TestDebouncer_RealClock(t *testing.T) {
	d := NewDebouncer(nil, 5*time.Millisecond)
	var n atomic.Int32
	done := make(chan struct{})
	d.Schedule(func() { n.Add(1) })
	d.Schedule(func() { n.Add(1); close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced call never fired")
	}
	assert.Equal(t, int32(1), n.Load())
}
