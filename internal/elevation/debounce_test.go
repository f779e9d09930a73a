package elevation

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CollapsesTriggers(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger("k", func() { fired.Add(1) })
	}
	if !d.Pending("k") {
		t.Fatalf("callback should be pending")
	}

	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	// Give a stray second fire a chance to show up.
	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
	if d.Pending("k") {
		t.Fatalf("callback should have cleared")
	}
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	d := NewDebouncer(5 * time.Millisecond)
	defer d.Stop()

	var a, b atomic.Int32
	d.Trigger("a", func() { a.Add(1) })
	d.Trigger("b", func() { b.Add(1) })

	deadline := time.Now().Add(time.Second)
	for (a.Load() == 0 || b.Load() == 0) && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("a=%d b=%d, want 1/1", a.Load(), b.Load())
	}
}

func TestDebouncer_StopCancels(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	var fired atomic.Int32
	d.Trigger("k", func() { fired.Add(1) })
	d.Stop()

	time.Sleep(40 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("stopped debouncer must not fire")
	}
	d.Trigger("k", func() { fired.Add(1) })
	time.Sleep(40 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("trigger after stop must be rejected")
	}
}
