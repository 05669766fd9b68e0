package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ning0612/lzxauto/internal/domain"
)

func TestDispatcher_ProcessesEveryItem(t *testing.T) {
	var handled atomic.Int64
	var active, maxActive atomic.Int64

	d := New(Config{Workers: 4, Ceiling: 16}, HandlerFunc(func(domain.WorkItem) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(100 * time.Microsecond)
		active.Add(-1)
		handled.Add(1)
	}))

	for i := 0; i < 500; i++ {
		item := domain.WorkItem{Path: fmt.Sprintf("/data/f%d", i), Size: 1}
		if err := d.Submit(context.Background(), item); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if got := d.InFlight(); got > 16 {
			t.Fatalf("in-flight %d exceeds ceiling", got)
		}
	}
	d.Drain()

	if handled.Load() != 500 {
		t.Errorf("handled = %d, want 500", handled.Load())
	}
	if d.Peak() > 16 {
		t.Errorf("Peak() = %d exceeds ceiling 16", d.Peak())
	}
	if d.Peak() < 1 {
		t.Errorf("Peak() = %d, expected at least 1", d.Peak())
	}
	if maxActive.Load() > 4 {
		t.Errorf("%d handlers ran concurrently with 4 workers", maxActive.Load())
	}
	if d.InFlight() != 0 {
		t.Errorf("InFlight() = %d after Drain", d.InFlight())
	}
}

func TestDispatcher_SubmitBlocksAtCeiling(t *testing.T) {
	release := make(chan struct{})
	var handled atomic.Int64

	d := New(Config{Workers: 1, Ceiling: 3}, HandlerFunc(func(domain.WorkItem) {
		<-release
		handled.Add(1)
	}))

	for i := 0; i < 3; i++ {
		if err := d.Submit(context.Background(), domain.WorkItem{Path: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Submit(ctx, domain.WorkItem{Path: "overflow"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit() at ceiling = %v, want DeadlineExceeded", err)
	}
	if d.InFlight() != 3 {
		t.Errorf("InFlight() = %d, want 3", d.InFlight())
	}

	close(release)
	d.Drain()

	if handled.Load() != 3 {
		t.Errorf("handled = %d, want 3 (rejected item must not run)", handled.Load())
	}
}

func TestDispatcher_SubmitUnblocksWhenSlotFrees(t *testing.T) {
	release := make(chan struct{}, 10)
	d := New(Config{Workers: 2, Ceiling: 2}, HandlerFunc(func(domain.WorkItem) {
		<-release
	}))

	for i := 0; i < 2; i++ {
		if err := d.Submit(context.Background(), domain.WorkItem{}); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- d.Submit(context.Background(), domain.WorkItem{})
	}()

	select {
	case <-done:
		t.Fatal("Submit should block while the ceiling is reached")
	case <-time.After(30 * time.Millisecond):
	}

	release <- struct{}{}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not unblock after a slot was released")
	}

	release <- struct{}{}
	release <- struct{}{}
	d.Drain()
}

func TestDispatcher_CancelledContext(t *testing.T) {
	var handled atomic.Int64
	d := New(Config{Workers: 1, Ceiling: 4}, HandlerFunc(func(domain.WorkItem) {
		handled.Add(1)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Submit(ctx, domain.WorkItem{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() = %v, want context.Canceled", err)
	}
	d.Drain()

	if handled.Load() != 0 {
		t.Errorf("handled = %d, want 0", handled.Load())
	}
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	var handled atomic.Int64
	d := New(Config{Workers: 2, Ceiling: 4}, HandlerFunc(func(item domain.WorkItem) {
		if item.Path == "boom" {
			panic("bad item")
		}
		handled.Add(1)
	}))

	for _, p := range []string{"a", "boom", "b", "c"} {
		if err := d.Submit(context.Background(), domain.WorkItem{Path: p}); err != nil {
			t.Fatal(err)
		}
	}
	d.Drain()

	if handled.Load() != 3 {
		t.Errorf("handled = %d, want 3", handled.Load())
	}
	if d.Panicked() != 1 {
		t.Errorf("Panicked() = %d, want 1", d.Panicked())
	}
	if d.InFlight() != 0 {
		t.Errorf("slot leaked: InFlight() = %d", d.InFlight())
	}
}

func TestDispatcher_SubmitAfterDrain(t *testing.T) {
	d := New(Config{Workers: 1, Ceiling: 1}, HandlerFunc(func(domain.WorkItem) {}))
	d.Drain()
	d.Drain()

	if err := d.Submit(context.Background(), domain.WorkItem{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Drain = %v, want ErrClosed", err)
	}
}

func TestDispatcher_NonPositiveConfig(t *testing.T) {
	d := New(Config{}, HandlerFunc(func(domain.WorkItem) {}))
	if d.Ceiling() != 1 {
		t.Errorf("Ceiling() = %d, want 1", d.Ceiling())
	}
	if err := d.Submit(context.Background(), domain.WorkItem{}); err != nil {
		t.Fatal(err)
	}
	d.Drain()
}
