package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T, size int) (*Loop, context.CancelFunc) {
	t.Helper()
	l := NewLoop(size, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l, _ := startLoop(t, 16)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		if err := l.Post("append", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Post() error: %v", err)
		}
	}
	if err := l.Do(context.Background(), "barrier", func() error { return nil }); err != nil {
		t.Fatalf("Do() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
	if len(got) != 10 {
		t.Fatalf("ran %d tasks, want 10", len(got))
	}
}

func TestLoop_DoReturnsTaskError(t *testing.T) {
	l, _ := startLoop(t, 4)
	want := errors.New("boom")
	if err := l.Do(context.Background(), "fail", func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("Do() error = %v, want %v", err, want)
	}
}

func TestLoop_RecoversPanics(t *testing.T) {
	l, _ := startLoop(t, 4)
	if err := l.Do(context.Background(), "panic", func() error { panic("bad") }); err == nil {
		t.Fatal("Do() returned nil for panicking task")
	}
	if err := l.Do(context.Background(), "after", func() error { return nil }); err != nil {
		t.Fatalf("loop did not survive panic: %v", err)
	}
}

func TestLoop_PostFailsWhenFull(t *testing.T) {
	l := NewLoop(1, nil)
	if err := l.Post("first", func() {}); err != nil {
		t.Fatalf("first Post() error: %v", err)
	}
	if err := l.Post("second", func() {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Post() error = %v, want ErrQueueFull", err)
	}
}

func TestLoop_StoppedLoopRejectsWork(t *testing.T) {
	l := NewLoop(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx)

	if err := l.Post("late", func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Post() error = %v, want ErrStopped", err)
	}
	if err := l.Do(context.Background(), "late", func() error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("Do() error = %v, want ErrStopped", err)
	}
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l, _ := startLoop(t, 4)
	release := make(chan struct{})
	defer close(release)
	if err := l.Post("block", func() { <-release }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Do(ctx, "waits", func() error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() error = %v, want deadline exceeded", err)
	}
}
