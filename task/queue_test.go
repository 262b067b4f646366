package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFOSingleFlight(t *testing.T) {
	var mu sync.Mutex
	var order []int
	var active, maxActive int

	ch := ChannelFunc(func(ctx context.Context, kind Kind, payload any) (any, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		order = append(order, payload.(int))
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return payload, nil
	})

	q := New(Config{Channel: ch})
	defer q.Close()

	futs := make([]*Future, 0, 5)
	for i := 1; i <= 5; i++ {
		futs = append(futs, q.Submit(context.Background(), KindProcessFrame, i))
	}

	for i, fut := range futs {
		v, err := fut.Wait(context.Background())
		if err != nil {
			t.Fatalf("task %d failed: %v", i+1, err)
		}
		if v.(int) != i+1 {
			t.Errorf("task %d resolved with %v", i+1, v)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Errorf("expected at most 1 task in flight, saw %d", maxActive)
	}
	for i, p := range order {
		if p != i+1 {
			t.Fatalf("dispatch order %v, want ascending", order)
		}
	}
}

func TestQueueChannelError(t *testing.T) {
	boom := errors.New("decoder exploded")
	ch := ChannelFunc(func(ctx context.Context, kind Kind, payload any) (any, error) {
		return nil, boom
	})

	q := New(Config{Channel: ch})
	defer q.Close()

	fut := q.Submit(context.Background(), KindApplyFilter, nil)
	_, err := fut.Wait(context.Background())
	if !errors.Is(err, ErrChannelTask) {
		t.Fatalf("expected ErrChannelTask, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped channel error, got %v", err)
	}

	if st := q.Stats(); st.Failed != 1 {
		t.Errorf("expected 1 failed task, got %+v", st)
	}
}

func TestFutureSettlesExactlyOnce(t *testing.T) {
	ch := ChannelFunc(func(ctx context.Context, kind Kind, payload any) (any, error) {
		return 42, nil
	})

	q := New(Config{Channel: ch})
	defer q.Close()

	fut := q.Submit(context.Background(), KindProcessFrame, nil)
	<-fut.Done()

	for i := 0; i < 3; i++ {
		v, err := fut.Wait(context.Background())
		if err != nil || v.(int) != 42 {
			t.Fatalf("wait %d: got (%v, %v)", i, v, err)
		}
	}
}

func TestTaskTimeout(t *testing.T) {
	ch := ChannelFunc(func(ctx context.Context, kind Kind, payload any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	q := New(Config{Channel: ch, TaskTimeout: 20 * time.Millisecond})
	defer q.Close()

	fut := q.Submit(context.Background(), KindExtractAudio, nil)
	_, err := fut.Wait(context.Background())
	if !errors.Is(err, ErrTaskTimeout) {
		t.Fatalf("expected ErrTaskTimeout, got %v", err)
	}
}

func TestCallerDeadlineNotReportedAsTaskTimeout(t *testing.T) {
	ch := ChannelFunc(func(ctx context.Context, kind Kind, payload any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	// Queue deadline far in the future; the caller's own deadline fires
	// first and must surface as a channel failure, not a task timeout.
	q := New(Config{Channel: ch, TaskTimeout: time.Second})
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	fut := q.Submit(ctx, KindProcessFrame, nil)
	_, err := fut.Wait(context.Background())
	if errors.Is(err, ErrTaskTimeout) {
		t.Fatalf("caller deadline misreported as task timeout: %v", err)
	}
	if !errors.Is(err, ErrChannelTask) {
		t.Fatalf("expected ErrChannelTask, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped caller deadline, got %v", err)
	}
}

func TestCanceledBeforeDispatch(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	ch := ChannelFunc(func(ctx context.Context, kind Kind, payload any) (any, error) {
		close(started)
		<-gate
		return nil, nil
	})

	q := New(Config{Channel: ch})
	defer q.Close()

	first := q.Submit(context.Background(), KindProcessFrame, nil)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second := q.Submit(ctx, KindProcessFrame, nil)

	close(gate)

	if _, err := first.Wait(context.Background()); err != nil {
		t.Fatalf("first task failed: %v", err)
	}
	_, err := second.Wait(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCloseRejectsPending(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	ch := ChannelFunc(func(ctx context.Context, kind Kind, payload any) (any, error) {
		close(started)
		<-gate
		return "done", nil
	})

	q := New(Config{Channel: ch})

	inflight := q.Submit(context.Background(), KindProcessFrame, nil)
	<-started
	pending := q.Submit(context.Background(), KindProcessFrame, nil)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	// The queued task is rejected even while another is in flight.
	if _, err := pending.Wait(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}

	close(gate)
	if v, err := inflight.Wait(context.Background()); err != nil || v.(string) != "done" {
		t.Fatalf("in-flight task should settle normally, got (%v, %v)", v, err)
	}
	<-closed

	// Submissions after close are rejected immediately.
	late := q.Submit(context.Background(), KindProcessFrame, nil)
	if _, err := late.Wait(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after close, got %v", err)
	}
}

func TestConvenienceWrappers(t *testing.T) {
	sim := &SimChannel{Latency: map[Kind]time.Duration{
		KindProcessFrame:      time.Millisecond,
		KindGenerateThumbnail: time.Millisecond,
		KindExtractAudio:      time.Millisecond,
		KindApplyFilter:       time.Millisecond,
	}}
	q := New(Config{Channel: sim})
	defer q.Close()

	cases := []struct {
		name   string
		submit func() *Future
		kind   Kind
	}{
		{"ProcessFrame", func() *Future { return q.ProcessFrame(context.Background(), "f") }, KindProcessFrame},
		{"GenerateThumbnail", func() *Future { return q.GenerateThumbnail(context.Background(), "t") }, KindGenerateThumbnail},
		{"ExtractAudio", func() *Future { return q.ExtractAudio(context.Background(), "a") }, KindExtractAudio},
		{"ApplyFilter", func() *Future { return q.ApplyFilter(context.Background(), "x") }, KindApplyFilter},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := tc.submit().Wait(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			res, ok := v.(SimResult)
			if !ok {
				t.Fatalf("unexpected result type %T", v)
			}
			if res.Kind != tc.kind {
				t.Errorf("got kind %q, want %q", res.Kind, tc.kind)
			}
		})
	}
}
