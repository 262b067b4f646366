package task

import (
	"context"
	"time"
)

// Kind identifies a background operation. The set is closed but new
// kinds only need a Channel that understands them.
type Kind string

const (
	KindProcessFrame      Kind = "frame-process"
	KindGenerateThumbnail Kind = "thumbnail-generate"
	KindExtractAudio      Kind = "audio-extract"
	KindApplyFilter       Kind = "filter-apply"
)

// Channel is the single background execution channel tasks are
// dispatched to. The queue guarantees at most one Run call is active at
// a time; implementations do not need their own serialization.
type Channel interface {
	Run(ctx context.Context, kind Kind, payload any) (any, error)
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(ctx context.Context, kind Kind, payload any) (any, error)

func (f ChannelFunc) Run(ctx context.Context, kind Kind, payload any) (any, error) {
	return f(ctx, kind, payload)
}

// SimResult is what SimChannel produces for a completed task.
type SimResult struct {
	Kind    Kind
	Payload any
	Elapsed time.Duration
}

// SimChannel simulates the media operations with a fixed latency per
// kind. There is no real codec work behind the editor yet, so this is
// also the production default, not only a test double.
type SimChannel struct {
	// Latency overrides the per-kind simulated processing time.
	Latency map[Kind]time.Duration
}

var simLatency = map[Kind]time.Duration{
	KindProcessFrame:      30 * time.Millisecond,
	KindGenerateThumbnail: 50 * time.Millisecond,
	KindExtractAudio:      80 * time.Millisecond,
	KindApplyFilter:       40 * time.Millisecond,
}

func (s *SimChannel) Run(ctx context.Context, kind Kind, payload any) (any, error) {
	d, ok := s.Latency[kind]
	if !ok {
		d, ok = simLatency[kind]
		if !ok {
			d = 25 * time.Millisecond
		}
	}

	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return SimResult{Kind: kind, Payload: payload, Elapsed: time.Since(start)}, nil
}
