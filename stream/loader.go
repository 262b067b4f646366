// Package stream fetches large remote media incrementally: progressive
// whole-resource loads with progress reporting, and ranged chunk
// preloads for seek-ahead. Fetched chunks are retained for reuse until
// released.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	// ErrStreamUnsupported is returned when the transport cannot provide
	// an incremental byte reader for the resource.
	ErrStreamUnsupported = errors.New("streaming not supported")

	// ErrTransferFailed is returned on any underlying I/O failure while
	// a transfer is in progress.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrRangeRequestFailed is returned when the server does not honor
	// partial-content semantics for a ranged request.
	ErrRangeRequestFailed = errors.New("range request failed")
)

// DefaultChunkSize is the read granularity for progressive loads.
const DefaultChunkSize = 64 << 10

// Progress describes the state of an in-flight progressive load.
//
// Total is -1 when the server does not announce a length; Percentage is
// 0 in that case and callers should treat the transfer as
// indeterminate.
type Progress struct {
	Loaded     int64
	Total      int64
	Percentage float64
}

// Tracker receives the byte deltas of retained chunks, typically a
// pressure.Monitor.
type Tracker interface {
	TrackUsage(size int64)
	ReleaseUsage(size int64)
}

// Config holds the loader settings.
type Config struct {
	// Client is the HTTP client to fetch with. Defaults to
	// http.DefaultClient.
	Client *http.Client

	// ChunkSize is the progressive read granularity. Defaults to
	// DefaultChunkSize.
	ChunkSize int

	// BytesPerSec throttles transfer bandwidth. 0 means unlimited.
	BytesPerSec int64

	// Timeout bounds each load or preload request. 0 means no deadline
	// beyond the caller's context.
	Timeout time.Duration

	// Tracker, if set, is charged for every retained chunk.
	Tracker Tracker
}

// Loader fetches remote media over HTTP.
type Loader struct {
	client    *http.Client
	chunkSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	tracker   Tracker

	group  singleflight.Group
	mu     sync.Mutex
	chunks map[string][]chunkRecord
}

// New creates a Loader.
func New(cfg Config) *Loader {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var limiter *rate.Limiter
	if cfg.BytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSec), int(cfg.BytesPerSec))
	}
	return &Loader{
		client:    client,
		chunkSize: chunkSize,
		timeout:   cfg.Timeout,
		limiter:   limiter,
		tracker:   cfg.Tracker,
		chunks:    make(map[string][]chunkRecord),
	}
}

// LoadProgressive fetches url in chunks, invoking onProgress after each
// chunk, and returns the complete body. The concatenation of the chunks
// reported to onProgress is exactly the returned buffer. The completed
// body is retained as a chunk covering the whole resource, so a later
// PreloadChunk for any sub-range is served locally.
func (l *Loader) LoadProgressive(ctx context.Context, url string, onProgress func(Progress)) ([]byte, error) {
	ctx, cancel := l.withDeadline(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransferFailed, resp.StatusCode)
	}
	if resp.Body == http.NoBody {
		return nil, fmt.Errorf("%w: response has no readable body", ErrStreamUnsupported)
	}

	total := resp.ContentLength // -1 when unknown

	var acc bytes.Buffer
	buf := make([]byte, l.chunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			if waitErr := l.throttle(ctx, n); waitErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrTransferFailed, waitErr)
			}
			if onProgress != nil {
				onProgress(progressAt(int64(acc.Len()), total))
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}

	body := acc.Bytes()
	if len(body) > 0 {
		l.retain(url, 0, int64(len(body))-1, body)
	}
	return body, nil
}

// withDeadline applies the configured per-request timeout, if any.
func (l *Loader) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout > 0 {
		return context.WithTimeout(ctx, l.timeout)
	}
	return ctx, func() {}
}

// throttle charges n bytes against the bandwidth limiter. Charges are
// split into burst-sized slices: WaitN rejects any single reservation
// larger than the burst, and a read or a whole range body can exceed
// one second's budget.
func (l *Loader) throttle(ctx context.Context, n int) error {
	if l.limiter == nil {
		return nil
	}
	burst := l.limiter.Burst()
	for n > 0 {
		slice := n
		if slice > burst {
			slice = burst
		}
		if err := l.limiter.WaitN(ctx, slice); err != nil {
			return err
		}
		n -= slice
	}
	return nil
}

func progressAt(loaded, total int64) Progress {
	p := Progress{Loaded: loaded, Total: total}
	if total > 0 {
		p.Percentage = float64(loaded) / float64(total) * 100
	}
	return p
}
