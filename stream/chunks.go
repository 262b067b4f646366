package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// chunkRecord is one retained byte range of a resource. Offsets are
// inclusive, matching the HTTP Range header convention.
type chunkRecord struct {
	start int64
	end   int64
	data  []byte
}

// PreloadChunk fetches the inclusive byte range [start, end] of url.
//
// A retained chunk fully covering the range is served without a network
// round trip. Concurrent preloads of the same range coalesce into one
// request. The fetched chunk is retained for later reuse; callers must
// treat the returned slice as read-only.
func (l *Loader) PreloadChunk(ctx context.Context, url string, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: invalid range %d-%d", ErrRangeRequestFailed, start, end)
	}

	if data, ok := l.cachedRange(url, start, end); ok {
		return data, nil
	}

	// The fetch runs on a context detached from the initiating caller,
	// so one caller canceling cannot fail the coalesced waiters. The
	// configured per-request timeout still bounds the detached fetch;
	// each caller's own context only governs its wait below.
	key := rangeKey(url, start, end)
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		// Double check: an overlapping load may have landed while we
		// waited on the flight group.
		if data, ok := l.cachedRange(url, start, end); ok {
			return data, nil
		}
		return l.fetchRange(fetchCtx, url, start, end)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// ReleaseChunks drops every retained chunk of url, returning the bytes
// freed.
func (l *Loader) ReleaseChunks(url string) int64 {
	l.mu.Lock()
	var freed int64
	for _, rec := range l.chunks[url] {
		freed += int64(len(rec.data))
	}
	delete(l.chunks, url)
	l.mu.Unlock()

	if freed > 0 {
		slog.Debug("Released retained chunks", "url", url, "freed", freed)
		if l.tracker != nil {
			l.tracker.ReleaseUsage(freed)
		}
	}
	return freed
}

// ReleaseAll drops every retained chunk, returning the bytes freed.
// Registered as a pressure cleanup callback by the session wiring.
func (l *Loader) ReleaseAll() int64 {
	l.mu.Lock()
	var freed int64
	for _, recs := range l.chunks {
		for _, rec := range recs {
			freed += int64(len(rec.data))
		}
	}
	l.chunks = make(map[string][]chunkRecord)
	l.mu.Unlock()

	if freed > 0 {
		slog.Debug("Released all retained chunks", "freed", freed)
		if l.tracker != nil {
			l.tracker.ReleaseUsage(freed)
		}
	}
	return freed
}

func (l *Loader) fetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	ctx, cancel := l.withDeadline(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRangeRequestFailed, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("%w: server answered %d instead of 206", ErrRangeRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if err := l.throttle(ctx, len(data)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	l.retain(url, start, end, data)
	return data, nil
}

// cachedRange returns the requested slice of a retained chunk fully
// covering [start, end], if one exists.
func (l *Loader) cachedRange(url string, start, end int64) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.chunks[url] {
		if rec.start <= start && rec.end >= end {
			lo := start - rec.start
			hi := lo + (end - start + 1)
			if hi > int64(len(rec.data)) {
				// Short read on the original fetch; range not actually
				// covered.
				continue
			}
			return rec.data[lo:hi:hi], true
		}
	}
	return nil, false
}

// retain records a fetched chunk for reuse and charges the tracker.
func (l *Loader) retain(url string, start, end int64, data []byte) {
	l.mu.Lock()
	l.chunks[url] = append(l.chunks[url], chunkRecord{start: start, end: end, data: data})
	l.mu.Unlock()

	if l.tracker != nil {
		l.tracker.TrackUsage(int64(len(data)))
	}
}

func rangeKey(url string, start, end int64) string {
	return fmt.Sprintf("%s#%d-%d", url, start, end)
}
