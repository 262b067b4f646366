// Package vfxbmedia wires the editor's client-side resource managers
// into one session: a byte-budgeted media cache, a memory-pressure
// monitor, a chunked stream loader and a serialized background task
// queue. The UI layer owns exactly one Session and passes it down by
// reference; there are no package-level singletons.
package vfxbmedia

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Video-FX-Bot/VFXB-App-Frontend-sub001/cache"
	"github.com/Video-FX-Bot/VFXB-App-Frontend-sub001/pressure"
	"github.com/Video-FX-Bot/VFXB-App-Frontend-sub001/stream"
	"github.com/Video-FX-Bot/VFXB-App-Frontend-sub001/task"
)

// DefaultCacheBytes is the media cache budget used when none is
// configured.
const DefaultCacheBytes = 64 << 20

// Config holds the session settings. The zero value is usable.
type Config struct {
	// CacheMaxBytes is the media cache budget. Defaults to
	// DefaultCacheBytes.
	CacheMaxBytes int64

	// MemoryLimitBytes and PressureThreshold configure the monitor; see
	// pressure.Config.
	MemoryLimitBytes  int64
	PressureThreshold float64

	// HTTPClient, ChunkSize, BytesPerSec and StreamTimeout configure
	// the loader; see stream.Config.
	HTTPClient    *http.Client
	ChunkSize     int
	BytesPerSec   int64
	StreamTimeout time.Duration

	// TaskChannel and TaskTimeout configure the queue; see task.Config.
	TaskChannel task.Channel
	TaskTimeout time.Duration
}

// Stats aggregates the per-component snapshots.
type Stats struct {
	Cache  cache.Stats
	Memory pressure.Stats
	Queue  task.Stats
}

// Session owns one instance of each resource manager and the pressure
// wiring between them: cache and loader usage counts against the
// monitor, and a pressure trip drops retained stream chunks first, then
// sheds the cache to half its budget.
type Session struct {
	Cache   *cache.ResourceCache
	Monitor *pressure.Monitor
	Loader  *stream.Loader
	Queue   *task.Queue

	unregister []func()
}

// New builds a fully wired session.
func New(cfg Config) *Session {
	cacheBytes := cfg.CacheMaxBytes
	if cacheBytes <= 0 {
		cacheBytes = DefaultCacheBytes
	}

	monitor := pressure.New(pressure.Config{
		LimitBytes: cfg.MemoryLimitBytes,
		Threshold:  cfg.PressureThreshold,
	})

	rc := cache.New(cacheBytes)
	rc.SetTracker(monitor)

	loader := stream.New(stream.Config{
		Client:      cfg.HTTPClient,
		ChunkSize:   cfg.ChunkSize,
		BytesPerSec: cfg.BytesPerSec,
		Timeout:     cfg.StreamTimeout,
		Tracker:     monitor,
	})

	queue := task.New(task.Config{
		Channel:     cfg.TaskChannel,
		TaskTimeout: cfg.TaskTimeout,
	})

	s := &Session{
		Cache:   rc,
		Monitor: monitor,
		Loader:  loader,
		Queue:   queue,
	}

	// Retained chunks are pure prefetch state, so they go first; cached
	// entries re-fetch lazily, so shedding half the budget is enough.
	s.unregister = append(s.unregister,
		monitor.OnPressure(func() { loader.ReleaseAll() }),
		monitor.OnPressure(func() { rc.EvictTo(cacheBytes / 2) }),
	)

	slog.Debug("Media session initialized", "cache_budget", cacheBytes)
	return s
}

// Stats returns a snapshot across all components.
func (s *Session) Stats() Stats {
	return Stats{
		Cache:  s.Cache.Stats(),
		Memory: s.Monitor.Stats(),
		Queue:  s.Queue.Stats(),
	}
}

// Close stops the task queue and detaches the pressure callbacks.
// Pending task futures are rejected, never left unsettled.
func (s *Session) Close() {
	s.Queue.Close()
	for _, fn := range s.unregister {
		fn()
	}
	s.unregister = nil
}
