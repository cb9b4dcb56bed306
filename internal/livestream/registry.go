package livestream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"livestream-hub/internal/platform/metrics"
)

const detailReleased = "Tuner released for a newly started livestream."

// EncoderLauncher starts the encoder for a stream that just left Offline.
// LaunchEncoder runs on its own goroutine; it reports progress only through
// the stream's Write and SetStatus methods.
type EncoderLauncher interface {
	LaunchEncoder(ctx context.Context, stream *LiveStream)
}

// LauncherFunc adapts a function to EncoderLauncher.
type LauncherFunc func(ctx context.Context, stream *LiveStream)

// LaunchEncoder implements EncoderLauncher.
func (f LauncherFunc) LaunchEncoder(ctx context.Context, stream *LiveStream) {
	f(ctx, stream)
}

// Registry owns the single LiveStream for every StreamKey. Entries are
// created on first use and never removed.
type Registry struct {
	mu      sync.RWMutex
	streams map[StreamKey]*LiveStream
	order   []*LiveStream

	// scanMu serializes tuner arbitration: the Offline check, victim
	// selection and the Offline->Standby transition of every stream.
	scanMu sync.Mutex

	launcher EncoderLauncher
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry returns an empty registry. launcher may be nil, in which case
// streams move to Standby without starting anything. log defaults to
// slog.Default() and metrics may be nil to disable recording.
func NewRegistry(launcher EncoderLauncher, log *slog.Logger, m *metrics.Metrics) *Registry {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		streams:  make(map[StreamKey]*LiveStream),
		launcher: launcher,
		log:      log.With(slog.String("component", "livestream-registry")),
		metrics:  m,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// GetOrCreate returns the stream for key, constructing it on first use.
// Concurrent callers with the same key always observe the same instance.
func (r *Registry) GetOrCreate(key StreamKey) *LiveStream {
	r.mu.RLock()
	ls, ok := r.streams[key]
	r.mu.RUnlock()
	if ok {
		return ls
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(key)
}

// Get returns the stream for key without creating it.
func (r *Registry) Get(key StreamKey) (*LiveStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ls, ok := r.streams[key]
	return ls, ok
}

// List returns every stream in creation order.
func (r *Registry) List() []*LiveStream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*LiveStream, len(r.order))
	copy(out, r.order)
	return out
}

// ActiveStreamCount returns the number of streams that are not Offline.
// Used for metrics.
func (r *Registry) ActiveStreamCount() int {
	n := 0
	for _, ls := range r.List() {
		if ls.state.Status() != StatusOffline {
			n++
		}
	}
	return n
}

// ActiveClientCount returns the number of viewers across all streams.
// Used for metrics.
func (r *Registry) ActiveClientCount() int {
	n := 0
	for _, ls := range r.List() {
		n += ls.clients.CountActive()
	}
	return n
}

// Close cancels the context handed to running encoders. It is meant for
// process shutdown; stream state is left as is.
func (r *Registry) Close() {
	r.cancel()
}

// getOrCreateLocked returns an existing stream or creates a new one.
// Caller must hold r.mu in write mode.
func (r *Registry) getOrCreateLocked(key StreamKey) *LiveStream {
	if ls, ok := r.streams[key]; ok {
		return ls
	}

	ls := newLiveStream(key, r)
	r.streams[key] = ls
	r.order = append(r.order, ls)
	r.log.Debug("livestream created", slog.String("stream", key.String()))
	return ls
}

// enterStandby moves ls from Offline to Standby, first reclaiming the tuner
// of at most one idling stream. It reports whether ls made the transition,
// in which case the caller must launch its encoder.
func (r *Registry) enterStandby(ls *LiveStream) bool {
	if ls.state.Status() != StatusOffline {
		return false
	}

	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	if ls.state.Status() != StatusOffline {
		return false
	}
	r.reclaimLocked(ls)
	return ls.state.CompareAndSet(StatusOffline, StatusStandby, detailStandby)
}

// reclaimLocked takes the first idling stream other than requester Offline
// and returns it, or nil when nothing is idling. A candidate that leaves
// Idling while being inspected is skipped.
// Caller must hold r.scanMu.
func (r *Registry) reclaimLocked(requester *LiveStream) *LiveStream {
	for _, ls := range r.List() {
		if ls == requester {
			continue
		}
		if !ls.state.CompareAndSet(StatusIdling, StatusOffline, detailReleased) {
			continue
		}
		r.log.Info("tuner reclaimed",
			slog.String("stream", ls.key.String()),
			slog.String("requested_by", requester.key.String()))
		if r.metrics != nil {
			r.metrics.IncReclamations()
		}
		return ls
	}
	return nil
}

// launch starts the encoder for ls without waiting for it.
func (r *Registry) launch(ls *LiveStream) {
	if r.metrics != nil {
		r.metrics.IncEncoderLaunches()
	}
	if r.launcher == nil {
		r.log.Warn("no encoder launcher configured", slog.String("stream", ls.key.String()))
		return
	}
	go r.launcher.LaunchEncoder(r.ctx, ls)
}
