// Package encoder runs the external encoder process behind a live stream
// and keeps the stream status in line with its viewer count.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"livestream-hub/internal/livestream"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChunkSize is 348 MPEG-TS packets.
	DefaultChunkSize    = 188 * 348
	DefaultIdleTimeout  = 10 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

const (
	detailONAir       = "Livestream is ON Air."
	detailIdling      = "No viewers are attached; the encoder is idling."
	detailIdleTimeout = "Idle timeout reached; the livestream went offline."
)

var (
	// ErrNoCommand is returned when no encoder command is configured.
	ErrNoCommand = errors.New("no encoder command configured")

	errReleased    = errors.New("stream went offline")
	errIdleTimeout = errors.New("idle timeout")
	errExited      = errors.New("encoder exited")
)

// Config describes the encoder process. "{channel}" and "{quality}" in Args
// are replaced with the stream key parts.
type Config struct {
	Command      string
	Args         []string
	ChunkSize    int
	IdleTimeout  time.Duration
	PollInterval time.Duration
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner launches one encoder process per stream. It implements
// livestream.EncoderLauncher.
type Runner struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu   sync.Mutex
	jobs map[livestream.StreamKey]*job
	wg   sync.WaitGroup
}

// NewRunner returns a Runner for cfg. Zero durations and sizes fall back to
// the package defaults.
func NewRunner(cfg Config, log *slog.Logger) *Runner {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		cfg:  cfg,
		log:  log.With(slog.String("component", "encoder")),
		now:  time.Now,
		jobs: make(map[livestream.StreamKey]*job),
	}
}

// LaunchEncoder runs the encoder for stream until the stream goes offline,
// the process exits or ctx is cancelled. A previous encoder still running
// for the same stream is stopped first.
func (r *Runner) LaunchEncoder(ctx context.Context, stream *livestream.LiveStream) {
	r.wg.Add(1)
	defer r.wg.Done()

	key := stream.Key()
	log := r.log.With(slog.String("stream", key.String()))

	jctx, j := r.begin(ctx, key)
	defer r.end(key, j)

	err := r.run(jctx, stream, log)
	switch {
	case errors.Is(err, errReleased), errors.Is(err, errIdleTimeout):
		log.Info("encoder stopped", slog.String("reason", err.Error()))
	case jctx.Err() != nil:
		log.Info("encoder cancelled")
	default:
		log.Error("encoder failed", slog.String("error", err.Error()))
		goOffline(stream, "Encoder stopped: "+err.Error())
	}
}

// Wait blocks until every launched encoder has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// begin registers a job for key, stopping and waiting for any previous one.
func (r *Runner) begin(ctx context.Context, key livestream.StreamKey) (context.Context, *job) {
	jctx, cancel := context.WithCancel(ctx)
	j := &job{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	prev := r.jobs[key]
	r.jobs[key] = j
	r.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}
	return jctx, j
}

func (r *Runner) end(key livestream.StreamKey, j *job) {
	j.cancel()
	close(j.done)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs[key] == j {
		delete(r.jobs, key)
	}
}

func (r *Runner) run(ctx context.Context, stream *livestream.LiveStream, log *slog.Logger) error {
	if r.cfg.Command == "" {
		return ErrNoCommand
	}

	g, gctx := errgroup.WithContext(ctx)
	cmd := exec.CommandContext(gctx, r.cfg.Command, expandArgs(r.cfg.Args, stream.Key())...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("encoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	log.Info("encoder started", slog.Int("pid", cmd.Process.Pid))

	g.Go(func() error { return r.pump(stdout, stream) })
	g.Go(func() error { return r.monitor(gctx, stream) })
	err = g.Wait()

	var exitErr *exec.ExitError
	if waitErr := cmd.Wait(); errors.Is(err, errExited) && errors.As(waitErr, &exitErr) {
		return fmt.Errorf("%w: %w", errExited, waitErr)
	}
	return err
}

// pump copies encoder output into the stream. The first chunk puts a
// Standby stream ON Air.
func (r *Runner) pump(out io.Reader, stream *livestream.LiveStream) error {
	buf := make([]byte, r.cfg.ChunkSize)
	first := true
	for {
		n, err := out.Read(buf)
		if n > 0 {
			p := make([]byte, n)
			copy(p, buf[:n])
			stream.Write(p)
			if first {
				stream.CompareAndSetStatus(livestream.StatusStandby, livestream.StatusONAir, detailONAir)
				first = false
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errExited
			}
			return fmt.Errorf("read encoder output: %w", err)
		}
	}
}

func (r *Runner) monitor(ctx context.Context, stream *livestream.LiveStream) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := r.supervise(stream); err != nil {
			return err
		}
	}
}

// supervise applies one monitor step: ONAir with no viewers idles, Idling
// with viewers resumes, Idling past the timeout goes Offline. An Offline
// stream means the tuner was released and the encoder must stop.
func (r *Runner) supervise(stream *livestream.LiveStream) error {
	snap := stream.Status()
	switch snap.Status {
	case livestream.StatusOffline:
		return errReleased
	case livestream.StatusONAir:
		if snap.ClientsCount == 0 {
			stream.CompareAndSetStatus(livestream.StatusONAir, livestream.StatusIdling, detailIdling)
		}
	case livestream.StatusIdling:
		if snap.ClientsCount > 0 {
			stream.CompareAndSetStatus(livestream.StatusIdling, livestream.StatusONAir, detailONAir)
			return nil
		}
		if r.now().Sub(snap.UpdatedAt) >= r.cfg.IdleTimeout &&
			stream.CompareAndSetStatus(livestream.StatusIdling, livestream.StatusOffline, detailIdleTimeout) {
			return errIdleTimeout
		}
	}
	return nil
}

// goOffline moves stream to Offline from whatever running state it is in.
func goOffline(stream *livestream.LiveStream, detail string) {
	for _, from := range []livestream.Status{
		livestream.StatusStandby,
		livestream.StatusONAir,
		livestream.StatusIdling,
	} {
		if stream.CompareAndSetStatus(from, livestream.StatusOffline, detail) {
			return
		}
	}
}

func expandArgs(args []string, key livestream.StreamKey) []string {
	rep := strings.NewReplacer("{channel}", key.Channel, "{quality}", string(key.Quality))
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = rep.Replace(a)
	}
	return out
}
