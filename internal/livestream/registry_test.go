package livestream

import (
	"log/slog"
	"os"
	"testing"

	"golang.org/x/sync/errgroup"
)

func newTestRegistry(t *testing.T, launcher EncoderLauncher) *Registry {
	t.Helper()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	r := NewRegistry(launcher, log, nil)
	r.now = stepClock()
	t.Cleanup(r.Close)
	return r
}

func TestRegistry_GetOrCreate_same_instance(t *testing.T) {
	r := newTestRegistry(t, nil)
	key := StreamKey{Channel: "gr011", Quality: Quality1080p}

	const n = 64
	got := make([]*LiveStream, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			got[i] = r.GetOrCreate(key)
			return nil
		})
	}
	g.Wait()

	for i := 1; i < n; i++ {
		if got[i] != got[0] {
			t.Fatalf("call %d returned a different instance", i)
		}
	}
	if l := len(r.List()); l != 1 {
		t.Errorf("expected 1 stream, got %d", l)
	}
}

func TestRegistry_distinct_keys(t *testing.T) {
	r := newTestRegistry(t, nil)
	a := r.GetOrCreate(StreamKey{Channel: "gr011", Quality: Quality1080p})
	b := r.GetOrCreate(StreamKey{Channel: "gr011", Quality: Quality720p})
	if a == b {
		t.Fatal("different qualities must map to different streams")
	}

	list := r.List()
	if len(list) != 2 || list[0] != a || list[1] != b {
		t.Errorf("List should return streams in creation order")
	}
}

func TestRegistry_Get(t *testing.T) {
	r := newTestRegistry(t, nil)
	key := StreamKey{Channel: "gr011", Quality: Quality360p}

	if _, ok := r.Get(key); ok {
		t.Error("Get must not create streams")
	}
	created := r.GetOrCreate(key)
	if got, ok := r.Get(key); !ok || got != created {
		t.Error("Get should return the created stream")
	}
}

func TestRegistry_counts(t *testing.T) {
	r := newTestRegistry(t, nil)
	a := r.GetOrCreate(StreamKey{Channel: "a", Quality: Quality720p})
	b := r.GetOrCreate(StreamKey{Channel: "b", Quality: Quality720p})

	a.SetStatus(StatusONAir, "on air")
	a.Connect(PushDelivery)
	a.Connect(PullDelivery)
	b.clients.Insert(PushDelivery)

	if n := r.ActiveStreamCount(); n != 1 {
		t.Errorf("ActiveStreamCount: got %d", n)
	}
	if n := r.ActiveClientCount(); n != 3 {
		t.Errorf("ActiveClientCount: got %d", n)
	}
}
