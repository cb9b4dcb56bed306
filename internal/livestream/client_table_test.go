package livestream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClientTable_Insert_stable_ids(t *testing.T) {
	tbl := NewClientTable()

	a := tbl.Insert(PushDelivery)
	b := tbl.Insert(PullDelivery)
	if a != 0 || b != 1 {
		t.Fatalf("expected ids 0,1 got %d,%d", a, b)
	}

	if !tbl.Remove(a) {
		t.Fatal("Remove should report a removed slot")
	}
	c := tbl.Insert(PushDelivery)
	if c != 2 {
		t.Errorf("ids must never be reused, got %d", c)
	}
	if n := tbl.CountActive(); n != 2 {
		t.Errorf("CountActive: got %d want 2", n)
	}
}

func TestClientTable_Remove_idempotent(t *testing.T) {
	tbl := NewClientTable()
	id := tbl.Insert(PushDelivery)

	t.Run("first_call", func(t *testing.T) {
		if !tbl.Remove(id) {
			t.Error("expected removal")
		}
	})

	t.Run("second_call", func(t *testing.T) {
		if tbl.Remove(id) {
			t.Error("second Remove should be a no-op")
		}
		if n := tbl.CountActive(); n != 0 {
			t.Errorf("CountActive: got %d", n)
		}
	})

	t.Run("out_of_range", func(t *testing.T) {
		if tbl.Remove(-1) || tbl.Remove(42) {
			t.Error("out of range ids should be ignored")
		}
	})
}

func TestClientTable_Broadcast_fifo_per_client(t *testing.T) {
	tbl := NewClientTable()
	a := tbl.Insert(PushDelivery)
	b := tbl.Insert(PushDelivery)
	tbl.Insert(PullDelivery)

	for _, p := range []string{"one", "two", "three"} {
		if n := tbl.Broadcast([]byte(p)); n != 2 {
			t.Fatalf("Broadcast should reach the 2 push clients, reached %d", n)
		}
	}

	ctx := context.Background()
	for _, id := range []ClientID{a, b} {
		for _, want := range []string{"one", "two", "three"} {
			got, err := tbl.ReadOne(ctx, id)
			if err != nil {
				t.Fatalf("ReadOne(%d): %v", id, err)
			}
			if string(got) != want {
				t.Errorf("client %d: got %q want %q", id, got, want)
			}
		}
	}
}

func TestClientTable_Broadcast_skips_removed(t *testing.T) {
	tbl := NewClientTable()
	a := tbl.Insert(PushDelivery)
	b := tbl.Insert(PushDelivery)
	tbl.Remove(a)

	if n := tbl.Broadcast([]byte("x")); n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}
	if n := tbl.Backlog(b); n != 1 {
		t.Errorf("Backlog: got %d", n)
	}
}

func TestClientTable_Broadcast_does_not_wait_on_slow_reader(t *testing.T) {
	tbl := NewClientTable()
	slow := tbl.Insert(PushDelivery)
	fast := tbl.Insert(PushDelivery)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			tbl.Broadcast([]byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on an undrained reader")
	}

	if n := tbl.Backlog(slow); n != 10000 {
		t.Errorf("slow backlog: got %d", n)
	}
	got, err := tbl.ReadOne(context.Background(), fast)
	if err != nil || len(got) != 1 || got[0] != 0 {
		t.Errorf("fast reader: got %v, %v", got, err)
	}
}

func TestClientTable_ReadOne(t *testing.T) {
	tbl := NewClientTable()

	t.Run("unknown_client", func(t *testing.T) {
		if _, err := tbl.ReadOne(context.Background(), 7); !errors.Is(err, ErrClientNotFound) {
			t.Errorf("expected ErrClientNotFound, got %v", err)
		}
	})

	t.Run("pull_client_returns_immediately", func(t *testing.T) {
		id := tbl.Insert(PullDelivery)
		tbl.Broadcast([]byte("ignored"))
		if _, err := tbl.ReadOne(context.Background(), id); !errors.Is(err, ErrNotPushClient) {
			t.Errorf("expected ErrNotPushClient, got %v", err)
		}
	})

	t.Run("removed_client", func(t *testing.T) {
		id := tbl.Insert(PushDelivery)
		tbl.Remove(id)
		if _, err := tbl.ReadOne(context.Background(), id); !errors.Is(err, ErrClientNotFound) {
			t.Errorf("expected ErrClientNotFound, got %v", err)
		}
	})

	t.Run("blocks_until_broadcast", func(t *testing.T) {
		id := tbl.Insert(PushDelivery)
		got := make(chan []byte, 1)
		go func() {
			p, _ := tbl.ReadOne(context.Background(), id)
			got <- p
		}()

		select {
		case p := <-got:
			t.Fatalf("ReadOne returned before any broadcast: %q", p)
		case <-time.After(20 * time.Millisecond):
		}

		tbl.Broadcast([]byte("late"))
		select {
		case p := <-got:
			if string(p) != "late" {
				t.Errorf("got %q", p)
			}
		case <-time.After(time.Second):
			t.Fatal("ReadOne did not wake up after broadcast")
		}
	})

	t.Run("remove_wakes_blocked_reader", func(t *testing.T) {
		id := tbl.Insert(PushDelivery)
		errCh := make(chan error, 1)
		go func() {
			_, err := tbl.ReadOne(context.Background(), id)
			errCh <- err
		}()

		time.Sleep(10 * time.Millisecond)
		tbl.Remove(id)
		select {
		case err := <-errCh:
			if !errors.Is(err, ErrClientNotFound) {
				t.Errorf("expected ErrClientNotFound, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Remove did not wake the blocked reader")
		}
	})

	t.Run("context_cancelled", func(t *testing.T) {
		id := tbl.Insert(PushDelivery)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := tbl.ReadOne(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})
}
