package livestream

import (
	"context"
	"log/slog"
)

const (
	detailStandby = "Starting the encoder..."
	detailONAir   = "Livestream is ON Air."
)

// LiveStream is the coordination point between one encoder and the viewers
// of a single (channel, quality) pair.
type LiveStream struct {
	key      StreamKey
	registry *Registry
	state    *StreamState
	clients  *ClientTable
	log      *slog.Logger
}

func newLiveStream(key StreamKey, r *Registry) *LiveStream {
	ls := &LiveStream{
		key:      key,
		registry: r,
		clients:  NewClientTable(),
		log:      r.log,
	}
	ls.state = newStreamState(r.now, ls.logTransition)
	return ls
}

// Key returns the stream's key.
func (ls *LiveStream) Key() StreamKey {
	return ls.key
}

// Connect attaches a viewer and returns its client ID. When the stream is
// Offline it first reclaims one idling tuner, moves to Standby and starts
// the encoder in the background. A stream that was Idling returns to ONAir.
func (ls *LiveStream) Connect(kind DeliveryKind) ClientID {
	if ls.registry.enterStandby(ls) {
		ls.registry.launch(ls)
	}

	id := ls.clients.Insert(kind)
	ls.log.Info("client connected",
		slog.String("stream", ls.key.String()),
		slog.Int("client", displayID(id)),
		slog.String("kind", string(kind)))
	if m := ls.registry.metrics; m != nil {
		m.IncClientsConnected(string(kind))
	}

	ls.state.CompareAndSet(StatusIdling, StatusONAir, detailONAir)
	return id
}

// Disconnect detaches the viewer with the given ID. Unknown or already
// disconnected IDs are ignored. The stream status is left to the encoder
// monitor.
func (ls *LiveStream) Disconnect(id ClientID) {
	if !ls.clients.Remove(id) {
		ls.log.Debug("disconnect ignored, no such client",
			slog.String("stream", ls.key.String()),
			slog.Int("client", displayID(id)))
		return
	}
	ls.log.Info("client disconnected",
		slog.String("stream", ls.key.String()),
		slog.Int("client", displayID(id)))
	if m := ls.registry.metrics; m != nil {
		m.IncClientsDisconnected()
	}
}

// Read blocks until the next payload for id is available. See
// ClientTable.ReadOne for the error cases.
func (ls *LiveStream) Read(ctx context.Context, id ClientID) ([]byte, error) {
	return ls.clients.ReadOne(ctx, id)
}

// Write fans p out to every PushDelivery viewer without blocking on any of
// them. p must not be modified afterwards.
func (ls *LiveStream) Write(p []byte) {
	ls.clients.Broadcast(p)
	if m := ls.registry.metrics; m != nil {
		m.AddBroadcastBytes(len(p))
	}
}

// Status returns a snapshot of the stream state with a live viewer count.
func (ls *LiveStream) Status() StatusSnapshot {
	status, detail, updatedAt := ls.state.Get()
	return StatusSnapshot{
		Status:       status,
		Detail:       detail,
		UpdatedAt:    updatedAt,
		ClientsCount: ls.clients.CountActive(),
	}
}

// ClientsCount returns the number of attached viewers.
func (ls *LiveStream) ClientsCount() int {
	return ls.clients.CountActive()
}

// SetStatus sets the status and detail and reports whether anything changed.
func (ls *LiveStream) SetStatus(status Status, detail string) bool {
	return ls.state.Set(status, detail)
}

// CompareAndSetStatus sets (to, detail) only if the current status is from.
func (ls *LiveStream) CompareAndSetStatus(from, to Status, detail string) bool {
	return ls.state.CompareAndSet(from, to, detail)
}

func (ls *LiveStream) logTransition(from, to Status, detail string) {
	ls.log.Info("status changed",
		slog.String("stream", ls.key.String()),
		slog.String("from", string(from)),
		slog.String("status", string(to)),
		slog.String("detail", detail))
	if m := ls.registry.metrics; m != nil {
		m.IncStatusTransitions(string(to))
	}
}

// displayID converts a client ID to the 1-based ordinal shown in logs.
func displayID(id ClientID) int {
	return int(id) + 1
}
