package livestream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const liveContentType = "video/mp2t"

// Handler exposes livestream HTTP endpoints using go-chi.
type Handler struct {
	registry *Registry
	log      *slog.Logger
}

// NewHandler returns a Handler backed by the given Registry. Stream level
// metrics are recorded by the registry itself.
func NewHandler(registry *Registry, log *slog.Logger) *Handler {
	return &Handler{registry: registry, log: log}
}

type streamResponse struct {
	Stream  string  `json:"stream"`
	Channel string  `json:"channel"`
	Quality Quality `json:"quality"`
	StatusSnapshot
}

type setStatusRequest struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

type connectResponse struct {
	Stream   string   `json:"stream"`
	ClientID ClientID `json:"client_id"`
}

// ListStreams handles GET /streams.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	streams := h.registry.List()
	out := make([]streamResponse, 0, len(streams))
	for _, ls := range streams {
		out = append(out, newStreamResponse(ls))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetStatus handles GET /streams/{channel}/{quality}.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	key, err := streamKeyFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, newStreamResponse(h.registry.GetOrCreate(key)))
}

// SetStatus handles PUT /streams/{channel}/{quality}/status.
// Body: { "status": "Idling", "detail": "No viewers." }.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	key, err := streamKeyFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid status body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		h.log.Debug("invalid status", slog.String("status", req.Status))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ls := h.registry.GetOrCreate(key)
	ls.SetStatus(status, req.Detail)
	writeJSON(w, http.StatusOK, newStreamResponse(ls))
}

// ConnectClient handles POST /streams/{channel}/{quality}/clients[?kind=pull].
// It attaches a PullDelivery viewer whose data is served elsewhere. Push
// viewers must use ServeLive, which owns their read loop.
func (h *Handler) ConnectClient(w http.ResponseWriter, r *http.Request) {
	key, err := streamKeyFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if k := r.URL.Query().Get("kind"); k != "" {
		if kind, err := ParseDeliveryKind(k); err != nil || kind != PullDelivery {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	id := h.registry.GetOrCreate(key).Connect(PullDelivery)
	writeJSON(w, http.StatusCreated, connectResponse{Stream: key.String(), ClientID: id})
}

// DisconnectClient handles DELETE /streams/{channel}/{quality}/clients/{client_id}.
func (h *Handler) DisconnectClient(w http.ResponseWriter, r *http.Request) {
	key, err := streamKeyFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "client_id"))
	if err != nil || n < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ls, ok := h.registry.Get(key)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ls.Disconnect(ClientID(n))
	w.WriteHeader(http.StatusNoContent)
}

// ServeLive handles GET /streams/{channel}/{quality}/live.
// It attaches a PushDelivery viewer and copies its queue to the response
// until the viewer goes away.
func (h *Handler) ServeLive(w http.ResponseWriter, r *http.Request) {
	key, err := streamKeyFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ls := h.registry.GetOrCreate(key)
	id := ls.Connect(PushDelivery)
	defer ls.Disconnect(id)

	session := uuid.NewString()
	h.log.Info("live session started",
		slog.String("session_id", session),
		slog.String("stream", key.String()),
		slog.Int("client", displayID(id)))

	w.Header().Set("Content-Type", liveContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	var written int64
	for {
		p, err := ls.Read(r.Context(), id)
		if err != nil {
			if !errors.Is(err, ErrClientNotFound) && r.Context().Err() == nil {
				h.log.Warn("live read failed", slog.String("session_id", session), slog.String("error", err.Error()))
			}
			break
		}
		n, err := w.Write(p)
		written += int64(n)
		if err != nil {
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	h.log.Info("live session ended",
		slog.String("session_id", session),
		slog.String("stream", key.String()),
		slog.Int64("bytes", written))
}

func newStreamResponse(ls *LiveStream) streamResponse {
	return streamResponse{
		Stream:         ls.key.String(),
		Channel:        ls.key.Channel,
		Quality:        ls.key.Quality,
		StatusSnapshot: ls.Status(),
	}
}

func streamKeyFromRequest(r *http.Request) (StreamKey, error) {
	return NewStreamKey(chi.URLParam(r, "channel"), chi.URLParam(r, "quality"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
