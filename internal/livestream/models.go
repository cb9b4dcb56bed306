package livestream

import (
	"errors"
	"strings"
	"time"
)

// Quality is the encoding tier of a live stream (e.g. "1080p", "360p").
type Quality string

const (
	Quality1080p Quality = "1080p"
	Quality810p  Quality = "810p"
	Quality720p  Quality = "720p"
	Quality540p  Quality = "540p"
	Quality480p  Quality = "480p"
	Quality360p  Quality = "360p"
)

// Qualities lists the supported tiers from highest to lowest.
var Qualities = []Quality{
	Quality1080p,
	Quality810p,
	Quality720p,
	Quality540p,
	Quality480p,
	Quality360p,
}

// Status is the lifecycle state of a live stream.
type Status string

const (
	// StatusOffline means no encoder is running and no tuner is held.
	StatusOffline Status = "Offline"
	// StatusStandby means an encoder launch was requested but no data has arrived yet.
	StatusStandby Status = "Standby"
	// StatusONAir means the encoder is producing data.
	StatusONAir Status = "ONAir"
	// StatusIdling means the encoder is running with zero viewers attached.
	StatusIdling Status = "Idling"
)

// DeliveryKind is the way a viewer receives stream data.
type DeliveryKind string

const (
	// PushDelivery viewers own a queue the broadcaster writes into.
	PushDelivery DeliveryKind = "push"
	// PullDelivery viewers get data through an external channel and have no queue.
	PullDelivery DeliveryKind = "pull"
)

// ClientID is the stable index of a viewer slot within one stream.
// IDs are never reused for the lifetime of the stream.
type ClientID int

var (
	// ErrInvalidQuality is returned when a quality string is not a known tier.
	ErrInvalidQuality = errors.New("invalid quality")

	// ErrInvalidStatus is returned when a status string is not a known state.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidStreamKey is returned when a stream key cannot be parsed.
	ErrInvalidStreamKey = errors.New("invalid stream key")

	// ErrInvalidDeliveryKind is returned when a delivery kind string is unknown.
	ErrInvalidDeliveryKind = errors.New("invalid delivery kind")

	// ErrClientNotFound is returned when reading from a client slot that does
	// not exist or has been disconnected.
	ErrClientNotFound = errors.New("client not found")

	// ErrNotPushClient is returned when reading from a PullDelivery slot.
	// Those viewers have no queue and must obtain data elsewhere.
	ErrNotPushClient = errors.New("client is not a push delivery client")
)

// ParseQuality validates s against the supported tiers.
func ParseQuality(s string) (Quality, error) {
	for _, q := range Qualities {
		if string(q) == s {
			return q, nil
		}
	}
	return "", ErrInvalidQuality
}

// ParseStatus validates s against the known stream states.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOffline, StatusStandby, StatusONAir, StatusIdling:
		return Status(s), nil
	}
	return "", ErrInvalidStatus
}

// ParseDeliveryKind validates s against the known delivery kinds.
func ParseDeliveryKind(s string) (DeliveryKind, error) {
	switch DeliveryKind(s) {
	case PushDelivery, PullDelivery:
		return DeliveryKind(s), nil
	}
	return "", ErrInvalidDeliveryKind
}

// StreamKey identifies one live stream: a broadcast channel at one quality.
type StreamKey struct {
	Channel string
	Quality Quality
}

// NewStreamKey validates channel and quality and returns the composite key.
func NewStreamKey(channel, quality string) (StreamKey, error) {
	if channel == "" {
		return StreamKey{}, ErrInvalidStreamKey
	}
	q, err := ParseQuality(quality)
	if err != nil {
		return StreamKey{}, err
	}
	return StreamKey{Channel: channel, Quality: q}, nil
}

// ParseStreamKey parses the "<channel>-<quality>" form produced by String.
// The split happens on the last dash so channel ids may contain dashes.
func ParseStreamKey(s string) (StreamKey, error) {
	i := strings.LastIndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		return StreamKey{}, ErrInvalidStreamKey
	}
	return NewStreamKey(s[:i], s[i+1:])
}

// String returns the "<channel>-<quality>" form of the key.
func (k StreamKey) String() string {
	return k.Channel + "-" + string(k.Quality)
}

// StatusSnapshot is a point-in-time view of a stream's state.
// ClientsCount is computed from the client table when the snapshot is taken.
type StatusSnapshot struct {
	Status       Status    `json:"status"`
	Detail       string    `json:"detail"`
	UpdatedAt    time.Time `json:"updated_at"`
	ClientsCount int       `json:"clients_count"`
}
