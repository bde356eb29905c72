package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Publisher is what the mining pipeline needs from the hub.
type Publisher interface {
	Publish(wallet string, t Type, data any) (Event, error)
}

type walletStream struct {
	mu  sync.Mutex
	buf *EventBuffer
}

// Hub owns one EventBuffer per wallet plus a firehose of every wallet's events.
type Hub struct {
	size int

	mu       sync.Mutex
	streams  map[string]*walletStream
	firehose map[chan Event]struct{}
	closed   bool
}

func NewHub(bufferSize int) *Hub {
	return &Hub{
		size:     bufferSize,
		streams:  map[string]*walletStream{},
		firehose: map[chan Event]struct{}{},
	}
}

func (h *Hub) stream(wallet string) *walletStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.streams[wallet]
	if s == nil {
		s = &walletStream{buf: NewEventBuffer(h.size)}
		h.streams[wallet] = s
	}
	return s
}

// Buffer returns the wallet's buffer, creating it on first use.
func (h *Hub) Buffer(wallet string) *EventBuffer {
	return h.stream(wallet).buf
}

// Publish validates and appends an event. Events of one wallet reach the
// buffer and the firehose in publish order. Malformed events are dropped.
func (h *Hub) Publish(wallet string, t Type, data any) (Event, error) {
	ev := Event{Version: Version, Type: t, Wallet: wallet, Data: data}
	if err := ev.Validate(); err != nil {
		log.Error().Err(err).Str("wallet", wallet).Str("event", string(t)).Msg("dropping malformed event")
		return Event{}, err
	}
	s := h.stream(wallet)
	s.mu.Lock()
	defer s.mu.Unlock()
	ev = s.buf.Append(ev)
	if ev.EventID == "" {
		return ev, nil
	}

	h.mu.Lock()
	for ch := range h.firehose {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("wallet", wallet).Str("event", string(t)).Msg("firehose subscriber lagging, event dropped")
		}
	}
	h.mu.Unlock()
	return ev, nil
}

// SubscribeAll receives every wallet's events.
func (h *Hub) SubscribeAll(capacity int) chan Event {
	if capacity <= 0 {
		capacity = 256
	}
	ch := make(chan Event, capacity)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.firehose[ch] = struct{}{}
	return ch
}

func (h *Hub) UnsubscribeAll(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.firehose[ch]; ok {
		delete(h.firehose, ch)
		close(ch)
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, s := range h.streams {
		s.buf.Close()
	}
	for ch := range h.firehose {
		close(ch)
		delete(h.firehose, ch)
	}
}

// Discard is a Publisher that validates and drops.
type Discard struct{}

func (Discard) Publish(wallet string, t Type, data any) (Event, error) {
	ev := Event{Version: Version, Type: t, Wallet: wallet, Data: data}
	return ev, ev.Validate()
}
