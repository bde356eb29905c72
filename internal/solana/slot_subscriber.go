package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// SlotSubscriber follows slotSubscribe notifications and keeps the newest
// slot with the local time it arrived.
type SlotSubscriber struct {
	endpoint          string
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	readTimeout       time.Duration

	mu         sync.RWMutex
	slot       uint64
	receivedAt time.Time
}

func NewSlotSubscriber(endpoint string) *SlotSubscriber {
	return &SlotSubscriber{
		endpoint:          endpoint,
		reconnectDelay:    time.Second,
		maxReconnectDelay: 30 * time.Second,
		readTimeout:       10 * time.Second,
	}
}

// Latest returns the newest slot and when it was received. ok is false until
// the first notification.
func (s *SlotSubscriber) Latest() (slot uint64, at time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slot, s.receivedAt, !s.receivedAt.IsZero()
}

func (s *SlotSubscriber) set(slot uint64, at time.Time) {
	s.mu.Lock()
	if slot >= s.slot {
		s.slot = slot
		s.receivedAt = at
	}
	s.mu.Unlock()
}

// Run keeps a subscription open until ctx is done, reconnecting with
// exponential backoff.
func (s *SlotSubscriber) Run(ctx context.Context) {
	delay := s.reconnectDelay
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("endpoint", s.endpoint).Dur("retry_in", delay).Msg("slot subscription dropped")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.maxReconnectDelay {
			delay = s.maxReconnectDelay
		}
	}
}

type slotNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Slot uint64 `json:"slot"`
		} `json:"result"`
	} `json:"params"`
}

func (s *SlotSubscriber) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "slotSubscribe"}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var n slotNotification
		if err := json.Unmarshal(data, &n); err != nil {
			continue
		}
		if n.Method == "slotNotification" {
			s.set(n.Params.Result.Slot, time.Now())
		}
	}
}
