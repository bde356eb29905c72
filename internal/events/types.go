// Package events defines the versioned event envelope pushed to operators and
// the per-wallet hub that buffers and fans it out.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

const Version = 1

type Type string

const (
	TypeRoundUpdate    Type = "round:update"
	TypeDecisionMade   Type = "decision:made"
	TypeTxSubmitted    Type = "tx:submitted"
	TypeTxConfirmed    Type = "tx:confirmed"
	TypeTxFailed       Type = "tx:failed"
	TypeBalanceUpdate  Type = "balance:update"
	TypeClaimConfirmed Type = "claim:confirmed"
	TypeSessionStarted Type = "session:started"
	TypeSessionStopped Type = "session:stopped"
	TypePing           Type = "ping"
)

var ErrMalformedEvent = errors.New("malformed event")

type Event struct {
	Version  int    `json:"version"`
	Type     Type   `json:"type"`
	Wallet   string `json:"wallet"`
	EventID  string `json:"event_id"`
	ServerTS int64  `json:"server_ts"`
	Data     any    `json:"data"`
}

type BlockInfo struct {
	Index         int     `json:"index"`
	TotalDeployed uint64  `json:"total_deployed"`
	EV            float64 `json:"ev"`
}

type RoundUpdate struct {
	RoundID  uint64      `json:"round_id"`
	TimeLeft float64     `json:"time_left"`
	Blocks   []BlockInfo `json:"blocks"`
}

type DecisionMade struct {
	RoundID uint64  `json:"round_id"`
	Action  string  `json:"action"`
	Block   *int    `json:"block,omitempty"`
	Blocks  []int   `json:"blocks,omitempty"`
	EV      float64 `json:"ev"`
	Reason  string  `json:"reason,omitempty"`
}

type TxSubmitted struct {
	Signature string `json:"signature"`
	TxType    string `json:"tx_type"`
	RoundID   uint64 `json:"round_id,omitempty"`
	Block     *int   `json:"block,omitempty"`
	Blocks    []int  `json:"blocks,omitempty"`
	Amount    uint64 `json:"amount"`
}

type TxConfirmed struct {
	Signature string  `json:"signature"`
	Reward    *uint64 `json:"reward,omitempty"`
}

type TxFailed struct {
	Signature string `json:"signature"`
	Reason    string `json:"reason"`
}

type BalanceUpdate struct {
	UnclaimedSOL uint64 `json:"unclaimed_sol"`
	UnclaimedORE uint64 `json:"unclaimed_ore"`
	RefinedORE   uint64 `json:"refined_ore"`
}

type ClaimConfirmed struct {
	ClaimID   string `json:"claim_id"`
	ClaimType string `json:"claim_type"`
	Gross     uint64 `json:"gross"`
	Fee       uint64 `json:"fee"`
	Net       uint64 `json:"net"`
	Signature string `json:"signature"`
}

type SessionStarted struct {
	SessionID string `json:"session_id"`
	Strategy  string `json:"strategy"`
}

type SessionStopped struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type Ping struct {
	TS int64 `json:"ts"`
}

// Validate checks the envelope and that Data is the payload type of Type.
func (e Event) Validate() error {
	if e.Version != Version {
		return fmt.Errorf("%w: version %d", ErrMalformedEvent, e.Version)
	}
	var ok bool
	switch e.Type {
	case TypeRoundUpdate:
		_, ok = e.Data.(RoundUpdate)
	case TypeDecisionMade:
		_, ok = e.Data.(DecisionMade)
	case TypeTxSubmitted:
		_, ok = e.Data.(TxSubmitted)
	case TypeTxConfirmed:
		_, ok = e.Data.(TxConfirmed)
	case TypeTxFailed:
		_, ok = e.Data.(TxFailed)
	case TypeBalanceUpdate:
		_, ok = e.Data.(BalanceUpdate)
	case TypeClaimConfirmed:
		_, ok = e.Data.(ClaimConfirmed)
	case TypeSessionStarted:
		_, ok = e.Data.(SessionStarted)
	case TypeSessionStopped:
		_, ok = e.Data.(SessionStopped)
	case TypePing:
		_, ok = e.Data.(Ping)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, e.Type)
	}
	if !ok {
		return fmt.Errorf("%w: %s carries %T", ErrMalformedEvent, e.Type, e.Data)
	}
	return nil
}

func newPayload(t Type) (any, error) {
	switch t {
	case TypeRoundUpdate:
		return &RoundUpdate{}, nil
	case TypeDecisionMade:
		return &DecisionMade{}, nil
	case TypeTxSubmitted:
		return &TxSubmitted{}, nil
	case TypeTxConfirmed:
		return &TxConfirmed{}, nil
	case TypeTxFailed:
		return &TxFailed{}, nil
	case TypeBalanceUpdate:
		return &BalanceUpdate{}, nil
	case TypeClaimConfirmed:
		return &ClaimConfirmed{}, nil
	case TypeSessionStarted:
		return &SessionStarted{}, nil
	case TypeSessionStopped:
		return &SessionStopped{}, nil
	case TypePing:
		return &Ping{}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, t)
}

// Decode parses a wire event and restores its typed payload.
func Decode(raw []byte) (Event, error) {
	var env struct {
		Event
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	ptr, err := newPayload(env.Event.Type)
	if err != nil {
		return Event{}, err
	}
	if err := json.Unmarshal(env.Data, ptr); err != nil {
		return Event{}, fmt.Errorf("%w: %s data: %w", ErrMalformedEvent, env.Event.Type, err)
	}
	ev := env.Event
	ev.Data = deref(ptr)
	return ev, ev.Validate()
}

func deref(p any) any {
	switch v := p.(type) {
	case *RoundUpdate:
		return *v
	case *DecisionMade:
		return *v
	case *TxSubmitted:
		return *v
	case *TxConfirmed:
		return *v
	case *TxFailed:
		return *v
	case *BalanceUpdate:
		return *v
	case *ClaimConfirmed:
		return *v
	case *SessionStarted:
		return *v
	case *SessionStopped:
		return *v
	case *Ping:
		return *v
	}
	return p
}
