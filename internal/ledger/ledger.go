// Package ledger converts between base units and display amounts and reads
// the append-only balance history.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ore-autominer/internal/store"
)

const (
	SOLDecimals = 9
	OREDecimals = 11
)

var (
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrAmountPrecision = errors.New("amount has more decimals than the token")
)

// SOL renders lamports.
func SOL(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -SOLDecimals)
}

// ORE renders ORE base units.
func ORE(units int64) decimal.Decimal {
	return decimal.New(units, -OREDecimals)
}

// Lamports parses a SOL amount.
func Lamports(sol decimal.Decimal) (uint64, error) {
	return baseUnits(sol, SOLDecimals)
}

// OREUnits parses an ORE amount.
func OREUnits(ore decimal.Decimal) (uint64, error) {
	return baseUnits(ore, OREDecimals)
}

func baseUnits(d decimal.Decimal, decimals int32) (uint64, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrAmountPrecision
	}
	return shifted.BigInt().Uint64(), nil
}

// Amount renders base units of the given balance or claim type.
func Amount(kind string, units int64) decimal.Decimal {
	switch kind {
	case store.ClaimTypeORE, store.BalanceUnclaimedORE, store.BalanceRefinedORE:
		return ORE(units)
	default:
		return SOL(units)
	}
}

type Entry struct {
	ID          string          `json:"id"`
	BalanceType string          `json:"balance_type"`
	Reason      string          `json:"reason"`
	Before      decimal.Decimal `json:"before"`
	After       decimal.Decimal `json:"after"`
	Delta       decimal.Decimal `json:"delta"`
	ReferenceID string          `json:"reference_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Source interface {
	ListBalanceHistory(ctx context.Context, wallet string, limit int) ([]store.BalanceHistory, error)
}

type Ledger struct {
	src Source
}

func New(src Source) *Ledger {
	return &Ledger{src: src}
}

// History lists the wallet's balance movements, newest first.
func (l *Ledger) History(ctx context.Context, wallet string, limit int) ([]Entry, error) {
	rows, err := l.src.ListBalanceHistory(ctx, wallet, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, h := range rows {
		out = append(out, Entry{
			ID:          h.ID,
			BalanceType: h.BalanceType,
			Reason:      h.Reason,
			Before:      Amount(h.BalanceType, h.Before),
			After:       Amount(h.BalanceType, h.After),
			Delta:       Amount(h.BalanceType, h.After-h.Before),
			ReferenceID: h.ReferenceID,
			CreatedAt:   h.CreatedAt,
		})
	}
	return out, nil
}
