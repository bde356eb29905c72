package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

func (s *Store) GetUnclaimedBalance(ctx context.Context, wallet string) (*UnclaimedBalance, error) {
	var b UnclaimedBalance
	err := s.Pool.QueryRow(ctx, `
		SELECT wallet, unclaimed_sol, unclaimed_ore, refined_ore, last_synced
		FROM unclaimed_balances WHERE wallet = $1`, wallet).
		Scan(&b.Wallet, &b.UnclaimedSOL, &b.UnclaimedORE, &b.RefinedORE, &b.LastSynced)
	if err != nil {
		return nil, wrap("get unclaimed balance", mapNotFound(err))
	}
	return &b, nil
}

// SyncUnclaimedBalance replaces the cached balance and appends one history row
// per field that changed.
func (s *Store) SyncUnclaimedBalance(ctx context.Context, next UnclaimedBalance) ([]BalanceHistory, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, wrap("sync balance", err)
	}
	defer tx.Rollback(ctx)

	prev := UnclaimedBalance{Wallet: next.Wallet}
	err = tx.QueryRow(ctx, `
		SELECT unclaimed_sol, unclaimed_ore, refined_ore
		FROM unclaimed_balances WHERE wallet = $1 FOR UPDATE`, next.Wallet).
		Scan(&prev.UnclaimedSOL, &prev.UnclaimedORE, &prev.RefinedORE)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrap("lock balance", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO unclaimed_balances (wallet, unclaimed_sol, unclaimed_ore, refined_ore, last_synced)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (wallet) DO UPDATE SET
			unclaimed_sol = EXCLUDED.unclaimed_sol,
			unclaimed_ore = EXCLUDED.unclaimed_ore,
			refined_ore = EXCLUDED.refined_ore,
			last_synced = EXCLUDED.last_synced`,
		next.Wallet, next.UnclaimedSOL, next.UnclaimedORE, next.RefinedORE); err != nil {
		return nil, wrap("upsert balance", err)
	}

	var written []BalanceHistory
	for _, d := range BalanceChanges(prev, next) {
		d.Reason = HistoryReasonSync
		h, err := appendHistory(ctx, tx, d)
		if err != nil {
			return nil, err
		}
		written = append(written, h)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrap("commit balance sync", err)
	}
	return written, nil
}

// BalanceChanges lists one history entry per field that differs.
func BalanceChanges(prev, next UnclaimedBalance) []BalanceHistory {
	fields := []struct {
		kind          string
		before, after int64
	}{
		{BalanceUnclaimedSOL, prev.UnclaimedSOL, next.UnclaimedSOL},
		{BalanceUnclaimedORE, prev.UnclaimedORE, next.UnclaimedORE},
		{BalanceRefinedORE, prev.RefinedORE, next.RefinedORE},
	}
	var out []BalanceHistory
	for _, f := range fields {
		if f.before == f.after {
			continue
		}
		out = append(out, BalanceHistory{
			Wallet:      next.Wallet,
			BalanceType: f.kind,
			Before:      f.before,
			After:       f.after,
		})
	}
	return out
}

func appendHistory(ctx context.Context, tx pgx.Tx, h BalanceHistory) (BalanceHistory, error) {
	if h.ID == "" {
		h.ID = NewID()
	}
	h.CreatedAt = time.Now().UTC()
	_, err := tx.Exec(ctx, `
		INSERT INTO balance_history (id, wallet, balance_type, reason, balance_before, balance_after, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		h.ID, h.Wallet, h.BalanceType, h.Reason, h.Before, h.After, h.ReferenceID, h.CreatedAt)
	if err != nil {
		return BalanceHistory{}, wrap("append balance history", err)
	}
	return h, nil
}

func (s *Store) ListBalanceHistory(ctx context.Context, wallet string, limit int) ([]BalanceHistory, error) {
	limit, _ = clampPage(limit, 0)
	rows, err := s.Pool.Query(ctx, `
		SELECT id, wallet, balance_type, reason, balance_before, balance_after, reference_id, created_at
		FROM balance_history WHERE wallet = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, wallet, limit)
	if err != nil {
		return nil, wrap("list balance history", err)
	}
	defer rows.Close()
	var out []BalanceHistory
	for rows.Next() {
		var h BalanceHistory
		if err := rows.Scan(&h.ID, &h.Wallet, &h.BalanceType, &h.Reason, &h.Before, &h.After, &h.ReferenceID, &h.CreatedAt); err != nil {
			return nil, wrap("scan balance history", err)
		}
		out = append(out, h)
	}
	return out, wrap("list balance history", rows.Err())
}
