package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const txColumns = `id, session_id, wallet, round_id, block_index, deploy_amount, tip_amount,
	expected_ev, actual_reward, tx_signature, bundle_id, status, failure_reason,
	needs_reconciliation, strategy, created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var reward pgtype.Int8
	if err := row.Scan(
		&t.ID, &t.SessionID, &t.Wallet, &t.RoundID, &t.BlockIndex, &t.DeployAmount, &t.TipAmount,
		&t.ExpectedEV, &reward, &t.Signature, &t.BundleID, &t.Status, &t.FailureReason,
		&t.NeedsReconciliation, &t.Strategy, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, mapNotFound(err)
	}
	t.ActualReward = int64PtrVal(reward)
	return &t, nil
}

func collectTransactions(rows pgx.Rows, op string) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, *t)
	}
	return out, wrap(op, rows.Err())
}

// InsertPendingTransactions writes one signature's rows ahead of submission in
// a single transaction. If any (session, round, block) already has a row,
// nothing is written and the conflicting blocks are returned instead.
func (s *Store) InsertPendingTransactions(ctx context.Context, rows []Transaction) ([]Transaction, []int, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, wrap("insert pending transactions", err)
	}
	defer tx.Rollback(ctx)

	var out []Transaction
	var conflicts []int
	for _, t := range rows {
		if t.ID == "" {
			t.ID = NewID()
		}
		inserted, err := scanTransaction(tx.QueryRow(ctx, `
			INSERT INTO transactions (id, session_id, wallet, round_id, block_index, deploy_amount,
				tip_amount, expected_ev, tx_signature, status, strategy)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10)
			ON CONFLICT (session_id, round_id, block_index) DO NOTHING
			RETURNING `+txColumns,
			t.ID, t.SessionID, t.Wallet, t.RoundID, t.BlockIndex, t.DeployAmount,
			t.TipAmount, t.ExpectedEV, t.Signature, t.Strategy))
		if errors.Is(err, ErrNotFound) {
			conflicts = append(conflicts, t.BlockIndex)
			continue
		}
		if err != nil {
			return nil, nil, wrap("insert pending transaction", err)
		}
		out = append(out, *inserted)
	}
	if len(conflicts) > 0 {
		return nil, conflicts, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, wrap("commit pending transactions", err)
	}
	return out, nil, nil
}

// SubmittedBlocks lists the blocks that already have a row for the round.
func (s *Store) SubmittedBlocks(ctx context.Context, sessionID string, roundID int64) ([]int, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT block_index FROM transactions
		WHERE session_id = $1 AND round_id = $2
		ORDER BY block_index`, sessionID, roundID)
	if err != nil {
		return nil, wrap("submitted blocks", err)
	}
	blocks, err := pgx.CollectRows(rows, pgx.RowTo[int])
	return blocks, wrap("submitted blocks", err)
}

func (s *Store) SetBundleID(ctx context.Context, signature, bundleID string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE transactions SET bundle_id = $2, updated_at = now() WHERE tx_signature = $1`, signature, bundleID)
	return wrap("set bundle id", err)
}

// MarkTransactionsFailed moves every still-pending row of the signature to
// failed. Settled rows are left alone.
func (s *Store) MarkTransactionsFailed(ctx context.Context, signature, reason string, needsReconciliation bool) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE transactions
		SET status = 'failed', failure_reason = $2, needs_reconciliation = $3, updated_at = now()
		WHERE tx_signature = $1 AND status = 'pending'`, signature, reason, needsReconciliation)
	if err != nil {
		return 0, wrap("mark transactions failed", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListPendingTransactions(ctx context.Context) ([]Transaction, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, wrap("list pending transactions", err)
	}
	return collectTransactions(rows, "list pending transactions")
}

func (s *Store) ListTransactionsBySignature(ctx context.Context, signature string) ([]Transaction, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE tx_signature = $1 ORDER BY block_index`, signature)
	if err != nil {
		return nil, wrap("list transactions by signature", err)
	}
	return collectTransactions(rows, "list transactions by signature")
}

func (s *Store) ListTransactions(ctx context.Context, wallet string, limit, offset int) ([]Transaction, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := s.Pool.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE wallet = $1
		ORDER BY created_at DESC, block_index
		LIMIT $2 OFFSET $3`, wallet, limit, offset)
	if err != nil {
		return nil, wrap("list transactions", err)
	}
	return collectTransactions(rows, "list transactions")
}

// SettleRound applies the outcome of one bundle and folds it into the session
// aggregates in a single transaction. Rows already settled are skipped, so a
// repeated call returns ErrNotFound and changes nothing.
func (s *Store) SettleRound(ctx context.Context, st Settlement) (*Session, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, wrap("settle round", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, st.SessionID); err != nil {
		return nil, wrap("lock session", err)
	}

	var deployed, tips, won int64
	anyWon := false
	settled := 0
	for _, o := range st.Outcomes {
		status := TxLost
		reward := int64(0)
		if o.Won {
			status = TxWon
			reward = o.Reward
		}
		var deploy, tip int64
		err := tx.QueryRow(ctx, `
			UPDATE transactions
			SET status = $2, actual_reward = $3, updated_at = now()
			WHERE id = $1 AND session_id = $4 AND status = 'pending'
			RETURNING deploy_amount, tip_amount`,
			o.TxID, status, int8PtrParam(&reward), st.SessionID).Scan(&deploy, &tip)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, wrap(fmt.Sprintf("settle transaction %s", o.TxID), err)
		}
		settled++
		deployed += deploy
		tips += tip
		won += reward
		if o.Won {
			anyWon = true
		}
	}
	if settled == 0 {
		return nil, ErrNotFound
	}

	wonInc, lostInc := 0, 1
	if anyWon {
		wonInc, lostInc = 1, 0
	}
	sess, err := scanSession(tx.QueryRow(ctx, `
		UPDATE sessions SET
			rounds_played = rounds_played + 1,
			rounds_won = rounds_won + $2,
			rounds_lost = rounds_lost + $3,
			total_deployed = total_deployed + $4,
			total_tips = total_tips + $5,
			total_won = total_won + $6,
			net_pnl = net_pnl + $6 - $4 - $5,
			updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns,
		st.SessionID, wonInc, lostInc, deployed, tips, won))
	if err != nil {
		return nil, wrap("update session aggregates", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrap("commit settlement", err)
	}
	return sess, nil
}
