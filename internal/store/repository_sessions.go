package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const sessionColumns = `id, wallet, strategy, deploy_amount, max_tip, budget, num_blocks,
	rounds_played, rounds_skipped, rounds_won, rounds_lost,
	total_deployed, total_tips, total_won, net_pnl,
	is_active, stop_reason, created_at, updated_at, ended_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var ended pgtype.Timestamptz
	if err := row.Scan(
		&s.ID, &s.Wallet, &s.Strategy, &s.DeployAmount, &s.MaxTip, &s.Budget, &s.NumBlocks,
		&s.RoundsPlayed, &s.RoundsSkipped, &s.RoundsWon, &s.RoundsLost,
		&s.TotalDeployed, &s.TotalTips, &s.TotalWon, &s.NetPnL,
		&s.IsActive, &s.StopReason, &s.CreatedAt, &s.UpdatedAt, &ended,
	); err != nil {
		return nil, mapNotFound(err)
	}
	s.EndedAt = timePtrVal(ended)
	return &s, nil
}

// CreateSession inserts an active session for the wallet. If the wallet
// already has one, that session is returned with created=false.
func (s *Store) CreateSession(ctx context.Context, sess Session) (*Session, bool, error) {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO sessions (id, wallet, strategy, deploy_amount, max_tip, budget, num_blocks, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (wallet) WHERE is_active DO NOTHING
		RETURNING `+sessionColumns,
		sess.ID, sess.Wallet, sess.Strategy, sess.DeployAmount, sess.MaxTip, sess.Budget, sess.NumBlocks)
	created, err := scanSession(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, wrap("create session", err)
	}
	existing, err := s.GetActiveSession(ctx, sess.Wallet)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(s.Pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	return sess, wrap("get session", err)
}

func (s *Store) GetActiveSession(ctx context.Context, wallet string) (*Session, error) {
	sess, err := scanSession(s.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE wallet = $1 AND is_active`, wallet))
	return sess, wrap("get active session", err)
}

// GetLatestSession returns the active session if any, otherwise the most
// recently created one.
func (s *Store) GetLatestSession(ctx context.Context, wallet string) (*Session, error) {
	sess, err := scanSession(s.Pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE wallet = $1
		ORDER BY is_active DESC, created_at DESC
		LIMIT 1`, wallet))
	return sess, wrap("get latest session", err)
}

func (s *Store) ListActiveSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, wrap("list active sessions", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, wrap("scan session", err)
		}
		out = append(out, *sess)
	}
	return out, wrap("list active sessions", rows.Err())
}

// DeactivateSession flips the wallet's active session to inactive. changed is
// false when there was nothing active to stop.
func (s *Store) DeactivateSession(ctx context.Context, wallet, reason string) (*Session, bool, error) {
	sess, err := scanSession(s.Pool.QueryRow(ctx, `
		UPDATE sessions
		SET is_active = FALSE, stop_reason = $2, ended_at = now(), updated_at = now()
		WHERE wallet = $1 AND is_active
		RETURNING `+sessionColumns, wallet, reason))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("deactivate session", err)
	}
	return sess, true, nil
}

func (s *Store) IncrementRoundsSkipped(ctx context.Context, sessionID string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE sessions SET rounds_skipped = rounds_skipped + 1, updated_at = now() WHERE id = $1`, sessionID)
	if err != nil {
		return wrap("increment rounds skipped", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SessionSpend sums deploy plus tip over rows that reached, or may still
// reach, the chain.
func (s *Store) SessionSpend(ctx context.Context, sessionID string) (int64, error) {
	var spent int64
	err := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(deploy_amount + tip_amount), 0)::BIGINT
		FROM transactions
		WHERE session_id = $1 AND status IN ('pending', 'won', 'lost')`, sessionID).Scan(&spent)
	return spent, wrap("session spend", err)
}
