package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const claimColumns = `id, wallet, claim_type, gross_amount, fee_amount, net_amount,
	tx_signature, status, error, created_at, confirmed_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	var confirmed pgtype.Timestamptz
	if err := row.Scan(&c.ID, &c.Wallet, &c.ClaimType, &c.Gross, &c.Fee, &c.Net,
		&c.Signature, &c.Status, &c.Error, &c.CreatedAt, &confirmed); err != nil {
		return nil, mapNotFound(err)
	}
	c.ConfirmedAt = timePtrVal(confirmed)
	return &c, nil
}

// CreatePendingClaim records a claim before it is sent. Only one pending
// claim per (wallet, type) may exist; a second yields ErrDuplicateKey.
func (s *Store) CreatePendingClaim(ctx context.Context, c Claim) (*Claim, error) {
	if c.ID == "" {
		c.ID = NewID()
	}
	out, err := scanClaim(s.Pool.QueryRow(ctx, `
		INSERT INTO claims (id, wallet, claim_type, gross_amount, fee_amount, net_amount, tx_signature, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING `+claimColumns,
		c.ID, c.Wallet, c.ClaimType, c.Gross, c.Fee, c.Net, c.Signature))
	if err != nil {
		return nil, wrap("create pending claim", err)
	}
	return out, nil
}

func (s *Store) GetClaim(ctx context.Context, id string) (*Claim, error) {
	c, err := scanClaim(s.Pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
	return c, wrap("get claim", err)
}

// ConfirmClaim marks the claim confirmed, debits the cached unclaimed balance
// by the gross amount and appends a claim history row, atomically.
func (s *Store) ConfirmClaim(ctx context.Context, id string) (*Claim, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, wrap("confirm claim", err)
	}
	defer tx.Rollback(ctx)

	c, err := scanClaim(tx.QueryRow(ctx, `
		UPDATE claims SET status = 'confirmed', confirmed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+claimColumns, id))
	if err != nil {
		return nil, wrap("confirm claim", err)
	}

	column := BalanceUnclaimedSOL
	if c.ClaimType == ClaimTypeORE {
		column = BalanceUnclaimedORE
	}
	var before int64
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM unclaimed_balances WHERE wallet = $1 FOR UPDATE`, pgx.Identifier{column}.Sanitize()),
		c.Wallet).Scan(&before)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		before = 0
	case err != nil:
		return nil, wrap("lock balance", err)
	}
	after := before - c.Gross
	if after < 0 {
		after = 0
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE unclaimed_balances SET %s = $2 WHERE wallet = $1`, pgx.Identifier{column}.Sanitize()),
		c.Wallet, after); err != nil {
		return nil, wrap("debit balance", err)
	}
	if _, err := appendHistory(ctx, tx, BalanceHistory{
		Wallet:      c.Wallet,
		BalanceType: column,
		Reason:      HistoryReasonClaim,
		Before:      before,
		After:       after,
		ReferenceID: c.ID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrap("commit claim", err)
	}
	return c, nil
}

func (s *Store) FailClaim(ctx context.Context, id, reason string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE claims SET status = 'failed', error = $2 WHERE id = $1 AND status = 'pending'`, id, reason)
	if err != nil {
		return wrap("fail claim", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListClaims(ctx context.Context, wallet string, limit, offset int) ([]Claim, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := s.Pool.Query(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE wallet = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, wallet, limit, offset)
	if err != nil {
		return nil, wrap("list claims", err)
	}
	return collectClaims(rows, "list claims")
}

func (s *Store) ListPendingClaims(ctx context.Context) ([]Claim, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+claimColumns+` FROM claims WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, wrap("list pending claims", err)
	}
	return collectClaims(rows, "list pending claims")
}

func collectClaims(rows pgx.Rows, op string) ([]Claim, error) {
	defer rows.Close()
	var out []Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, *c)
	}
	return out, wrap(op, rows.Err())
}
