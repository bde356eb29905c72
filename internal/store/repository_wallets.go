package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.Address, &w.EncryptedKey, &w.Label, &w.IsActive, &w.CreatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	return &w, nil
}

func (s *Store) InsertWallet(ctx context.Context, w Wallet) (*Wallet, error) {
	out, err := scanWallet(s.Pool.QueryRow(ctx, `
		INSERT INTO wallets (wallet_address, encrypted_key, label, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING wallet_address, encrypted_key, label, is_active, created_at`,
		w.Address, w.EncryptedKey, w.Label))
	if err != nil {
		return nil, wrap("insert wallet", err)
	}
	return out, nil
}

func (s *Store) GetWallet(ctx context.Context, address string) (*Wallet, error) {
	w, err := scanWallet(s.Pool.QueryRow(ctx, `
		SELECT wallet_address, encrypted_key, label, is_active, created_at
		FROM wallets WHERE wallet_address = $1`, address))
	return w, wrap("get wallet", err)
}

func (s *Store) ListWallets(ctx context.Context) ([]Wallet, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT wallet_address, encrypted_key, label, is_active, created_at
		FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, wrap("list wallets", err)
	}
	defer rows.Close()
	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, wrap("scan wallet", err)
		}
		out = append(out, *w)
	}
	return out, wrap("list wallets", rows.Err())
}
