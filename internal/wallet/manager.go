// Package wallet keeps the mining keypairs, encrypted at rest, and hands out
// signers to the rest of the process.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ore-autominer/internal/solana"
	"ore-autominer/internal/store"
)

var (
	ErrWalletNotFound = errors.New("wallet_not_found")
	ErrWalletExists   = errors.New("wallet already exists")
	ErrInvalidSecret  = errors.New("invalid secret key")
)

const DefaultReadyLamports = 10_000_000

type Store interface {
	InsertWallet(ctx context.Context, w store.Wallet) (*store.Wallet, error)
	GetWallet(ctx context.Context, address string) (*store.Wallet, error)
	ListWallets(ctx context.Context) ([]store.Wallet, error)
}

type BalanceReader interface {
	SOLBalance(ctx context.Context, wallet solana.PublicKey) (uint64, error)
}

// Info is a wallet as listed to operators. Key material is never included.
type Info struct {
	Address   string    `json:"address"`
	Label     string    `json:"label"`
	Balance   uint64    `json:"balance"`
	Ready     bool      `json:"ready"`
	CreatedAt time.Time `json:"created_at"`
}

type Manager struct {
	store      Store
	balances   BalanceReader
	passphrase string
	readyMin   uint64

	mu    sync.RWMutex
	cache map[string]solana.Keypair
}

func NewManager(st Store, balances BalanceReader, passphrase string, readyMin uint64) *Manager {
	if readyMin == 0 {
		readyMin = DefaultReadyLamports
	}
	return &Manager{
		store:      st,
		balances:   balances,
		passphrase: passphrase,
		readyMin:   readyMin,
		cache:      map[string]solana.Keypair{},
	}
}

func (m *Manager) Generate(ctx context.Context, label string) (*Info, error) {
	kp, err := solana.NewKeypair()
	if err != nil {
		return nil, err
	}
	return m.save(ctx, kp, label)
}

// Import accepts a base58 64-byte secret key or 32-byte seed.
func (m *Manager) Import(ctx context.Context, secret, label string) (*Info, error) {
	kp, err := solana.KeypairFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	return m.save(ctx, kp, label)
}

func (m *Manager) save(ctx context.Context, kp solana.Keypair, label string) (*Info, error) {
	sealed, err := encrypt(kp.Secret(), m.passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypt wallet key: %w", err)
	}
	addr := kp.PublicKey().String()
	w, err := m.store.InsertWallet(ctx, store.Wallet{Address: addr, EncryptedKey: sealed, Label: label, IsActive: true})
	if errors.Is(err, store.ErrDuplicateKey) {
		return nil, fmt.Errorf("%w: %s", ErrWalletExists, addr)
	}
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cache[addr] = kp
	m.mu.Unlock()
	log.Info().Str("wallet", addr).Str("label", label).Msg("wallet stored")
	return &Info{Address: addr, Label: w.Label, CreatedAt: w.CreatedAt}, nil
}

// List returns every wallet with its live SOL balance. A failed balance read
// leaves the wallet listed as not ready.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	wallets, err := m.store.ListWallets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(wallets))
	for _, w := range wallets {
		info := Info{Address: w.Address, Label: w.Label, CreatedAt: w.CreatedAt}
		if pk, err := solana.ParsePublicKey(w.Address); err == nil && m.balances != nil {
			bal, err := m.balances.SOLBalance(ctx, pk)
			if err != nil {
				log.Warn().Err(err).Str("wallet", w.Address).Msg("read wallet balance")
			} else {
				info.Balance = bal
				info.Ready = bal >= m.readyMin
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// Export returns the base58 secret key. Callers must gate it behind admin
// authentication.
func (m *Manager) Export(ctx context.Context, address string) (string, error) {
	kp, err := m.Keypair(ctx, address)
	if err != nil {
		return "", err
	}
	log.Warn().Str("wallet", address).Msg("wallet secret exported")
	return kp.Base58Secret(), nil
}

// Keypair returns the decrypted signer, caching it after first use.
func (m *Manager) Keypair(ctx context.Context, address string) (solana.Keypair, error) {
	m.mu.RLock()
	kp, ok := m.cache[address]
	m.mu.RUnlock()
	if ok {
		return kp, nil
	}
	w, err := m.store.GetWallet(ctx, address)
	if errors.Is(err, store.ErrNotFound) {
		return solana.Keypair{}, fmt.Errorf("%w: %s", ErrWalletNotFound, address)
	}
	if err != nil {
		return solana.Keypair{}, err
	}
	secret, err := decrypt(w.EncryptedKey, m.passphrase)
	if err != nil {
		return solana.Keypair{}, err
	}
	kp, err = solana.KeypairFromBytes(secret)
	if err != nil {
		return solana.Keypair{}, err
	}
	if kp.PublicKey().String() != address {
		return solana.Keypair{}, fmt.Errorf("%w: stored key does not match %s", ErrDecrypt, address)
	}
	m.mu.Lock()
	m.cache[address] = kp
	m.mu.Unlock()
	return kp, nil
}
