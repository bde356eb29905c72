package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ore-autominer/internal/solana"
	"ore-autominer/internal/store"
)

type memStore struct {
	mu      sync.Mutex
	wallets map[string]store.Wallet
	order   []string
}

func newMemStore() *memStore {
	return &memStore{wallets: map[string]store.Wallet{}}
}

func (m *memStore) InsertWallet(_ context.Context, w store.Wallet) (*store.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[w.Address]; ok {
		return nil, store.ErrDuplicateKey
	}
	w.CreatedAt = time.Now()
	m.wallets[w.Address] = w
	m.order = append(m.order, w.Address)
	return &w, nil
}

func (m *memStore) GetWallet(_ context.Context, addr string) (*store.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &w, nil
}

func (m *memStore) ListWallets(context.Context) ([]store.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Wallet, 0, len(m.order))
	for _, a := range m.order {
		out = append(out, m.wallets[a])
	}
	return out, nil
}

type balanceMap map[string]uint64

func (b balanceMap) SOLBalance(_ context.Context, pk solana.PublicKey) (uint64, error) {
	v, ok := b[pk.String()]
	if !ok {
		return 0, errors.New("rpc unavailable")
	}
	return v, nil
}

func TestEncryptRoundTripAndWrongPassphrase(t *testing.T) {
	sealed, err := encrypt([]byte("secret bytes"), "correct horse")
	require.NoError(t, err)

	plain, err := decrypt(sealed, "correct horse")
	require.NoError(t, err)
	require.Equal(t, "secret bytes", string(plain))

	_, err = decrypt(sealed, "wrong")
	require.ErrorIs(t, err, ErrDecrypt)
	_, err = decrypt("not-an-envelope", "correct horse")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestGenerateStoresEncryptedKey(t *testing.T) {
	st := newMemStore()
	m := NewManager(st, balanceMap{}, "pass", 0)

	info, err := m.Generate(t.Context(), "main")
	require.NoError(t, err)
	stored := st.wallets[info.Address]
	require.NotEmpty(t, stored.EncryptedKey)
	require.NotContains(t, stored.EncryptedKey, info.Address)

	fresh := NewManager(st, balanceMap{}, "pass", 0)
	kp, err := fresh.Keypair(t.Context(), info.Address)
	require.NoError(t, err)
	require.Equal(t, info.Address, kp.PublicKey().String())
}

func TestImportAndExport(t *testing.T) {
	kp, err := solana.NewKeypair()
	require.NoError(t, err)
	m := NewManager(newMemStore(), balanceMap{}, "pass", 0)

	info, err := m.Import(t.Context(), kp.Base58Secret(), "imported")
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey().String(), info.Address)

	_, err = m.Import(t.Context(), kp.Base58Secret(), "again")
	require.ErrorIs(t, err, ErrWalletExists)

	secret, err := m.Export(t.Context(), info.Address)
	require.NoError(t, err)
	require.Equal(t, kp.Base58Secret(), secret)

	_, err = m.Import(t.Context(), "0OIl", "bad")
	require.ErrorIs(t, err, ErrInvalidSecret)
}

func TestKeypairUnknownWallet(t *testing.T) {
	m := NewManager(newMemStore(), nil, "pass", 0)
	_, err := m.Keypair(t.Context(), "11111111111111111111111111111111")
	require.ErrorIs(t, err, ErrWalletNotFound)
}

func TestListReportsReadiness(t *testing.T) {
	st := newMemStore()
	balances := balanceMap{}
	m := NewManager(st, balances, "pass", 0)

	rich, err := m.Generate(t.Context(), "rich")
	require.NoError(t, err)
	poor, err := m.Generate(t.Context(), "poor")
	require.NoError(t, err)
	unknown, err := m.Generate(t.Context(), "unknown")
	require.NoError(t, err)
	balances[rich.Address] = DefaultReadyLamports
	balances[poor.Address] = DefaultReadyLamports - 1

	list, err := m.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 3)
	byAddr := map[string]Info{}
	for _, info := range list {
		byAddr[info.Address] = info
	}
	require.True(t, byAddr[rich.Address].Ready)
	require.False(t, byAddr[poor.Address].Ready)
	require.False(t, byAddr[unknown.Address].Ready)
	require.Zero(t, byAddr[unknown.Address].Balance)
}
