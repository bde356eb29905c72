package claims

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ore-autominer/internal/events"
	"ore-autominer/internal/ore"
	"ore-autominer/internal/solana"
	"ore-autominer/internal/store"
)

type memStore struct {
	mu      sync.Mutex
	balance map[string]store.UnclaimedBalance
	claims  []store.Claim
	nextID  int
}

func newMemStore() *memStore {
	return &memStore{balance: map[string]store.UnclaimedBalance{}}
}

func (m *memStore) GetUnclaimedBalance(_ context.Context, wallet string) (*store.UnclaimedBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balance[wallet]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (m *memStore) SyncUnclaimedBalance(_ context.Context, next store.UnclaimedBalance) ([]store.BalanceHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.balance[next.Wallet]
	m.balance[next.Wallet] = next
	return store.BalanceChanges(prev, next), nil
}

func (m *memStore) CreatePendingClaim(_ context.Context, c store.Claim) (*store.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.claims {
		if existing.Wallet == c.Wallet && existing.ClaimType == c.ClaimType && existing.Status == store.ClaimPending {
			return nil, store.ErrDuplicateKey
		}
	}
	m.nextID++
	c.ID = string(rune('a' + m.nextID))
	c.Status = store.ClaimPending
	c.CreatedAt = time.Now()
	m.claims = append(m.claims, c)
	return &c, nil
}

func (m *memStore) ConfirmClaim(_ context.Context, id string) (*store.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.claims {
		if c.ID == id && c.Status == store.ClaimPending {
			m.claims[i].Status = store.ClaimConfirmed
			b := m.balance[c.Wallet]
			if c.ClaimType == store.ClaimTypeSOL {
				b.UnclaimedSOL -= c.Gross
			} else {
				b.UnclaimedORE -= c.Gross
			}
			m.balance[c.Wallet] = b
			out := m.claims[i]
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) FailClaim(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.claims {
		if c.ID == id && c.Status == store.ClaimPending {
			m.claims[i].Status = store.ClaimFailed
			m.claims[i].Error = reason
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) ListPendingClaims(context.Context) ([]store.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Claim
	for _, c := range m.claims {
		if c.Status == store.ClaimPending {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) ListClaims(_ context.Context, wallet string, _, _ int) ([]store.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Claim
	for _, c := range m.claims {
		if c.Wallet == wallet {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) status(id string) (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.claims {
		if c.ID == id {
			return c.Status, c.Error
		}
	}
	return "", ""
}

type fakeChain struct {
	mu     sync.Mutex
	status *solana.SignatureStatus
	sent   int
}

func (f *fakeChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{1}, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *solana.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return tx.Signature(), nil
}

func (f *fakeChain) GetSignatureStatuses(_ context.Context, sigs ...string) ([]*solana.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(sigs))
	for i := range out {
		out[i] = f.status
	}
	return out, nil
}

func (f *fakeChain) set(s *solana.SignatureStatus) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

type fakeBalances struct {
	mu sync.Mutex
	b  ore.Balances
}

func (f *fakeBalances) Balances(context.Context, solana.PublicKey) (ore.Balances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.b, nil
}

type fixedKeys struct{ kp solana.Keypair }

func (k fixedKeys) Keypair(context.Context, string) (solana.Keypair, error) {
	return k.kp, nil
}

type fixture struct {
	m      *Manager
	st     *memStore
	chain  *fakeChain
	onch   *fakeBalances
	hub    *events.Hub
	wallet string
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	kp, err := solana.NewKeypair()
	require.NoError(t, err)
	program, err := ore.NewProgram("oreV3EG1i9BEgiAJ8b177Z2S2rMarzak4NMv1kULvWv", "oreoU2P8bN6jkk3jbaiVxYnG1dCXcYxwhwyK9jSybcp")
	require.NoError(t, err)

	f := &fixture{
		st:     newMemStore(),
		chain:  &fakeChain{},
		onch:   &fakeBalances{b: ore.Balances{UnclaimedSOL: 850_000_000, UnclaimedORE: 3e11}},
		hub:    events.NewHub(50),
		wallet: kp.PublicKey().String(),
	}
	f.m = NewManager(Deps{
		Program:  program,
		Store:    f.st,
		Balances: f.onch,
		Chain:    f.chain,
		Keys:     fixedKeys{kp: kp},
		Events:   f.hub,
	}, Config{PollInterval: 5 * time.Millisecond, ConfirmTimeout: timeout})
	t.Cleanup(f.m.Close)
	return f
}

func (f *fixture) eventTypes() []events.Type {
	var out []events.Type
	for _, ev := range f.hub.Buffer(f.wallet).ReplayAfter("") {
		out = append(out, ev.Type)
	}
	return out
}

func TestFeeRoundsHalfUp(t *testing.T) {
	fee, net := Fee(850_000_000, DefaultFeePercent)
	require.Equal(t, uint64(85_000_000), fee)
	require.Equal(t, uint64(765_000_000), net)

	fee, net = Fee(5, DefaultFeePercent)
	require.Equal(t, uint64(1), fee)
	require.Equal(t, uint64(4), net)

	fee, net = Fee(4, DefaultFeePercent)
	require.Equal(t, uint64(0), fee)
	require.Equal(t, uint64(4), net)
}

func TestSyncCachesBalanceAndPublishes(t *testing.T) {
	f := newFixture(t, time.Second)
	b, err := f.m.Sync(t.Context(), f.wallet)
	require.NoError(t, err)
	require.Equal(t, int64(850_000_000), b.UnclaimedSOL)

	cached, err := f.m.Cached(t.Context(), f.wallet)
	require.NoError(t, err)
	require.Equal(t, int64(3e11), cached.UnclaimedORE)
	require.Equal(t, []events.Type{events.TypeBalanceUpdate}, f.eventTypes())
}

func TestClaimRejectsZeroAndExcessAmounts(t *testing.T) {
	f := newFixture(t, time.Second)

	_, err := f.m.Claim(t.Context(), f.wallet, store.ClaimTypeSOL, 0)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.m.Sync(t.Context(), f.wallet)
	require.NoError(t, err)
	_, err = f.m.Claim(t.Context(), f.wallet, store.ClaimTypeSOL, 850_000_001)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.m.Claim(t.Context(), f.wallet, "btc", 1)
	require.ErrorIs(t, err, ErrInvalidClaimType)
	require.Zero(t, f.chain.sent)
}

func TestClaimPreviewAndBackgroundConfirm(t *testing.T) {
	f := newFixture(t, time.Second)
	_, err := f.m.Sync(t.Context(), f.wallet)
	require.NoError(t, err)

	preview, err := f.m.Claim(t.Context(), f.wallet, store.ClaimTypeSOL, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(850_000_000), preview.Gross)
	require.Equal(t, uint64(85_000_000), preview.Fee)
	require.Equal(t, uint64(765_000_000), preview.Net)
	require.NotEmpty(t, preview.Signature)

	status, _ := f.st.status(preview.ClaimID)
	require.Equal(t, store.ClaimPending, status)

	f.onch.mu.Lock()
	f.onch.b.UnclaimedSOL = 0
	f.onch.mu.Unlock()
	f.chain.set(&solana.SignatureStatus{ConfirmationStatus: "confirmed"})
	f.m.Wait()

	status, _ = f.st.status(preview.ClaimID)
	require.Equal(t, store.ClaimConfirmed, status)
	cached, err := f.m.Cached(t.Context(), f.wallet)
	require.NoError(t, err)
	require.Zero(t, cached.UnclaimedSOL)

	types := f.eventTypes()
	require.Equal(t, events.TypeClaimConfirmed, types[len(types)-1])
}

func TestSecondConcurrentClaimIsRejected(t *testing.T) {
	f := newFixture(t, time.Second)
	_, err := f.m.Sync(t.Context(), f.wallet)
	require.NoError(t, err)

	_, err = f.m.Claim(t.Context(), f.wallet, store.ClaimTypeORE, 1e11)
	require.NoError(t, err)

	_, err = f.m.Claim(t.Context(), f.wallet, store.ClaimTypeORE, 1e11)
	require.ErrorIs(t, err, ErrDuplicateClaimInFlight)

	// a different reward type has its own lock
	_, err = f.m.Claim(t.Context(), f.wallet, store.ClaimTypeSOL, 1)
	require.NoError(t, err)
	require.Equal(t, 2, f.chain.sent)
}

func TestClaimTimesOutAndReleasesLock(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	_, err := f.m.Sync(t.Context(), f.wallet)
	require.NoError(t, err)

	preview, err := f.m.Claim(t.Context(), f.wallet, store.ClaimTypeSOL, 100)
	require.NoError(t, err)
	f.m.Wait()

	status, reason := f.st.status(preview.ClaimID)
	require.Equal(t, store.ClaimFailed, status)
	require.Equal(t, FailureTimeout, reason)

	_, err = f.m.Claim(t.Context(), f.wallet, store.ClaimTypeSOL, 100)
	require.NoError(t, err)
}

func TestResumeConfirmsPendingClaims(t *testing.T) {
	f := newFixture(t, time.Second)
	_, err := f.m.Sync(t.Context(), f.wallet)
	require.NoError(t, err)
	row, err := f.st.CreatePendingClaim(t.Context(), store.Claim{
		Wallet: f.wallet, ClaimType: store.ClaimTypeSOL, Gross: 10, Fee: 1, Net: 9, Signature: "sig",
	})
	require.NoError(t, err)

	f.chain.set(&solana.SignatureStatus{ConfirmationStatus: "finalized"})
	n, err := f.m.Resume(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	f.m.Wait()

	status, _ := f.st.status(row.ID)
	require.Equal(t, store.ClaimConfirmed, status)
}

func TestMemoryLockExpires(t *testing.T) {
	l := NewMemoryLock()
	ok, err := l.Acquire(t.Context(), "k", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = l.Acquire(t.Context(), "k", 10*time.Millisecond)
	require.False(t, ok)

	time.Sleep(15 * time.Millisecond)
	ok, _ = l.Acquire(t.Context(), "k", 10*time.Millisecond)
	require.True(t, ok)

	require.NoError(t, l.Release(t.Context(), "k"))
	ok, _ = l.Acquire(t.Context(), "k", time.Second)
	require.True(t, ok)
}
