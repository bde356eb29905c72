package claims

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ore-autominer/internal/events"
	"ore-autominer/internal/metrics"
	"ore-autominer/internal/ore"
	"ore-autominer/internal/solana"
	"ore-autominer/internal/store"
)

var (
	ErrInsufficientBalance    = errors.New("insufficient_balance")
	ErrDuplicateClaimInFlight = errors.New("duplicate_claim_in_flight")
	ErrInvalidClaimType       = errors.New("invalid claim type")
)

const (
	FailureSend    = "send_failed"
	FailureChain   = "chain_error"
	FailureTimeout = "confirmation_timeout"
)

type Store interface {
	GetUnclaimedBalance(ctx context.Context, wallet string) (*store.UnclaimedBalance, error)
	SyncUnclaimedBalance(ctx context.Context, next store.UnclaimedBalance) ([]store.BalanceHistory, error)
	CreatePendingClaim(ctx context.Context, c store.Claim) (*store.Claim, error)
	ConfirmClaim(ctx context.Context, id string) (*store.Claim, error)
	FailClaim(ctx context.Context, id, reason string) error
	ListPendingClaims(ctx context.Context) ([]store.Claim, error)
	ListClaims(ctx context.Context, wallet string, limit, offset int) ([]store.Claim, error)
}

type BalanceSource interface {
	Balances(ctx context.Context, authority solana.PublicKey) (ore.Balances, error)
}

type Chain interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*solana.SignatureStatus, error)
}

type Keys interface {
	Keypair(ctx context.Context, address string) (solana.Keypair, error)
}

type Config struct {
	FeePercent       uint64
	ComputeUnitPrice uint64
	PollInterval     time.Duration
	ConfirmTimeout   time.Duration
}

type Deps struct {
	Program  ore.Program
	Store    Store
	Balances BalanceSource
	Chain    Chain
	Keys     Keys
	Lock     Lock
	Events   events.Publisher
}

// Preview is returned as soon as a claim is sent; confirmation follows in
// the background.
type Preview struct {
	ClaimID   string `json:"claim_id"`
	ClaimType string `json:"claim_type"`
	Gross     uint64 `json:"gross"`
	Fee       uint64 `json:"fee"`
	Net       uint64 `json:"net"`
	Signature string `json:"signature"`
}

type Manager struct {
	d   Deps
	cfg Config

	syncMu    sync.Mutex
	syncLocks map[string]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(d Deps, cfg Config) *Manager {
	if cfg.FeePercent == 0 {
		cfg.FeePercent = DefaultFeePercent
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if d.Lock == nil {
		d.Lock = NewMemoryLock()
	}
	if d.Events == nil {
		d.Events = events.Discard{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{d: d, cfg: cfg, syncLocks: map[string]*sync.Mutex{}, ctx: ctx, cancel: cancel}
}

func lockKey(wallet, claimType string) string {
	return "claim:" + wallet + ":" + claimType
}

func (m *Manager) lockTTL() time.Duration {
	return m.cfg.ConfirmTimeout + 30*time.Second
}

func (m *Manager) walletSyncLock(wallet string) *sync.Mutex {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	mu := m.syncLocks[wallet]
	if mu == nil {
		mu = &sync.Mutex{}
		m.syncLocks[wallet] = mu
	}
	return mu
}

// Cached returns the last synced balance; a wallet never synced reads as zero.
func (m *Manager) Cached(ctx context.Context, wallet string) (store.UnclaimedBalance, error) {
	b, err := m.d.Store.GetUnclaimedBalance(ctx, wallet)
	if errors.Is(err, store.ErrNotFound) {
		return store.UnclaimedBalance{Wallet: wallet}, nil
	}
	if err != nil {
		return store.UnclaimedBalance{}, err
	}
	return *b, nil
}

// Sync reads the miner account and replaces the cached balance.
func (m *Manager) Sync(ctx context.Context, wallet string) (store.UnclaimedBalance, error) {
	mu := m.walletSyncLock(wallet)
	mu.Lock()
	defer mu.Unlock()

	authority, err := solana.ParsePublicKey(wallet)
	if err != nil {
		return store.UnclaimedBalance{}, fmt.Errorf("sync %s: %w", wallet, err)
	}
	onChain, err := m.d.Balances.Balances(ctx, authority)
	if err != nil {
		return store.UnclaimedBalance{}, fmt.Errorf("sync %s: %w", wallet, err)
	}
	next := store.UnclaimedBalance{
		Wallet:       wallet,
		UnclaimedSOL: int64(onChain.UnclaimedSOL),
		UnclaimedORE: int64(onChain.UnclaimedORE),
		RefinedORE:   int64(onChain.RefinedORE),
		LastSynced:   time.Now(),
	}
	changes, err := m.d.Store.SyncUnclaimedBalance(ctx, next)
	if err != nil {
		return store.UnclaimedBalance{}, err
	}
	log.Debug().Str("wallet", wallet).Int("changes", len(changes)).Msg("balance synced")
	_, _ = m.d.Events.Publish(wallet, events.TypeBalanceUpdate, events.BalanceUpdate{
		UnclaimedSOL: onChain.UnclaimedSOL,
		UnclaimedORE: onChain.UnclaimedORE,
		RefinedORE:   onChain.RefinedORE,
	})
	return next, nil
}

// Claim withdraws amount (zero means the whole cached balance) of the given
// reward type. Only one claim per wallet and type may be in flight.
func (m *Manager) Claim(ctx context.Context, wallet, claimType string, amount uint64) (*Preview, error) {
	if claimType != store.ClaimTypeSOL && claimType != store.ClaimTypeORE {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClaimType, claimType)
	}
	key := lockKey(wallet, claimType)
	ok, err := m.d.Lock.Acquire(ctx, key, m.lockTTL())
	if err != nil {
		return nil, fmt.Errorf("claim lock: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateClaimInFlight
	}
	release := true
	defer func() {
		if release {
			m.release(key)
		}
	}()

	kp, err := m.d.Keys.Keypair(ctx, wallet)
	if err != nil {
		return nil, err
	}
	cached, err := m.Cached(ctx, wallet)
	if err != nil {
		return nil, err
	}
	available := uint64(max(cached.UnclaimedSOL, 0))
	if claimType == store.ClaimTypeORE {
		available = uint64(max(cached.UnclaimedORE, 0))
	}
	if amount == 0 {
		amount = available
	}
	if amount == 0 || amount > available {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientBalance, amount, available)
	}
	fee, net := Fee(amount, m.cfg.FeePercent)

	tx, err := m.build(ctx, kp, claimType, amount)
	if err != nil {
		return nil, err
	}
	row, err := m.d.Store.CreatePendingClaim(ctx, store.Claim{
		Wallet:    wallet,
		ClaimType: claimType,
		Gross:     int64(amount),
		Fee:       int64(fee),
		Net:       int64(net),
		Signature: tx.Signature(),
	})
	if errors.Is(err, store.ErrDuplicateKey) {
		return nil, ErrDuplicateClaimInFlight
	}
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("wallet", wallet).Str("claim_id", row.ID).Str("signature", row.Signature).Logger()
	if _, err := m.d.Chain.SendTransaction(ctx, tx); err != nil {
		logger.Warn().Err(err).Msg("claim send failed")
		m.fail(row, FailureSend)
		return nil, fmt.Errorf("send claim: %w", err)
	}
	logger.Info().Str("type", claimType).Uint64("gross", amount).Msg("claim sent")

	release = false
	m.wg.Add(1)
	go m.confirm(*row, key, time.Now())

	return &Preview{
		ClaimID:   row.ID,
		ClaimType: claimType,
		Gross:     amount,
		Fee:       fee,
		Net:       net,
		Signature: row.Signature,
	}, nil
}

func (m *Manager) build(ctx context.Context, kp solana.Keypair, claimType string, amount uint64) (*solana.Transaction, error) {
	signer := kp.PublicKey()
	var ix solana.Instruction
	if claimType == store.ClaimTypeSOL {
		ix = m.d.Program.ClaimSOL(signer, amount)
	} else {
		var err error
		if ix, err = m.d.Program.ClaimORE(signer, amount); err != nil {
			return nil, err
		}
	}
	blockhash, err := m.d.Chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim blockhash: %w", err)
	}
	tx, err := solana.NewTransaction([]solana.Instruction{
		solana.SetComputeUnitLimit(ore.ClaimComputeUnits),
		solana.SetComputeUnitPrice(m.cfg.ComputeUnitPrice),
		ix,
	}, blockhash, signer)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(kp); err != nil {
		return nil, err
	}
	return tx, nil
}

// Resume picks up claims left pending by a previous process.
func (m *Manager) Resume(ctx context.Context) (int, error) {
	pending, err := m.d.Store.ListPendingClaims(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range pending {
		key := lockKey(c.Wallet, c.ClaimType)
		ok, err := m.d.Lock.Acquire(ctx, key, m.lockTTL())
		if err != nil {
			return n, fmt.Errorf("claim lock: %w", err)
		}
		if !ok {
			continue
		}
		n++
		m.wg.Add(1)
		go m.confirm(c, key, c.CreatedAt)
	}
	return n, nil
}

func (m *Manager) confirm(c store.Claim, key string, sentAt time.Time) {
	defer m.wg.Done()
	defer m.release(key)

	logger := log.With().Str("wallet", c.Wallet).Str("claim_id", c.ID).Str("signature", c.Signature).Logger()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		statuses, err := m.d.Chain.GetSignatureStatuses(m.ctx, c.Signature)
		if err != nil {
			logger.Warn().Err(err).Msg("claim status poll failed")
			continue
		}
		st := statuses[0]
		switch {
		case st.Failed():
			logger.Warn().RawJSON("err", st.Err).Msg("claim failed on chain")
			m.fail(&c, FailureChain)
			return
		case st.Confirmed():
			m.confirmed(c, logger)
			return
		case time.Since(sentAt) > m.cfg.ConfirmTimeout:
			logger.Warn().Msg("claim confirmation timed out")
			m.fail(&c, FailureTimeout)
			return
		}
	}
}

func (m *Manager) confirmed(c store.Claim, logger zerolog.Logger) {
	row, err := m.d.Store.ConfirmClaim(m.ctx, c.ID)
	if err != nil {
		logger.Error().Err(err).Msg("confirm claim")
		return
	}
	metrics.Claims.WithLabelValues(row.ClaimType, store.ClaimConfirmed).Inc()
	logger.Info().Int64("net", row.Net).Msg("claim confirmed")
	if _, err := m.Sync(m.ctx, row.Wallet); err != nil {
		logger.Warn().Err(err).Msg("post-claim sync failed")
	}
	_, _ = m.d.Events.Publish(row.Wallet, events.TypeClaimConfirmed, events.ClaimConfirmed{
		ClaimID:   row.ID,
		ClaimType: row.ClaimType,
		Gross:     uint64(row.Gross),
		Fee:       uint64(row.Fee),
		Net:       uint64(row.Net),
		Signature: row.Signature,
	})
}

func (m *Manager) fail(c *store.Claim, reason string) {
	if err := m.d.Store.FailClaim(m.ctx, c.ID, reason); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Str("claim_id", c.ID).Msg("fail claim")
	}
	metrics.Claims.WithLabelValues(c.ClaimType, store.ClaimFailed).Inc()
}

func (m *Manager) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.d.Lock.Release(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("release claim lock")
	}
}

func (m *Manager) History(ctx context.Context, wallet string, limit, offset int) ([]store.Claim, error) {
	return m.d.Store.ListClaims(ctx, wallet, limit, offset)
}

// Wait blocks until every background confirmation has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops background confirmation. Unfinished claims stay pending and
// are resumed on the next start.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
