// Package tracker follows submitted bundles until the chain confirms them and
// the round they deployed into settles.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ore-autominer/internal/events"
	"ore-autominer/internal/metrics"
	"ore-autominer/internal/ore"
	"ore-autominer/internal/solana"
	"ore-autominer/internal/store"
)

const (
	ReasonChainError          = "chain_error"
	ReasonConfirmationTimeout = "confirmation_timeout"
	ReasonSettlementTimeout   = "settlement_timeout"

	maxStatusBatch = 256
)

var ErrConfirmationTimeout = errors.New("confirmation timeout")

// Pending is one submitted deploy signature awaiting settlement.
type Pending struct {
	Signature   string
	Wallet      string
	SessionID   string
	RoundID     uint64
	SubmittedAt time.Time
}

type Store interface {
	ListPendingTransactions(ctx context.Context) ([]store.Transaction, error)
	ListTransactionsBySignature(ctx context.Context, signature string) ([]store.Transaction, error)
	MarkTransactionsFailed(ctx context.Context, signature, reason string, needsReconciliation bool) (int64, error)
	SettleRound(ctx context.Context, st store.Settlement) (*store.Session, error)
}

type StatusSource interface {
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*solana.SignatureStatus, error)
}

type RoundSource interface {
	Round(ctx context.Context, roundID uint64) (ore.Round, error)
}

type Config struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	SettleTimeout  time.Duration
}

type entry struct {
	Pending
	confirmed   bool
	confirmedAt time.Time
}

type Tracker struct {
	store    Store
	statuses StatusSource
	rounds   RoundSource
	events   events.Publisher
	cfg      Config
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*entry
}

func New(st Store, statuses StatusSource, rounds RoundSource, pub events.Publisher, cfg Config) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = time.Minute
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 2 * time.Minute
	}
	if pub == nil {
		pub = events.Discard{}
	}
	return &Tracker{
		store:    st,
		statuses: statuses,
		rounds:   rounds,
		events:   pub,
		cfg:      cfg,
		now:      time.Now,
		pending:  map[string]*entry{},
	}
}

func (t *Tracker) Track(p Pending) {
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = t.now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[p.Signature]; ok {
		return
	}
	t.pending[p.Signature] = &entry{Pending: p}
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Reconcile loads every pending row left by a previous process and resumes
// tracking it. The original submission time is kept so the confirmation
// timeout still applies.
func (t *Tracker) Reconcile(ctx context.Context) error {
	rows, err := t.store.ListPendingTransactions(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, r := range rows {
		if seen[r.Signature] {
			continue
		}
		seen[r.Signature] = true
		t.Track(Pending{
			Signature:   r.Signature,
			Wallet:      r.Wallet,
			SessionID:   r.SessionID,
			RoundID:     uint64(r.RoundID),
			SubmittedAt: r.CreatedAt,
		})
	}
	if len(seen) > 0 {
		log.Info().Int("signatures", len(seen)).Msg("reconciling pending transactions")
		t.Poll(ctx)
	}
	return nil
}

func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Poll(ctx)
		}
	}
}

// Poll advances every tracked signature by one step.
func (t *Tracker) Poll(ctx context.Context) {
	var unconfirmed, confirmed []*entry
	t.mu.Lock()
	for _, e := range t.pending {
		if e.confirmed {
			confirmed = append(confirmed, e)
		} else {
			unconfirmed = append(unconfirmed, e)
		}
	}
	t.mu.Unlock()

	for start := 0; start < len(unconfirmed); start += maxStatusBatch {
		end := min(start+maxStatusBatch, len(unconfirmed))
		t.checkStatuses(ctx, unconfirmed[start:end])
	}
	for _, e := range confirmed {
		t.settle(ctx, e)
	}
}

func (t *Tracker) checkStatuses(ctx context.Context, batch []*entry) {
	sigs := make([]string, len(batch))
	for i, e := range batch {
		sigs[i] = e.Signature
	}
	statuses, err := t.statuses.GetSignatureStatuses(ctx, sigs...)
	if err != nil {
		log.Warn().Err(err).Int("signatures", len(sigs)).Msg("signature status poll failed")
		statuses = make([]*solana.SignatureStatus, len(sigs))
	}
	now := t.now()
	for i, e := range batch {
		st := statuses[i]
		switch {
		case st.Failed():
			t.fail(ctx, e, ReasonChainError, false)
		case st.Confirmed():
			t.mu.Lock()
			e.confirmed = true
			e.confirmedAt = now
			t.mu.Unlock()
			t.settle(ctx, e)
		case now.Sub(e.SubmittedAt) > t.cfg.ConfirmTimeout:
			t.fail(ctx, e, ReasonConfirmationTimeout, true)
		}
	}
}

func (t *Tracker) fail(ctx context.Context, e *entry, reason string, reconcile bool) {
	if _, err := t.store.MarkTransactionsFailed(ctx, e.Signature, reason, reconcile); err != nil {
		log.Error().Err(err).Str("signature", e.Signature).Msg("mark transactions failed")
		return
	}
	t.forget(e.Signature)
	metrics.Settlements.WithLabelValues(reason).Inc()
	_, _ = t.events.Publish(e.Wallet, events.TypeTxFailed, events.TxFailed{Signature: e.Signature, Reason: reason})
	log.Warn().Str("wallet", e.Wallet).Str("session_id", e.SessionID).Uint64("round_id", e.RoundID).
		Str("signature", e.Signature).Str("reason", reason).Msg("transaction failed")
}

// settle waits for the round's slot hash, then applies every row's outcome in
// one store transaction.
func (t *Tracker) settle(ctx context.Context, e *entry) {
	rnd, err := t.rounds.Round(ctx, e.RoundID)
	if err != nil {
		log.Debug().Err(err).Uint64("round_id", e.RoundID).Msg("round not readable yet")
		t.expireSettlement(ctx, e)
		return
	}
	square, ok := rnd.WinningSquare()
	if !ok {
		t.expireSettlement(ctx, e)
		return
	}
	rows, err := t.store.ListTransactionsBySignature(ctx, e.Signature)
	if err != nil {
		log.Error().Err(err).Str("signature", e.Signature).Msg("load rows for settlement")
		return
	}
	st := Outcomes(rnd, square, e.Signature, rows)
	if len(st.Outcomes) == 0 {
		t.forget(e.Signature)
		return
	}
	var total uint64
	for _, o := range st.Outcomes {
		total += uint64(o.Reward)
	}
	sess, err := t.store.SettleRound(ctx, st)
	if errors.Is(err, store.ErrNotFound) {
		t.forget(e.Signature)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("signature", e.Signature).Msg("settle round")
		return
	}
	t.forget(e.Signature)

	status := store.TxLost
	confirmed := events.TxConfirmed{Signature: e.Signature}
	if total > 0 {
		status = store.TxWon
		confirmed.Reward = &total
	}
	metrics.Settlements.WithLabelValues(status).Inc()
	_, _ = t.events.Publish(e.Wallet, events.TypeTxConfirmed, confirmed)
	log.Info().Str("wallet", e.Wallet).Str("session_id", e.SessionID).Uint64("round_id", e.RoundID).
		Str("signature", e.Signature).Int("winning_square", square).Uint64("reward", total).
		Int64("net_pnl", sess.NetPnL).Msg("round settled")
}

// Outcomes maps each pending row of sig to won or lost against square.
func Outcomes(rnd ore.Round, square int, sig string, rows []store.Transaction) store.Settlement {
	st := store.Settlement{Signature: sig}
	for _, r := range rows {
		if r.Status != store.TxPending {
			continue
		}
		st.SessionID = r.SessionID
		out := store.RowOutcome{TxID: r.ID}
		if r.BlockIndex == square {
			out.Won = true
			out.Reward = int64(rnd.Reward(square, uint64(r.DeployAmount)))
		}
		st.Outcomes = append(st.Outcomes, out)
	}
	return st
}

// expireSettlement fails a confirmed signature whose round has not revealed
// its slot hash within SettleTimeout. The rows are flagged for reconciliation.
func (t *Tracker) expireSettlement(ctx context.Context, e *entry) {
	if t.now().Sub(e.confirmedAt) <= t.cfg.SettleTimeout {
		return
	}
	t.fail(ctx, e, ReasonSettlementTimeout, true)
}

func (t *Tracker) forget(sig string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, sig)
}
