// Package governor owns mining sessions: validation, one runner per active
// wallet, and the budget gate in front of every submission.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"ore-autominer/internal/events"
	"ore-autominer/internal/metrics"
	"ore-autominer/internal/store"
	"ore-autominer/internal/strategy"
	"ore-autominer/internal/wallet"
)

const (
	MaxDeployLamports = 10_000_000_000
	MaxTipLamports    = 1_000_000_000

	StopReasonUser           = "user"
	StopReasonBudgetExceeded = strategy.ReasonBudgetExceeded
)

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrSessionNotFound = errors.New("session_not_found")
	ErrBudgetExceeded  = errors.New("budget_exceeded")
)

type Store interface {
	GetWallet(ctx context.Context, address string) (*store.Wallet, error)
	CreateSession(ctx context.Context, sess store.Session) (*store.Session, bool, error)
	GetActiveSession(ctx context.Context, wallet string) (*store.Session, error)
	GetLatestSession(ctx context.Context, wallet string) (*store.Session, error)
	ListActiveSessions(ctx context.Context) ([]store.Session, error)
	DeactivateSession(ctx context.Context, wallet, reason string) (*store.Session, bool, error)
	IncrementRoundsSkipped(ctx context.Context, sessionID string) error
	SessionSpend(ctx context.Context, sessionID string) (int64, error)
}

// Runner mines one session until its context is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

type RunnerFactory func(sess store.Session) (Runner, error)

type handle struct {
	sessionID string
	cancel    context.CancelFunc
}

type Governor struct {
	store   Store
	events  events.Publisher
	factory RunnerFactory

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	runners map[string]*handle
}

func New(st Store, pub events.Publisher, factory RunnerFactory) *Governor {
	if pub == nil {
		pub = events.Discard{}
	}
	root, cancel := context.WithCancel(context.Background())
	return &Governor{
		store:   st,
		events:  pub,
		factory: factory,
		root:    root,
		cancel:  cancel,
		runners: map[string]*handle{},
	}
}

// SetRunnerFactory wires the factory after construction, for runners that
// themselves depend on the governor.
func (g *Governor) SetRunnerFactory(f RunnerFactory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.factory = f
}

type StartParams struct {
	Wallet       string
	Strategy     string
	DeployAmount int64
	MaxTip       int64
	Budget       int64
	NumBlocks    int
}

func (p StartParams) validate() error {
	switch {
	case p.Wallet == "":
		return fmt.Errorf("%w: wallet is required", ErrInvalidRequest)
	case p.DeployAmount <= 0 || p.DeployAmount > MaxDeployLamports:
		return fmt.Errorf("%w: deploy_amount must be in (0, 10] SOL", ErrInvalidRequest)
	case p.MaxTip < 0 || p.MaxTip > MaxTipLamports:
		return fmt.Errorf("%w: max_tip must be in [0, 1] SOL", ErrInvalidRequest)
	case p.Budget <= 0:
		return fmt.Errorf("%w: budget must be positive", ErrInvalidRequest)
	}
	if _, err := strategy.Parse(p.Strategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Start opens a session for the wallet, or returns the one already active.
// created is false in the latter case.
func (g *Governor) Start(ctx context.Context, p StartParams) (*store.Session, bool, error) {
	if err := p.validate(); err != nil {
		return nil, false, err
	}
	if _, err := g.store.GetWallet(ctx, p.Wallet); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: %s", wallet.ErrWalletNotFound, p.Wallet)
		}
		return nil, false, err
	}
	sess, created, err := g.store.CreateSession(ctx, store.Session{
		Wallet:       p.Wallet,
		Strategy:     p.Strategy,
		DeployAmount: p.DeployAmount,
		MaxTip:       p.MaxTip,
		Budget:       p.Budget,
		NumBlocks:    strategy.ClampBlocks(p.NumBlocks),
	})
	if err != nil {
		return nil, false, err
	}
	if err := g.launch(*sess); err != nil {
		return nil, false, err
	}
	if created {
		_, _ = g.events.Publish(sess.Wallet, events.TypeSessionStarted, events.SessionStarted{SessionID: sess.ID, Strategy: sess.Strategy})
		log.Info().Str("wallet", sess.Wallet).Str("session_id", sess.ID).Str("strategy", sess.Strategy).
			Int64("budget", sess.Budget).Int("num_blocks", sess.NumBlocks).Msg("session started")
	}
	return sess, created, nil
}

// Stop deactivates the wallet's session and cancels its runner. Stopping an
// already stopped wallet returns its latest session unchanged.
func (g *Governor) Stop(ctx context.Context, wallet, reason string) (*store.Session, error) {
	if reason == "" {
		reason = StopReasonUser
	}
	sess, changed, err := g.store.DeactivateSession(ctx, wallet, reason)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	g.halt(wallet)
	if !changed {
		latest, err := g.store.GetLatestSession(ctx, wallet)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return latest, err
	}
	_, _ = g.events.Publish(wallet, events.TypeSessionStopped, events.SessionStopped{SessionID: sess.ID, Reason: reason})
	log.Info().Str("wallet", wallet).Str("session_id", sess.ID).Str("reason", reason).Msg("session stopped")
	return sess, nil
}

// Authorize gates a submission of proposed lamports against the session
// budget. On rejection the round is counted as skipped and the session stops.
func (g *Governor) Authorize(ctx context.Context, sess store.Session, proposed int64) error {
	spent, err := g.store.SessionSpend(ctx, sess.ID)
	if err != nil {
		return err
	}
	if spent+proposed <= sess.Budget {
		return nil
	}
	log.Info().Str("wallet", sess.Wallet).Str("session_id", sess.ID).Int64("spent", spent).
		Int64("proposed", proposed).Int64("budget", sess.Budget).Msg("budget exhausted")
	if err := g.RecordSkip(ctx, sess.ID); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("record budget skip")
	}
	if _, err := g.Stop(context.WithoutCancel(ctx), sess.Wallet, StopReasonBudgetExceeded); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("stop exhausted session")
	}
	return fmt.Errorf("%w: spent %d + proposed %d > budget %d", ErrBudgetExceeded, spent, proposed, sess.Budget)
}

func (g *Governor) RecordSkip(ctx context.Context, sessionID string) error {
	return g.store.IncrementRoundsSkipped(ctx, sessionID)
}

// Active reports whether the session is still the wallet's active one.
func (g *Governor) Active(ctx context.Context, sess store.Session) (bool, error) {
	cur, err := g.store.GetActiveSession(ctx, sess.Wallet)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cur.ID == sess.ID, nil
}

// Status returns the active session, or the most recent one.
func (g *Governor) Status(ctx context.Context, wallet string) (*store.Session, error) {
	sess, err := g.store.GetLatestSession(ctx, wallet)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

type Stats struct {
	Session *store.Session
	Spent   int64
	WinRate float64
	Running bool
}

func (g *Governor) Stats(ctx context.Context, wallet string) (*Stats, error) {
	sess, err := g.Status(ctx, wallet)
	if err != nil {
		return nil, err
	}
	spent, err := g.store.SessionSpend(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	out := &Stats{Session: sess, Spent: spent, Running: g.Running(wallet)}
	if settled := sess.RoundsWon + sess.RoundsLost; settled > 0 {
		out.WinRate = float64(sess.RoundsWon) / float64(settled)
	}
	return out, nil
}

// ResumeActive relaunches runners for sessions left active by a previous
// process.
func (g *Governor) ResumeActive(ctx context.Context) (int, error) {
	sessions, err := g.store.ListActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		if err := g.launch(sess); err != nil {
			log.Error().Err(err).Str("session_id", sess.ID).Msg("resume session")
			continue
		}
		n++
	}
	if n > 0 {
		log.Info().Int("sessions", n).Msg("resumed active sessions")
	}
	return n, nil
}

func (g *Governor) Running(wallet string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.runners[wallet]
	return ok
}

func (g *Governor) launch(sess store.Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.runners[sess.Wallet]; ok && h.sessionID == sess.ID {
		return nil
	}
	if g.factory == nil {
		return errors.New("governor: no runner factory")
	}
	runner, err := g.factory(sess)
	if err != nil {
		return fmt.Errorf("build runner: %w", err)
	}
	ctx, cancel := context.WithCancel(g.root)
	h := &handle{sessionID: sess.ID, cancel: cancel}
	if old, ok := g.runners[sess.Wallet]; ok {
		old.cancel()
	}
	g.runners[sess.Wallet] = h
	metrics.ActiveSessions.Inc()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer metrics.ActiveSessions.Dec()
		defer func() {
			g.mu.Lock()
			if g.runners[sess.Wallet] == h {
				delete(g.runners, sess.Wallet)
			}
			g.mu.Unlock()
			cancel()
		}()
		runner.Run(ctx)
	}()
	return nil
}

func (g *Governor) halt(wallet string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.runners[wallet]; ok {
		h.cancel()
		delete(g.runners, wallet)
	}
}

// Shutdown cancels every runner and waits for them to return. Sessions stay
// active so they resume on the next start.
func (g *Governor) Shutdown() {
	g.cancel()
	g.wg.Wait()
}
