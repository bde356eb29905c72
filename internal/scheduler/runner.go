// Package scheduler drives one mining session through each round:
// WAITING, SNAPSHOT, EVALUATING, DECIDED, SUBMITTING, SETTLING.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ore-autominer/internal/bundle"
	"ore-autominer/internal/config"
	"ore-autominer/internal/ev"
	"ore-autominer/internal/events"
	"ore-autominer/internal/governor"
	"ore-autominer/internal/metrics"
	"ore-autominer/internal/round"
	"ore-autominer/internal/solana"
	"ore-autominer/internal/store"
	"ore-autominer/internal/strategy"
)

type State string

const (
	StateWaiting    State = "WAITING"
	StateSnapshot   State = "SNAPSHOT"
	StateEvaluating State = "EVALUATING"
	StateDecided    State = "DECIDED"
	StateSubmitting State = "SUBMITTING"
	StateSettling   State = "SETTLING"
)

type Fetcher interface {
	Fetch(ctx context.Context) (round.Snapshot, error)
	Position(ctx context.Context) (round.Snapshot, error)
}

type Governor interface {
	Authorize(ctx context.Context, sess store.Session, proposed int64) error
	RecordSkip(ctx context.Context, sessionID string) error
	Active(ctx context.Context, sess store.Session) (bool, error)
}

type Submitter interface {
	QuoteTip(ctx context.Context, maxTip uint64) uint64
	Submit(ctx context.Context, req bundle.Request) (*bundle.Result, error)
}

// Latency supplies the one-way delay subtracted from every deadline.
type Latency interface {
	OneWay() time.Duration
}

type Deps struct {
	Fetcher   Fetcher
	Governor  Governor
	Submitter Submitter
	Latency   Latency
	Events    events.Publisher
}

// Runner owns one session. It shares nothing mutable with other runners.
type Runner struct {
	sess   store.Session
	signer solana.Keypair
	name   strategy.Name
	deps   Deps
	cfg    config.SchedulerConfig
	now    func() time.Time
	logger zerolog.Logger

	state     atomic.Value
	lastRound uint64
	played    bool
	failures  int
}

func NewRunner(sess store.Session, signer solana.Keypair, deps Deps, cfg config.SchedulerConfig) *Runner {
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}
	r := &Runner{
		sess:   sess,
		signer: signer,
		name:   strategy.Name(sess.Strategy),
		deps:   deps,
		cfg:    cfg,
		now:    time.Now,
		logger: log.With().Str("wallet", sess.Wallet).Str("session_id", sess.ID).Logger(),
	}
	r.state.Store(StateWaiting)
	return r
}

func (r *Runner) State() State {
	return r.state.Load().(State)
}

func (r *Runner) setState(s State) {
	r.state.Store(s)
}

func (r *Runner) Run(ctx context.Context) {
	r.logger.Info().Str("strategy", string(r.name)).Msg("runner started")
	defer r.logger.Info().Msg("runner stopped")
	for ctx.Err() == nil {
		r.step(ctx)
	}
}

// step performs one WAITING poll and, when the snapshot checkpoint has come,
// plays the round.
func (r *Runner) step(ctx context.Context) {
	r.setState(StateWaiting)
	pos, err := r.deps.Fetcher.Position(ctx)
	if err != nil {
		r.failures++
		r.logger.Debug().Err(err).Int("failures", r.failures).Msg("board poll failed")
		r.sleep(ctx, PollInterval(121, r.failures))
		return
	}
	r.failures = 0
	cadence := PollInterval(pos.SlotsRemaining(), 0)

	if !pos.Started || (r.played && pos.RoundID == r.lastRound) {
		r.sleep(ctx, cadence)
		return
	}

	effective := r.effectiveDeadline(pos.Deadline)
	snapshotAt := effective.Add(-r.cfg.SnapshotOffset)
	now := r.now()
	if now.Before(snapshotAt) {
		r.sleep(ctx, min(cadence, snapshotAt.Sub(now)))
		return
	}

	r.lastRound = pos.RoundID
	r.played = true
	if !now.Before(effective.Add(-r.cfg.SubmitOffset)) {
		r.skip(ctx, pos.RoundID, strategy.ReasonDeadlineMissed)
		return
	}
	r.playRound(ctx, pos.RoundID, effective)
}

func (r *Runner) effectiveDeadline(deadline time.Time) time.Time {
	if r.deps.Latency == nil {
		return deadline
	}
	return deadline.Add(-r.deps.Latency.OneWay())
}

func (r *Runner) playRound(ctx context.Context, roundID uint64, effective time.Time) {
	rlog := r.logger.With().Uint64("round_id", roundID).Logger()
	evaluateAt := effective.Add(-r.cfg.EvaluateOffset)
	decideAt := effective.Add(-r.cfg.DecideOffset)
	submitAt := effective.Add(-r.cfg.SubmitOffset)

	// SNAPSHOT, bounded by the evaluation checkpoint.
	r.setState(StateSnapshot)
	sctx, cancel := context.WithDeadline(ctx, evaluateAt)
	snap, err := r.deps.Fetcher.Fetch(sctx)
	tip := r.deps.Submitter.QuoteTip(sctx, uint64(r.sess.MaxTip))
	cancel()
	if ctx.Err() != nil {
		r.skip(ctx, roundID, strategy.ReasonSessionStopped)
		return
	}
	if err != nil && !errors.Is(err, round.ErrStaleSnapshot) {
		rlog.Warn().Err(err).Msg("snapshot failed")
		r.skip(ctx, roundID, strategy.ReasonStaleSnapshot)
		return
	}
	if snap.RoundID != roundID {
		r.skip(ctx, roundID, strategy.ReasonStaleSnapshot)
		return
	}
	scored := snap.Score(uint64(r.sess.DeployAmount), tip)
	r.publishRound(snap, scored, effective)

	// EVALUATING
	if !r.sleepUntil(ctx, evaluateAt) {
		r.skip(ctx, roundID, strategy.ReasonSessionStopped)
		return
	}
	r.setState(StateEvaluating)
	if err := snap.Usable(r.cfg.StaleThreshold, r.now()); err != nil {
		rlog.Warn().Err(err).Msg("snapshot unusable")
		r.skip(ctx, roundID, strategy.ReasonStaleSnapshot)
		return
	}
	decision := strategy.Select(r.name, scored, r.sess.NumBlocks)

	// DECIDED
	if !r.sleepUntil(ctx, decideAt) {
		r.skip(ctx, roundID, strategy.ReasonSessionStopped)
		return
	}
	r.setState(StateDecided)
	if !decision.Deploys() {
		r.skip(ctx, roundID, decision.Reason)
		return
	}
	active, err := r.deps.Governor.Active(ctx, r.sess)
	if err != nil {
		rlog.Warn().Err(err).Msg("session state unknown")
	}
	if err != nil || !active {
		r.skip(ctx, roundID, strategy.ReasonSessionStopped)
		return
	}
	proposed := r.sess.DeployAmount*int64(len(decision.Blocks)) + int64(tip)
	if err := r.deps.Governor.Authorize(ctx, r.sess, proposed); err != nil {
		if errors.Is(err, governor.ErrBudgetExceeded) {
			r.publishDecision(roundID, strategy.Skip(strategy.ReasonBudgetExceeded))
			return
		}
		rlog.Warn().Err(err).Msg("authorize failed")
		r.skip(ctx, roundID, strategy.ReasonSubmissionFailed)
		return
	}

	// SUBMITTING, only while the guard still holds.
	if !r.sleepUntil(ctx, submitAt) {
		r.skip(ctx, roundID, strategy.ReasonSessionStopped)
		return
	}
	if !r.now().Before(effective.Add(-r.cfg.SubmitGuard)) {
		r.skip(ctx, roundID, strategy.ReasonDeadlineMissed)
		return
	}
	r.setState(StateSubmitting)
	r.publishDecision(roundID, decision)
	expected := make(map[int]float64, len(decision.Blocks))
	for _, b := range decision.Blocks {
		expected[b] = scored.Slots[b].EV
	}
	subCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), effective)
	_, err = r.deps.Submitter.Submit(subCtx, bundle.Request{
		Session:    r.sess,
		Signer:     r.signer,
		RoundID:    roundID,
		Decision:   decision,
		ExpectedEV: expected,
		Tip:        tip,
		Deadline:   effective,
	})
	cancel()
	if err != nil {
		if errors.Is(err, bundle.ErrNothingToSubmit) {
			r.setState(StateSettling)
			return
		}
		rlog.Warn().Err(err).Msg("submission failed")
		if !errors.Is(err, bundle.ErrSubmissionTimeout) {
			// Nothing was written, so the round counts as skipped. The deploy
			// decision already went out and is not repeated.
			r.recordSkip(ctx)
		}
		return
	}
	r.setState(StateSettling)
}

func (r *Runner) skip(ctx context.Context, roundID uint64, reason string) {
	r.recordSkip(ctx)
	r.publishDecision(roundID, strategy.Skip(reason))
}

func (r *Runner) recordSkip(ctx context.Context) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := r.deps.Governor.RecordSkip(wctx, r.sess.ID); err != nil {
		r.logger.Warn().Err(err).Msg("record skip")
	}
}

func (r *Runner) publishDecision(roundID uint64, d strategy.Decision) {
	metrics.Decisions.WithLabelValues(d.Action, d.Reason).Inc()
	payload := events.DecisionMade{RoundID: roundID, Action: d.Action, Blocks: d.Blocks, EV: d.EV, Reason: d.Reason}
	if len(d.Blocks) > 0 {
		first := d.Blocks[0]
		payload.Block = &first
	}
	_, _ = r.deps.Events.Publish(r.sess.Wallet, events.TypeDecisionMade, payload)
	r.logger.Info().Uint64("round_id", roundID).Str("action", d.Action).Str("reason", d.Reason).
		Ints("blocks", d.Blocks).Float64("ev", d.EV).Msg("decision")
}

func (r *Runner) publishRound(snap round.Snapshot, scored ev.Result, effective time.Time) {
	blocks := make([]events.BlockInfo, len(scored.Slots))
	for i, s := range scored.Slots {
		blocks[i] = events.BlockInfo{Index: s.Index, TotalDeployed: s.TotalStaked, EV: s.EV}
	}
	left := effective.Sub(r.now())
	if left < 0 {
		left = 0
	}
	_, _ = r.deps.Events.Publish(r.sess.Wallet, events.TypeRoundUpdate, events.RoundUpdate{
		RoundID:  snap.RoundID,
		TimeLeft: left.Seconds(),
		Blocks:   blocks,
	})
}

// sleepUntil returns false if ctx ends first.
func (r *Runner) sleepUntil(ctx context.Context, t time.Time) bool {
	return r.sleep(ctx, t.Sub(r.now()))
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
