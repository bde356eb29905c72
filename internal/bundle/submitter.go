package bundle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"ore-autominer/internal/events"
	"ore-autominer/internal/metrics"
	"ore-autominer/internal/ore"
	"ore-autominer/internal/relay"
	"ore-autominer/internal/solana"
	"ore-autominer/internal/store"
	"ore-autominer/internal/strategy"
	"ore-autominer/internal/tracker"
)

const (
	FailureSubmission  = "submission_failed"
	FailureRejected    = "bundle_rejected"
	TxTypeDeploy       = "deploy"
	defaultAttemptTime = 300 * time.Millisecond
)

var (
	ErrSubmissionTimeout = errors.New("submission deadline exceeded")
	ErrNothingToSubmit   = errors.New("every block already submitted this round")
)

// Rows is the write-ahead slice of the store.
type Rows interface {
	SubmittedBlocks(ctx context.Context, sessionID string, roundID int64) ([]int, error)
	InsertPendingTransactions(ctx context.Context, rows []store.Transaction) ([]store.Transaction, []int, error)
	SetBundleID(ctx context.Context, signature, bundleID string) error
	MarkTransactionsFailed(ctx context.Context, signature, reason string, needsReconciliation bool) (int64, error)
}

type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
}

type MinerReader interface {
	Miner(ctx context.Context, authority solana.PublicKey) (*ore.Miner, error)
}

type TipSource interface {
	Recommended(ctx context.Context) uint64
}

type Registrar interface {
	Track(p tracker.Pending)
}

type Config struct {
	ComputeUnitPrice uint64
	TipFloor         uint64
	Retries          int
	RetryBase        time.Duration
	AttemptTimeout   time.Duration
}

type Submitter struct {
	program   ore.Program
	blockhash BlockhashSource
	miners    MinerReader
	rows      Rows
	sender    relay.Sender
	tips      TipSource
	tracker   Registrar
	events    events.Publisher
	cfg       Config
	now       func() time.Time
}

type Deps struct {
	Program   ore.Program
	Blockhash BlockhashSource
	Miners    MinerReader
	Rows      Rows
	Sender    relay.Sender
	Tips      TipSource
	Tracker   Registrar
	Events    events.Publisher
}

func NewSubmitter(d Deps, cfg Config) *Submitter {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTime
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 50 * time.Millisecond
	}
	if d.Events == nil {
		d.Events = events.Discard{}
	}
	return &Submitter{
		program:   d.Program,
		blockhash: d.Blockhash,
		miners:    d.Miners,
		rows:      d.Rows,
		sender:    d.Sender,
		tips:      d.Tips,
		tracker:   d.Tracker,
		events:    d.Events,
		cfg:       cfg,
		now:       time.Now,
	}
}

// QuoteTip clamps the oracle's recommendation between the floor and maxTip.
func (s *Submitter) QuoteTip(ctx context.Context, maxTip uint64) uint64 {
	return relay.Tip(s.tips.Recommended(ctx), s.cfg.TipFloor, maxTip)
}

type Request struct {
	Session  store.Session
	Signer   solana.Keypair
	RoundID  uint64
	Decision strategy.Decision
	// ExpectedEV is indexed by block.
	ExpectedEV map[int]float64
	Tip        uint64
	// Deadline is the RTT-corrected end of the round.
	Deadline time.Time
}

type Result struct {
	Signature string
	BundleID  string
	Blocks    []int
	Tip       uint64
	Deployed  uint64
}

// Submit signs the bundle, writes one pending row per block, then sends it
// with bounded retries. tx:submitted is published once the rows exist, so a
// later tx:failed or tx:confirmed always follows it.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Result, error) {
	started := s.now()
	sess := req.Session
	wlog := log.With().Str("wallet", sess.Wallet).Str("session_id", sess.ID).Uint64("round_id", req.RoundID).Logger()

	done, err := s.rows.SubmittedBlocks(ctx, sess.ID, int64(req.RoundID))
	if err != nil {
		return nil, err
	}
	var blocks []int
	for _, b := range req.Decision.Blocks {
		if !slices.Contains(done, b) {
			blocks = append(blocks, b)
		}
	}

	var txs []*solana.Transaction
	var sig string
	for {
		if len(blocks) == 0 {
			return nil, ErrNothingToSubmit
		}
		txs, err = s.build(ctx, req, blocks)
		if err != nil {
			return nil, err
		}
		sig = txs[len(txs)-1].Signature()
		conflicts, err := s.writeAhead(ctx, req, blocks, sig)
		if err != nil {
			metrics.Submissions.WithLabelValues("write_ahead_failed").Inc()
			return nil, err
		}
		if len(conflicts) == 0 {
			break
		}
		wlog.Warn().Ints("blocks", conflicts).Msg("dropping blocks already submitted this round")
		blocks = slices.DeleteFunc(blocks, func(b int) bool { return slices.Contains(conflicts, b) })
	}
	wlog = wlog.With().Str("signature", sig).Logger()

	deployed := sess.DeployAmount * int64(len(blocks))
	first := blocks[0]
	_, _ = s.events.Publish(sess.Wallet, events.TypeTxSubmitted, events.TxSubmitted{
		Signature: sig,
		TxType:    TxTypeDeploy,
		RoundID:   req.RoundID,
		Block:     &first,
		Blocks:    blocks,
		Amount:    uint64(deployed),
	})

	bundleID, reason, err := s.send(ctx, req.Deadline, txs)
	metrics.SubmitLatency.Observe(s.now().Sub(started).Seconds())
	if err != nil {
		metrics.Submissions.WithLabelValues(reason).Inc()
		s.fail(sess.Wallet, sig, reason)
		wlog.Warn().Err(err).Str("reason", reason).Msg("bundle submission failed")
		return nil, err
	}
	metrics.Submissions.WithLabelValues("submitted").Inc()

	if err := s.rows.SetBundleID(ctx, sig, bundleID); err != nil {
		wlog.Warn().Err(err).Msg("record bundle id")
	}
	if s.tracker != nil {
		s.tracker.Track(tracker.Pending{
			Signature:   sig,
			Wallet:      sess.Wallet,
			SessionID:   sess.ID,
			RoundID:     req.RoundID,
			SubmittedAt: s.now(),
		})
	}
	wlog.Info().Str("bundle_id", bundleID).Ints("blocks", blocks).Uint64("tip", req.Tip).Msg("bundle submitted")
	return &Result{Signature: sig, BundleID: bundleID, Blocks: blocks, Tip: req.Tip, Deployed: uint64(deployed)}, nil
}

func (s *Submitter) build(ctx context.Context, req Request, blocks []int) ([]*solana.Transaction, error) {
	authority := req.Signer.PublicKey()
	params := BuildParams{
		Program:          s.program,
		Signer:           req.Signer,
		RoundID:          req.RoundID,
		Amount:           uint64(req.Session.DeployAmount),
		Blocks:           blocks,
		Tip:              req.Tip,
		TipAccount:       relay.RandomTipAccount(),
		ComputeUnitPrice: s.cfg.ComputeUnitPrice,
	}
	miner, err := s.miners.Miner(ctx, authority)
	if err != nil {
		return nil, err
	}
	if miner != nil && miner.RoundID != req.RoundID && miner.NeedsCheckpoint(req.RoundID) {
		round := miner.RoundID
		params.CheckpointRound = &round
	}
	params.Blockhash, err = s.blockhash.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}
	return Build(params)
}

// writeAhead returns the blocks that lost a race for their row. Nothing is
// written in that case.
func (s *Submitter) writeAhead(ctx context.Context, req Request, blocks []int, sig string) ([]int, error) {
	sess := req.Session
	tips := relay.SplitTip(req.Tip, len(blocks))
	rows := make([]store.Transaction, len(blocks))
	for i, b := range blocks {
		rows[i] = store.Transaction{
			SessionID:    sess.ID,
			Wallet:       sess.Wallet,
			RoundID:      int64(req.RoundID),
			BlockIndex:   b,
			DeployAmount: sess.DeployAmount,
			TipAmount:    int64(tips[i]),
			ExpectedEV:   req.ExpectedEV[b],
			Signature:    sig,
			Strategy:     sess.Strategy,
		}
	}
	_, conflicts, err := s.rows.InsertPendingTransactions(ctx, rows)
	return conflicts, err
}

// send retries with exponential backoff while an attempt can still finish
// before deadline.
func (s *Submitter) send(ctx context.Context, deadline time.Time, txs []*solana.Transaction) (string, string, error) {
	reason := FailureSubmission
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			wait := s.cfg.RetryBase << (attempt - 1)
			if s.now().Add(wait + s.cfg.AttemptTimeout).After(deadline) {
				break
			}
			select {
			case <-ctx.Done():
				return "", reason, fmt.Errorf("%w: %w", ErrSubmissionTimeout, ctx.Err())
			case <-time.After(wait):
			}
		}
		if s.now().Add(s.cfg.AttemptTimeout).After(deadline) {
			break
		}
		actx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		id, err := s.sender.Send(actx, txs)
		cancel()
		if err == nil {
			return id, "", nil
		}
		lastErr = err
		if errors.Is(err, relay.ErrBundleRejected) {
			reason = FailureRejected
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("send bundle attempt failed")
	}
	if lastErr == nil {
		return "", reason, ErrSubmissionTimeout
	}
	return "", reason, fmt.Errorf("%w: %w", ErrSubmissionTimeout, lastErr)
}

func (s *Submitter) fail(wallet, sig, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.rows.MarkTransactionsFailed(ctx, sig, reason, false); err != nil {
		log.Error().Err(err).Str("signature", sig).Msg("mark failed submission")
	}
	_, _ = s.events.Publish(wallet, events.TypeTxFailed, events.TxFailed{Signature: sig, Reason: reason})
}
