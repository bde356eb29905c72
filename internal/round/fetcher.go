package round

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ore-autominer/internal/ore"
	"ore-autominer/internal/solana"
)

// AccountSource reads the program's board and round accounts.
type AccountSource interface {
	Board(ctx context.Context) (ore.Board, error)
	Round(ctx context.Context, roundID uint64) (ore.Round, error)
}

type SlotGetter interface {
	GetSlot(ctx context.Context) (uint64, error)
}

// SlotFeed is a push source of the latest processed slot, such as
// solana.SlotSubscriber.
type SlotFeed interface {
	Latest() (slot uint64, at time.Time, ok bool)
}

type Fetcher struct {
	accounts     AccountSource
	slots        SlotGetter
	feed         SlotFeed
	slotDuration time.Duration
	timeout      time.Duration
	now          func() time.Time

	mu   sync.Mutex
	last *Snapshot
}

type Option func(*Fetcher)

func WithSlotFeed(feed SlotFeed) Option {
	return func(f *Fetcher) { f.feed = feed }
}

func WithSlotDuration(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.slotDuration = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

func NewFetcher(accounts AccountSource, slots SlotGetter, opts ...Option) *Fetcher {
	f := &Fetcher{
		accounts:     accounts,
		slots:        slots,
		slotDuration: 400 * time.Millisecond,
		timeout:      time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch reads the board, the current slot and the round's per-square totals.
// On failure it returns the last good snapshot marked stale alongside
// ErrStaleSnapshot.
func (f *Fetcher) Fetch(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	snap, err := f.fetch(ctx)
	if err != nil {
		return f.fallback(err)
	}
	f.mu.Lock()
	f.last = &snap
	f.mu.Unlock()
	return snap, nil
}

// Position reads only the board and the current slot. Round totals are left
// zero.
func (f *Fetcher) Position(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	board, err := f.accounts.Board(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	current, observed, err := f.currentSlot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return f.position(board, current, observed), nil
}

func (f *Fetcher) Last() (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Snapshot{}, false
	}
	return *f.last, true
}

func (f *Fetcher) fetch(ctx context.Context) (Snapshot, error) {
	board, err := f.accounts.Board(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	current, observed, err := f.currentSlot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := f.position(board, current, observed)

	rnd, err := f.accounts.Round(ctx, board.RoundID)
	switch {
	case errors.Is(err, solana.ErrAccountNotFound):
		// round account is created by the first deploy
	case err != nil:
		return Snapshot{}, err
	default:
		snap.Totals = rnd.Deployed
	}
	snap.FetchedAt = f.now()
	return snap, nil
}

func (f *Fetcher) position(board ore.Board, current uint64, observed time.Time) Snapshot {
	snap := Snapshot{
		RoundID:     board.RoundID,
		StartSlot:   board.StartSlot,
		EndSlot:     board.EndSlot,
		CurrentSlot: current,
		Started:     board.Started(),
		FetchedAt:   observed,
	}
	if snap.Started {
		remaining := board.SlotsRemaining(current)
		snap.Deadline = observed.Add(time.Duration(remaining) * f.slotDuration)
	}
	return snap
}

// currentSlot prefers a fresh push notification, extrapolated by elapsed
// slot time, and falls back to getSlot.
func (f *Fetcher) currentSlot(ctx context.Context) (uint64, time.Time, error) {
	now := f.now()
	if f.feed != nil {
		if slot, at, ok := f.feed.Latest(); ok {
			elapsed := now.Sub(at)
			if elapsed >= 0 && elapsed < 2*f.slotDuration {
				return slot + uint64(elapsed/f.slotDuration), now, nil
			}
		}
	}
	slot, err := f.slots.GetSlot(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("get slot: %w", err)
	}
	return slot, f.now(), nil
}

func (f *Fetcher) fallback(cause error) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Snapshot{}, fmt.Errorf("fetch round: %w", cause)
	}
	snap := *f.last
	snap.Stale = true
	snap.Age = f.now().Sub(snap.FetchedAt)
	log.Warn().Err(cause).Uint64("round_id", snap.RoundID).Dur("age", snap.Age).Msg("serving cached round snapshot")
	return snap, fmt.Errorf("%w: %w", ErrStaleSnapshot, cause)
}
