package tracker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
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
	mu       sync.Mutex
	rows     []store.Transaction
	settled  []store.Settlement
	failures map[string]string
	recon    map[string]bool
}

func newMemStore(rows ...store.Transaction) *memStore {
	return &memStore{rows: rows, failures: map[string]string{}, recon: map[string]bool{}}
}

func (m *memStore) ListPendingTransactions(context.Context) ([]store.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Transaction
	for _, r := range m.rows {
		if r.Status == store.TxPending {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListTransactionsBySignature(_ context.Context, sig string) ([]store.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Transaction
	for _, r := range m.rows {
		if r.Signature == sig {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) MarkTransactionsFailed(_ context.Context, sig, reason string, recon bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.rows {
		if m.rows[i].Signature == sig && m.rows[i].Status == store.TxPending {
			m.rows[i].Status = store.TxFailed
			n++
		}
	}
	m.failures[sig] = reason
	m.recon[sig] = recon
	return n, nil
}

func (m *memStore) SettleRound(_ context.Context, st store.Settlement) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for _, o := range st.Outcomes {
		for i := range m.rows {
			if m.rows[i].ID == o.TxID && m.rows[i].Status == store.TxPending {
				m.rows[i].Status = store.TxLost
				if o.Won {
					m.rows[i].Status = store.TxWon
				}
				changed++
			}
		}
	}
	if changed == 0 {
		return nil, store.ErrNotFound
	}
	m.settled = append(m.settled, st)
	return &store.Session{ID: st.SessionID}, nil
}

type statusMap map[string]*solana.SignatureStatus

func (s statusMap) GetSignatureStatuses(_ context.Context, sigs ...string) ([]*solana.SignatureStatus, error) {
	out := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		out[i] = s[sig]
	}
	return out, nil
}

type roundStub struct {
	round ore.Round
	err   error
}

func (r *roundStub) Round(context.Context, uint64) (ore.Round, error) { return r.round, r.err }

// hashFor returns a slot hash whose derived winning square is square.
func hashFor(square int) [32]byte {
	var h [32]byte
	binary.LittleEndian.PutUint64(h[:8], uint64(square))
	return h
}

func row(id, sig string, block int) store.Transaction {
	return store.Transaction{
		ID:           id,
		SessionID:    "sess-1",
		Wallet:       "w1",
		RoundID:      42,
		BlockIndex:   block,
		DeployAmount: 100_000_000,
		TipAmount:    500_000,
		Signature:    sig,
		Status:       store.TxPending,
		CreatedAt:    time.Now(),
	}
}

func confirmed() *solana.SignatureStatus {
	return &solana.SignatureStatus{ConfirmationStatus: "confirmed"}
}

func newTracker(st Store, statuses StatusSource, rounds RoundSource, hub *events.Hub) *Tracker {
	return New(st, statuses, rounds, hub, Config{PollInterval: 10 * time.Millisecond, ConfirmTimeout: time.Minute, SettleTimeout: time.Minute})
}

func TestConfirmedSignatureSettlesAfterReveal(t *testing.T) {
	st := newMemStore(row("a", "sig", 3), row("b", "sig", 7))
	rounds := &roundStub{}
	rounds.round.Deployed[3] = 200_000_000
	rounds.round.Deployed[7] = 100_000_000
	rounds.round.Deployed[10] = 900_000_000
	hub := events.NewHub(10)
	tr := newTracker(st, statusMap{"sig": confirmed()}, rounds, hub)
	tr.Track(Pending{Signature: "sig", Wallet: "w1", SessionID: "sess-1", RoundID: 42})

	tr.Poll(t.Context())
	require.Empty(t, st.settled, "slot hash not revealed yet")
	require.Equal(t, 1, tr.Len())

	rounds.round.SlotHash = hashFor(3)
	tr.Poll(t.Context())
	require.Len(t, st.settled, 1)
	require.Zero(t, tr.Len())

	outcomes := st.settled[0].Outcomes
	require.True(t, outcomes[0].Won)
	require.Equal(t, int64(100_000_000+1_000_000_000*100_000_000/200_000_000), outcomes[0].Reward)
	require.False(t, outcomes[1].Won)
	require.Zero(t, outcomes[1].Reward)

	replay := hub.Buffer("w1").ReplayAfter("")
	require.Len(t, replay, 1)
	data := replay[0].Data.(events.TxConfirmed)
	require.Equal(t, uint64(600_000_000), *data.Reward)
}

func TestLostRoundEmitsConfirmedWithoutReward(t *testing.T) {
	st := newMemStore(row("a", "sig", 3))
	rounds := &roundStub{}
	rounds.round.Deployed[3] = 100_000_000
	rounds.round.SlotHash = hashFor(12)
	hub := events.NewHub(10)
	tr := newTracker(st, statusMap{"sig": confirmed()}, rounds, hub)
	tr.Track(Pending{Signature: "sig", Wallet: "w1", RoundID: 42})

	tr.Poll(t.Context())
	require.Equal(t, store.TxLost, st.rows[0].Status)
	ev := hub.Buffer("w1").ReplayAfter("")[0]
	require.Equal(t, events.TypeTxConfirmed, ev.Type)
	require.Nil(t, ev.Data.(events.TxConfirmed).Reward)
}

func TestChainErrorFailsRows(t *testing.T) {
	st := newMemStore(row("a", "sig", 3))
	failed := &solana.SignatureStatus{Err: json.RawMessage(`{"InstructionError":[2,{"Custom":1}]}`)}
	hub := events.NewHub(10)
	tr := newTracker(st, statusMap{"sig": failed}, &roundStub{}, hub)
	tr.Track(Pending{Signature: "sig", Wallet: "w1", RoundID: 42})

	tr.Poll(t.Context())
	require.Equal(t, ReasonChainError, st.failures["sig"])
	require.False(t, st.recon["sig"])
	require.Zero(t, tr.Len())
	require.Equal(t, events.TypeTxFailed, hub.Buffer("w1").ReplayAfter("")[0].Type)
}

func TestConfirmationTimeoutNeedsReconciliation(t *testing.T) {
	st := newMemStore(row("a", "sig", 3))
	tr := newTracker(st, statusMap{}, &roundStub{}, events.NewHub(10))
	now := time.Now()
	tr.now = func() time.Time { return now }
	tr.Track(Pending{Signature: "sig", Wallet: "w1", RoundID: 42, SubmittedAt: now.Add(-30 * time.Second)})

	tr.Poll(t.Context())
	require.Equal(t, 1, tr.Len(), "still inside the window")

	now = now.Add(31 * time.Second)
	tr.Poll(t.Context())
	require.Equal(t, ReasonConfirmationTimeout, st.failures["sig"])
	require.True(t, st.recon["sig"])
	require.Equal(t, store.TxFailed, st.rows[0].Status)
}

func TestSettlementTimeoutFlagsRows(t *testing.T) {
	cases := []struct {
		name   string
		rounds *roundStub
	}{
		{"slot hash never revealed", &roundStub{}},
		{"round unreadable", &roundStub{err: errors.New("account not found")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newMemStore(row("a", "sig", 3), row("b", "sig", 7))
			hub := events.NewHub(10)
			tr := newTracker(st, statusMap{"sig": confirmed()}, tc.rounds, hub)
			now := time.Now()
			tr.now = func() time.Time { return now }
			tr.Track(Pending{Signature: "sig", Wallet: "w1", SessionID: "sess-1", RoundID: 42})

			tr.Poll(t.Context())
			require.Equal(t, 1, tr.Len(), "still waiting for the reveal")
			require.Equal(t, store.TxPending, st.rows[0].Status)

			now = now.Add(10 * time.Minute)
			tr.Poll(t.Context())
			require.Zero(t, tr.Len())
			require.Equal(t, ReasonSettlementTimeout, st.failures["sig"])
			require.True(t, st.recon["sig"])
			for _, r := range st.rows {
				require.Equal(t, store.TxFailed, r.Status)
			}
			replay := hub.Buffer("w1").ReplayAfter("")
			require.Len(t, replay, 1)
			require.Equal(t, events.TypeTxFailed, replay[0].Type)
			require.Equal(t, events.TxFailed{Signature: "sig", Reason: ReasonSettlementTimeout}, replay[0].Data)
			require.Empty(t, st.settled)
		})
	}
}

func TestReconcileResumesPendingRows(t *testing.T) {
	st := newMemStore(row("a", "sigA", 3), row("b", "sigA", 4), row("c", "sigB", 9))
	st.rows[2].Status = store.TxWon
	rounds := &roundStub{}
	rounds.round.Deployed[4] = 100_000_000
	rounds.round.SlotHash = hashFor(4)
	tr := newTracker(st, statusMap{"sigA": confirmed()}, rounds, events.NewHub(10))

	require.NoError(t, tr.Reconcile(t.Context()))
	require.Len(t, st.settled, 1)
	require.Equal(t, "sigA", st.settled[0].Signature)
	require.Equal(t, store.TxWon, st.rows[1].Status)
	require.Equal(t, store.TxLost, st.rows[0].Status)
}

func TestTrackIsIdempotent(t *testing.T) {
	tr := newTracker(newMemStore(), statusMap{}, &roundStub{}, nil)
	tr.Track(Pending{Signature: "s"})
	tr.Track(Pending{Signature: "s"})
	require.Equal(t, 1, tr.Len())
}
