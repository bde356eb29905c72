package governor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ore-autominer/internal/events"
	"ore-autominer/internal/store"
	"ore-autominer/internal/testutil"
)

func TestGovernorAgainstPostgres(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := t.Context()

	_, err := st.InsertWallet(ctx, store.Wallet{Address: "pgwallet", EncryptedKey: "x", IsActive: true})
	require.NoError(t, err)

	runners := &runnerLog{}
	g := New(st, events.NewHub(10), runners.factory)
	defer g.Shutdown()

	params := StartParams{Wallet: "pgwallet", Strategy: "best_ev", DeployAmount: 100_000_000, MaxTip: 1_000_000, Budget: 150_000_000, NumBlocks: 2}
	sess, created, err := g.Start(ctx, params)
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := g.Start(ctx, params)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, sess.ID, again.ID)

	require.NoError(t, g.Authorize(ctx, *sess, 100_000_000))
	require.ErrorIs(t, g.Authorize(ctx, *sess, 200_000_000), ErrBudgetExceeded)

	latest, err := g.Status(ctx, "pgwallet")
	require.NoError(t, err)
	require.False(t, latest.IsActive)
	require.Equal(t, StopReasonBudgetExceeded, latest.StopReason)
	require.EqualValues(t, 1, latest.RoundsSkipped)
	require.False(t, g.Running("pgwallet"))
}
