package ore

import (
	"context"
	"testing"

	"ore-autominer/internal/solana"

	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	accounts map[solana.PublicKey][]byte
	balance  uint64
}

func (f *fakeReader) GetAccountInfo(_ context.Context, pk solana.PublicKey) (*solana.AccountInfo, error) {
	data, ok := f.accounts[pk]
	if !ok {
		return nil, solana.ErrAccountNotFound
	}
	return &solana.AccountInfo{Data: data}, nil
}

func (f *fakeReader) GetBalance(context.Context, solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeReader) GetTokenAccountBalance(context.Context, solana.PublicKey) (uint64, error) {
	return 0, &solana.RPCError{Code: -32602, Message: "could not find account"}
}

func TestClientBalances(t *testing.T) {
	p := testProgram(t)
	kp, _ := solana.NewKeypair()
	reader := &fakeReader{accounts: map[solana.PublicKey][]byte{}, balance: 42}
	c := NewClient(p, reader)

	bal, err := c.Balances(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.Equal(t, Balances{}, bal, "absent miner has zero balances")

	reader.accounts[p.MinerAddress(kp.PublicKey())] = encodeMiner(Miner{RewardsSOL: 850_000_000, RewardsORE: 3, RefinedORE: 1})
	bal, err = c.Balances(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.Equal(t, Balances{UnclaimedSOL: 850_000_000, UnclaimedORE: 3, RefinedORE: 1}, bal)

	sol, err := c.SOLBalance(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.EqualValues(t, 42, sol)

	ore, err := c.ORETokenBalance(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.Zero(t, ore)
}

func TestClientBoardAndRound(t *testing.T) {
	p := testProgram(t)
	reader := &fakeReader{accounts: map[solana.PublicKey][]byte{
		p.BoardAddress():  newLayout().u64(9).u64(100).u64(250).buf,
		p.RoundAddress(9): encodeRound(Round{ID: 9, TotalDeployed: 1}),
	}}
	c := NewClient(p, reader)

	b, err := c.Board(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 9, b.RoundID)

	r, err := c.Round(context.Background(), b.RoundID)
	require.NoError(t, err)
	require.EqualValues(t, 9, r.ID)

	_, err = c.Round(context.Background(), 10)
	require.ErrorIs(t, err, solana.ErrAccountNotFound)
}
