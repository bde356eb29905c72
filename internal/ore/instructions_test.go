package ore

import (
	"encoding/binary"
	"testing"

	"ore-autominer/internal/solana"

	"github.com/stretchr/testify/require"
)

func testProgram(t *testing.T) Program {
	t.Helper()
	p, err := NewProgram("oreV3EG1i9BEgiAJ8b177Z2S2rMarzak4NMv1kULvWv", "oreoU2P8bN6jkk3jbaiVxYnG1dCXcYxwhwyK9jSybcp")
	require.NoError(t, err)
	return p
}

func TestSquareMask(t *testing.T) {
	mask, err := SquareMask([]int{0, 3, 24})
	require.NoError(t, err)
	require.Equal(t, uint32(1|1<<3|1<<24), mask)

	_, err = SquareMask([]int{25})
	require.Error(t, err)
	_, err = SquareMask(nil)
	require.Error(t, err)
}

func TestDeployInstructionLayout(t *testing.T) {
	p := testProgram(t)
	kp, err := solana.NewKeypair()
	require.NoError(t, err)

	ix, err := p.Deploy(kp.PublicKey(), 42, 100_000_000, []int{3})
	require.NoError(t, err)
	require.Equal(t, p.ID, ix.ProgramID)
	require.Len(t, ix.Data, 13)
	require.Equal(t, ixDeploy, ix.Data[0])
	require.EqualValues(t, 100_000_000, binary.LittleEndian.Uint64(ix.Data[1:9]))
	require.EqualValues(t, 1<<3, binary.LittleEndian.Uint32(ix.Data[9:13]))
	require.True(t, ix.Accounts[0].IsSigner)
	require.Equal(t, p.RoundAddress(42), ix.Accounts[5].PublicKey)
}

func TestClaimInstructions(t *testing.T) {
	p := testProgram(t)
	kp, _ := solana.NewKeypair()

	sol := p.ClaimSOL(kp.PublicKey(), 0)
	require.Equal(t, ixClaimSOL, sol.Data[0])
	require.Zero(t, binary.LittleEndian.Uint64(sol.Data[1:]))

	ore, err := p.ClaimORE(kp.PublicKey(), 5)
	require.NoError(t, err)
	require.Equal(t, ixClaimORE, ore.Data[0])
	require.EqualValues(t, 5, binary.LittleEndian.Uint64(ore.Data[1:]))
	require.Len(t, ore.Accounts, 9)

	cp := p.Checkpoint(kp.PublicKey(), 41)
	require.Equal(t, []byte{ixCheckpoint}, cp.Data)
	require.Equal(t, p.RoundAddress(41), cp.Accounts[3].PublicKey)
}

func TestPDAsAreDistinct(t *testing.T) {
	p := testProgram(t)
	kp, _ := solana.NewKeypair()
	seen := map[solana.PublicKey]string{}
	for name, addr := range map[string]solana.PublicKey{
		"board":      p.BoardAddress(),
		"round1":     p.RoundAddress(1),
		"round2":     p.RoundAddress(2),
		"miner":      p.MinerAddress(kp.PublicKey()),
		"treasury":   p.TreasuryAddress(),
		"automation": p.AutomationAddress(kp.PublicKey()),
	} {
		prev, dup := seen[addr]
		require.False(t, dup, "%s collides with %s", name, prev)
		seen[addr] = name
	}
}
