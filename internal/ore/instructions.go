package ore

import (
	"encoding/binary"
	"fmt"

	"ore-autominer/internal/solana"
)

const (
	ixCheckpoint byte = 2
	ixClaimSOL   byte = 3
	ixClaimORE   byte = 4
	ixDeploy     byte = 6
)

// SquareMask packs square indices into the deploy bitmask.
func SquareMask(squares []int) (uint32, error) {
	var mask uint32
	for _, s := range squares {
		if s < 0 || s >= NumSquares {
			return 0, fmt.Errorf("square %d out of range", s)
		}
		mask |= 1 << uint(s)
	}
	if mask == 0 {
		return 0, fmt.Errorf("no squares selected")
	}
	return mask, nil
}

// Deploy stakes amount lamports on every square in the mask for roundID.
func (p Program) Deploy(signer solana.PublicKey, roundID, amount uint64, squares []int) (solana.Instruction, error) {
	mask, err := SquareMask(squares)
	if err != nil {
		return solana.Instruction{}, err
	}
	data := make([]byte, 1+8+4)
	data[0] = ixDeploy
	binary.LittleEndian.PutUint64(data[1:9], amount)
	binary.LittleEndian.PutUint32(data[9:13], mask)
	return solana.Instruction{
		ProgramID: p.ID,
		Accounts: []solana.AccountMeta{
			solana.Meta(signer).Signer().Writable(),
			solana.Meta(signer).Writable(),
			solana.Meta(p.AutomationAddress(signer)).Writable(),
			solana.Meta(p.BoardAddress()).Writable(),
			solana.Meta(p.MinerAddress(signer)).Writable(),
			solana.Meta(p.RoundAddress(roundID)).Writable(),
			solana.Meta(solana.SystemProgramID),
		},
		Data: data,
	}, nil
}

// Checkpoint settles the miner's previous round into its reward balances.
func (p Program) Checkpoint(signer solana.PublicKey, minerRound uint64) solana.Instruction {
	return solana.Instruction{
		ProgramID: p.ID,
		Accounts: []solana.AccountMeta{
			solana.Meta(signer).Signer().Writable(),
			solana.Meta(p.BoardAddress()),
			solana.Meta(p.MinerAddress(signer)).Writable(),
			solana.Meta(p.RoundAddress(minerRound)).Writable(),
			solana.Meta(p.TreasuryAddress()).Writable(),
			solana.Meta(solana.SystemProgramID),
		},
		Data: []byte{ixCheckpoint},
	}
}

// ClaimSOL withdraws amount lamports of SOL rewards. Zero claims everything.
func (p Program) ClaimSOL(signer solana.PublicKey, amount uint64) solana.Instruction {
	return solana.Instruction{
		ProgramID: p.ID,
		Accounts: []solana.AccountMeta{
			solana.Meta(signer).Signer().Writable(),
			solana.Meta(p.MinerAddress(signer)).Writable(),
			solana.Meta(solana.SystemProgramID),
		},
		Data: amountData(ixClaimSOL, amount),
	}
}

// ClaimORE withdraws ORE rewards into the signer's associated token account.
func (p Program) ClaimORE(signer solana.PublicKey, amount uint64) (solana.Instruction, error) {
	recipient, err := solana.FindAssociatedTokenAddress(signer, p.Mint)
	if err != nil {
		return solana.Instruction{}, err
	}
	treasury := p.TreasuryAddress()
	treasuryTokens, err := solana.FindAssociatedTokenAddress(treasury, p.Mint)
	if err != nil {
		return solana.Instruction{}, err
	}
	return solana.Instruction{
		ProgramID: p.ID,
		Accounts: []solana.AccountMeta{
			solana.Meta(signer).Signer().Writable(),
			solana.Meta(p.MinerAddress(signer)).Writable(),
			solana.Meta(p.Mint).Writable(),
			solana.Meta(recipient).Writable(),
			solana.Meta(treasury).Writable(),
			solana.Meta(treasuryTokens).Writable(),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(solana.TokenProgramID),
			solana.Meta(solana.AssociatedTokenProgram),
		},
		Data: amountData(ixClaimORE, amount),
	}, nil
}

func amountData(disc byte, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = disc
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}
