// Package ore adapts the ORE v3 mining program: account layouts, PDAs and
// instruction builders.
package ore

import (
	"encoding/binary"

	"ore-autominer/internal/solana"
)

const (
	NumSquares = 25

	SOLDecimals = 9
	OREDecimals = 11

	LamportsPerSOL = 1_000_000_000

	CheckpointComputeUnits = 50_000
	DeployComputeUnits     = 500_000
	ClaimComputeUnits      = 200_000
)

// Program derives addresses for one deployment of the program.
type Program struct {
	ID   solana.PublicKey
	Mint solana.PublicKey
}

func NewProgram(programID, mint string) (Program, error) {
	id, err := solana.ParsePublicKey(programID)
	if err != nil {
		return Program{}, err
	}
	m, err := solana.ParsePublicKey(mint)
	if err != nil {
		return Program{}, err
	}
	return Program{ID: id, Mint: m}, nil
}

func (p Program) pda(seeds ...[]byte) solana.PublicKey {
	addr, _, err := solana.FindProgramAddress(seeds, p.ID)
	if err != nil {
		panic(err)
	}
	return addr
}

func (p Program) BoardAddress() solana.PublicKey {
	return p.pda([]byte("board"))
}

func (p Program) RoundAddress(roundID uint64) solana.PublicKey {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], roundID)
	return p.pda([]byte("round"), id[:])
}

func (p Program) MinerAddress(authority solana.PublicKey) solana.PublicKey {
	return p.pda([]byte("miner"), authority[:])
}

func (p Program) TreasuryAddress() solana.PublicKey {
	return p.pda([]byte("treasury"))
}

func (p Program) AutomationAddress(authority solana.PublicKey) solana.PublicKey {
	return p.pda([]byte("automation"), authority[:])
}
