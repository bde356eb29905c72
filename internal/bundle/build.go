// Package bundle builds the per-round deploy bundle, writes it ahead to the
// store and hands it to the relay within the round's time budget.
package bundle

import (
	"errors"
	"fmt"

	"ore-autominer/internal/ore"
	"ore-autominer/internal/solana"
)

var ErrNoBlocks = errors.New("no blocks to deploy")

type BuildParams struct {
	Program          ore.Program
	Signer           solana.Keypair
	RoundID          uint64
	Amount           uint64
	Blocks           []int
	Tip              uint64
	TipAccount       solana.PublicKey
	Blockhash        solana.Hash
	ComputeUnitPrice uint64
	// CheckpointRound is set when the miner must settle that round first.
	CheckpointRound *uint64
}

// Build returns the signed bundle. The deploy transaction is always last.
func Build(p BuildParams) ([]*solana.Transaction, error) {
	if len(p.Blocks) == 0 {
		return nil, ErrNoBlocks
	}
	payer := p.Signer.PublicKey()
	var txs []*solana.Transaction

	if p.CheckpointRound != nil {
		tx, err := solana.NewTransaction([]solana.Instruction{
			solana.SetComputeUnitLimit(ore.CheckpointComputeUnits),
			solana.SetComputeUnitPrice(p.ComputeUnitPrice),
			p.Program.Checkpoint(payer, *p.CheckpointRound),
		}, p.Blockhash, payer)
		if err != nil {
			return nil, fmt.Errorf("build checkpoint: %w", err)
		}
		txs = append(txs, tx)
	}

	deploy, err := p.Program.Deploy(payer, p.RoundID, p.Amount, p.Blocks)
	if err != nil {
		return nil, err
	}
	ixs := []solana.Instruction{
		solana.SetComputeUnitLimit(ore.DeployComputeUnits),
		solana.SetComputeUnitPrice(p.ComputeUnitPrice),
		deploy,
	}
	if p.Tip > 0 {
		ixs = append(ixs, solana.SystemTransfer(payer, p.TipAccount, p.Tip))
	}
	tx, err := solana.NewTransaction(ixs, p.Blockhash, payer)
	if err != nil {
		return nil, fmt.Errorf("build deploy: %w", err)
	}
	txs = append(txs, tx)

	for _, tx := range txs {
		if err := tx.Sign(p.Signer); err != nil {
			return nil, err
		}
	}
	return txs, nil
}
