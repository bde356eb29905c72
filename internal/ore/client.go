package ore

import (
	"context"
	"errors"
	"fmt"

	"ore-autominer/internal/solana"
)

// AccountReader is the slice of the RPC client the adapter needs.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solana.AccountInfo, error)
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Balances are the miner's on-chain reward balances in base units.
type Balances struct {
	UnclaimedSOL uint64
	UnclaimedORE uint64
	RefinedORE   uint64
}

type Client struct {
	Program Program
	rpc     AccountReader
}

func NewClient(program Program, rpc AccountReader) *Client {
	return &Client{Program: program, rpc: rpc}
}

func (c *Client) Board(ctx context.Context) (Board, error) {
	info, err := c.rpc.GetAccountInfo(ctx, c.Program.BoardAddress())
	if err != nil {
		return Board{}, fmt.Errorf("fetch board: %w", err)
	}
	return DecodeBoard(info.Data)
}

func (c *Client) Round(ctx context.Context, roundID uint64) (Round, error) {
	info, err := c.rpc.GetAccountInfo(ctx, c.Program.RoundAddress(roundID))
	if err != nil {
		return Round{}, fmt.Errorf("fetch round %d: %w", roundID, err)
	}
	return DecodeRound(info.Data)
}

// Miner returns nil without error when the wallet has never deployed.
func (c *Client) Miner(ctx context.Context, authority solana.PublicKey) (*Miner, error) {
	info, err := c.rpc.GetAccountInfo(ctx, c.Program.MinerAddress(authority))
	if errors.Is(err, solana.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch miner: %w", err)
	}
	m, err := DecodeMiner(info.Data)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) Balances(ctx context.Context, authority solana.PublicKey) (Balances, error) {
	m, err := c.Miner(ctx, authority)
	if err != nil || m == nil {
		return Balances{}, err
	}
	return Balances{
		UnclaimedSOL: m.RewardsSOL,
		UnclaimedORE: m.RewardsORE,
		RefinedORE:   m.RefinedORE,
	}, nil
}

func (c *Client) SOLBalance(ctx context.Context, wallet solana.PublicKey) (uint64, error) {
	return c.rpc.GetBalance(ctx, wallet)
}

// ORETokenBalance is zero when the wallet has no token account yet.
func (c *Client) ORETokenBalance(ctx context.Context, wallet solana.PublicKey) (uint64, error) {
	ata, err := solana.FindAssociatedTokenAddress(wallet, c.Program.Mint)
	if err != nil {
		return 0, err
	}
	amount, err := c.rpc.GetTokenAccountBalance(ctx, ata)
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		return 0, nil
	}
	return amount, err
}
