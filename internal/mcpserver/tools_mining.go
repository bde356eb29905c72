package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"ore-autominer/internal/app/control"
	"ore-autominer/internal/store"
)

func (s *Server) registerMiningTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_round",
			mcp.WithDescription("Current round with per-block totals and EV for a hypothetical deploy"),
			mcp.WithString("deploy_amount", mcp.Description("SOL per block for EV, default 0.01")),
			mcp.WithString("tip", mcp.Description("Tip in SOL for EV, default the configured tip")),
		),
		s.handleGetRound,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_balances",
			mcp.WithDescription("Cached unclaimed SOL and ORE for a wallet"),
			mcp.WithString("wallet", mcp.Required(), mcp.Description("Wallet address")),
		),
		s.handleGetBalances,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"sync_balances",
			mcp.WithDescription("Refresh unclaimed balances from the miner account"),
			mcp.WithString("wallet", mcp.Required(), mcp.Description("Wallet address")),
		),
		s.handleSyncBalances,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"claim_sol",
			mcp.WithDescription("Claim unclaimed SOL, everything when amount is omitted"),
			mcp.WithString("wallet", mcp.Required(), mcp.Description("Wallet address")),
			mcp.WithString("amount", mcp.Description("SOL to claim")),
		),
		s.claimHandler(store.ClaimTypeSOL),
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"claim_ore",
			mcp.WithDescription("Claim unclaimed ORE, everything when amount is omitted"),
			mcp.WithString("wallet", mcp.Required(), mcp.Description("Wallet address")),
			mcp.WithString("amount", mcp.Description("ORE to claim")),
		),
		s.claimHandler(store.ClaimTypeORE),
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_wallets",
			mcp.WithDescription("Managed wallets"),
		),
		s.handleListWallets,
	)
}

func (s *Server) handleGetRound(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deploy, err := decimalArg(request, "deploy_amount")
	if err != nil {
		return serviceError(err), nil
	}
	if deploy == nil {
		d := control.DefaultRoundDeploy
		deploy = &d
	}
	tip, err := decimalArg(request, "tip")
	if err != nil {
		return serviceError(err), nil
	}
	resp, err := s.svc.Round(ctx, deploy, tip)
	if err != nil {
		return serviceError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleGetBalances(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.svc.Balances(ctx, request.GetString("wallet", ""))
	if err != nil {
		return serviceError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleSyncBalances(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.svc.SyncBalances(ctx, control.WalletRequest{Wallet: request.GetString("wallet", "")})
	if err != nil {
		return serviceError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) claimHandler(claimType string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		amount, err := decimalArg(request, "amount")
		if err != nil {
			return serviceError(err), nil
		}
		resp, err := s.svc.Claim(ctx, claimType, control.ClaimRequest{
			Wallet: request.GetString("wallet", ""),
			Amount: amount,
		})
		if err != nil {
			return serviceError(err), nil
		}
		return toolResult(resp), nil
	}
}

func (s *Server) handleListWallets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.svc.ListWallets(ctx)
	if err != nil {
		return serviceError(err), nil
	}
	return toolResult(resp), nil
}
