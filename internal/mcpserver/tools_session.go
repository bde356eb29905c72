package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"ore-autominer/internal/app/control"
)

func (s *Server) registerSessionTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"start_session",
			mcp.WithDescription("Start mining for a managed wallet, or return its active session"),
			mcp.WithString("wallet", mcp.Required(), mcp.Description("Wallet address")),
			mcp.WithString("strategy", mcp.Description("best_ev|conservative|aggressive, default best_ev")),
			mcp.WithString("deploy_amount", mcp.Required(), mcp.Description("SOL per block, up to 10")),
			mcp.WithString("max_tip", mcp.Required(), mcp.Description("Max Jito tip in SOL, up to 1")),
			mcp.WithString("budget", mcp.Required(), mcp.Description("Total SOL the session may spend")),
			mcp.WithNumber("num_blocks", mcp.Description("Blocks per round, 1-25, default 1")),
		),
		s.handleStartSession,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"stop_session",
			mcp.WithDescription("Stop the wallet's active session"),
			mcp.WithString("wallet", mcp.Required(), mcp.Description("Wallet address")),
		),
		s.handleStopSession,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"session_status",
			mcp.WithDescription("Active or most recent session for a wallet"),
			mcp.WithString("wallet", mcp.Required(), mcp.Description("Wallet address")),
		),
		s.handleSessionStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"session_stats",
			mcp.WithDescription("Session counters, spend, remaining budget and win rate"),
			mcp.WithString("wallet", mcp.Required(), mcp.Description("Wallet address")),
		),
		s.handleSessionStats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_transactions",
			mcp.WithDescription("Deployment history for a wallet, newest first"),
			mcp.WithString("wallet", mcp.Required(), mcp.Description("Wallet address")),
			mcp.WithNumber("limit", mcp.Description("Page size, default 50, max 500")),
			mcp.WithNumber("offset", mcp.Description("Page offset, default 0")),
		),
		s.handleListTransactions,
	)
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deploy, err := requiredDecimal(request, "deploy_amount")
	if err != nil {
		return serviceError(err), nil
	}
	maxTip, err := requiredDecimal(request, "max_tip")
	if err != nil {
		return serviceError(err), nil
	}
	budget, err := requiredDecimal(request, "budget")
	if err != nil {
		return serviceError(err), nil
	}
	resp, err := s.svc.StartSession(ctx, control.StartSessionRequest{
		Wallet:       request.GetString("wallet", ""),
		Strategy:     request.GetString("strategy", ""),
		DeployAmount: deploy,
		MaxTip:       maxTip,
		Budget:       budget,
		NumBlocks:    request.GetInt("num_blocks", 0),
	})
	if err != nil {
		return serviceError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleStopSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.svc.StopSession(ctx, control.WalletRequest{Wallet: request.GetString("wallet", "")})
	if err != nil {
		return serviceError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.svc.SessionStatus(ctx, request.GetString("wallet", ""))
	if err != nil {
		return serviceError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleSessionStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.svc.Stats(ctx, request.GetString("wallet", ""))
	if err != nil {
		return serviceError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleListTransactions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit, offset := clampPagination(request.GetInt("limit", defaultPageLimit), request.GetInt("offset", 0), maxPageLimit)
	resp, err := s.svc.Transactions(ctx, request.GetString("wallet", ""), limit, offset)
	if err != nil {
		return serviceError(err), nil
	}
	return toolResult(resp), nil
}
