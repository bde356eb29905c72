// Package control is the use-case layer behind the HTTP API, the MCP tools
// and the operator CLI. Amounts cross it as SOL/ORE decimals and leave it as
// base units.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ore-autominer/internal/claims"
	"ore-autominer/internal/governor"
	"ore-autominer/internal/ledger"
	"ore-autominer/internal/round"
	"ore-autominer/internal/store"
	"ore-autominer/internal/strategy"
	"ore-autominer/internal/wallet"
)

type Sessions interface {
	Start(ctx context.Context, p governor.StartParams) (*store.Session, bool, error)
	Stop(ctx context.Context, wallet, reason string) (*store.Session, error)
	Status(ctx context.Context, wallet string) (*store.Session, error)
	Stats(ctx context.Context, wallet string) (*governor.Stats, error)
}

type Claims interface {
	Cached(ctx context.Context, wallet string) (store.UnclaimedBalance, error)
	Sync(ctx context.Context, wallet string) (store.UnclaimedBalance, error)
	Claim(ctx context.Context, wallet, claimType string, amount uint64) (*claims.Preview, error)
	History(ctx context.Context, wallet string, limit, offset int) ([]store.Claim, error)
}

type Wallets interface {
	Generate(ctx context.Context, label string) (*wallet.Info, error)
	Import(ctx context.Context, secret, label string) (*wallet.Info, error)
	List(ctx context.Context) ([]wallet.Info, error)
	Export(ctx context.Context, address string) (string, error)
}

type Rounds interface {
	Fetch(ctx context.Context) (round.Snapshot, error)
}

type Transactions interface {
	ListTransactions(ctx context.Context, wallet string, limit, offset int) ([]store.Transaction, error)
}

type History interface {
	History(ctx context.Context, wallet string, limit int) ([]ledger.Entry, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type SlotGetter interface {
	GetSlot(ctx context.Context) (uint64, error)
}

type Deps struct {
	Sessions     Sessions
	Claims       Claims
	Wallets      Wallets
	Rounds       Rounds
	Transactions Transactions
	History      History
	DB           Pinger
	RPC          SlotGetter
}

type Service struct {
	d          Deps
	defaultTip uint64
	now        func() time.Time
}

func NewService(d Deps, defaultTip uint64) *Service {
	return &Service{d: d, defaultTip: defaultTip, now: time.Now}
}

func requireWallet(w string) error {
	if strings.TrimSpace(w) == "" {
		return fmt.Errorf("%w: wallet is required", ErrInvalidRequest)
	}
	return nil
}

func (s *Service) Health(ctx context.Context) HealthResponse {
	out := HealthResponse{OK: true, DB: "up", RPC: "up"}
	if err := s.d.DB.Ping(ctx); err != nil {
		out.OK = false
		out.DB = "down"
	}
	slot, err := s.d.RPC.GetSlot(ctx)
	if err != nil {
		out.OK = false
		out.RPC = "down"
	} else {
		out.Slot = slot
	}
	return out
}

func (s *Service) StartSession(ctx context.Context, req StartSessionRequest) (*StartSessionResponse, error) {
	if err := requireWallet(req.Wallet); err != nil {
		return nil, err
	}
	deploy, err := ledger.Lamports(req.DeployAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: deploy_amount: %w", ErrInvalidRequest, err)
	}
	maxTip, err := ledger.Lamports(req.MaxTip)
	if err != nil {
		return nil, fmt.Errorf("%w: max_tip: %w", ErrInvalidRequest, err)
	}
	budget, err := ledger.Lamports(req.Budget)
	if err != nil {
		return nil, fmt.Errorf("%w: budget: %w", ErrInvalidRequest, err)
	}
	name := req.Strategy
	if name == "" {
		name = string(strategy.BestEV)
	}
	numBlocks := req.NumBlocks
	if numBlocks == 0 {
		numBlocks = 1
	}
	sess, created, err := s.d.Sessions.Start(ctx, governor.StartParams{
		Wallet:       req.Wallet,
		Strategy:     name,
		DeployAmount: int64(deploy),
		MaxTip:       int64(maxTip),
		Budget:       int64(budget),
		NumBlocks:    numBlocks,
	})
	if err != nil {
		return nil, err
	}
	return &StartSessionResponse{Session: sessionView(sess), Created: created}, nil
}

func (s *Service) StopSession(ctx context.Context, req WalletRequest) (*SessionView, error) {
	if err := requireWallet(req.Wallet); err != nil {
		return nil, err
	}
	sess, err := s.d.Sessions.Stop(ctx, req.Wallet, governor.StopReasonUser)
	if err != nil {
		return nil, err
	}
	v := sessionView(sess)
	return &v, nil
}

func (s *Service) SessionStatus(ctx context.Context, wallet string) (*SessionView, error) {
	if err := requireWallet(wallet); err != nil {
		return nil, err
	}
	sess, err := s.d.Sessions.Status(ctx, wallet)
	if err != nil {
		return nil, err
	}
	v := sessionView(sess)
	return &v, nil
}

func (s *Service) Stats(ctx context.Context, wallet string) (*StatsResponse, error) {
	if err := requireWallet(wallet); err != nil {
		return nil, err
	}
	st, err := s.d.Sessions.Stats(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return &StatsResponse{
		Session:   sessionView(st.Session),
		Spent:     ledger.SOL(st.Spent),
		Remaining: ledger.SOL(max(st.Session.Budget-st.Spent, 0)),
		WinRate:   st.WinRate,
		Running:   st.Running,
	}, nil
}

func (s *Service) Transactions(ctx context.Context, wallet string, limit, offset int) (*TransactionsResponse, error) {
	if err := requireWallet(wallet); err != nil {
		return nil, err
	}
	rows, err := s.d.Transactions.ListTransactions(ctx, wallet, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]TransactionView, 0, len(rows))
	for _, t := range rows {
		v := TransactionView{
			ID:            t.ID,
			SessionID:     t.SessionID,
			RoundID:       t.RoundID,
			Block:         t.BlockIndex,
			DeployAmount:  ledger.SOL(t.DeployAmount),
			Tip:           ledger.SOL(t.TipAmount),
			ExpectedEV:    decimal.NewFromFloat(t.ExpectedEV).Shift(-ledger.SOLDecimals),
			Signature:     t.Signature,
			BundleID:      t.BundleID,
			Status:        t.Status,
			FailureReason: t.FailureReason,
			Strategy:      t.Strategy,
			CreatedAt:     t.CreatedAt,
		}
		if t.ActualReward != nil {
			r := ledger.SOL(*t.ActualReward)
			v.Reward = &r
		}
		items = append(items, v)
	}
	return &TransactionsResponse{Items: items, Limit: limit, Offset: offset}, nil
}

// DefaultRoundDeploy is the per-block SOL used to score a round when the
// caller gives none.
var DefaultRoundDeploy = decimal.New(1, -2)

// Round scores the live round for a deposit of deploy SOL per block. A zero
// deploy returns totals only.
func (s *Service) Round(ctx context.Context, deploy, tip *decimal.Decimal) (*RoundResponse, error) {
	snap, err := s.d.Rounds.Fetch(ctx)
	stale := errors.Is(err, round.ErrStaleSnapshot)
	if err != nil && !stale {
		return nil, err
	}
	now := s.now()
	out := &RoundResponse{
		RoundID:        snap.RoundID,
		Started:        snap.Started,
		TimeLeft:       snap.TimeLeft(now).Seconds(),
		SlotsRemaining: snap.SlotsRemaining(),
		TotalDeployed:  ledger.SOL(int64(snap.TotalDeployed())),
		Stale:          stale,
		Blocks:         make([]BlockView, len(snap.Totals)),
	}
	for i, t := range snap.Totals {
		out.Blocks[i] = BlockView{Index: i, TotalDeployed: ledger.SOL(int64(t))}
	}
	if deploy == nil {
		return out, nil
	}
	deployLamports, err := ledger.Lamports(*deploy)
	if err != nil || deployLamports == 0 {
		return nil, fmt.Errorf("%w: deploy must be a positive SOL amount", ErrInvalidRequest)
	}
	tipLamports := s.defaultTip
	if tip != nil {
		if tipLamports, err = ledger.Lamports(*tip); err != nil {
			return nil, fmt.Errorf("%w: tip: %w", ErrInvalidRequest, err)
		}
	}
	res := snap.Score(deployLamports, tipLamports)
	out.Deploy = ledger.SOL(int64(deployLamports))
	out.Tip = ledger.SOL(int64(tipLamports))
	best := res.BestIndex
	out.BestIndex = &best
	for i, slot := range res.Slots {
		v := decimal.NewFromFloat(slot.EV).Shift(-ledger.SOLDecimals)
		out.Blocks[i].EV = &v
	}
	return out, nil
}

func (s *Service) Balances(ctx context.Context, wallet string) (*BalancesResponse, error) {
	if err := requireWallet(wallet); err != nil {
		return nil, err
	}
	b, err := s.d.Claims.Cached(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return balancesView(b), nil
}

func (s *Service) SyncBalances(ctx context.Context, req WalletRequest) (*BalancesResponse, error) {
	if err := requireWallet(req.Wallet); err != nil {
		return nil, err
	}
	b, err := s.d.Claims.Sync(ctx, req.Wallet)
	if err != nil {
		return nil, err
	}
	return balancesView(b), nil
}

func (s *Service) BalanceHistory(ctx context.Context, wallet string, limit int) (*BalanceHistoryResponse, error) {
	if err := requireWallet(wallet); err != nil {
		return nil, err
	}
	items, err := s.d.History.History(ctx, wallet, limit)
	if err != nil {
		return nil, err
	}
	return &BalanceHistoryResponse{Items: items}, nil
}

// Claim withdraws the requested amount, or everything cached when amount is
// omitted.
func (s *Service) Claim(ctx context.Context, claimType string, req ClaimRequest) (*ClaimView, error) {
	if err := requireWallet(req.Wallet); err != nil {
		return nil, err
	}
	var units uint64
	if req.Amount != nil {
		var err error
		if claimType == store.ClaimTypeORE {
			units, err = ledger.OREUnits(*req.Amount)
		} else {
			units, err = ledger.Lamports(*req.Amount)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: amount: %w", ErrInvalidRequest, err)
		}
		if units == 0 {
			return nil, fmt.Errorf("%w: amount must be positive", claims.ErrInsufficientBalance)
		}
	}
	p, err := s.d.Claims.Claim(ctx, req.Wallet, claimType, units)
	if err != nil {
		return nil, err
	}
	return &ClaimView{
		ClaimID:   p.ClaimID,
		ClaimType: p.ClaimType,
		Gross:     ledger.Amount(p.ClaimType, int64(p.Gross)),
		Fee:       ledger.Amount(p.ClaimType, int64(p.Fee)),
		Net:       ledger.Amount(p.ClaimType, int64(p.Net)),
		Signature: p.Signature,
		Status:    store.ClaimPending,
	}, nil
}

func (s *Service) ClaimsHistory(ctx context.Context, wallet string, limit, offset int) (*ClaimsHistoryResponse, error) {
	if err := requireWallet(wallet); err != nil {
		return nil, err
	}
	rows, err := s.d.Claims.History(ctx, wallet, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]ClaimView, 0, len(rows))
	for _, c := range rows {
		created := c.CreatedAt
		items = append(items, ClaimView{
			ClaimID:     c.ID,
			ClaimType:   c.ClaimType,
			Gross:       ledger.Amount(c.ClaimType, c.Gross),
			Fee:         ledger.Amount(c.ClaimType, c.Fee),
			Net:         ledger.Amount(c.ClaimType, c.Net),
			Signature:   c.Signature,
			Status:      c.Status,
			Error:       c.Error,
			CreatedAt:   &created,
			ConfirmedAt: c.ConfirmedAt,
		})
	}
	return &ClaimsHistoryResponse{Items: items, Limit: limit, Offset: offset}, nil
}

func (s *Service) GenerateWallet(ctx context.Context, req GenerateWalletRequest) (*WalletView, error) {
	info, err := s.d.Wallets.Generate(ctx, req.Label)
	if err != nil {
		return nil, err
	}
	v := walletView(*info)
	return &v, nil
}

func (s *Service) ImportWallet(ctx context.Context, req ImportWalletRequest) (*WalletView, error) {
	if strings.TrimSpace(req.PrivateKey) == "" {
		return nil, fmt.Errorf("%w: private_key is required", ErrInvalidRequest)
	}
	info, err := s.d.Wallets.Import(ctx, strings.TrimSpace(req.PrivateKey), req.Label)
	if err != nil {
		return nil, err
	}
	v := walletView(*info)
	return &v, nil
}

func (s *Service) ListWallets(ctx context.Context) (*WalletsResponse, error) {
	infos, err := s.d.Wallets.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]WalletView, 0, len(infos))
	for _, info := range infos {
		items = append(items, walletView(info))
	}
	return &WalletsResponse{Items: items}, nil
}

func (s *Service) ExportWallet(ctx context.Context, req ExportWalletRequest) (*ExportWalletResponse, error) {
	if err := requireWallet(req.WalletAddress); err != nil {
		return nil, err
	}
	secret, err := s.d.Wallets.Export(ctx, req.WalletAddress)
	if err != nil {
		return nil, err
	}
	return &ExportWalletResponse{Address: req.WalletAddress, PrivateKey: secret}, nil
}

func sessionView(s *store.Session) SessionView {
	return SessionView{
		ID:            s.ID,
		Wallet:        s.Wallet,
		Strategy:      s.Strategy,
		DeployAmount:  ledger.SOL(s.DeployAmount),
		MaxTip:        ledger.SOL(s.MaxTip),
		Budget:        ledger.SOL(s.Budget),
		NumBlocks:     s.NumBlocks,
		RoundsPlayed:  s.RoundsPlayed,
		RoundsSkipped: s.RoundsSkipped,
		RoundsWon:     s.RoundsWon,
		RoundsLost:    s.RoundsLost,
		TotalDeployed: ledger.SOL(s.TotalDeployed),
		TotalTips:     ledger.SOL(s.TotalTips),
		TotalWon:      ledger.SOL(s.TotalWon),
		NetPnL:        ledger.SOL(s.NetPnL),
		IsActive:      s.IsActive,
		StopReason:    s.StopReason,
		CreatedAt:     s.CreatedAt,
		EndedAt:       s.EndedAt,
	}
}

func balancesView(b store.UnclaimedBalance) *BalancesResponse {
	out := &BalancesResponse{
		Wallet:       b.Wallet,
		UnclaimedSOL: ledger.SOL(b.UnclaimedSOL),
		UnclaimedORE: ledger.ORE(b.UnclaimedORE),
		RefinedORE:   ledger.ORE(b.RefinedORE),
	}
	if !b.LastSynced.IsZero() {
		t := b.LastSynced
		out.LastSynced = &t
	}
	return out
}

func walletView(info wallet.Info) WalletView {
	return WalletView{
		Address:   info.Address,
		Label:     info.Label,
		Balance:   ledger.SOL(int64(info.Balance)),
		Ready:     info.Ready,
		CreatedAt: info.CreatedAt,
	}
}
