package control

import (
	"time"

	"github.com/shopspring/decimal"

	"ore-autominer/internal/ledger"
)

type StartSessionRequest struct {
	Wallet       string          `json:"wallet"`
	Strategy     string          `json:"strategy"`
	DeployAmount decimal.Decimal `json:"deploy_amount"`
	MaxTip       decimal.Decimal `json:"max_tip"`
	Budget       decimal.Decimal `json:"budget"`
	NumBlocks    int             `json:"num_blocks"`
}

type WalletRequest struct {
	Wallet string `json:"wallet"`
}

type SessionView struct {
	ID            string          `json:"id"`
	Wallet        string          `json:"wallet"`
	Strategy      string          `json:"strategy"`
	DeployAmount  decimal.Decimal `json:"deploy_amount"`
	MaxTip        decimal.Decimal `json:"max_tip"`
	Budget        decimal.Decimal `json:"budget"`
	NumBlocks     int             `json:"num_blocks"`
	RoundsPlayed  int64           `json:"rounds_played"`
	RoundsSkipped int64           `json:"rounds_skipped"`
	RoundsWon     int64           `json:"rounds_won"`
	RoundsLost    int64           `json:"rounds_lost"`
	TotalDeployed decimal.Decimal `json:"total_deployed"`
	TotalTips     decimal.Decimal `json:"total_tips"`
	TotalWon      decimal.Decimal `json:"total_won"`
	NetPnL        decimal.Decimal `json:"net_pnl"`
	IsActive      bool            `json:"is_active"`
	StopReason    string          `json:"stop_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
}

type StartSessionResponse struct {
	Session SessionView `json:"session"`
	Created bool        `json:"created"`
}

type StatsResponse struct {
	Session   SessionView     `json:"session"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
	WinRate   float64         `json:"win_rate"`
	Running   bool            `json:"running"`
}

type TransactionView struct {
	ID            string           `json:"id"`
	SessionID     string           `json:"session_id"`
	RoundID       int64            `json:"round_id"`
	Block         int              `json:"block"`
	DeployAmount  decimal.Decimal  `json:"deploy_amount"`
	Tip           decimal.Decimal  `json:"tip"`
	ExpectedEV    decimal.Decimal  `json:"expected_ev"`
	Reward        *decimal.Decimal `json:"reward,omitempty"`
	Signature     string           `json:"signature"`
	BundleID      string           `json:"bundle_id,omitempty"`
	Status        string           `json:"status"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Strategy      string           `json:"strategy"`
	CreatedAt     time.Time        `json:"created_at"`
}

type TransactionsResponse struct {
	Items  []TransactionView `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type BlockView struct {
	Index         int              `json:"index"`
	TotalDeployed decimal.Decimal  `json:"total_deployed"`
	EV            *decimal.Decimal `json:"ev,omitempty"`
}

type RoundResponse struct {
	RoundID        uint64          `json:"round_id"`
	Started        bool            `json:"started"`
	TimeLeft       float64         `json:"time_left"`
	SlotsRemaining uint64          `json:"slots_remaining"`
	TotalDeployed  decimal.Decimal `json:"total_deployed"`
	Stale          bool            `json:"stale"`
	Deploy         decimal.Decimal `json:"deploy"`
	Tip            decimal.Decimal `json:"tip"`
	BestIndex      *int            `json:"best_index,omitempty"`
	Blocks         []BlockView     `json:"blocks"`
}

type BalancesResponse struct {
	Wallet       string          `json:"wallet"`
	UnclaimedSOL decimal.Decimal `json:"unclaimed_sol"`
	UnclaimedORE decimal.Decimal `json:"unclaimed_ore"`
	RefinedORE   decimal.Decimal `json:"refined_ore"`
	LastSynced   *time.Time      `json:"last_synced,omitempty"`
}

type BalanceHistoryResponse struct {
	Items []ledger.Entry `json:"items"`
}

type ClaimRequest struct {
	Wallet string           `json:"wallet"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type ClaimView struct {
	ClaimID     string          `json:"claim_id"`
	ClaimType   string          `json:"claim_type"`
	Gross       decimal.Decimal `json:"gross"`
	Fee         decimal.Decimal `json:"fee"`
	Net         decimal.Decimal `json:"net"`
	Signature   string          `json:"signature"`
	Status      string          `json:"status,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

type ClaimsHistoryResponse struct {
	Items  []ClaimView `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

type GenerateWalletRequest struct {
	Label string `json:"label"`
}

type ImportWalletRequest struct {
	PrivateKey string `json:"private_key"`
	Label      string `json:"label"`
}

type ExportWalletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type WalletView struct {
	Address   string          `json:"address"`
	Label     string          `json:"label"`
	Balance   decimal.Decimal `json:"balance"`
	Ready     bool            `json:"ready"`
	CreatedAt time.Time       `json:"created_at"`
}

type WalletsResponse struct {
	Items []WalletView `json:"items"`
}

type ExportWalletResponse struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

type HealthResponse struct {
	OK   bool   `json:"ok"`
	DB   string `json:"db"`
	RPC  string `json:"rpc"`
	Slot uint64 `json:"slot,omitempty"`
}
