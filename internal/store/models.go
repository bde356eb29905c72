package store

import "time"

const (
	TxPending = "pending"
	TxWon     = "won"
	TxLost    = "lost"
	TxFailed  = "failed"

	ClaimPending   = "pending"
	ClaimConfirmed = "confirmed"
	ClaimFailed    = "failed"

	ClaimTypeSOL = "sol"
	ClaimTypeORE = "ore"

	BalanceUnclaimedSOL = "unclaimed_sol"
	BalanceUnclaimedORE = "unclaimed_ore"
	BalanceRefinedORE   = "refined_ore"

	HistoryReasonSync  = "sync"
	HistoryReasonClaim = "claim"
)

type Wallet struct {
	Address      string
	EncryptedKey string
	Label        string
	IsActive     bool
	CreatedAt    time.Time
}

type Session struct {
	ID           string
	Wallet       string
	Strategy     string
	DeployAmount int64
	MaxTip       int64
	Budget       int64
	NumBlocks    int

	RoundsPlayed  int64
	RoundsSkipped int64
	RoundsWon     int64
	RoundsLost    int64
	TotalDeployed int64
	TotalTips     int64
	TotalWon      int64
	NetPnL        int64

	IsActive   bool
	StopReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	EndedAt    *time.Time
}

type Transaction struct {
	ID                  string
	SessionID           string
	Wallet              string
	RoundID             int64
	BlockIndex          int
	DeployAmount        int64
	TipAmount           int64
	ExpectedEV          float64
	ActualReward        *int64
	Signature           string
	BundleID            string
	Status              string
	FailureReason       string
	NeedsReconciliation bool
	Strategy            string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type UnclaimedBalance struct {
	Wallet       string
	UnclaimedSOL int64
	UnclaimedORE int64
	RefinedORE   int64
	LastSynced   time.Time
}

type Claim struct {
	ID          string
	Wallet      string
	ClaimType   string
	Gross       int64
	Fee         int64
	Net         int64
	Signature   string
	Status      string
	Error       string
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

type BalanceHistory struct {
	ID          string
	Wallet      string
	BalanceType string
	Reason      string
	Before      int64
	After       int64
	ReferenceID string
	CreatedAt   time.Time
}

// RowOutcome is the settled result of one pending transaction row.
type RowOutcome struct {
	TxID   string
	Won    bool
	Reward int64
}

// Settlement carries every row outcome of one submitted bundle.
type Settlement struct {
	SessionID string
	Signature string
	Outcomes  []RowOutcome
}
