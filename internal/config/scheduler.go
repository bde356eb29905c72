package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// SchedulerConfig holds the offsets before the round deadline at which the
// per-session state machine advances.
type SchedulerConfig struct {
	SnapshotOffset time.Duration `env:"SNAPSHOT_OFFSET" envDefault:"2s"`
	EvaluateOffset time.Duration `env:"EVALUATE_OFFSET" envDefault:"1800ms"`
	DecideOffset   time.Duration `env:"DECIDE_OFFSET" envDefault:"1600ms"`
	SubmitOffset   time.Duration `env:"SUBMIT_OFFSET" envDefault:"1s"`
	SubmitGuard    time.Duration `env:"SUBMIT_GUARD" envDefault:"100ms"`

	StaleThreshold time.Duration `env:"STALE_THRESHOLD" envDefault:"400ms"`
	SlotDuration   time.Duration `env:"SLOT_DURATION" envDefault:"400ms"`

	SubmitRetries        int           `env:"SUBMIT_RETRIES" envDefault:"3"`
	SubmitRetryBase      time.Duration `env:"SUBMIT_RETRY_BASE" envDefault:"50ms"`
	SubmitAttemptTimeout time.Duration `env:"SUBMIT_ATTEMPT_TIMEOUT" envDefault:"300ms"`

	ConfirmPollInterval time.Duration `env:"CONFIRM_POLL_INTERVAL" envDefault:"1s"`
	ConfirmTimeout      time.Duration `env:"CONFIRM_TIMEOUT" envDefault:"60s"`
	SettleTimeout       time.Duration `env:"SETTLE_TIMEOUT" envDefault:"120s"`
}

func LoadScheduler() (SchedulerConfig, error) {
	var cfg SchedulerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
