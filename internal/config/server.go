package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	WalletPassphrase string `env:"WALLET_PASSPHRASE,required,notEmpty"`
	RedisURL         string `env:"REDIS_URL"`

	ClaimFeePercent  int64  `env:"CLAIM_FEE_PERCENT" envDefault:"10"`
	ReadyMinLamports uint64 `env:"WALLET_READY_MIN_LAMPORTS" envDefault:"10000000"`
	EventBufferSize  int    `env:"EVENT_BUFFER_SIZE" envDefault:"500"`
	ResumeOnStartup  bool   `env:"RESUME_SESSIONS_ON_STARTUP" envDefault:"true"`

	AlertPushEnabled        bool   `env:"ALERT_PUSH_ENABLED" envDefault:"false"`
	AlertPushConfigPath     string `env:"ALERT_PUSH_CONFIG_PATH"`
	AlertPushConfigReloadMS int    `env:"ALERT_PUSH_CONFIG_RELOAD_MS" envDefault:"5000"`
	AlertPushWorkers        int    `env:"ALERT_PUSH_WORKERS" envDefault:"2"`
	AlertPushRetryMax       int    `env:"ALERT_PUSH_RETRY_MAX" envDefault:"3"`
	AlertPushRetryBaseMS    int    `env:"ALERT_PUSH_RETRY_BASE_MS" envDefault:"500"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
