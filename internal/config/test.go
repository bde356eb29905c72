package config

import "github.com/caarlos0/env/v11"

type TestConfig struct {
	TestPostgresDSN string `env:"TEST_POSTGRES_DSN,required,notEmpty"`
}

func LoadTest() (TestConfig, error) {
	var cfg TestConfig
	err := env.Parse(&cfg)
	return cfg, err
}

// TestContainerConfig opts DB tests into a throwaway postgres container when
// no TEST_POSTGRES_DSN is provided.
type TestContainerConfig struct {
	Enabled bool   `env:"TEST_POSTGRES_CONTAINER" envDefault:"false"`
	Image   string `env:"TEST_POSTGRES_IMAGE" envDefault:"postgres:16-alpine"`
}

func LoadTestContainer() (TestContainerConfig, error) {
	var cfg TestContainerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
