package config

import "github.com/caarlos0/env/v11"

type CtlConfig struct {
	APIURL   string `env:"ORECTL_API_URL" envDefault:"http://localhost:8080"`
	WSURL    string `env:"ORECTL_WS_URL" envDefault:"ws://localhost:8080/ws"`
	AdminKey string `env:"ORECTL_ADMIN_KEY"`
	Wallet   string `env:"ORECTL_WALLET"`
}

func LoadCtl() (CtlConfig, error) {
	var cfg CtlConfig
	err := env.Parse(&cfg)
	return cfg, err
}
