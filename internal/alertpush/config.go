package alertpush

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ore-autominer/internal/config"
)

func ConfigFromServer(cfg config.ServerConfig) (Config, error) {
	out := Config{
		Enabled:             cfg.AlertPushEnabled,
		ConfigPath:          strings.TrimSpace(cfg.AlertPushConfigPath),
		ConfigReload:        time.Duration(cfg.AlertPushConfigReloadMS) * time.Millisecond,
		Workers:             cfg.AlertPushWorkers,
		RetryMax:            cfg.AlertPushRetryMax,
		RetryBase:           time.Duration(cfg.AlertPushRetryBaseMS) * time.Millisecond,
		FailureThreshold:    3,
		CircuitOpenDuration: 30 * time.Second,
		RequestTimeout:      5 * time.Second,
		DispatchBuffer:      1024,
	}
	if !out.Enabled {
		return out, nil
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.RetryMax < 0 {
		out.RetryMax = 0
	}
	if out.RetryBase <= 0 {
		out.RetryBase = 500 * time.Millisecond
	}
	if out.ConfigReload <= 0 {
		out.ConfigReload = 5 * time.Second
	}
	if out.ConfigPath == "" {
		return out, nil
	}
	raw, err := os.ReadFile(out.ConfigPath)
	if err != nil {
		return Config{}, fmt.Errorf("read alert push config path %q: %w", out.ConfigPath, err)
	}
	targets, err := parseTargetsJSON(strings.TrimSpace(string(raw)))
	if err != nil {
		return Config{}, err
	}
	out.Targets = targets
	return out, nil
}

func parseTargetsJSON(jsonRaw string) ([]Target, error) {
	if jsonRaw == "" {
		return nil, nil
	}
	var targets []Target
	if err := json.Unmarshal([]byte(jsonRaw), &targets); err != nil {
		return nil, fmt.Errorf("parse alert push targets: %w", err)
	}
	filtered := make([]Target, 0, len(targets))
	for _, target := range targets {
		target.Platform = strings.ToLower(strings.TrimSpace(target.Platform))
		if target.Platform != "discord" && target.Platform != "feishu" {
			continue
		}
		target.Endpoint = strings.TrimSpace(target.Endpoint)
		if target.Endpoint == "" || !target.Enabled {
			continue
		}
		target.Wallet = strings.TrimSpace(target.Wallet)
		if target.Wallet == "" {
			target.Wallet = AnyWallet
		}
		for i := range target.EventAllowlist {
			target.EventAllowlist[i] = strings.TrimSpace(strings.ToLower(target.EventAllowlist[i]))
		}
		filtered = append(filtered, target)
	}
	return filtered, nil
}
