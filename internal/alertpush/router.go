package alertpush

import (
	"strings"

	"ore-autominer/internal/events"
)

type Router struct{}

func (r Router) MatchTargets(targets []Target, ev events.Event) []Target {
	if len(targets) == 0 {
		return nil
	}
	out := make([]Target, 0, len(targets))
	for _, target := range targets {
		if !target.Enabled {
			continue
		}
		if target.Wallet != AnyWallet && target.Wallet != ev.Wallet {
			continue
		}
		if !eventAllowed(target.EventAllowlist, string(ev.Type)) {
			continue
		}
		out = append(out, target)
	}
	return out
}

func eventAllowed(allowlist []string, evType string) bool {
	if len(allowlist) == 0 {
		return true
	}
	evType = strings.ToLower(strings.TrimSpace(evType))
	for _, v := range allowlist {
		if v != "" && strings.ToLower(strings.TrimSpace(v)) == evType {
			return true
		}
	}
	return false
}
