package alertpush

import (
	"fmt"
	"strings"
	"time"

	"ore-autominer/internal/events"
	"ore-autominer/internal/ledger"
	"ore-autominer/internal/store"
)

const (
	colorWin      = 0x3BA55D
	colorClaim    = 0x57F287
	colorWarn     = 0xFEE75C
	colorCritical = 0xED4245

	shortIDLimit  = 8
	defaultFooter = "ore-autominer"
)

// FormatMessage renders the events operators are alerted on. Everything else,
// including confirmations without a reward, is skipped.
func FormatMessage(ev events.Event) (FormattedMessage, bool) {
	wallet := shortID(fallback(ev.Wallet, "unknown"), shortIDLimit)
	base := FormattedMessage{
		Timestamp: eventTimestamp(ev.ServerTS),
		Footer:    defaultFooter,
	}
	fields := []MessageField{{Name: "Wallet", Value: ev.Wallet, Inline: false}}

	switch data := payload(ev.Data).(type) {
	case events.TxConfirmed:
		if data.Reward == nil || *data.Reward == 0 {
			return FormattedMessage{}, false
		}
		reward := ledger.SOL(int64(*data.Reward)).String()
		base.Title = fmt.Sprintf("Round Won · %s", wallet)
		base.Content = fmt.Sprintf("won %s SOL", reward)
		base.Description = fmt.Sprintf("Deployment settled with a reward of %s SOL.", reward)
		base.Color = colorWin
		fields = append(fields,
			MessageField{Name: "Reward", Value: reward + " SOL", Inline: true},
			MessageField{Name: "Signature", Value: shortID(data.Signature, 16), Inline: true},
		)
	case events.TxFailed:
		base.Title = fmt.Sprintf("Transaction Failed · %s", wallet)
		base.Content = "transaction failed"
		base.Description = fmt.Sprintf("Transaction failed: %s.", fallback(data.Reason, "unknown"))
		base.Color = colorCritical
		fields = append(fields,
			MessageField{Name: "Reason", Value: fallback(data.Reason, "-"), Inline: true},
			MessageField{Name: "Signature", Value: fallback(shortID(data.Signature, 16), "-"), Inline: true},
		)
	case events.ClaimConfirmed:
		if data.ClaimType != store.ClaimTypeSOL && data.ClaimType != store.ClaimTypeORE {
			return FormattedMessage{}, false
		}
		unit := strings.ToUpper(data.ClaimType)
		net := ledger.Amount(data.ClaimType, int64(data.Net)).String()
		base.Title = fmt.Sprintf("Claim Confirmed · %s", wallet)
		base.Content = fmt.Sprintf("claimed %s %s", net, unit)
		base.Description = fmt.Sprintf("Claimed %s %s net of fee.", net, unit)
		base.Color = colorClaim
		fields = append(fields,
			MessageField{Name: "Gross", Value: ledger.Amount(data.ClaimType, int64(data.Gross)).String() + " " + unit, Inline: true},
			MessageField{Name: "Fee", Value: ledger.Amount(data.ClaimType, int64(data.Fee)).String() + " " + unit, Inline: true},
			MessageField{Name: "Net", Value: net + " " + unit, Inline: true},
		)
	case events.SessionStopped:
		base.Title = fmt.Sprintf("Session Stopped · %s", wallet)
		base.Content = "session stopped"
		base.Description = fmt.Sprintf("Session stopped: %s.", fallback(data.Reason, "unknown"))
		base.Color = colorWarn
		fields = append(fields,
			MessageField{Name: "Session", Value: data.SessionID, Inline: true},
			MessageField{Name: "Reason", Value: fallback(data.Reason, "-"), Inline: true},
		)
	default:
		return FormattedMessage{}, false
	}

	base.Fields = fields
	return base, true
}

func payload(v any) any {
	switch p := v.(type) {
	case *events.TxConfirmed:
		return *p
	case *events.TxFailed:
		return *p
	case *events.ClaimConfirmed:
		return *p
	case *events.SessionStopped:
		return *p
	}
	return v
}

func shortID(v string, max int) string {
	if max <= 0 || len(v) <= max {
		return v
	}
	return v[:max]
}

func eventTimestamp(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func fallback(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}
