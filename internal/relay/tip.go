package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"ore-autominer/internal/solana"
)

var tipAccounts = []solana.PublicKey{
	solana.MustPublicKey("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKey("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKey("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKey("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKey("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKey("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKey("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKey("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// TipAccounts returns a copy of the block engine's tip receivers.
func TipAccounts() []solana.PublicKey {
	out := make([]solana.PublicKey, len(tipAccounts))
	copy(out, tipAccounts)
	return out
}

func RandomTipAccount() solana.PublicKey {
	return tipAccounts[rand.IntN(len(tipAccounts))]
}

// Tip clamps the recommendation to [floor, maxTip]. maxTip wins over floor.
func Tip(recommended, floor, maxTip uint64) uint64 {
	return min(max(recommended, floor), maxTip)
}

// SplitTip divides total across n rows; the remainder goes to the first row.
func SplitTip(total uint64, n int) []uint64 {
	if n <= 0 {
		return nil
	}
	out := make([]uint64, n)
	share := total / uint64(n)
	for i := range out {
		out[i] = share
	}
	out[0] += total % uint64(n)
	return out
}

const tipFloorTTL = 10 * time.Second

var lamportsPerSOL = decimal.NewFromInt(1_000_000_000)

type tipFloorEntry struct {
	P50 decimal.Decimal `json:"landed_tips_50th_percentile"`
	P75 decimal.Decimal `json:"landed_tips_75th_percentile"`
}

// TipOracle caches the block engine's landed-tip percentiles.
type TipOracle struct {
	url      string
	client   *http.Client
	fallback uint64
	ttl      time.Duration

	mu        sync.Mutex
	value     uint64
	fetchedAt time.Time
}

func NewTipOracle(url string, fallback uint64) *TipOracle {
	return &TipOracle{
		url:      url,
		client:   &http.Client{Timeout: time.Second},
		fallback: fallback,
		ttl:      tipFloorTTL,
	}
}

// Recommended returns the p50 landed tip in lamports, or the fallback when the
// oracle cannot be reached.
func (o *TipOracle) Recommended(ctx context.Context) uint64 {
	o.mu.Lock()
	if !o.fetchedAt.IsZero() && time.Since(o.fetchedAt) < o.ttl {
		v := o.value
		o.mu.Unlock()
		return v
	}
	o.mu.Unlock()

	v, err := o.fetch(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("tip floor unavailable, using fallback")
		return o.fallback
	}
	o.mu.Lock()
	o.value = v
	o.fetchedAt = time.Now()
	o.mu.Unlock()
	return v
}

func (o *TipOracle) fetch(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tip floor status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, err
	}
	var entries []tipFloorEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return 0, fmt.Errorf("decode tip floor: %w", err)
	}
	if len(entries) == 0 || !entries[0].P50.IsPositive() {
		return 0, fmt.Errorf("tip floor: empty response")
	}
	return uint64(entries[0].P50.Mul(lamportsPerSOL).Ceil().IntPart()), nil
}
