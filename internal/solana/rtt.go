package solana

import (
	"sync"
	"time"

	"ore-autominer/internal/metrics"
)

const defaultRTTAlpha = 0.2

// RTTEstimator keeps an exponentially weighted moving average of round-trip
// latency to the RPC endpoint.
type RTTEstimator struct {
	mu     sync.Mutex
	alpha  float64
	value  time.Duration
	primed bool
}

func NewRTTEstimator(alpha float64) *RTTEstimator {
	if alpha <= 0 || alpha > 1 {
		alpha = defaultRTTAlpha
	}
	return &RTTEstimator{alpha: alpha}
}

func (e *RTTEstimator) Observe(rtt time.Duration) {
	if e == nil || rtt <= 0 {
		return
	}
	e.mu.Lock()
	if !e.primed {
		e.value = rtt
		e.primed = true
	} else {
		e.value = time.Duration(e.alpha*float64(rtt) + (1-e.alpha)*float64(e.value))
	}
	v := e.value
	e.mu.Unlock()
	metrics.SmoothedRTT.Set(v.Seconds())
}

func (e *RTTEstimator) RTT() time.Duration {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// OneWay approximates the one-way latency as half the smoothed RTT.
func (e *RTTEstimator) OneWay() time.Duration {
	return e.RTT() / 2
}
