package alertpush

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"ore-autominer/internal/alertpush/platforms"
	"ore-autominer/internal/metrics"
)

var errCircuitOpen = errors.New("circuit_open")

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-m.dispatchCh:
			m.processJob(ctx, job)
		}
	}
}

func (m *Manager) processJob(ctx context.Context, job pushJob) {
	platform := job.Target.Platform
	adapter := m.adapters[platform]
	if adapter == nil {
		metrics.AlertPushes.WithLabelValues(platform, "dropped").Inc()
		return
	}

	if err := m.beforeSend(job.key(), time.Now()); err != nil {
		metrics.AlertPushes.WithLabelValues(platform, "circuit_open").Inc()
		m.retryOrDrop(job, err)
		return
	}

	err := adapter.Send(ctx, job.Target.Endpoint, job.Target.Secret, toPlatformMessage(job.Formatted))
	if err != nil {
		metrics.AlertPushes.WithLabelValues(platform, "failed").Inc()
		m.afterFailure(job.key(), time.Now())
		m.retryOrDrop(job, err)
		return
	}
	metrics.AlertPushes.WithLabelValues(platform, "sent").Inc()
	m.afterSuccess(job.key())
}

func (m *Manager) retryOrDrop(job pushJob, err error) bool {
	if job.Attempt >= m.cfg.RetryMax {
		metrics.AlertPushes.WithLabelValues(job.Target.Platform, "retry_dropped").Inc()
		log.Warn().Err(err).Str("platform", job.Target.Platform).Str("event", string(job.Event.Type)).
			Int("attempts", job.Attempt+1).Msg("alert push dropped")
		return false
	}
	job.Attempt++
	metrics.AlertPushes.WithLabelValues(job.Target.Platform, "retry").Inc()
	m.retryQ.Enqueue(job, backoff(m.cfg.RetryBase, job.Attempt))
	return true
}

func (m *Manager) beforeSend(key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.breakerByKey[key]
	if !state.openUntil.IsZero() && now.Before(state.openUntil) {
		return errCircuitOpen
	}
	return nil
}

func (m *Manager) afterFailure(key string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.breakerByKey[key]
	state.consecutiveFailures++
	if state.consecutiveFailures >= m.cfg.FailureThreshold {
		state.openUntil = now.Add(m.cfg.CircuitOpenDuration)
		state.consecutiveFailures = 0
		log.Warn().Str("target", key).Dur("open_for", m.cfg.CircuitOpenDuration).Msg("alert push circuit opened")
	}
	m.breakerByKey[key] = state
}

func (m *Manager) afterSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerByKey[key] = breakerState{}
}

func toPlatformMessage(msg FormattedMessage) platforms.Message {
	fields := make([]platforms.Field, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, platforms.Field{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return platforms.Message{
		Title:       msg.Title,
		Content:     msg.Content,
		Description: msg.Description,
		Color:       msg.Color,
		Timestamp:   msg.Timestamp,
		Footer:      msg.Footer,
		Fields:      fields,
	}
}
