package httptransport

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"ore-autominer/internal/events"
)

var ssePingInterval = 15 * time.Second

// EventsSSEHandler streams one wallet's events, replaying whatever the
// client missed after Last-Event-ID.
func EventsSSEHandler(hub *events.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet := r.URL.Query().Get("wallet")
		if wallet == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteHTTPError(w, http.StatusInternalServerError, "stream_not_supported")
			return
		}

		metricSSEConnectionsTotal.Inc()
		metricSSEConnectionsActive.Inc()
		defer metricSSEConnectionsActive.Dec()

		events.SetSSEHeaders(w)
		reqID := chimw.GetReqID(r.Context())
		log.Info().Str("request_id", reqID).Str("wallet", wallet).Msg("sse stream opened")

		buf := hub.Buffer(wallet)
		ch := buf.Subscribe()
		defer buf.Unsubscribe(ch)

		lastEventID := r.Header.Get("Last-Event-ID")
		if lastEventID == "" {
			lastEventID = r.URL.Query().Get("last_event_id")
		}
		var lastSent string
		for _, ev := range buf.ReplayAfter(lastEventID) {
			if err := events.WriteSSE(w, ev); err != nil {
				return
			}
			lastSent = ev.EventID
		}
		flusher.Flush()

		ticker := time.NewTicker(ssePingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				log.Info().Str("request_id", reqID).Str("wallet", wallet).Msg("sse stream closed")
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if lastSent != "" && !newer(ev.EventID, lastSent) {
					continue
				}
				if err := events.WriteSSE(w, ev); err != nil {
					return
				}
				lastSent = ev.EventID
				flusher.Flush()
			case now := <-ticker.C:
				ping := events.Event{
					Version:  events.Version,
					Type:     events.TypePing,
					Wallet:   wallet,
					ServerTS: now.UnixMilli(),
					Data:     events.Ping{TS: now.UnixMilli()},
				}
				if err := events.WriteSSE(w, ping); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// newer compares decimal event ids without parsing them.
func newer(id, than string) bool {
	if len(id) != len(than) {
		return len(id) > len(than)
	}
	return id > than
}
