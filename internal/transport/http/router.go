package httptransport

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"ore-autominer/internal/app/control"
	"ore-autominer/internal/events"
	"ore-autominer/internal/metrics"
	"ore-autominer/internal/store"
	"ore-autominer/internal/ws"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type RouterDeps struct {
	Control  *control.Service
	Hub      *events.Hub
	WS       *ws.Server
	MCP      http.Handler
	AdminKey string
}

func NewRouter(d RouterDeps) *chi.Mux {
	h := NewControlHandlers(d.Control, d.AdminKey)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/health", h.Health())
	r.Get("/ws", d.WS.HandleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Get("/events", EventsSSEHandler(d.Hub))

		r.Get("/round", h.Round())
		r.Get("/grid", h.Grid())
		r.Get("/session/status", h.SessionStatus())
		r.Get("/stats", h.Stats())
		r.Get("/transactions", h.Transactions())
		r.Get("/balances", h.Balances())
		r.Get("/balances/history", h.BalanceHistory())
		r.Get("/claims/history", h.ClaimsHistory())
		r.Get("/wallet/list", h.ListWallets())

		// Mutating routes act on server-held keys.
		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminKey))
			r.Group(func(r chi.Router) {
				r.Use(BodyCaptureMiddleware(4096))
				r.Post("/session/start", h.StartSession())
				r.Post("/session/stop", h.StopSession())
				r.Post("/balances/sync", h.SyncBalances())
				r.Post("/claim/sol", h.Claim(store.ClaimTypeSOL))
				r.Post("/claim/ore", h.Claim(store.ClaimTypeORE))
				r.Post("/wallet/generate", h.GenerateWallet())
			})
			r.Post("/wallet/import", h.ImportWallet())
			r.Post("/wallet/export", h.ExportWallet())
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Use(AdminAuthMiddleware(d.AdminKey))
		r.Handle("/metrics", metrics.Handler())
		if d.MCP != nil {
			r.MethodFunc(http.MethodOptions, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
				w.WriteHeader(http.StatusNoContent)
			})
			r.Method(http.MethodPost, "/mcp", d.MCP)
			r.Method(http.MethodGet, "/mcp", d.MCP)
			r.Method(http.MethodDelete, "/mcp", d.MCP)
		}
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 64)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
