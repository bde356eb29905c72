package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ore-autominer/internal/app/control"
	"ore-autominer/internal/claims"
	"ore-autominer/internal/events"
	"ore-autominer/internal/governor"
	"ore-autominer/internal/store"
	"ore-autominer/internal/wallet"
	"ore-autominer/internal/ws"
)

type stubSessions struct{}

func (stubSessions) Start(context.Context, governor.StartParams) (*store.Session, bool, error) {
	return nil, false, governor.ErrBudgetExceeded
}

func (stubSessions) Stop(context.Context, string, string) (*store.Session, error) {
	return nil, governor.ErrSessionNotFound
}

func (stubSessions) Status(context.Context, string) (*store.Session, error) {
	return &store.Session{ID: "s1", Wallet: "w", DeployAmount: 100_000_000, IsActive: true}, nil
}

func (stubSessions) Stats(context.Context, string) (*governor.Stats, error) {
	return nil, governor.ErrSessionNotFound
}

type stubClaims struct{}

func (stubClaims) Cached(context.Context, string) (store.UnclaimedBalance, error) {
	return store.UnclaimedBalance{}, nil
}

func (stubClaims) Sync(context.Context, string) (store.UnclaimedBalance, error) {
	return store.UnclaimedBalance{}, nil
}

func (stubClaims) Claim(context.Context, string, string, uint64) (*claims.Preview, error) {
	return nil, claims.ErrDuplicateClaimInFlight
}

func (stubClaims) History(context.Context, string, int, int) ([]store.Claim, error) {
	return nil, nil
}

type stubWallets struct{}

func (stubWallets) Generate(context.Context, string) (*wallet.Info, error) {
	return &wallet.Info{Address: "new"}, nil
}

func (stubWallets) Import(context.Context, string, string) (*wallet.Info, error) {
	return nil, wallet.ErrInvalidSecret
}

func (stubWallets) List(context.Context) ([]wallet.Info, error) {
	return []wallet.Info{{Address: "w", Balance: 20_000_000, Ready: true}}, nil
}

func (stubWallets) Export(context.Context, string) (string, error) {
	return "secret", nil
}

func newTestRouter(adminKey string) (http.Handler, *events.Hub) {
	hub := events.NewHub(10)
	svc := control.NewService(control.Deps{
		Sessions: stubSessions{},
		Claims:   stubClaims{},
		Wallets:  stubWallets{},
	}, 1_000_000)
	return NewRouter(RouterDeps{
		Control:  svc,
		Hub:      hub,
		WS:       ws.NewServer(hub, ws.Config{}),
		AdminKey: adminKey,
	}), hub
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return w, env
}

func TestErrorCodesMapToStatus(t *testing.T) {
	h, _ := newTestRouter("")
	cases := []struct {
		method, path, body string
		status             int
		code               string
	}{
		{http.MethodPost, "/api/session/stop", `{"wallet":"w"}`, http.StatusNotFound, "session_not_found"},
		{http.MethodPost, "/api/session/start", `{"wallet":"w","deploy_amount":"0.1","max_tip":"0.001","budget":"1"}`, http.StatusConflict, "budget_exceeded"},
		{http.MethodPost, "/api/claim/sol", `{"wallet":"w"}`, http.StatusConflict, "duplicate_claim_in_flight"},
		{http.MethodPost, "/api/wallet/import", `{"private_key":"bad"}`, http.StatusBadRequest, "invalid_request"},
		{http.MethodPost, "/api/session/stop", `{"wallet":`, http.StatusBadRequest, "invalid_request"},
		{http.MethodGet, "/api/stats", "", http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		w, env := do(t, h, tc.method, tc.path, tc.body, nil)
		if w.Code != tc.status || env.Success || env.Error != tc.code {
			t.Fatalf("%s %s: status=%d env=%+v", tc.method, tc.path, w.Code, env)
		}
	}
}

func TestSuccessEnvelope(t *testing.T) {
	h, _ := newTestRouter("")
	w, env := do(t, h, http.MethodGet, "/api/session/status?wallet=w", "", nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("status=%d env=%+v", w.Code, env)
	}
	data := env.Data.(map[string]any)
	if data["deploy_amount"] != "0.1" || data["is_active"] != true {
		t.Fatalf("unexpected session %v", data)
	}
}

func TestWalletExportRequiresAdminKey(t *testing.T) {
	h, _ := newTestRouter("")
	w, env := do(t, h, http.MethodPost, "/api/wallet/export", `{"wallet_address":"w"}`, nil)
	if w.Code != http.StatusForbidden || env.Error != "admin_key_not_configured" {
		t.Fatalf("status=%d env=%+v", w.Code, env)
	}

	h, _ = newTestRouter("k")
	w, _ = do(t, h, http.MethodPost, "/api/wallet/export", `{"wallet_address":"w"}`, map[string]string{"X-Admin-Key": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	w, env = do(t, h, http.MethodPost, "/api/wallet/export", `{"wallet_address":"w"}`, map[string]string{"Authorization": "Bearer k"})
	if w.Code != http.StatusOK || env.Data.(map[string]any)["private_key"] != "secret" {
		t.Fatalf("status=%d env=%+v", w.Code, env)
	}
}

func TestMutatingRoutesRequireAdminKey(t *testing.T) {
	h, _ := newTestRouter("k")
	routes := []struct{ path, body string }{
		{"/api/session/start", `{"wallet":"w","deploy_amount":"0.1","max_tip":"0.001","budget":"1"}`},
		{"/api/session/stop", `{"wallet":"w"}`},
		{"/api/balances/sync", `{"wallet":"w"}`},
		{"/api/claim/sol", `{"wallet":"w"}`},
		{"/api/claim/ore", `{"wallet":"w"}`},
		{"/api/wallet/generate", `{}`},
		{"/api/wallet/import", `{"private_key":"bad"}`},
	}
	for _, rt := range routes {
		w, env := do(t, h, http.MethodPost, rt.path, rt.body, nil)
		if w.Code != http.StatusUnauthorized || env.Success {
			t.Fatalf("%s without key: status=%d env=%+v", rt.path, w.Code, env)
		}
	}

	w, env := do(t, h, http.MethodPost, "/api/session/stop", `{"wallet":"w"}`, map[string]string{"X-Admin-Key": "k"})
	if w.Code != http.StatusNotFound || env.Error != "session_not_found" {
		t.Fatalf("with key: status=%d env=%+v", w.Code, env)
	}
	w, env = do(t, h, http.MethodGet, "/api/session/status?wallet=w", "", nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("reads stay open: status=%d env=%+v", w.Code, env)
	}
}

func TestMetricsBehindAdminKey(t *testing.T) {
	h, _ := newTestRouter("k")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	req.Header.Set("X-Admin-Key", "k")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ore_autominer_") {
		t.Fatalf("expected metrics, got %d", w.Code)
	}
}

func TestEventsSSEReplaysAfterLastEventID(t *testing.T) {
	h, hub := newTestRouter("")
	for _, sig := range []string{"a", "b"} {
		if _, err := hub.Publish("w", events.TypeTxFailed, events.TxFailed{Signature: sig, Reason: "x"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events?wallet=w", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	body := w.Body.String()
	if strings.Contains(body, "id: 1\n") || !strings.Contains(body, "id: 2\n") {
		t.Fatalf("unexpected replay: %q", body)
	}
	if !strings.Contains(body, "event: tx:failed") {
		t.Fatalf("missing event type: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestNewerComparesNumerically(t *testing.T) {
	if !newer("10", "9") || newer("9", "10") || newer("3", "3") {
		t.Fatal("newer misorders ids")
	}
}
