package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"ore-autominer/internal/config"
)

type recorded struct {
	method string
	path   string
	query  string
	body   map[string]any
	admin  string
}

func newAPIServer(t *testing.T, status int, resp string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.admin = r.Header.Get("X-Admin-Key")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func execute(t *testing.T, cfg config.CtlConfig, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionStartPostsDecimalStrings(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusOK, `{"success":true,"data":{"created":true}}`)
	out, err := execute(t, config.CtlConfig{APIURL: srv.URL, Wallet: "w1"},
		"session", "start", "--deploy", "0.1", "--budget", "1", "--blocks", "3")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rec.method != http.MethodPost || rec.path != "/api/session/start" {
		t.Fatalf("unexpected request %s %s", rec.method, rec.path)
	}
	if rec.body["wallet"] != "w1" || rec.body["deploy_amount"] != "0.1" || rec.body["num_blocks"] != float64(3) || rec.body["strategy"] != "best_ev" {
		t.Fatalf("unexpected body %v", rec.body)
	}
	if !strings.Contains(out, `"created": true`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestClaimOmitsAmountForClaimAll(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusAccepted, `{"success":true,"data":{}}`)
	if _, err := execute(t, config.CtlConfig{APIURL: srv.URL}, "claim", "ore", "-w", "w2"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rec.path != "/api/claim/ore" || rec.body["wallet"] != "w2" {
		t.Fatalf("unexpected request %s %v", rec.path, rec.body)
	}
	if _, ok := rec.body["amount"]; ok {
		t.Fatalf("amount should be omitted: %v", rec.body)
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	srv, _ := newAPIServer(t, http.StatusConflict, `{"success":false,"error":"duplicate_claim_in_flight"}`)
	_, err := execute(t, config.CtlConfig{APIURL: srv.URL, Wallet: "w"}, "claim", "sol", "--amount", "0.5")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "duplicate_claim_in_flight" || apiErr.Status != http.StatusConflict {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestWalletExportSendsAdminKey(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusOK, `{"success":true,"data":{"private_key":"k"}}`)
	if _, err := execute(t, config.CtlConfig{APIURL: srv.URL, AdminKey: "secret"}, "wallet", "export", "--wallet", "w"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rec.admin != "secret" || rec.body["wallet_address"] != "w" {
		t.Fatalf("unexpected request admin=%q body=%v", rec.admin, rec.body)
	}
}

func TestPagedCommandSendsQuery(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusOK, `{"success":true,"data":{"items":[]}}`)
	if _, err := execute(t, config.CtlConfig{APIURL: srv.URL, Wallet: "w"}, "session", "transactions", "--limit", "5"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rec.path != "/api/transactions" || rec.query != "limit=5&offset=0&wallet=w" {
		t.Fatalf("unexpected request %s?%s", rec.path, rec.query)
	}
}

func TestWalletRequired(t *testing.T) {
	if _, err := execute(t, config.CtlConfig{APIURL: "http://127.0.0.1:0"}, "balances"); err == nil {
		t.Fatal("expected missing wallet error")
	}
}

func TestTailPrintsEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotWallet, gotLast string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotWallet = r.URL.Query().Get("wallet")
		gotLast = r.Header.Get("Last-Event-ID")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","protocol_version":1,"wallet":"w","replayed":0}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"version":1,"type":"tx:failed","wallet":"w","event_id":"7","server_ts":0,"data":{"signature":"s","reason":"x"}}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	out, err := execute(t, config.CtlConfig{WSURL: wsURL, Wallet: "w"}, "tail", "--last-event-id", "6")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if gotWallet != "w" || gotLast != "6" {
		t.Fatalf("unexpected handshake wallet=%q last=%q", gotWallet, gotLast)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "# ") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(lines[1], "tx:failed") || !strings.Contains(lines[1], `"reason":"x"`) {
		t.Fatalf("unexpected event line %q", lines[1])
	}
}
