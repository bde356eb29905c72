package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ore-autominer/internal/events"
)

const testWallet = "Wa11et1111111111111111111111111111111111111"

func dial(t *testing.T, srv *httptest.Server, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(msg, &out); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return out
}

func newTestServer(t *testing.T) (*events.Hub, *httptest.Server) {
	t.Helper()
	hub := events.NewHub(10)
	s := NewServer(hub, Config{})
	srv := httptest.NewServer(http.HandlerFunc(s.HandleWS))
	t.Cleanup(srv.Close)
	return hub, srv
}

func TestHandleWSRequiresWallet(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleWSStreamsLiveEvents(t *testing.T) {
	hub, srv := newTestServer(t)
	conn := dial(t, srv, "wallet="+testWallet, nil)

	hello := readFrame(t, conn)
	if hello["type"] != msgHello || hello["wallet"] != testWallet {
		t.Fatalf("unexpected hello %v", hello)
	}

	if _, err := hub.Publish(testWallet, events.TypeTxFailed, events.TxFailed{Signature: "sig", Reason: "bundle_rejected"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != string(events.TypeTxFailed) || frame["event_id"] != "1" {
		t.Fatalf("unexpected frame %v", frame)
	}
	data := frame["data"].(map[string]any)
	if data["reason"] != "bundle_rejected" {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestHandleWSReplaysAfterLastEventID(t *testing.T) {
	hub, srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		if _, err := hub.Publish(testWallet, events.TypeTxFailed, events.TxFailed{Signature: "sig", Reason: "x"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	header := http.Header{}
	header.Set("Last-Event-ID", "1")
	conn := dial(t, srv, "wallet="+testWallet, header)

	hello := readFrame(t, conn)
	if hello["replayed"].(float64) != 2 {
		t.Fatalf("expected 2 replayed, got %v", hello["replayed"])
	}
	for _, want := range []string{"2", "3"} {
		if got := readFrame(t, conn)["event_id"]; got != want {
			t.Fatalf("expected event %s, got %v", want, got)
		}
	}
}

func TestHandleWSAnswersPing(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv, "wallet="+testWallet, nil)
	readFrame(t, conn)

	if err := conn.WriteJSON(ClientMessage{Type: msgPing}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, conn)["type"]; got != msgPong {
		t.Fatalf("expected pong, got %v", got)
	}
}

func TestHandleWSDoesNotLeakOtherWallets(t *testing.T) {
	hub, srv := newTestServer(t)
	conn := dial(t, srv, "wallet="+testWallet, nil)
	readFrame(t, conn)

	_, _ = hub.Publish("other", events.TypeTxFailed, events.TxFailed{Signature: "a", Reason: "x"})
	_, _ = hub.Publish(testWallet, events.TypeTxFailed, events.TxFailed{Signature: "b", Reason: "x"})

	frame := readFrame(t, conn)
	if frame["wallet"] != testWallet {
		t.Fatalf("received another wallet's event: %v", frame)
	}
}
