package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDiscordAdapterPayload(t *testing.T) {
	var got map[string]any
	client := newTestHTTPClient(func(r *http.Request) (*http.Response, error) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return &http.Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(bytes.NewReader(nil)), Header: make(http.Header)}, nil
	})

	err := NewDiscordAdapter(client).Send(context.Background(), "https://discord.example/webhook", "", Message{
		Title:       "Reward",
		Content:     "alert",
		Description: "desc",
		Color:       12345,
		Timestamp:   "2025-01-01T00:00:00Z",
		Footer:      "footer-text",
		Fields:      []Field{{Name: "Wallet", Value: "abc", Inline: true}},
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got["content"] != "alert" {
		t.Fatalf("unexpected content: %v", got["content"])
	}
	embeds, ok := got["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("unexpected embeds: %#v", got["embeds"])
	}
	embed := embeds[0].(map[string]any)
	if embed["color"] != float64(12345) || embed["timestamp"] != "2025-01-01T00:00:00Z" {
		t.Fatalf("unexpected embed: %v", embed)
	}
	footer, ok := embed["footer"].(map[string]any)
	if !ok || footer["text"] != "footer-text" {
		t.Fatalf("unexpected footer: %v", embed["footer"])
	}
}

func TestDiscordAdapterNon2xxIsError(t *testing.T) {
	client := newTestHTTPClient(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusTooManyRequests, Body: io.NopCloser(strings.NewReader("slow down")), Header: make(http.Header)}, nil
	})
	if err := NewDiscordAdapter(client).Send(context.Background(), "https://discord.example/webhook", "", Message{Title: "t"}); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestFeishuAdapterSignsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
	}))
	defer srv.Close()

	adapter := NewFeishuAdapter(NewHTTPClient(time.Second))
	adapter.now = func() time.Time { return time.Unix(1700000000, 0) }
	err := adapter.Send(context.Background(), srv.URL, "s3cret", Message{
		Title:       "t",
		Description: "summary",
		Color:       0xED4245,
		Fields:      []Field{{Name: "status", Value: "failed"}},
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got["msg_type"] != "interactive" {
		t.Fatalf("unexpected msg_type: %v", got["msg_type"])
	}
	if got["timestamp"] != "1700000000" || got["sign"] != Sign(1700000000, "s3cret") {
		t.Fatalf("unexpected signature fields: %v %v", got["timestamp"], got["sign"])
	}
	card := got["card"].(map[string]any)
	header := card["header"].(map[string]any)
	if header["template"] != "red" {
		t.Fatalf("unexpected template: %v", header["template"])
	}
}

func TestFeishuAdapterRejectedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":19021,"msg":"sign match fail"}`))
	}))
	defer srv.Close()

	err := NewFeishuAdapter(NewHTTPClient(time.Second)).Send(context.Background(), srv.URL, "", Message{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "19021") {
		t.Fatalf("expected rejection error, got %v", err)
	}
}

func TestSignIsStable(t *testing.T) {
	if Sign(1, "a") != Sign(1, "a") || Sign(1, "a") == Sign(2, "a") {
		t.Fatal("signature should depend on timestamp only through its input")
	}
}
