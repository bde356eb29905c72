package events

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEventBufferOrderAndReplay(t *testing.T) {
	buf := NewEventBuffer(10)
	for i := 0; i < 3; i++ {
		buf.Append(Event{Version: Version, Type: TypeTxFailed, Data: TxFailed{Signature: "s"}})
	}
	replay := buf.ReplayAfter("1")
	if len(replay) != 2 {
		t.Fatalf("expected 2 replay events, got %d", len(replay))
	}
	if replay[0].EventID != "2" || replay[1].EventID != "3" {
		t.Fatalf("unexpected replay order: %+v", replay)
	}
	if got := len(buf.ReplayAfter("")); got != 3 {
		t.Fatalf("empty last id should replay all, got %d", got)
	}
	if got := len(buf.ReplayAfter("garbage")); got != 3 {
		t.Fatalf("bad last id should replay all, got %d", got)
	}
}

func TestEventBufferTrimsToCapacity(t *testing.T) {
	buf := NewEventBuffer(2)
	for i := 0; i < 5; i++ {
		buf.Append(Event{Version: Version, Type: TypePing, Data: Ping{}})
	}
	replay := buf.ReplayAfter("")
	if len(replay) != 2 || replay[0].EventID != "4" {
		t.Fatalf("unexpected buffer contents: %+v", replay)
	}
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	ev := Event{Version: Version, Type: TypeTxConfirmed, Data: TxFailed{Signature: "x"}}
	if err := ev.Validate(); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected malformed event, got %v", err)
	}
	ev = Event{Version: Version, Type: TypeTxConfirmed, Data: &TxConfirmed{Signature: "x"}}
	if err := ev.Validate(); err == nil {
		t.Fatalf("pointer payload must be rejected")
	}
	ev = Event{Version: 2, Type: TypePing, Data: Ping{}}
	if err := ev.Validate(); err == nil {
		t.Fatalf("wrong version must be rejected")
	}
}

func TestHubDropsMalformedEvents(t *testing.T) {
	hub := NewHub(10)
	if _, err := hub.Publish("w1", TypeSessionStarted, map[string]any{"session_id": "s"}); err == nil {
		t.Fatalf("expected error for untyped payload")
	}
	if got := hub.Buffer("w1").ReplayAfter(""); len(got) != 0 {
		t.Fatalf("malformed event was buffered: %+v", got)
	}
}

func TestHubFirehoseKeepsPerWalletOrder(t *testing.T) {
	hub := NewHub(10)
	all := hub.SubscribeAll(8)
	defer hub.UnsubscribeAll(all)
	mine := hub.Buffer("w1").Subscribe()

	if _, err := hub.Publish("w1", TypeTxSubmitted, TxSubmitted{Signature: "sig", TxType: "deploy", Amount: 5}); err != nil {
		t.Fatal(err)
	}
	reward := uint64(9)
	if _, err := hub.Publish("w1", TypeTxConfirmed, TxConfirmed{Signature: "sig", Reward: &reward}); err != nil {
		t.Fatal(err)
	}
	if _, err := hub.Publish("w2", TypeTxFailed, TxFailed{Signature: "other", Reason: "chain_error"}); err != nil {
		t.Fatal(err)
	}

	want := []Type{TypeTxSubmitted, TypeTxConfirmed, TypeTxFailed}
	for i, typ := range want {
		ev := <-all
		if ev.Type != typ {
			t.Fatalf("firehose[%d] = %s, want %s", i, ev.Type, typ)
		}
	}
	if ev := <-mine; ev.Type != TypeTxSubmitted || ev.Wallet != "w1" {
		t.Fatalf("unexpected wallet event: %+v", ev)
	}
	if ev := <-mine; ev.Type != TypeTxConfirmed {
		t.Fatalf("unexpected wallet event: %+v", ev)
	}
}

func TestDecodeRestoresTypedPayload(t *testing.T) {
	hub := NewHub(10)
	block := 4
	ev, err := hub.Publish("w1", TypeDecisionMade, DecisionMade{RoundID: 3, Action: "deploy", Block: &block, Blocks: []int{4}, EV: 12.5})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, ok := got.Data.(DecisionMade)
	if !ok {
		t.Fatalf("payload type = %T", got.Data)
	}
	if data.RoundID != 3 || *data.Block != 4 || got.EventID != ev.EventID {
		t.Fatalf("unexpected decoded event: %+v", got)
	}

	if _, err := Decode([]byte(`{"version":1,"type":"nope","data":{}}`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestWriteSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	ev := Event{Version: Version, Type: TypePing, EventID: "7", Data: Ping{TS: 1}}
	if err := WriteSSE(rec, ev); err != nil {
		t.Fatal(err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "id: 7\nevent: ping\ndata: {") || !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("unexpected frame: %q", body)
	}
}
