package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"ore-autominer/internal/events"
)

func newTailCmd(opts *rootOptions) *cobra.Command {
	var (
		lastEventID string
		raw         bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream the wallet's events over WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallet, err := opts.requireWallet()
			if err != nil {
				return err
			}
			u, err := url.Parse(opts.wsURL)
			if err != nil {
				return err
			}
			q := u.Query()
			q.Set("wallet", wallet)
			u.RawQuery = q.Encode()
			header := http.Header{}
			if lastEventID != "" {
				header.Set("Last-Event-ID", lastEventID)
			}

			dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
			conn, _, err := dialer.DialContext(cmd.Context(), u.String(), header)
			if err != nil {
				return fmt.Errorf("dial %s: %w", u.Redacted(), err)
			}
			defer conn.Close()
			go func() {
				<-cmd.Context().Done()
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
			}()
			return tail(conn, cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&lastEventID, "last-event-id", "", "replay events after this id")
	cmd.Flags().BoolVar(&raw, "raw", false, "print frames as received")
	return cmd
}

type frameReader interface {
	ReadMessage() (int, []byte, error)
}

func tail(conn frameReader, w io.Writer, raw bool) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if raw {
			fmt.Fprintln(w, string(msg))
			continue
		}
		fmt.Fprintln(w, formatFrame(msg))
	}
}

// formatFrame renders one server frame as a single line.
func formatFrame(msg []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return string(msg)
	}
	switch head.Type {
	case "hello", "error", "pong":
		return "# " + string(msg)
	}
	var ev struct {
		events.Event
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		return string(msg)
	}
	ts := time.UnixMilli(ev.ServerTS).UTC().Format(time.RFC3339)
	return fmt.Sprintf("%s %-6s %-16s %s", ts, ev.EventID, ev.Type, string(ev.Data))
}
