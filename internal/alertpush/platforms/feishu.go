package platforms

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type FeishuAdapter struct {
	client *HTTPClient
	now    func() time.Time
}

func NewFeishuAdapter(client *HTTPClient) *FeishuAdapter {
	return &FeishuAdapter{client: client, now: time.Now}
}

func (a *FeishuAdapter) Name() string {
	return "feishu"
}

type feishuResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (a *FeishuAdapter) Send(ctx context.Context, endpoint, secret string, msg Message) error {
	elements := []map[string]string{{
		"tag":  "markdown",
		"text": fallback(msg.Description, msg.Content),
	}}
	for _, f := range msg.Fields {
		elements = append(elements, map[string]string{
			"tag":  "markdown",
			"text": "**" + f.Name + "**: " + f.Value,
		})
	}
	payload := map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title": map[string]any{
					"tag":     "plain_text",
					"content": msg.Title,
				},
				"template": template(msg.Color),
			},
			"elements": elements,
		},
	}
	if secret = strings.TrimSpace(secret); secret != "" {
		ts := a.now().Unix()
		payload["timestamp"] = strconv.FormatInt(ts, 10)
		payload["sign"] = Sign(ts, secret)
	}
	body, err := a.client.PostJSON(ctx, endpoint, payload)
	if err != nil {
		return err
	}
	// The bot endpoint answers 200 with a non-zero code on rejection.
	var resp feishuResponse
	if json.Unmarshal(body, &resp) == nil && resp.Code != 0 {
		return fmt.Errorf("feishu rejected message: %d %s", resp.Code, resp.Msg)
	}
	return nil
}

// Sign is the custom bot signature: base64(HMAC-SHA256 keyed by
// "timestamp\nsecret" over an empty message).
func Sign(ts int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(strconv.FormatInt(ts, 10)+"\n"+secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func template(color int) string {
	switch color {
	case 0xED4245:
		return "red"
	case 0x3BA55D, 0x57F287:
		return "green"
	case 0xFEE75C:
		return "yellow"
	default:
		return "blue"
	}
}

func fallback(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
