// internal/delivery/fcm_client.go
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/overlaypush/broadcast-backend/internal/model"
)

// FCMClient posts one FCM v1 message per recipient token. The notification
// config rides in the android data envelope as two JSON strings: the
// rendered banner fields and the full config passthrough.
type FCMClient struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewFCMClient(endpoint string) *FCMClient {
	return &FCMClient{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type fcmMessage struct {
	Message struct {
		Token   string `json:"token"`
		Android struct {
			Data map[string]string `json:"data"`
		} `json:"android"`
	} `json:"message"`
}

func (c *FCMClient) Send(ctx context.Context, token string, cfg model.NotificationConfig, credential string) error {
	banner, err := json.Marshal(map[string]string{
		"title":      cfg.Title,
		"body":       cfg.Body,
		"icon":       cfg.ImageURL,
		"tag":        "MESSAGE",
		"sound":      "default",
		"channel_id": "General",
	})
	if err != nil {
		return err
	}
	passthrough, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	var msg fcmMessage
	msg.Message.Token = token
	msg.Message.Android.Data = map[string]string{
		"show_notification": "true",
		"notification_json": string(banner),
		"payload_json":      string(passthrough),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Keep only the head of the body; FCM error payloads are small but
		// a misconfigured endpoint could return anything.
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Client = (*FCMClient)(nil)
