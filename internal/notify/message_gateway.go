package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GatewaySender posts text messages to the clinic's messaging gateway
// (a WhatsApp bridge in production).
type GatewaySender struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGatewaySender returns nil when no gateway is configured.
func NewGatewaySender(baseURL, token string, timeout time.Duration) *GatewaySender {
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GatewaySender{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *GatewaySender) SendMessage(ctx context.Context, phone, text string) error {
	payload, err := json.Marshal(map[string]string{
		"to":   phone,
		"text": text,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, data)
	}
	return nil
}
