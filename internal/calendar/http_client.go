package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to the calendar gateway over its JSON API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) BusyIntervals(ctx context.Context, calendarID string, dayStart, dayEnd time.Time) ([]Interval, error) {
	q := url.Values{}
	q.Set("from", dayStart.Format(time.RFC3339))
	q.Set("to", dayEnd.Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/calendars/%s/busy?%s", c.baseURL, url.PathEscape(calendarID), q.Encode())

	var out struct {
		Intervals []Interval `json:"intervals"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Intervals, nil
}

func (c *HTTPClient) CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(calendarID))

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, ev, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuthRequired
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calendar provider rejected request: status %d: %s", resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
