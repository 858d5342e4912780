// Package auth reports realm liveness to the auth server so the realm list
// can show it online.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
)

const (
	pathHealthcheck = "/healthcheck"
	pathHeartbeat   = "/api/v1/realms/heartbeat"
	requestTimeout  = 10 * time.Second
)

// Heartbeat is the realm status reported to the auth server.
type Heartbeat struct {
	Realm      string    `json:"realm"`
	Clients    int       `json:"clients"`
	Population int       `json:"population"`
	Time       time.Time `json:"time"`
}

// StatusError is an auth server reply with an unexpected status code.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("auth server %s returned status %d", e.Path, e.Code)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// call performs one request and accepts any of the listed status codes.
func (c *Client) call(ctx context.Context, method, path string, payload any, ok ...int) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if !slices.Contains(ok, resp.StatusCode) {
		return &StatusError{Path: path, Code: resp.StatusCode}
	}
	return nil
}

// Healthcheck checks if the auth server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, pathHealthcheck, nil, http.StatusOK)
}

// Heartbeat posts one realm status report.
func (c *Client) Heartbeat(ctx context.Context, hb Heartbeat) error {
	return c.call(ctx, http.MethodPost, pathHeartbeat, hb, http.StatusOK, http.StatusNoContent)
}

// Run sends a heartbeat every interval until ctx is done. Only the first
// failure of a streak and the recovery are logged.
func (c *Client) Run(ctx context.Context, interval time.Duration, report func() Heartbeat, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var streak int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		hb := report()
		if hb.Time.IsZero() {
			hb.Time = time.Now().UTC()
		}
		err := c.Heartbeat(ctx, hb)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			if streak == 0 {
				logger.Warn("Auth heartbeat failed", "error", err)
			}
			streak++
		case streak > 0:
			logger.Info("Auth heartbeat recovered", "missed", streak)
			streak = 0
		}
	}
}
