// Package boptest is the HTTP client for the building-performance
// simulation server.
package boptest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"boptest2bacnet/internal/core/domain"
	"boptest2bacnet/internal/core/port"

	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) SelectScenario(ctx context.Context, name string) (string, error) {
	var out struct {
		TestID string `json:"testid"`
	}
	url := fmt.Sprintf("%s/testcases/%s/select", c.baseURL, name)
	if err := c.do(ctx, http.MethodPost, url, nil, &out); err != nil {
		return "", fmt.Errorf("select scenario %q: %w", name, err)
	}
	c.logger.Info("scenario selected", zap.String("scenario", name), zap.String("testid", out.TestID))
	return out.TestID, nil
}

func (c *Client) Initialize(ctx context.Context, startTimeUnix int64, warmupPeriodSeconds float64) error {
	body := map[string]any{
		"start_time":    startTimeUnix,
		"warmup_period": warmupPeriodSeconds,
	}
	if err := c.do(ctx, http.MethodPut, c.baseURL+"/initialize", body, nil); err != nil {
		return fmt.Errorf("initialize simulation: %w", err)
	}
	return nil
}

func (c *Client) SetStepSize(ctx context.Context, seconds float64) error {
	body := map[string]any{"step": seconds}
	if err := c.do(ctx, http.MethodPut, c.baseURL+"/step", body, nil); err != nil {
		return fmt.Errorf("set step size: %w", err)
	}
	return nil
}

func (c *Client) Advance(ctx context.Context, inputs map[string]float64) (map[string]any, error) {
	if inputs == nil {
		inputs = map[string]float64{}
	}
	var out struct {
		Payload map[string]any `json:"payload"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/advance", inputs, &out); err != nil {
		return nil, fmt.Errorf("advance: %w", err)
	}
	if out.Payload == nil {
		c.logger.Warn("advance returned an empty payload")
		return map[string]any{}, nil
	}
	return out.Payload, nil
}

func (c *Client) KPIs(ctx context.Context) (map[string]any, error) {
	var out struct {
		Payload map[string]any `json:"payload"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/kpi", nil, &out); err != nil {
		return nil, fmt.Errorf("kpi: %w", err)
	}
	return out.Payload, nil
}

// Metadata fetches the combined input and measurement metadata. Used only
// at startup to warn about configured keys the scenario does not expose.
func (c *Client) Metadata(ctx context.Context) (map[string]any, error) {
	combined := map[string]any{}
	for _, path := range []string{"/inputs", "/measurements"} {
		var out struct {
			Payload map[string]any `json:"payload"`
		}
		if err := c.do(ctx, http.MethodGet, c.baseURL+path, nil, &out); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", path, err)
		}
		for k, v := range out.Payload {
			combined[k] = v
		}
	}
	return combined, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrTransport, method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrTransport, method, url, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrUnexpectedValue, url, err)
	}
	return nil
}

var _ port.SimulatorClient = (*Client)(nil)
