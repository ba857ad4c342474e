// Package bacnet is the HTTPS client for a BACnet REST controller.
//
// One client exists per device address. The session cookie is shared
// between the registry's startup discovery and the loop's batch calls and
// is therefore guarded by a per-connection mutex.
package bacnet

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"boptest2bacnet/internal/core/domain"
	"boptest2bacnet/internal/core/port"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	objectsPath = "/api/rest/v2/services/bacnet/local/objects"
	batchPath   = "/api/rest/v2/batch"
	timePath    = "/api/rest/v2/services/platform/time"

	discoverSelect = "?$select=" +
		"analog-values($select=*($select=object-name,object-identifier))," +
		"binary-values($select=*($select=object-name,object-identifier))," +
		"analog-inputs($select=*($select=object-name,object-identifier))," +
		"binary-inputs($select=*($select=object-name,object-identifier))," +
		"analog-outputs($select=*($select=object-name,object-identifier))," +
		"binary-outputs($select=*($select=object-name,object-identifier))"
)

type ClientConfig struct {
	Address            string
	Username           string
	Password           string
	Timeout            time.Duration
	MaxWriteAttempts   uint64
	BackoffBase        time.Duration
	BreakerMaxFailures uint32
	BreakerOpenFor     time.Duration
	InsecureSkipVerify bool
}

type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger

	mu      sync.Mutex
	cookie  string
	catalog map[string]domain.Endpoint
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.MaxWriteAttempts == 0 {
		cfg.MaxWriteAttempts = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenFor == 0 {
		cfg.BreakerOpenFor = 10 * time.Second
	}
	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
			},
		},
		logger: logger.With(zap.String("device", cfg.Address)),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "device-read:" + cfg.Address,
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
	})
	return c
}

func (c *Client) Address() string {
	return c.cfg.Address
}

// DiscoverEndpoints fetches every addressable object in a single $select
// call and caches the catalog for InstanceNumber.
func (c *Client) DiscoverEndpoints(ctx context.Context) (map[string]domain.Endpoint, error) {
	var data map[string]map[string]struct {
		ObjectName       string `json:"object-name"`
		ObjectIdentifier struct {
			ObjectType     string `json:"object-type"`
			ObjectInstance int    `json:"object-instance"`
		} `json:"object-identifier"`
	}
	if err := c.doJSON(ctx, http.MethodGet, objectsPath+discoverSelect, nil, &data); err != nil {
		return nil, err
	}

	catalog := map[string]domain.Endpoint{}
	for _, instances := range data {
		for _, obj := range instances {
			if obj.ObjectName == "" {
				continue
			}
			objectType, err := domain.ParseObjectType(obj.ObjectIdentifier.ObjectType)
			if err != nil {
				c.logger.Warn("skipping endpoint with unknown object type",
					zap.String("object", obj.ObjectName),
					zap.String("type", obj.ObjectIdentifier.ObjectType))
				continue
			}
			catalog[obj.ObjectName] = domain.Endpoint{
				ObjectName: obj.ObjectName,
				ObjectType: objectType,
				Instance:   obj.ObjectIdentifier.ObjectInstance,
			}
		}
	}

	c.mu.Lock()
	c.catalog = catalog
	c.mu.Unlock()

	c.logger.Info("fetched device endpoints", zap.Int("count", len(catalog)))
	return catalog, nil
}

func (c *Client) InstanceNumber(objectName string, objectType domain.ObjectType) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep, ok := c.catalog[objectName]
	if !ok {
		return 0, false
	}
	if ep.ObjectType != objectType {
		c.logger.Error("object type mismatch",
			zap.String("object", objectName),
			zap.String("expected", objectType.String()),
			zap.String("found", ep.ObjectType.String()))
		return 0, false
	}
	return ep.Instance, true
}

// PropertyValue reads one property. The read path is guarded by a circuit
// breaker; an open breaker behaves like a read failure and the caller
// fail-softs.
func (c *Client) PropertyValue(ctx context.Context, objectType domain.ObjectType, instance int, property string) (any, error) {
	path := fmt.Sprintf("%s/%s/%d/%s", objectsPath, objectType.KebabPlural(), instance, property)
	value, err := c.breaker.Execute(func() (any, error) {
		var out map[string]any
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		if v, ok := out["$value"]; ok {
			return v, nil
		}
		return out["value"], nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s of %s/%d: %w", property, objectType.KebabPlural(), instance, err)
	}
	return value, nil
}

// SubmitBatch posts the combined batch request, retrying transient
// failures with exponential backoff up to the configured attempt count.
func (c *Client) SubmitBatch(ctx context.Context, requests []domain.BatchRequest) error {
	if len(requests) == 0 {
		return nil
	}
	body := map[string]any{"requests": requests}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BackoffBase

	attempt := 0
	operation := func() error {
		attempt++
		err := c.doJSON(ctx, http.MethodPost, batchPath, body, nil)
		if err != nil {
			c.logger.Warn("batch request failed",
				zap.Int("attempt", attempt),
				zap.Int("requests", len(requests)),
				zap.Error(err))
		}
		return err
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxWriteAttempts-1), ctx))
	if err != nil {
		return fmt.Errorf("batch write after %d attempts: %w", attempt, err)
	}
	c.logger.Debug("batch request succeeded", zap.Int("requests", len(requests)))
	return nil
}

func (c *Client) DisableNTP(ctx context.Context) error {
	body := map[string]any{"enabled": false}
	if err := c.doJSON(ctx, http.MethodPost, timePath+"/ntp", body, nil); err != nil {
		return fmt.Errorf("disable ntp: %w", err)
	}
	return nil
}

func (c *Client) SetTimeAndZone(ctx context.Context, unixTime int64, timezone string) error {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	body := map[string]any{
		"time-zone": timezone,
		"date-time": time.Unix(unixTime, 0).In(loc).Format("2006-01-02T15:04:05"),
	}
	if err := c.doJSON(ctx, http.MethodPost, timePath, body, nil); err != nil {
		return fmt.Errorf("set time and timezone: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	url := "https://" + c.cfg.Address + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	c.storeCookie(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			// fall back to basic auth on the next request
			c.dropCookie()
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrTransport, method, path, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrUnexpectedValue, path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
		return
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
}

func (c *Client) storeCookie(resp *http.Response) {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}
	// replay only name=value pairs, never the Set-Cookie attributes
	pairs := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	c.mu.Lock()
	c.cookie = strings.Join(pairs, "; ")
	c.mu.Unlock()
}

func (c *Client) dropCookie() {
	c.mu.Lock()
	c.cookie = ""
	c.mu.Unlock()
}

var _ port.DeviceClient = (*Client)(nil)
