// Package dispatch ships the HTTP implementation of the engine's outbound
// messaging collaborator. The wire contract is a single JSON POST; the
// collaborator answers with per-unit sent/failed counts.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mehmetylmz/keygate"
)

const defaultTimeout = 30 * time.Second

// ErrEndpointNotConfigured is returned when the endpoint source resolves
// to an empty URL.
var ErrEndpointNotConfigured = errors.New("dispatch endpoint not configured")

// EndpointSource resolves the collaborator URL per call, so the
// settings-backed endpoint can change without rebuilding the client.
type EndpointSource interface {
	Endpoint(ctx context.Context) (string, error)
}

// StaticEndpoint is an EndpointSource with a fixed URL.
type StaticEndpoint string

func (s StaticEndpoint) Endpoint(context.Context) (string, error) {
	return string(s), nil
}

// SettingsEndpoint resolves the URL from the keygate settings store.
type SettingsEndpoint struct {
	Settings keygate.SettingsStore
}

func (s SettingsEndpoint) Endpoint(ctx context.Context) (string, error) {
	return s.Settings.Get(ctx, keygate.SettingDispatchEndpoint)
}

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client POSTs dispatch requests to the resolved endpoint. It implements
// [keygate.Dispatcher].
type Client struct {
	source EndpointSource
	http   *http.Client
}

// NewClient creates a Client bound to the given endpoint source.
func NewClient(source EndpointSource, cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{source: source, http: httpClient}
}

type dispatchPayload struct {
	Phone string `json:"phone"`
	Count int    `json:"count"`
	Mode  string `json:"mode"`
}

type dispatchReply struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatch forwards one request. Errors are returned verbatim; converting
// them into a degraded all-failed result is the engine's job.
func (c *Client) Dispatch(ctx context.Context, req keygate.DispatchRequest) (keygate.DispatchResult, error) {
	endpoint, err := c.source.Endpoint(ctx)
	if err != nil {
		return keygate.DispatchResult{}, err
	}
	if endpoint == "" {
		return keygate.DispatchResult{}, ErrEndpointNotConfigured
	}

	mode := "normal"
	if req.Turbo {
		mode = "turbo"
	}
	body, err := json.Marshal(dispatchPayload{
		Phone: req.Phone,
		Count: req.Quantity,
		Mode:  mode,
	})
	if err != nil {
		return keygate.DispatchResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return keygate.DispatchResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return keygate.DispatchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return keygate.DispatchResult{}, fmt.Errorf("dispatch endpoint returned %d", resp.StatusCode)
	}

	var reply dispatchReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return keygate.DispatchResult{}, err
	}
	return keygate.DispatchResult{Sent: reply.Sent, Failed: reply.Failed}, nil
}
