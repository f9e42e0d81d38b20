package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/pkg/errors"
	"github.com/netforge/protoperf/pkg/types"
)

// Client talks to a remote control service. The orchestrator uses it; it
// maps transport failures to FatalError because an unreachable control plane
// means cleanup can no longer be promised.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ControlPlane is the surface the orchestrator needs. Satisfied by *Client
// and by test fakes.
type ControlPlane interface {
	SetProfile(ctx context.Context, profile types.NetworkProfile) error
	Clear(ctx context.Context) error
	Status(ctx context.Context) (types.NetworkProfile, error)
}

var _ ControlPlane = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.NewLogger("control-client"),
	}
}

func (c *Client) SetProfile(ctx context.Context, profile types.NetworkProfile) error {
	body := ConfigRequest{
		Delay:     profile.DelayMs,
		Loss:      profile.LossPercent,
		Bandwidth: profile.BandwidthMbps,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.ErrConfiguration("marshal network config", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/network/config", bytes.NewReader(payload))
	if err != nil {
		return errors.ErrFatal("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.ErrFatal("control service unreachable", err)
	}
	defer c.drainAndClose(resp)

	if resp.StatusCode == http.StatusBadRequest {
		return errors.ErrConfiguration("control service rejected profile", c.responseError(resp))
	}
	if resp.StatusCode != http.StatusOK {
		return errors.ErrControlPlane("set network config", c.responseError(resp))
	}
	return nil
}

func (c *Client) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/network/clear", nil)
	if err != nil {
		return errors.ErrFatal("create request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.ErrFatal("control service unreachable", err)
	}
	defer c.drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return errors.ErrControlPlane("clear network config", c.responseError(resp))
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (types.NetworkProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/network/status", nil)
	if err != nil {
		return types.NetworkProfile{}, errors.ErrFatal("create request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.NetworkProfile{}, errors.ErrFatal("control service unreachable", err)
	}
	defer c.drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return types.NetworkProfile{}, errors.ErrControlPlane("get network status", c.responseError(resp))
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return types.NetworkProfile{}, errors.ErrControlPlane("decode network status", err)
	}
	return types.NetworkProfile{
		DelayMs:       status.Delay,
		LossPercent:   status.Loss,
		BandwidthMbps: status.Bandwidth,
	}, nil
}

// Health probes the liveness endpoint, used once before a run starts.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.ErrFatal("create request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.ErrFatal("control service unreachable", err)
	}
	defer c.drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return errors.ErrFatal(fmt.Sprintf("control service unhealthy: status %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) responseError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var parsed map[string]string
	if json.Unmarshal(body, &parsed) == nil && parsed["error"] != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, parsed["error"])
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (c *Client) drainAndClose(resp *http.Response) {
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)); err != nil {
		c.logger.Debug("drain response body", logging.F("error", err))
	}
	resp.Body.Close()
}
