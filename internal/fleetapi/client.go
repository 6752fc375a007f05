package fleetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/pkg/logger"
)

// ErrNotFound is returned when the backend has no record for the aircraft
var ErrNotFound = errors.New("not found")

// Client talks to the JetStream HTTP API
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logger.Logger
}

// NewClient creates a client for the API rooted at baseURL (for example
// "http://localhost:8080/api/v1"). Every request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, logger *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("fleet-api"),
	}
}

// GetAircraft fetches one aircraft record
func (c *Client) GetAircraft(ctx context.Context, id string) (*fleet.Aircraft, error) {
	var aircraft fleet.Aircraft
	if err := c.do(ctx, http.MethodGet, c.aircraftURL(id), nil, &aircraft); err != nil {
		return nil, fmt.Errorf("get aircraft %s: %w", id, err)
	}
	return &aircraft, nil
}

// GetPosition fetches the last known position of an aircraft
func (c *Client) GetPosition(ctx context.Context, id string) (*fleet.Position, error) {
	var position fleet.Position
	if err := c.do(ctx, http.MethodGet, c.aircraftURL(id)+"/position", nil, &position); err != nil {
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}
	return &position, nil
}

// ListAircraft fetches every aircraft record
func (c *Client) ListAircraft(ctx context.Context) ([]fleet.Aircraft, error) {
	var resp struct {
		Aircraft []fleet.Aircraft `json:"aircraft"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/aircraft", nil, &resp); err != nil {
		return nil, fmt.Errorf("list aircraft: %w", err)
	}
	return resp.Aircraft, nil
}

// UpdateStatus changes an aircraft's status; the server re-broadcasts it
func (c *Client) UpdateStatus(ctx context.Context, id string, status fleet.Status) (*fleet.Aircraft, error) {
	body := map[string]string{"status": string(status)}
	var aircraft fleet.Aircraft
	if err := c.do(ctx, http.MethodPut, c.aircraftURL(id)+"/status", body, &aircraft); err != nil {
		return nil, fmt.Errorf("update status %s: %w", id, err)
	}
	return &aircraft, nil
}

// UpsertAircraft creates or replaces an aircraft record
func (c *Client) UpsertAircraft(ctx context.Context, aircraft *fleet.Aircraft) (*fleet.Aircraft, error) {
	var stored fleet.Aircraft
	if err := c.do(ctx, http.MethodPut, c.aircraftURL(aircraft.ID), aircraft, &stored); err != nil {
		return nil, fmt.Errorf("upsert aircraft %s: %w", aircraft.ID, err)
	}
	return &stored, nil
}

// ReportPosition submits a position sample; the server re-broadcasts it
func (c *Client) ReportPosition(ctx context.Context, position *fleet.Position) error {
	if err := c.do(ctx, http.MethodPost, c.aircraftURL(position.AircraftID)+"/position", position, nil); err != nil {
		return fmt.Errorf("report position %s: %w", position.AircraftID, err)
	}
	return nil
}

func (c *Client) aircraftURL(id string) string {
	return c.baseURL + "/aircraft/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, target string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Sending request",
		logger.String("method", method),
		logger.String("url", target))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(preview)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}
