// Package remote is the transport client for CrewAI-style asynchronous
// job deployments: kick off work, then poll a status endpoint until the
// job reaches a terminal state. The client performs single HTTP calls
// only; retry policy lives in the invoker.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBodySize limits status/kickoff response bodies to 4MB.
const maxResponseBodySize = 4 << 20

// Client performs kickoff and status calls against a CrewAI deployment.
type Client struct {
	http *http.Client
}

// NewClient creates a client with standard transport settings.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Snapshot is one decoded status response. The remote contract varies
// across deployments: the terminal payload may arrive in resultJson, in
// result (sometimes as a JSON-encoded string), or only as the body
// itself, so the raw body is kept alongside the typed fields.
type Snapshot struct {
	State      string // PENDING, SUCCESS, FAILED, COMPLETED, ...
	Message    string // remote "status" field, human-readable
	ResultJSON any
	Result     any
	Raw        map[string]any
}

// Submit kicks off a job and returns the handle assigned by the remote
// service.
func (c *Client) Submit(ctx context.Context, baseURL, token string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal kickoff payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/kickoff", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create kickoff request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return "", err
	}

	var kickoff struct {
		KickoffID string `json:"kickoff_id"`
	}
	if err := json.Unmarshal(data, &kickoff); err != nil {
		return "", fmt.Errorf("decode kickoff response: %w", err)
	}
	if kickoff.KickoffID == "" {
		return "", fmt.Errorf("kickoff response missing kickoff_id")
	}
	return kickoff.KickoffID, nil
}

// FetchStatus retrieves the current status snapshot for a handle.
func (c *Client) FetchStatus(ctx context.Context, baseURL, token, handle string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/status/"+handle, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	snap := &Snapshot{Raw: raw}
	if state, ok := raw["state"].(string); ok {
		snap.State = state
	}
	if msg, ok := raw["status"].(string); ok {
		snap.Message = msg
	}
	snap.ResultJSON = raw["result_json"]
	snap.Result = raw["result"]
	return snap, nil
}

// do executes the request and classifies failures into the typed errors
// the invoker's retry policy switches on.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Cause: err}
		}
		return nil, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}
	return data, nil
}
