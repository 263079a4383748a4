// Package remote implements the poll-based transport over the remote
// streaming backend's HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamcast/internal/domain"
)

const defaultHTTPTimeout = 10 * time.Second

// Client is a thin JSON client for the remote backend.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   defaultHTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type startRequest struct {
	Source    string `json:"source"`
	Quality   string `json:"quality,omitempty"`
	FileIndex int    `json:"fileIndex"`
}

type startResponse struct {
	SessionID string `json:"sessionId"`
}

type statusResponse struct {
	StreamID      string  `json:"streamId"`
	Status        string  `json:"status"`
	Progress      float64 `json:"progress"`
	Eta           float64 `json:"eta"`
	Message       string  `json:"message"`
	StreamURL     string  `json:"streamUrl"`
	Duration      float64 `json:"duration"`
	DownloadSpeed int64   `json:"downloadSpeed"`
	Peers         int     `json:"peers"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// StartStream creates a session on the backend and returns its id. The
// backend answers immediately; it does not wait for a playable asset.
func (c *Client) StartStream(ctx context.Context, source string, opts domain.StartOptions) (string, error) {
	body, err := json.Marshal(startRequest{Source: source, Quality: opts.Quality, FileIndex: opts.FileIndex})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stream/start", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStartFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
	case http.StatusBadRequest:
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidSource, decodeErrorMessage(resp))
	default:
		return "", fmt.Errorf("%w: backend answered %d", domain.ErrStartFailed, resp.StatusCode)
	}

	var out startResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStartFailed, err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("%w: backend returned no session id", domain.ErrStartFailed)
	}
	return out.SessionID, nil
}

// Status fetches the current snapshot for a session.
func (c *Client) Status(ctx context.Context, id string) (domain.StatusSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream/status/"+id, nil)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.StatusSnapshot{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	default:
		return domain.StatusSnapshot{}, fmt.Errorf("status request answered %d", resp.StatusCode)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.StatusSnapshot{}, err
	}
	return domain.StatusSnapshot{
		Phase:           domain.Phase(out.Status),
		Progress:        out.Progress,
		DownloadRate:    out.DownloadSpeed,
		Peers:           out.Peers,
		EtaSeconds:      out.Eta,
		Message:         out.Message,
		StreamURL:       out.StreamURL,
		DurationSeconds: out.Duration,
	}, nil
}

// StopStream deletes a session on the backend.
func (c *Client) StopStream(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/stream/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	default:
		return fmt.Errorf("stop request answered %d", resp.StatusCode)
	}
}

// Health probes the backend. A non-nil error means the remote transport is
// unavailable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health answered %d", domain.ErrTransportUnavailable, resp.StatusCode)
	}
	return nil
}

func decodeErrorMessage(resp *http.Response) string {
	var out errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Error.Message == "" {
		return resp.Status
	}
	return out.Error.Message
}
