// Package subtitles searches an external catalogue for subtitle files and
// caches the results.
package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamcast/internal/domain"
)

const providerTimeout = 10 * time.Second

// Provider is an HTTP client for the subtitle catalogue API.
type Provider struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewProvider(baseURL, apiKey string) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   providerTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type subtitleFile struct {
	Language string `json:"language"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

type searchResponse struct {
	Subtitles []subtitleFile `json:"subtitles"`
}

func (p *Provider) Search(ctx context.Context, contentID, language string) ([]domain.SubtitleCandidate, error) {
	q := url.Values{}
	q.Set("content_id", contentID)
	q.Set("language", language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/subtitles?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		req.Header.Set("Api-Key", p.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subtitle search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subtitle search: unexpected status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("subtitle search: decode: %w", err)
	}

	out := make([]domain.SubtitleCandidate, 0, len(body.Subtitles))
	for _, f := range body.Subtitles {
		if f.URL == "" {
			continue
		}
		out = append(out, domain.SubtitleCandidate{
			Language: f.Language,
			Name:     f.Name,
			URL:      f.URL,
		})
	}
	return out, nil
}
