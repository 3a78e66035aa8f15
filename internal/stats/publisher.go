// ABOUTME: Publisher interface and HTTP implementation for external stats endpoints.
// ABOUTME: Publication is fire-and-forget; failures are surfaced for logging, never retried.

package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Publisher receives aggregated counts for external publication.
type Publisher interface {
	Publish(ctx context.Context, groupCount uint64, shardCount int) error
}

// HTTPPublisher posts cumulative counts to a bot-list style endpoint as
// JSON. It is the only Publisher implementation shipped with the gateway;
// tests use fakes.
type HTTPPublisher struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPPublisher creates a publisher for the given endpoint. The token,
// when non-empty, is sent in the Authorization header.
func NewHTTPPublisher(endpoint, token string) *HTTPPublisher {
	return &HTTPPublisher{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type publishBody struct {
	ServerCount uint64 `json:"server_count"`
	ShardCount  int    `json:"shard_count"`
}

// Publish posts the counts. A non-2xx status is an error; the caller logs
// it and moves on.
func (p *HTTPPublisher) Publish(ctx context.Context, groupCount uint64, shardCount int) error {
	body, err := json.Marshal(publishBody{
		ServerCount: groupCount,
		ShardCount:  shardCount,
	})
	if err != nil {
		return fmt.Errorf("encoding stats body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating stats request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stats endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Ensure HTTPPublisher implements Publisher.
var _ Publisher = (*HTTPPublisher)(nil)
