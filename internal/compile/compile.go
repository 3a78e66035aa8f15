// ABOUTME: HTTP client for the external compilation service and the language resolver.
// ABOUTME: Implements the confirm executor/resolver pair behind the session workflow.

package compile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forgebot/gateway/internal/confirm"
)

// ErrNoEndpoint indicates no compilation service is configured.
var ErrNoEndpoint = errors.New("no compilation endpoint configured")

// DefaultLanguages are the targets accepted when the config lists none.
var DefaultLanguages = []string{"c", "c++", "cpp", "rust", "go", "python", "haskell"}

// Executor posts compile requests to an external service over HTTP.
type Executor struct {
	endpoint string
	client   *http.Client
}

// NewExecutor creates an Executor for the given endpoint. An empty
// endpoint yields an Executor whose calls fail with ErrNoEndpoint.
func NewExecutor(endpoint string) *Executor {
	return &Executor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type compileRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type compileResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Execute forwards the request and returns the service's output. A
// service-reported error or a non-2xx status is returned as an error.
func (e *Executor) Execute(ctx context.Context, req confirm.Request) (confirm.Result, error) {
	if e.endpoint == "" {
		return confirm.Result{}, ErrNoEndpoint
	}

	body, err := json.Marshal(compileRequest{Language: req.Language, Code: req.Code})
	if err != nil {
		return confirm.Result{}, fmt.Errorf("encoding compile request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return confirm.Result{}, fmt.Errorf("creating compile request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return confirm.Result{}, fmt.Errorf("posting compile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return confirm.Result{}, fmt.Errorf("compile service returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return confirm.Result{}, fmt.Errorf("reading compile response: %w", err)
	}

	var cr compileResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return confirm.Result{}, fmt.Errorf("decoding compile response: %w", err)
	}
	if cr.Error != "" {
		return confirm.Result{}, errors.New(cr.Error)
	}
	return confirm.Result{Output: cr.Output}, nil
}

// Resolver accepts a fixed, case-insensitive language set.
type Resolver struct {
	targets map[string]string
}

// NewResolver builds a Resolver for the given languages. An empty list
// falls back to DefaultLanguages.
func NewResolver(languages []string) *Resolver {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	targets := make(map[string]string, len(languages))
	for _, lang := range languages {
		targets[strings.ToLower(lang)] = lang
	}
	return &Resolver{targets: targets}
}

// Resolve maps a declared language to its execution target.
func (r *Resolver) Resolve(language string) (string, bool) {
	target, ok := r.targets[strings.ToLower(language)]
	return target, ok
}

// Ensure the pair satisfies the confirm interfaces.
var (
	_ confirm.Executor = (*Executor)(nil)
	_ confirm.Resolver = (*Resolver)(nil)
)
