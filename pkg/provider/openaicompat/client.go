package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tributary-ai/tributary/pkg/debug"
	"github.com/tributary-ai/tributary/pkg/observability"
	"github.com/tributary-ai/tributary/pkg/provider"
)

// Config configures a Chat Completions client.
type Config struct {
	// Name identifies this provider instance in logs and metrics.
	// Defaults to "openaicompat".
	Name string

	// BaseURL is the backend root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout applies to non-streaming requests only. Streaming requests
	// run without a client timeout and rely on context cancellation.
	Timeout time.Duration

	// Capabilities declares what the backend supports. Zero value means
	// streaming only; set ToolCalling and Thinking per deployment.
	Capabilities provider.Capabilities
}

// Client is a Provider backed by an OpenAI-compatible Chat Completions
// endpoint.
type Client struct {
	name    string
	baseURL string
	apiKey  string
	caps    provider.Capabilities
	client  *http.Client
	stream  *http.Client
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a Chat Completions client from the config.
func NewClient(cfg Config) *Client {
	name := cfg.Name
	if name == "" {
		name = "openaicompat"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	caps := cfg.Capabilities
	caps.Streaming = true
	return &Client{
		name:    name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		caps:    caps,
		client:  &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

// Name returns the configured provider name.
func (c *Client) Name() string { return c.name }

// Capabilities returns what this backend supports.
func (c *Client) Capabilities() provider.Capabilities { return c.caps }

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	c.stream.CloseIdleConnections()
	return nil
}

// Complete performs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := TranslateRequest(req)
	body.Stream = false
	body.StreamOpts = nil

	start := time.Now()
	resp, err := c.post(ctx, c.client, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	observability.ProviderRequestDuration.WithLabelValues(c.name, "complete").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp, req.Model, len(req.Messages))
	}

	var decoded ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}
	return TranslateResponse(&decoded), nil
}

// Stream performs a streaming chat completion. The returned channel is
// closed when the stream ends; a stream-level failure surfaces as a
// final EventError.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body := TranslateRequest(req)
	body.Stream = true
	body.StreamOpts = &ChatStreamOpts{IncludeUsage: true}

	start := time.Now()
	resp, err := c.post(ctx, c.stream, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp, req.Model, len(req.Messages))
	}

	events := make(chan provider.Event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		defer func() {
			observability.ProviderRequestDuration.WithLabelValues(c.name, "stream").Observe(time.Since(start).Seconds())
		}()
		if err := ParseStream(ctx, resp.Body, events); err != nil {
			select {
			case events <- provider.Event{Type: provider.EventError, Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return events, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, body *ChatCompletionRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	debug.Log("providers", "request", "provider", c.name, "model", body.Model, "stream", body.Stream)
	debug.Raw("providers", string(payload))
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", c.name, err)
	}
	return resp, nil
}
