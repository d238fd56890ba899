package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/debug"
	"github.com/tributary-ai/tributary/pkg/observability"
	"github.com/tributary-ai/tributary/pkg/provider"
)

const (
	apiVersion = "2023-06-01"

	defaultMaxTokens      = 4096
	defaultThinkingBudget = 2048
	maxErrorBody          = 32 * 1024
)

// Config configures a Messages API client.
type Config struct {
	// Name identifies this provider instance in logs and metrics.
	// Defaults to "anthropic".
	Name string

	// BaseURL is the API root. Defaults to "https://api.anthropic.com".
	BaseURL string

	// APIKey is sent as the x-api-key header.
	APIKey string

	// Timeout applies to non-streaming requests only.
	Timeout time.Duration

	// MaxTokens is the default max_tokens when a request does not set
	// one. The Messages API requires the field.
	MaxTokens int

	// ThinkingBudget is the extended-thinking token budget applied when
	// a request asks for thinking.
	ThinkingBudget int
}

// Client is a Provider backed by the Anthropic Messages API.
type Client struct {
	name           string
	baseURL        string
	apiKey         string
	maxTokens      int
	thinkingBudget int
	client         *http.Client
	stream         *http.Client
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a Messages API client from the config.
func NewClient(cfg Config) *Client {
	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	budget := cfg.ThinkingBudget
	if budget == 0 {
		budget = defaultThinkingBudget
	}
	return &Client{
		name:           name,
		baseURL:        baseURL,
		apiKey:         cfg.APIKey,
		maxTokens:      maxTokens,
		thinkingBudget: budget,
		client:         &http.Client{Timeout: timeout},
		stream:         &http.Client{},
	}
}

// Name returns the configured provider name.
func (c *Client) Name() string { return c.name }

// Capabilities reports native streaming, tool calling, and thinking.
func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true, ToolCalling: true, Thinking: true}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	c.stream.CloseIdleConnections()
	return nil
}

// Complete performs a non-streaming message request.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := translateRequest(req, c.maxTokens, c.thinkingBudget)
	body.Stream = false

	start := time.Now()
	resp, err := c.post(ctx, c.client, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	observability.ProviderRequestDuration.WithLabelValues(c.name, "complete").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return nil, c.mapHTTPError(resp, req)
	}

	var decoded MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding messages response: %w", err)
	}
	return translateResponse(&decoded), nil
}

// Stream performs a streaming message request.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body := translateRequest(req, c.maxTokens, c.thinkingBudget)
	body.Stream = true

	start := time.Now()
	resp, err := c.post(ctx, c.stream, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.mapHTTPError(resp, req)
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

func (c *Client) post(ctx context.Context, client *http.Client, body *MessagesRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", apiVersion)
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}
	debug.Log("providers", "request", "provider", c.name, "model", body.Model, "stream", body.Stream)
	debug.Raw("providers", string(payload))
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", c.name, err)
	}
	return resp, nil
}

func (c *Client) mapHTTPError(resp *http.Response, req *provider.Request) *api.ProviderHTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := string(body)
	var envelope ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	} else if len(msg) > 200 {
		msg = msg[:200]
	}
	return &api.ProviderHTTPError{
		StatusCode:   resp.StatusCode,
		Model:        req.Model,
		MessageCount: len(req.Messages),
		Message:      msg,
	}
}
