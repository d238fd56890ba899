package responses

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

const maxErrorBody = 32 * 1024

// Config configures a Responses API client.
type Config struct {
	// Name identifies this provider instance in logs and metrics.
	// Defaults to "responses".
	Name string

	// BaseURL is the backend root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout applies to non-streaming requests only.
	Timeout time.Duration
}

// Client is a Provider backed by a Responses API endpoint.
type Client struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	stream  *http.Client
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a Responses API client from the config.
func NewClient(cfg Config) *Client {
	name := cfg.Name
	if name == "" {
		name = "responses"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		name:    name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		stream:  &http.Client{},
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

// Complete performs a non-streaming response request.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := translateRequest(req)
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

	var decoded responsesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if decoded.Status == "failed" {
		msg := "response failed"
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return nil, api.NewModelError(msg)
	}
	return translateResponse(&decoded), nil
}

// Stream performs a streaming response request.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body := translateRequest(req)
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

func (c *Client) post(ctx context.Context, client *http.Client, body *responsesRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(payload))
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

func (c *Client) mapHTTPError(resp *http.Response, req *provider.Request) *api.ProviderHTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := string(body)
	var envelope struct {
		Error responsesError `json:"error"`
	}
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
