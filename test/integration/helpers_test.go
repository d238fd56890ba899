// Package integration exercises the full normalization pipeline: a real
// provider client speaking SSE to a mock backend, routed through the
// engine with filtering, assembly, and transcript storage.
//
// Both the Chat Completions and Anthropic Messages wire protocols are
// served in-process using net/http/httptest.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tributary-ai/tributary/pkg/engine"
	"github.com/tributary-ai/tributary/pkg/provider"
	"github.com/tributary-ai/tributary/pkg/provider/anthropic"
	"github.com/tributary-ai/tributary/pkg/provider/openaicompat"
	"github.com/tributary-ai/tributary/pkg/storage"
	"github.com/tributary-ai/tributary/pkg/storage/memory"
	"github.com/tributary-ai/tributary/pkg/toolcall"
)

// testEnv holds the shared mock backend for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the mock backend server.
type TestEnvironment struct {
	Backend *httptest.Server

	// completeRequests counts non-streaming Chat Completions requests,
	// used to assert the empty-stream fallback fired.
	completeRequests atomic.Int64
}

func TestMain(m *testing.M) {
	testEnv = &TestEnvironment{}
	testEnv.Backend = startMockBackend(testEnv)
	code := m.Run()
	testEnv.Backend.Close()
	os.Exit(code)
}

// newChatEngine builds an engine over an openaicompat client pointed at
// the mock backend.
func newChatEngine(t *testing.T, toolCalling bool, store *memory.Store) *engine.Engine {
	t.Helper()
	prov := openaicompat.NewClient(openaicompat.Config{
		BaseURL: testEnv.Backend.URL + "/v1",
		Capabilities: provider.Capabilities{
			ToolCalling: toolCalling,
			Thinking:    true,
		},
	})
	var s storage.Store
	if store != nil {
		s = store
	}
	eng, err := engine.New(prov, s, engine.Config{DefaultModel: "mock-model"})
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	return eng
}

// newMessagesEngine builds an engine over an anthropic client pointed at
// the mock backend.
func newMessagesEngine(t *testing.T) *engine.Engine {
	t.Helper()
	prov := anthropic.NewClient(anthropic.Config{
		BaseURL: testEnv.Backend.URL,
		APIKey:  "test-key",
	})
	eng, err := engine.New(prov, nil, engine.Config{DefaultModel: "mock-model"})
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	return eng
}

// capture collects sink output for assertions.
type capture struct {
	text     strings.Builder
	thinking strings.Builder
	calls    []toolcall.Completed
}

func (c *capture) sinks() *engine.Sinks {
	return &engine.Sinks{
		OnText:     func(s string) { c.text.WriteString(s) },
		OnThinking: func(s string) { c.thinking.WriteString(s) },
		OnToolCall: func(call toolcall.Completed) { c.calls = append(c.calls, call) },
	}
}

// runPrompt sends a single user prompt through the engine.
func runPrompt(t *testing.T, eng *engine.Engine, prompt string, req func(*provider.Request)) (*engine.Result, *capture) {
	t.Helper()
	r := &provider.Request{
		Messages: []provider.Message{{Role: "user", Content: prompt}},
		Stream:   true,
	}
	if req != nil {
		req(r)
	}
	out := &capture{}
	result, err := eng.Run(context.Background(), r, out.sinks())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result, out
}

var weatherTool = provider.Tool{
	Name:        "get_weather",
	Description: "Get the current weather for a location",
	Parameters:  json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"}}}`),
}

// --- Mock backend ---

func startMockBackend(env *TestEnvironment) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", env.handleChatCompletions)
	mux.HandleFunc("POST /v1/messages", handleMessages)
	return httptest.NewServer(mux)
}

func (env *TestEnvironment) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Tools  []any `json:"tools"`
		Stream bool  `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = strings.ToLower(req.Messages[i].Content)
			break
		}
	}

	if !req.Stream {
		env.completeRequests.Add(1)
		writeChatComplete(w, last)
		return
	}

	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")

	emit := func(delta map[string]any, finish any) {
		chunk := map[string]any{
			"id": "chatcmpl-test", "object": "chat.completion.chunk", "model": req.Model,
			"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": finish}},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	switch {
	case strings.Contains(last, "empty"):
		emit(map[string]any{"role": "assistant"}, nil)
		emit(map[string]any{}, "stop")
	case strings.Contains(last, "think"):
		emit(map[string]any{"role": "assistant"}, nil)
		emit(map[string]any{"content": "<think>weighing"}, nil)
		emit(map[string]any{"content": " options</think>"}, nil)
		emit(map[string]any{"content": "Decided: yes."}, nil)
		emit(map[string]any{}, "stop")
	case strings.Contains(last, "reasoning"):
		emit(map[string]any{"role": "assistant"}, nil)
		emit(map[string]any{"reasoning_content": "hidden planning"}, nil)
		emit(map[string]any{"content": "<think>not a tag here</think>"}, nil)
		emit(map[string]any{}, "stop")
	case strings.Contains(last, "weather") && len(req.Tools) > 0:
		emit(map[string]any{"role": "assistant"}, nil)
		emit(map[string]any{"tool_calls": []any{map[string]any{
			"index": 0, "id": "call_test_1",
			"function": map[string]any{"name": "get_weather", "arguments": `{"loca`},
		}}}, nil)
		emit(map[string]any{"tool_calls": []any{map[string]any{
			"index": 0, "function": map[string]any{"arguments": `tion":"Paris"}`},
		}}}, nil)
		emit(map[string]any{}, "tool_calls")
	case strings.Contains(last, "xml"):
		emit(map[string]any{"role": "assistant"}, nil)
		emit(map[string]any{"content": "Checking. <get_weather><location>Par"}, nil)
		emit(map[string]any{"content": "is</location></get_weather>"}, nil)
		emit(map[string]any{}, "stop")
	default:
		emit(map[string]any{"role": "assistant"}, nil)
		emit(map[string]any{"content": "Hello "}, nil)
		emit(map[string]any{"content": "world!"}, nil)
		emit(map[string]any{}, "stop")
	}

	// Usage arrives on a trailing chunk with no choices.
	usage := map[string]any{
		"id": "chatcmpl-test", "object": "chat.completion.chunk", "model": req.Model,
		"choices": []any{},
		"usage":   map[string]any{"prompt_tokens": 7, "completion_tokens": 4, "total_tokens": 11},
	}
	data, _ := json.Marshal(usage)
	fmt.Fprintf(w, "data: %s\n\n", data)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeChatComplete(w http.ResponseWriter, last string) {
	content := "Hello world!"
	if strings.Contains(last, "empty") {
		content = "Recovered on retry."
	}
	resp := map[string]any{
		"id": "chatcmpl-test", "object": "chat.completion", "model": "mock-model",
		"choices": []any{map[string]any{
			"index": 0,
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func handleMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"messages"`
		Tools  []any `json:"tools"`
		Stream bool  `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`, http.StatusBadRequest)
		return
	}

	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")

	emit := func(event string, payload map[string]any) {
		payload["type"] = event
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	emit("message_start", map[string]any{"message": map[string]any{
		"id": "msg_test", "model": req.Model,
		"usage": map[string]any{"input_tokens": 9},
	}})

	stopReason := "end_turn"
	if len(req.Tools) > 0 {
		emit("content_block_start", map[string]any{"index": 0, "content_block": map[string]any{
			"type": "tool_use", "id": "toolu_test_1", "name": "get_weather",
		}})
		emit("content_block_delta", map[string]any{"index": 0, "delta": map[string]any{
			"type": "input_json_delta", "partial_json": `{"location":"Paris"}`,
		}})
		emit("content_block_stop", map[string]any{"index": 0})
		stopReason = "tool_use"
	} else {
		emit("content_block_start", map[string]any{"index": 0, "content_block": map[string]any{"type": "thinking"}})
		emit("content_block_delta", map[string]any{"index": 0, "delta": map[string]any{"type": "thinking_delta", "thinking": "considering"}})
		emit("content_block_stop", map[string]any{"index": 0})
		emit("content_block_start", map[string]any{"index": 1, "content_block": map[string]any{"type": "text"}})
		emit("content_block_delta", map[string]any{"index": 1, "delta": map[string]any{"type": "text_delta", "text": "Bonjour!"}})
		emit("content_block_stop", map[string]any{"index": 1})
	}

	emit("message_delta", map[string]any{
		"delta": map[string]any{"stop_reason": stopReason},
		"usage": map[string]any{"output_tokens": 5},
	})
	emit("message_stop", map[string]any{})
}
