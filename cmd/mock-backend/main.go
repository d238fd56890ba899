// Command mock-backend runs a deterministic streaming backend for
// conformance testing. It serves both the Chat Completions and the
// Anthropic Messages wire protocols and picks a scenario based on the
// last user message, so decoder behavior can be exercised end to end
// without a real model.
//
// Scenarios (keyword in last user message):
//
//	"think"     - thinking preamble followed by visible text
//	"reasoning" - reasoning_content side-channel deltas (Chat Completions only)
//	"weather"   - fragmented tool call deltas
//	"xml"       - tool call embedded as XML in the text stream
//	"empty"     - stream that produces no output (fallback trigger)
//	default     - plain text deltas
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("POST /v1/messages", handleMessages)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []any         `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type scenario int

const (
	scenarioText scenario = iota
	scenarioThinking
	scenarioReasoning
	scenarioToolCall
	scenarioXMLTool
	scenarioEmpty
)

func classify(lastMsg string, hasTools bool) scenario {
	msg := strings.ToLower(lastMsg)
	switch {
	case strings.Contains(msg, "empty"):
		return scenarioEmpty
	case strings.Contains(msg, "xml"):
		return scenarioXMLTool
	case hasTools || strings.Contains(msg, "weather"):
		return scenarioToolCall
	case strings.Contains(msg, "reasoning"):
		return scenarioReasoning
	case strings.Contains(msg, "think"):
		return scenarioThinking
	default:
		return scenarioText
	}
}

// --- Chat Completions ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}
	sc := classify(lastUserMessage(&req), len(req.Tools) > 0)

	if !req.Stream {
		writeChatResponse(w, model, sc)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	emit := func(delta map[string]any, finish any) {
		chunk := map[string]any{
			"id":     "chatcmpl-mock",
			"object": "chat.completion.chunk",
			"model":  model,
			"choices": []any{
				map[string]any{"index": 0, "delta": delta, "finish_reason": finish},
			},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	switch sc {
	case scenarioEmpty:
		emit(map[string]any{"role": "assistant"}, nil)
		emit(map[string]any{}, "stop")
	case scenarioThinking:
		emit(map[string]any{"role": "assistant"}, nil)
		for _, tok := range []string{"<think>check", " the request</think>", "Here you ", "go."} {
			emit(map[string]any{"content": tok}, nil)
		}
		emit(map[string]any{}, "stop")
	case scenarioReasoning:
		emit(map[string]any{"role": "assistant"}, nil)
		emit(map[string]any{"reasoning_content": "weighing the"}, nil)
		emit(map[string]any{"reasoning_content": " options"}, nil)
		emit(map[string]any{"content": "Decided."}, nil)
		emit(map[string]any{}, "stop")
	case scenarioToolCall:
		emit(map[string]any{"role": "assistant"}, nil)
		emit(map[string]any{"tool_calls": []any{map[string]any{
			"index": 0, "id": "call_mock_1",
			"function": map[string]any{"name": "get_weather", "arguments": `{"loca`},
		}}}, nil)
		emit(map[string]any{"tool_calls": []any{map[string]any{
			"index":    0,
			"function": map[string]any{"arguments": `tion":"Paris"}`},
		}}}, nil)
		emit(map[string]any{}, "tool_calls")
	case scenarioXMLTool:
		emit(map[string]any{"role": "assistant"}, nil)
		for _, tok := range []string{"Let me check. <get_", "weather><location>Paris", "</location></get_weather>"} {
			emit(map[string]any{"content": tok}, nil)
		}
		emit(map[string]any{}, "stop")
	default:
		emit(map[string]any{"role": "assistant"}, nil)
		for _, tok := range []string{"Hello", ", ", "nice", " ", "day", "!"} {
			emit(map[string]any{"content": tok}, nil)
		}
		emit(map[string]any{}, "stop")
	}

	// Usage arrives on a final chunk with an empty choices list.
	usage := map[string]any{
		"id": "chatcmpl-mock", "object": "chat.completion.chunk", "model": model,
		"choices": []any{},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 6, "total_tokens": 16},
	}
	data, _ := json.Marshal(usage)
	fmt.Fprintf(w, "data: %s\n\n", data)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeChatResponse(w http.ResponseWriter, model string, sc scenario) {
	msg := map[string]any{"role": "assistant"}
	finish := "stop"
	switch sc {
	case scenarioToolCall:
		msg["content"] = nil
		msg["tool_calls"] = []any{map[string]any{
			"id": "call_mock_1", "type": "function",
			"function": map[string]any{"name": "get_weather", "arguments": `{"location":"Paris"}`},
		}}
		finish = "tool_calls"
	case scenarioThinking:
		msg["content"] = "<think>check the request</think>Here you go."
	default:
		msg["content"] = "Hello, nice day!"
	}

	resp := map[string]any{
		"id": "chatcmpl-mock", "object": "chat.completion", "model": model,
		"choices": []any{map[string]any{"index": 0, "message": msg, "finish_reason": finish}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Anthropic Messages ---

type messagesRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []any         `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

func handleMessages(w http.ResponseWriter, r *http.Request) {
	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"type":"error","error":{"type":"invalid_request_error","message":"invalid request"}}`, http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			if s, ok := req.Messages[i].Content.(string); ok {
				last = s
			}
			break
		}
	}
	sc := classify(last, len(req.Tools) > 0)

	if !req.Stream {
		writeMessagesResponse(w, model, sc)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	emit := func(event string, payload map[string]any) {
		payload["type"] = event
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	emit("message_start", map[string]any{"message": map[string]any{
		"id": "msg_mock", "model": model,
		"usage": map[string]any{"input_tokens": 12},
	}})

	stopReason := "end_turn"
	switch sc {
	case scenarioEmpty:
		// No content blocks at all.
	case scenarioThinking:
		emit("content_block_start", map[string]any{"index": 0, "content_block": map[string]any{"type": "thinking"}})
		emit("content_block_delta", map[string]any{"index": 0, "delta": map[string]any{"type": "thinking_delta", "thinking": "check the request"}})
		emit("content_block_delta", map[string]any{"index": 0, "delta": map[string]any{"type": "signature_delta", "signature": "sig_mock"}})
		emit("content_block_stop", map[string]any{"index": 0})
		emit("content_block_start", map[string]any{"index": 1, "content_block": map[string]any{"type": "text"}})
		emit("content_block_delta", map[string]any{"index": 1, "delta": map[string]any{"type": "text_delta", "text": "Here you go."}})
		emit("content_block_stop", map[string]any{"index": 1})
	case scenarioToolCall:
		emit("content_block_start", map[string]any{"index": 0, "content_block": map[string]any{
			"type": "tool_use", "id": "toolu_mock_1", "name": "get_weather",
		}})
		emit("content_block_delta", map[string]any{"index": 0, "delta": map[string]any{"type": "input_json_delta", "partial_json": `{"loca`}})
		emit("content_block_delta", map[string]any{"index": 0, "delta": map[string]any{"type": "input_json_delta", "partial_json": `tion":"Paris"}`}})
		emit("content_block_stop", map[string]any{"index": 0})
		stopReason = "tool_use"
	default:
		emit("content_block_start", map[string]any{"index": 0, "content_block": map[string]any{"type": "text"}})
		for _, tok := range []string{"Hello", ", nice ", "day!"} {
			emit("content_block_delta", map[string]any{"index": 0, "delta": map[string]any{"type": "text_delta", "text": tok}})
		}
		emit("content_block_stop", map[string]any{"index": 0})
	}

	emit("message_delta", map[string]any{
		"delta": map[string]any{"stop_reason": stopReason},
		"usage": map[string]any{"output_tokens": 6},
	})
	emit("message_stop", map[string]any{})
}

func writeMessagesResponse(w http.ResponseWriter, model string, sc scenario) {
	var content []any
	stopReason := "end_turn"
	switch sc {
	case scenarioToolCall:
		content = []any{map[string]any{
			"type": "tool_use", "id": "toolu_mock_1", "name": "get_weather",
			"input": map[string]any{"location": "Paris"},
		}}
		stopReason = "tool_use"
	default:
		content = []any{map[string]any{"type": "text", "text": "Hello, nice day!"}}
	}

	resp := map[string]any{
		"id": "msg_mock", "type": "message", "role": "assistant", "model": model,
		"content": content, "stop_reason": stopReason,
		"usage": map[string]any{"input_tokens": 12, "output_tokens": 6},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			if s, ok := req.Messages[i].Content.(string); ok {
				return s
			}
		}
	}
	return ""
}
