package openaicompat

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/tributary-ai/tributary/pkg/observability"
	"github.com/tributary-ai/tributary/pkg/provider"
)

const (
	ssePrefix    = "data:"
	sseDone      = "[DONE]"
	maxLineBytes = 1024 * 1024
)

// ParseStream decodes a Chat Completions SSE body and emits normalized
// events on the channel. It returns when the body ends, a [DONE]
// sentinel arrives, or the context is cancelled. The caller owns the
// channel; ParseStream never closes it.
//
// A line that fails to decode is logged and skipped. One bad chunk must
// not kill a stream that is otherwise delivering output.
func ParseStream(ctx context.Context, body io.Reader, events chan<- provider.Event) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(ssePrefix):])
		if payload == "" {
			continue
		}
		if payload == sseDone {
			return nil
		}

		chunk, ok := decodeChunk(payload)
		if !ok {
			continue
		}
		if err := emitChunk(ctx, chunk, events); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func decodeChunk(payload string) (*ChatCompletionChunk, bool) {
	var chunk ChatCompletionChunk
	if err := unmarshalChunk(payload, &chunk); err != nil {
		observability.MalformedChunks.WithLabelValues("openaicompat").Inc()
		slog.Warn("skipping malformed stream chunk",
			"provider", "openaicompat",
			"error", err,
			"payload", truncate(payload, 200))
		return nil, false
	}
	return &chunk, true
}

// emitChunk normalizes one decoded chunk. Only the first choice is
// consumed; this codebase never requests n > 1.
func emitChunk(ctx context.Context, chunk *ChatCompletionChunk, events chan<- provider.Event) error {
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]

		if thinking := firstNonEmpty(choice.Delta.ReasoningContent, choice.Delta.Reasoning); thinking != "" {
			if err := send(ctx, events, provider.Event{Type: provider.EventThinkingDelta, Delta: thinking}); err != nil {
				return err
			}
		}
		if choice.Delta.Content != "" {
			if err := send(ctx, events, provider.Event{Type: provider.EventTextDelta, Delta: choice.Delta.Content}); err != nil {
				return err
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			ev := provider.Event{
				Type:          provider.EventToolCallDelta,
				ToolCallIndex: tc.Index,
				ToolCallID:    tc.ID,
				FunctionName:  tc.Function.Name,
				Delta:         tc.Function.Arguments,
			}
			if err := send(ctx, events, ev); err != nil {
				return err
			}
		}

		// Terminal full-message shape. Some gateways deliver the
		// assembled message here instead of (or in addition to)
		// incremental deltas; it flows through the same event types.
		if msg := choice.Message; msg != nil {
			if err := emitMessage(ctx, msg, events); err != nil {
				return err
			}
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			ev := provider.Event{
				Type:         provider.EventDone,
				FinishReason: mapFinishReason(*choice.FinishReason),
			}
			if chunk.Usage != nil {
				ev.Usage = translateUsage(chunk.Usage)
			}
			return send(ctx, events, ev)
		}
	}

	// Usage-only chunk, typically the last one when stream_options
	// requested usage.
	if chunk.Usage != nil {
		return send(ctx, events, provider.Event{Type: provider.EventDone, Usage: translateUsage(chunk.Usage)})
	}
	return nil
}

func emitMessage(ctx context.Context, msg *ChatResponseMessage, events chan<- provider.Event) error {
	if thinking := firstNonEmpty(msg.ReasoningContent, msg.Reasoning); thinking != "" {
		if err := send(ctx, events, provider.Event{Type: provider.EventThinkingDelta, Delta: thinking}); err != nil {
			return err
		}
	}
	if msg.Content != "" {
		if err := send(ctx, events, provider.Event{Type: provider.EventTextDelta, Delta: msg.Content}); err != nil {
			return err
		}
	}
	for i, tc := range msg.ToolCalls {
		ev := provider.Event{
			Type:          provider.EventToolCallDelta,
			ToolCallIndex: i,
			ToolCallID:    tc.ID,
			FunctionName:  tc.Function.Name,
			Delta:         tc.Function.Arguments,
		}
		if err := send(ctx, events, ev); err != nil {
			return err
		}
	}
	return nil
}

func send(ctx context.Context, events chan<- provider.Event, ev provider.Event) error {
	observability.StreamEvents.WithLabelValues("openaicompat", ev.Type.String()).Inc()
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
