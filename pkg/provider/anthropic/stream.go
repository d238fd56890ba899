package anthropic

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/observability"
	"github.com/tributary-ai/tributary/pkg/provider"
)

const maxLineBytes = 1024 * 1024

// ParseStream decodes a Messages API SSE body and emits normalized
// events on the channel. The event name lines are ignored; every data
// payload carries its own type discriminator. The caller owns the
// channel; ParseStream never closes it.
func ParseStream(ctx context.Context, body io.Reader, events chan<- provider.Event) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	// Usage arrives split across message_start (input) and message_delta
	// (output); stop_reason arrives on message_delta but the stream is
	// only complete at message_stop.
	var usage api.Usage
	var haveUsage bool
	var stopReason string
	doneEmitted := false

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(line[len("data:"):])
		if payload == "" {
			continue
		}

		ev, ok := decodeEvent(payload)
		if !ok {
			continue
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil && ev.Message.Usage != nil {
				usage.InputTokens = ev.Message.Usage.InputTokens
				usage.OutputTokens = ev.Message.Usage.OutputTokens
				haveUsage = true
			}

		case "content_block_start":
			if cb := ev.ContentBlock; cb != nil && cb.Type == "tool_use" {
				out := provider.Event{
					Type:          provider.EventToolCallDelta,
					ToolCallIndex: ev.Index,
					ToolCallID:    cb.ID,
					FunctionName:  cb.Name,
				}
				if err := send(ctx, events, out); err != nil {
					return err
				}
			}

		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			if err := emitBlockDelta(ctx, ev, events); err != nil {
				return err
			}

		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
				if ev.Usage.InputTokens != 0 {
					usage.InputTokens = ev.Usage.InputTokens
				}
				haveUsage = true
			}

		case "message_stop":
			doneEmitted = true
			if err := send(ctx, events, doneEvent(stopReason, usage, haveUsage)); err != nil {
				return err
			}

		case "error":
			msg := "unknown stream error"
			if ev.Error != nil {
				msg = fmt.Sprintf("%s: %s", ev.Error.Type, ev.Error.Message)
			}
			return send(ctx, events, provider.Event{
				Type: provider.EventError,
				Err:  fmt.Errorf("anthropic stream error: %s", msg),
			})

		case "content_block_stop", "ping":
			// No normalized equivalent.
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// A truncated stream that already delivered its message_delta still
	// gets a terminal event.
	if !doneEmitted && (stopReason != "" || haveUsage) {
		return send(ctx, events, doneEvent(stopReason, usage, haveUsage))
	}
	return nil
}

func emitBlockDelta(ctx context.Context, ev *StreamEvent, events chan<- provider.Event) error {
	switch ev.Delta.Type {
	case "text_delta":
		if ev.Delta.Text == "" {
			return nil
		}
		return send(ctx, events, provider.Event{Type: provider.EventTextDelta, Delta: ev.Delta.Text})
	case "thinking_delta":
		if ev.Delta.Thinking == "" {
			return nil
		}
		return send(ctx, events, provider.Event{Type: provider.EventThinkingDelta, Delta: ev.Delta.Thinking})
	case "signature_delta":
		return send(ctx, events, provider.Event{Type: provider.EventThinkingDelta, Signature: ev.Delta.Signature})
	case "input_json_delta":
		return send(ctx, events, provider.Event{
			Type:          provider.EventToolCallDelta,
			ToolCallIndex: ev.Index,
			Delta:         ev.Delta.PartialJSON,
		})
	default:
		return nil
	}
}

func doneEvent(stopReason string, usage api.Usage, haveUsage bool) provider.Event {
	out := provider.Event{Type: provider.EventDone, FinishReason: mapStopReason(stopReason)}
	if haveUsage {
		u := usage
		u.TotalTokens = u.InputTokens + u.OutputTokens
		out.Usage = &u
	}
	return out
}

func decodeEvent(payload string) (*StreamEvent, bool) {
	var ev StreamEvent
	if err := unmarshalEvent(payload, &ev); err != nil {
		observability.MalformedChunks.WithLabelValues("anthropic").Inc()
		slog.Warn("skipping malformed stream chunk",
			"provider", "anthropic",
			"error", err,
			"payload", truncate(payload, 200))
		return nil, false
	}
	return &ev, true
}

func send(ctx context.Context, events chan<- provider.Event, ev provider.Event) error {
	observability.StreamEvents.WithLabelValues("anthropic", ev.Type.String()).Inc()
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
