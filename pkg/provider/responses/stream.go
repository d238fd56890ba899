package responses

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/observability"
	"github.com/tributary-ai/tributary/pkg/provider"
)

const maxLineBytes = 1024 * 1024

// reasoningFamily tracks which of the two reasoning event families this
// stream uses. A backend emits either reasoning_text or
// reasoning_summary_text deltas; whichever produces content first wins
// and the other family is ignored for the rest of the stream.
type reasoningFamily int

const (
	familyUndecided reasoningFamily = iota
	familyText
	familySummary
)

// streamDecoder holds the per-stream state of the Responses SSE decoder.
type streamDecoder struct {
	events chan<- provider.Event
	family reasoningFamily

	// named records item ids whose function name was already emitted, so
	// the output_item.done replay does not append the name twice.
	named map[string]bool
}

// ParseStream decodes a Responses API SSE body and emits normalized
// events on the channel. The caller owns the channel; ParseStream never
// closes it.
func ParseStream(ctx context.Context, body io.Reader, events chan<- provider.Event) error {
	d := &streamDecoder{events: events, named: make(map[string]bool)}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	var currentEvent string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(line[len("event:"):])
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(line[len("data:"):])
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return nil
		}

		name := currentEvent
		currentEvent = ""
		if name == "" {
			name = peekType(payload)
		}
		stop, err := d.handle(ctx, name, []byte(payload))
		if err != nil || stop {
			return err
		}
	}
	return scanner.Err()
}

// peekType reads the type discriminator the Responses API embeds in
// every data payload, used when the event name line is absent.
func peekType(payload string) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return ""
	}
	return probe.Type
}

func (d *streamDecoder) handle(ctx context.Context, name string, data []byte) (bool, error) {
	switch name {
	case eventTextDelta:
		var payload deltaData
		if !decode(data, &payload) {
			return false, nil
		}
		if payload.Delta == "" {
			return false, nil
		}
		return false, d.send(ctx, provider.Event{Type: provider.EventTextDelta, Delta: payload.Delta})

	case eventReasoningTextDelta:
		return false, d.reasoningDelta(ctx, familyText, data)

	case eventReasoningSummDelta:
		return false, d.reasoningDelta(ctx, familySummary, data)

	case eventFuncCallArgsDelta:
		var payload funcCallArgsDeltaData
		if !decode(data, &payload) {
			return false, nil
		}
		ev := provider.Event{
			Type:          provider.EventToolCallDelta,
			ItemID:        payload.ItemID,
			ToolCallIndex: payload.OutputIndex,
			ToolCallID:    payload.CallID,
			Delta:         payload.Delta,
		}
		if payload.Name != "" && !d.named[payload.ItemID] {
			ev.FunctionName = payload.Name
			d.named[payload.ItemID] = true
		}
		return false, d.send(ctx, ev)

	case eventOutputItemAdded, eventOutputItemDone:
		var payload outputItemData
		if !decode(data, &payload) {
			return false, nil
		}
		if payload.Item.Type != "function_call" {
			return false, nil
		}
		ev := provider.Event{
			Type:          provider.EventToolCallDelta,
			ItemID:        payload.Item.ID,
			ToolCallIndex: payload.OutputIndex,
			ToolCallID:    payload.Item.CallID,
		}
		if payload.Item.Name != "" && !d.named[payload.Item.ID] {
			ev.FunctionName = payload.Item.Name
			d.named[payload.Item.ID] = true
		}
		return false, d.send(ctx, ev)

	case eventResponseCompleted, eventResponseIncomplete:
		var payload responseEnvelopeData
		if !decode(data, &payload) {
			return true, d.send(ctx, provider.Event{Type: provider.EventDone, FinishReason: api.FinishReasonStop})
		}
		return true, d.send(ctx, doneEvent(&payload.Response))

	case eventResponseFailed:
		var payload responseEnvelopeData
		msg := "backend response failed"
		if decode(data, &payload) && payload.Response.Error != nil {
			msg = fmt.Sprintf("%s: %s", payload.Response.Error.Type, payload.Response.Error.Message)
		}
		return true, d.send(ctx, provider.Event{
			Type: provider.EventError,
			Err:  fmt.Errorf("responses stream failed: %s", msg),
		})

	default:
		// Lifecycle events with no normalized equivalent
		// (response.created, content_part.added, *.done markers).
		return false, nil
	}
}

func (d *streamDecoder) reasoningDelta(ctx context.Context, family reasoningFamily, data []byte) error {
	var payload deltaData
	if !decode(data, &payload) {
		return nil
	}
	if payload.Delta == "" {
		return nil
	}
	if d.family == familyUndecided {
		d.family = family
	}
	if d.family != family {
		return nil
	}
	return d.send(ctx, provider.Event{Type: provider.EventThinkingDelta, Delta: payload.Delta})
}

func doneEvent(resp *responsesResponse) provider.Event {
	ev := provider.Event{Type: provider.EventDone, FinishReason: mapStatus(resp)}
	if resp.Usage != nil {
		ev.Usage = &api.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return ev
}

func mapStatus(resp *responsesResponse) api.FinishReason {
	if resp.Status == "incomplete" && resp.IncompleteDetails != nil {
		switch resp.IncompleteDetails.Reason {
		case "max_output_tokens":
			return api.FinishReasonLength
		case "content_filter":
			return api.FinishReasonFiltered
		}
	}
	for _, item := range resp.Output {
		if item.Type == "function_call" {
			return api.FinishReasonToolCalls
		}
	}
	return api.FinishReasonStop
}

func decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		observability.MalformedChunks.WithLabelValues("responses").Inc()
		slog.Warn("skipping malformed stream chunk",
			"provider", "responses",
			"error", err,
			"payload", truncate(string(data), 200))
		return false
	}
	return true
}

func (d *streamDecoder) send(ctx context.Context, ev provider.Event) error {
	observability.StreamEvents.WithLabelValues("responses", ev.Type.String()).Inc()
	select {
	case d.events <- ev:
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
