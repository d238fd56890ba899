package responses

import (
	"context"
	"strings"
	"testing"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/provider"
)

func collectEvents(t *testing.T, sseData string) []provider.Event {
	t.Helper()
	ch := make(chan provider.Event, 64)

	go func() {
		defer close(ch)
		if err := ParseStream(context.Background(), strings.NewReader(sseData), ch); err != nil {
			t.Errorf("ParseStream: %v", err)
		}
	}()

	var events []provider.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestParseStream_TextAndCompleted(t *testing.T) {
	sseData := `event: response.created
data: {"type":"response.created","response":{"id":"resp_1","status":"in_progress"}}

event: response.output_text.delta
data: {"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"delta":"Hello"}

event: response.output_text.delta
data: {"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"delta":" world"}

event: response.completed
data: {"type":"response.completed","response":{"id":"resp_1","status":"completed","output":[{"id":"msg_1","type":"message","role":"assistant"}],"usage":{"input_tokens":11,"output_tokens":2,"total_tokens":13}}}
`
	events := collectEvents(t, sseData)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != provider.EventTextDelta || events[0].Delta != "Hello" {
		t.Errorf("event 0 = %+v", events[0])
	}
	done := events[2]
	if done.Type != provider.EventDone || done.FinishReason != api.FinishReasonStop {
		t.Errorf("done = %+v, want finish stop", done)
	}
	if done.Usage == nil || done.Usage.TotalTokens != 13 {
		t.Errorf("usage = %+v", done.Usage)
	}
}

// Argument fragments arrive keyed by a transient item id; the stable
// call id only appears on the output_item.done replay. The decoder
// forwards both addressings so the assembler can migrate.
func TestParseStream_IdAddressedToolCall(t *testing.T) {
	sseData := `event: response.output_item.added
data: {"type":"response.output_item.added","output_index":0,"item":{"id":"item_9","type":"function_call","name":"read_file","arguments":""}}

event: response.function_call_arguments.delta
data: {"type":"response.function_call_arguments.delta","item_id":"item_9","output_index":0,"delta":"{\"path\":"}

event: response.function_call_arguments.delta
data: {"type":"response.function_call_arguments.delta","item_id":"item_9","output_index":0,"delta":"\"/etc/hosts\"}"}

event: response.output_item.done
data: {"type":"response.output_item.done","output_index":0,"item":{"id":"item_9","type":"function_call","call_id":"call_77","name":"read_file","arguments":"{\"path\":\"/etc/hosts\"}"}}

event: response.completed
data: {"type":"response.completed","response":{"id":"resp_1","status":"completed","output":[{"id":"item_9","type":"function_call","call_id":"call_77","name":"read_file"}]}}
`
	events := collectEvents(t, sseData)
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d: %+v", len(events), events)
	}

	added := events[0]
	if added.Type != provider.EventToolCallDelta || added.ItemID != "item_9" || added.FunctionName != "read_file" {
		t.Errorf("added event = %+v", added)
	}
	if added.ToolCallID != "" {
		t.Errorf("call id %q known before output_item.done", added.ToolCallID)
	}

	if events[1].ItemID != "item_9" || events[1].Delta != `{"path":` {
		t.Errorf("delta event = %+v", events[1])
	}

	reveal := events[3]
	if reveal.ItemID != "item_9" || reveal.ToolCallID != "call_77" {
		t.Errorf("reveal event = %+v, want item_9 migrated to call_77", reveal)
	}
	if reveal.FunctionName != "" {
		t.Errorf("function name re-emitted on replay: %+v", reveal)
	}

	done := events[4]
	if done.Type != provider.EventDone || done.FinishReason != api.FinishReasonToolCalls {
		t.Errorf("done = %+v, want finish tool_calls", done)
	}
}

func TestParseStream_ReasoningFamilyArbitration(t *testing.T) {
	sseData := `event: response.reasoning_summary_text.delta
data: {"type":"response.reasoning_summary_text.delta","item_id":"rs_1","output_index":0,"delta":"summary a"}

event: response.reasoning_text.delta
data: {"type":"response.reasoning_text.delta","item_id":"rt_1","output_index":0,"delta":"raw ignored"}

event: response.reasoning_summary_text.delta
data: {"type":"response.reasoning_summary_text.delta","item_id":"rs_1","output_index":0,"delta":" summary b"}

event: response.completed
data: {"type":"response.completed","response":{"id":"resp_1","status":"completed","output":[]}}
`
	events := collectEvents(t, sseData)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != provider.EventThinkingDelta || events[0].Delta != "summary a" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Delta != " summary b" {
		t.Errorf("losing reasoning family leaked: %+v", events[1])
	}
}

func TestParseStream_MissingEventLines(t *testing.T) {
	sseData := `data: {"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"delta":"no event line"}

data: {"type":"response.completed","response":{"id":"resp_1","status":"completed","output":[]}}
`
	events := collectEvents(t, sseData)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Delta != "no event line" {
		t.Errorf("event 0 = %+v", events[0])
	}
}

func TestParseStream_Failed(t *testing.T) {
	sseData := `event: response.output_text.delta
data: {"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"delta":"partial"}

event: response.failed
data: {"type":"response.failed","response":{"id":"resp_1","status":"failed","error":{"type":"server_error","message":"backend exploded"}}}
`
	events := collectEvents(t, sseData)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	errEv := events[1]
	if errEv.Type != provider.EventError {
		t.Fatalf("event 1 type = %v, want EventError", errEv.Type)
	}
	if !strings.Contains(errEv.Err.Error(), "backend exploded") {
		t.Errorf("error = %v", errEv.Err)
	}
}

func TestParseStream_IncompleteMaxTokens(t *testing.T) {
	sseData := `event: response.incomplete
data: {"type":"response.incomplete","response":{"id":"resp_1","status":"incomplete","output":[],"incomplete_details":{"reason":"max_output_tokens"}}}
`
	events := collectEvents(t, sseData)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Type != provider.EventDone || events[0].FinishReason != api.FinishReasonLength {
		t.Errorf("done = %+v, want finish length", events[0])
	}
}
