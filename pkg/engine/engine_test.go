package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/provider"
	"github.com/tributary-ai/tributary/pkg/storage/memory"
)

// fakeProvider replays a scripted event sequence for Stream and a fixed
// response for Complete.
type fakeProvider struct {
	name          string
	caps          provider.Capabilities
	events        []provider.Event
	completeResp  *provider.Response
	completeErr   error
	streamCalls   int
	completeCalls int
	lastComplete  *provider.Request
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeProvider) Capabilities() provider.Capabilities { return f.caps }

func (f *fakeProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	f.completeCalls++
	f.lastComplete = req
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if f.completeResp == nil {
		return &provider.Response{}, nil
	}
	return f.completeResp, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	f.streamCalls++
	ch := make(chan provider.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Close() error { return nil }

func textDelta(s string) provider.Event {
	return provider.Event{Type: provider.EventTextDelta, Delta: s}
}

func doneEvent(reason api.FinishReason, usage *api.Usage) provider.Event {
	return provider.Event{Type: provider.EventDone, FinishReason: reason, Usage: usage}
}

func newEngine(t *testing.T, p provider.Provider, cfg Config) *Engine {
	t.Helper()
	e, err := New(p, nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func streamReq(thinking bool) *provider.Request {
	return &provider.Request{
		Model:    "test-model",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
		Stream:   true,
		Thinking: thinking,
	}
}

func TestRun_StreamWithPreambleFilter(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true, ToolCalling: true},
		events: []provider.Event{
			textDelta("<think>plan the answer</think>"),
			textDelta("Hello there"),
			doneEvent(api.FinishReasonStop, &api.Usage{InputTokens: 5, OutputTokens: 3, TotalTokens: 8}),
		},
	}
	e := newEngine(t, p, Config{})

	var gotText, gotThinking strings.Builder
	sinks := &Sinks{
		OnText:     func(s string) { gotText.WriteString(s) },
		OnThinking: func(s string) { gotThinking.WriteString(s) },
	}

	result, err := e.Run(context.Background(), streamReq(true), sinks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Thinking != "plan the answer" {
		t.Errorf("thinking = %q", result.Thinking)
	}
	if result.Text != "Hello there" {
		t.Errorf("text = %q", result.Text)
	}
	if gotText.String() != result.Text || gotThinking.String() != result.Thinking {
		t.Errorf("sinks diverged from result: text %q, thinking %q", gotText.String(), gotThinking.String())
	}
	if result.FinishReason != api.FinishReasonStop {
		t.Errorf("finish = %q", result.FinishReason)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 8 {
		t.Errorf("usage = %+v", result.Usage)
	}
	if result.Retried {
		t.Error("retried set on a productive stream")
	}
}

// A structured thinking delta arriving first permanently disables the
// preamble tag; the markup then stays in the visible text.
func TestRun_SideChannelDisablesPreamble(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true, Thinking: true},
		events: []provider.Event{
			{Type: provider.EventThinkingDelta, Delta: "native reasoning"},
			textDelta("<think>just text</think> done"),
			doneEvent(api.FinishReasonStop, nil),
		},
	}
	e := newEngine(t, p, Config{})

	result, err := e.Run(context.Background(), streamReq(true), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Thinking != "native reasoning" {
		t.Errorf("thinking = %q", result.Thinking)
	}
	if result.Text != "<think>just text</think> done" {
		t.Errorf("text = %q", result.Text)
	}
}

func TestRun_ThinkingSignatureSurfaced(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true, Thinking: true},
		events: []provider.Event{
			{Type: provider.EventThinkingDelta, Delta: "weighing"},
			{Type: provider.EventThinkingDelta, Signature: "sig_abc"},
			textDelta("done"),
			doneEvent(api.FinishReasonStop, nil),
		},
	}
	e := newEngine(t, p, Config{})

	result, err := e.Run(context.Background(), streamReq(true), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Thinking != "weighing" {
		t.Errorf("thinking = %q", result.Thinking)
	}
	if result.ThinkingSignature != "sig_abc" {
		t.Errorf("signature = %q, want sig_abc", result.ThinkingSignature)
	}
}

func TestRun_NoThinkingRequestedPassthrough(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true},
		events: []provider.Event{
			textDelta("<thinking>internal</thinking>visible"),
			doneEvent(api.FinishReasonStop, nil),
		},
	}
	e := newEngine(t, p, Config{})

	result, err := e.Run(context.Background(), streamReq(false), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "<thinking>internal</thinking>visible" {
		t.Errorf("text = %q, want full passthrough", result.Text)
	}
	if result.Thinking != "" {
		t.Errorf("thinking = %q, want empty", result.Thinking)
	}
}

func TestRun_ItemIDMigration(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true, ToolCalling: true},
		events: []provider.Event{
			{Type: provider.EventToolCallDelta, ItemID: "item_1", FunctionName: "read_file"},
			{Type: provider.EventToolCallDelta, ItemID: "item_1", Delta: `{"path":"/x"}`},
			{Type: provider.EventToolCallDelta, ItemID: "item_1", ToolCallID: "call_9"},
			doneEvent(api.FinishReasonToolCalls, nil),
		},
	}
	e := newEngine(t, p, Config{})

	result, err := e.Run(context.Background(), streamReq(false), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", result.ToolCalls)
	}
	tc := result.ToolCalls[0]
	if tc.ID != "call_9" || tc.Name != "read_file" || tc.Arguments != `{"path":"/x"}` {
		t.Errorf("call = %+v", tc)
	}
}

func TestRun_XMLFallbackRouting(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true}, // no native tool calling
		events: []provider.Event{
			textDelta("I will read it. <read_"),
			textDelta("file><path>/etc/hosts</path></read_file>"),
			textDelta(" Done."),
			doneEvent(api.FinishReasonStop, nil),
		},
	}
	e := newEngine(t, p, Config{})

	req := streamReq(false)
	req.Tools = []provider.Tool{{Name: "read_file"}}

	result, err := e.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", result.ToolCalls)
	}
	tc := result.ToolCalls[0]
	if tc.Name != "read_file" || tc.Arguments != `{"path":"/etc/hosts"}` {
		t.Errorf("call = %+v", tc)
	}
	if tc.ID == "" {
		t.Error("xml call has no generated id")
	}
	if result.Text != "I will read it.  Done." {
		t.Errorf("residual text = %q", result.Text)
	}
}

func TestRun_EmptyStreamFallback(t *testing.T) {
	p := &fakeProvider{
		caps:   provider.Capabilities{Streaming: true, ToolCalling: true},
		events: []provider.Event{doneEvent(api.FinishReasonStop, nil)},
		completeResp: &provider.Response{
			Text:         "recovered answer",
			FinishReason: api.FinishReasonStop,
			Usage:        &api.Usage{InputTokens: 4, OutputTokens: 2, TotalTokens: 6},
		},
	}
	e := newEngine(t, p, Config{})

	result, err := e.Run(context.Background(), streamReq(false), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Retried {
		t.Error("retried flag not set")
	}
	if result.Text != "recovered answer" {
		t.Errorf("text = %q", result.Text)
	}
	if p.completeCalls != 1 {
		t.Errorf("complete calls = %d, want exactly 1", p.completeCalls)
	}
	if p.lastComplete.Stream {
		t.Error("fallback request still has stream set")
	}
}

// The fallback runs at most once: an empty fallback response ends the
// request with an empty result.
func TestRun_FallbackAlsoEmpty(t *testing.T) {
	p := &fakeProvider{
		caps:         provider.Capabilities{Streaming: true, ToolCalling: true},
		events:       []provider.Event{doneEvent(api.FinishReasonStop, nil)},
		completeResp: &provider.Response{FinishReason: api.FinishReasonStop},
	}
	e := newEngine(t, p, Config{})

	result, err := e.Run(context.Background(), streamReq(false), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "" || len(result.ToolCalls) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
	if !result.Retried {
		t.Error("retried flag not set")
	}
	if p.completeCalls != 1 {
		t.Errorf("complete calls = %d, want exactly 1", p.completeCalls)
	}
}

func TestRun_FallbackDisabled(t *testing.T) {
	p := &fakeProvider{
		caps:   provider.Capabilities{Streaming: true, ToolCalling: true},
		events: []provider.Event{doneEvent(api.FinishReasonStop, nil)},
	}
	e := newEngine(t, p, Config{DisableEmptyFallback: true})

	result, err := e.Run(context.Background(), streamReq(false), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.completeCalls != 0 {
		t.Errorf("complete calls = %d, want 0", p.completeCalls)
	}
	if result.Retried {
		t.Error("retried flag set with fallback disabled")
	}
}

func TestRun_StreamErrorWithoutOutput(t *testing.T) {
	wantErr := errors.New("connection reset")
	p := &fakeProvider{
		caps:   provider.Capabilities{Streaming: true, ToolCalling: true},
		events: []provider.Event{{Type: provider.EventError, Err: wantErr}},
	}
	e := newEngine(t, p, Config{})

	_, err := e.Run(context.Background(), streamReq(false), nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("Run error = %v, want %v", err, wantErr)
	}
	if p.completeCalls != 0 {
		t.Errorf("failed stream must not trigger the empty-stream fallback, got %d complete calls", p.completeCalls)
	}
}

func TestRun_StreamErrorAfterOutput(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true, ToolCalling: true},
		events: []provider.Event{
			textDelta("partial answer"),
			{Type: provider.EventError, Err: errors.New("cut off")},
		},
	}
	e := newEngine(t, p, Config{})

	result, err := e.Run(context.Background(), streamReq(false), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "partial answer" {
		t.Errorf("text = %q", result.Text)
	}
}

func TestRun_CancellationMidStream(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true, ToolCalling: true},
		events: []provider.Event{
			textDelta("first"),
			textDelta(" second"),
			doneEvent(api.FinishReasonStop, nil),
		},
	}
	e := newEngine(t, p, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	sinks := &Sinks{OnText: func(string) { cancel() }}

	result, err := e.Run(ctx, streamReq(false), sinks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "first" {
		t.Errorf("text = %q, want only the pre-cancellation delta", result.Text)
	}
	if result.FinishReason != api.FinishReasonCancelled {
		t.Errorf("finish = %q, want cancelled", result.FinishReason)
	}
	if p.completeCalls != 0 {
		t.Error("cancelled run must not trigger the fallback")
	}
}

func TestRun_NonStreamingPath(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true, ToolCalling: true, Thinking: true},
		completeResp: &provider.Response{
			Text:         "direct",
			Thinking:     "pondering",
			FinishReason: api.FinishReasonStop,
		},
	}
	e := newEngine(t, p, Config{})

	req := streamReq(true)
	req.Stream = false

	result, err := e.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "direct" || result.Thinking != "pondering" {
		t.Errorf("result = %+v", result)
	}
	if p.streamCalls != 0 {
		t.Errorf("stream calls = %d, want 0", p.streamCalls)
	}
	if result.Retried {
		t.Error("non-streaming request marked retried")
	}
}

func TestRun_DefaultModel(t *testing.T) {
	p := &fakeProvider{
		caps:         provider.Capabilities{Streaming: true, ToolCalling: true},
		completeResp: &provider.Response{Text: "ok"},
	}
	e := newEngine(t, p, Config{DefaultModel: "fallback-model"})

	req := &provider.Request{Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	if _, err := e.Run(context.Background(), req, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.lastComplete.Model != "fallback-model" {
		t.Errorf("model = %q", p.lastComplete.Model)
	}

	e2 := newEngine(t, p, Config{})
	_, err := e2.Run(context.Background(), &provider.Request{}, nil)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Param != "model" {
		t.Errorf("error = %v, want invalid_request on model", err)
	}
}

func TestRun_TranscriptSaved(t *testing.T) {
	p := &fakeProvider{
		caps: provider.Capabilities{Streaming: true, ToolCalling: true},
		events: []provider.Event{
			textDelta("stored"),
			doneEvent(api.FinishReasonStop, &api.Usage{TotalTokens: 3}),
		},
	}
	store := memory.New(0)
	e, err := New(p, store, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := e.Run(context.Background(), streamReq(false), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	trs, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(trs) != 1 {
		t.Fatalf("stored transcripts = %d, want 1", len(trs))
	}
	if trs[0].Text != "stored" || trs[0].Provider != "fake" {
		t.Errorf("transcript = %+v", trs[0])
	}
}
