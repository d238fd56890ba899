package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/observability"
	"github.com/tributary-ai/tributary/pkg/provider"
	"github.com/tributary-ai/tributary/pkg/reasoning"
	"github.com/tributary-ai/tributary/pkg/storage"
	"github.com/tributary-ai/tributary/pkg/toolcall"
)

// Engine orchestrates request processing against a provider backend.
type Engine struct {
	provider provider.Provider
	store    storage.Store
	cfg      Config
}

// New creates an Engine. The provider must not be nil. The store can be
// nil; transcripts are then not persisted.
func New(p provider.Provider, store storage.Store, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	return &Engine{provider: p, store: store, cfg: cfg}, nil
}

// Result is the normalized outcome of one request.
type Result struct {
	Text         string
	Thinking     string
	ToolCalls    []toolcall.Completed
	FinishReason api.FinishReason
	Usage        *api.Usage

	// ThinkingSignature is the vendor's opaque verification token for the
	// thinking content, when one arrived. Forwarded, never interpreted.
	ThinkingSignature string

	// Retried is true when the streaming attempt produced no output and
	// the result came from the non-streaming fallback.
	Retried bool
}

// Sinks receives incremental output while a request runs. Any callback
// may be nil. When XML tool-call recovery is active, visible text is
// buffered for block extraction and delivered to OnText only once the
// stream ends.
type Sinks struct {
	OnText     func(string)
	OnThinking func(string)
	OnToolCall func(toolcall.Completed)
}

// Run executes one request and returns the normalized result. Streaming
// is used when the request asks for it and the provider supports it.
// Cancellation mid-stream returns the partial result with a cancelled
// finish reason.
func (e *Engine) Run(ctx context.Context, req *provider.Request, sinks *Sinks) (*Result, error) {
	if req.Model == "" {
		if e.cfg.DefaultModel == "" {
			return nil, api.NewInvalidRequestError("model", "model is required")
		}
		req.Model = e.cfg.DefaultModel
	}
	if apiErr := provider.ValidateCapabilities(e.provider.Capabilities(), req); apiErr != nil {
		return nil, apiErr
	}
	if sinks == nil {
		sinks = &Sinks{}
	}

	streaming := req.Stream && e.provider.Capabilities().Streaming
	if !streaming {
		st := e.newRunState(req, sinks)
		resp, err := e.provider.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		st.absorbResponse(resp)
		result := st.finalize()
		e.recordTokens(req.Model, result.Usage)
		e.saveTranscript(ctx, req.Model, result)
		return result, nil
	}

	st := e.newRunState(req, sinks)
	result, err := e.runStream(ctx, req, st)
	if err != nil {
		return nil, err
	}

	if result.empty() && !result.cancelled && !e.cfg.DisableEmptyFallback {
		result, err = e.retryNonStreaming(ctx, req, sinks)
		if err != nil {
			return nil, err
		}
	}

	out := result.Result
	e.recordTokens(req.Model, out.Usage)
	e.saveTranscript(ctx, req.Model, out)
	return out, nil
}

// runResult wraps a Result with stream-internal flags that callers of
// Run never see.
type runResult struct {
	*Result
	cancelled bool
}

func (r *runResult) empty() bool {
	return r.Text == "" && r.Thinking == "" && len(r.ToolCalls) == 0
}

func (e *Engine) runStream(ctx context.Context, req *provider.Request, st *runState) (*runResult, error) {
	events, err := e.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var streamErr error
	cancelled := false

loop:
	for ev := range events {
		if ctx.Err() != nil {
			cancelled = true
			break loop
		}

		switch ev.Type {
		case provider.EventTextDelta:
			st.filter.Ingest(ev.Delta)
		case provider.EventThinkingDelta:
			st.filter.NotifyThinking()
			st.addThinking(ev.Delta)
			st.signature += ev.Signature
		case provider.EventToolCallDelta:
			st.assembler.Add(ev)
		case provider.EventDone:
			if ev.FinishReason != "" {
				st.finish = ev.FinishReason
			}
			if ev.Usage != nil {
				st.usage = ev.Usage
			}
		case provider.EventError:
			streamErr = ev.Err
		}
	}

	result := st.finalize()
	if cancelled {
		result.FinishReason = api.FinishReasonCancelled
		return &runResult{Result: result, cancelled: true}, nil
	}
	if streamErr != nil {
		// A stream that failed after delivering output is still a
		// partial success; only a fruitless one surfaces the error.
		if result.Text == "" && result.Thinking == "" && len(result.ToolCalls) == 0 {
			return nil, streamErr
		}
		slog.Warn("stream failed after partial output",
			"provider", e.provider.Name(),
			"error", streamErr)
	}
	return &runResult{Result: result}, nil
}

// retryNonStreaming is the single fallback attempt for a stream that
// delivered nothing: same request, stream disabled, absorbed through
// the same extraction path.
func (e *Engine) retryNonStreaming(ctx context.Context, req *provider.Request, sinks *Sinks) (*runResult, error) {
	observability.EmptyStreamFallbacks.WithLabelValues(e.provider.Name()).Inc()
	slog.Info("stream produced no output, retrying non-streaming",
		"provider", e.provider.Name(),
		"model", req.Model)

	retryReq := *req
	retryReq.Stream = false

	resp, err := e.provider.Complete(ctx, &retryReq)
	if err != nil {
		return nil, err
	}

	st := e.newRunState(req, sinks)
	st.absorbResponse(resp)
	result := st.finalize()
	result.Retried = true
	return &runResult{Result: result}, nil
}

func (e *Engine) recordTokens(model string, usage *api.Usage) {
	if usage == nil {
		return
	}
	name := e.provider.Name()
	observability.ProviderTokensTotal.WithLabelValues(name, model, "input").Add(float64(usage.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(name, model, "output").Add(float64(usage.OutputTokens))
}

func (e *Engine) saveTranscript(ctx context.Context, model string, result *Result) {
	if e.store == nil {
		return
	}
	tr := &storage.Transcript{
		ID:           uuid.NewString(),
		Provider:     e.provider.Name(),
		Model:        model,
		Text:         result.Text,
		Thinking:     result.Thinking,
		ToolCalls:    result.ToolCalls,
		FinishReason: result.FinishReason,
		Usage:        result.Usage,
		Retried:      result.Retried,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.Save(ctx, tr); err != nil {
		slog.Warn("saving transcript failed", "id", tr.ID, "error", err)
	}
}

// runState accumulates one extraction pass: the tag filter feeding
// either the text buffer or the XML block parser, the delta assembler,
// and the terminal finish/usage data. The same state type serves the
// stream path, the non-streaming path, and the empty-stream fallback.
type runState struct {
	engine *Engine
	sinks  *Sinks

	filter    *reasoning.TagFilter
	assembler *toolcall.Assembler

	// xml is non-nil when the provider lacks native tool calling and the
	// request carries tools.
	xml      *toolcall.XMLParser
	xmlCalls []toolcall.Completed

	text      []byte
	thinking  []byte
	signature string
	finish    api.FinishReason
	usage     *api.Usage
}

func (e *Engine) newRunState(req *provider.Request, sinks *Sinks) *runState {
	st := &runState{engine: e, sinks: sinks, assembler: toolcall.NewAssembler()}

	if len(req.Tools) > 0 && !e.provider.Capabilities().ToolCalling {
		names := make([]string, 0, len(req.Tools))
		for _, t := range req.Tools {
			names = append(names, t.Name)
		}
		st.xml = toolcall.NewXMLParser(names, e.cfg.TrimXMLValues)
	}

	st.filter = reasoning.NewTagFilter(e.cfg.filterConfig(req.Thinking), st.onText, st.onThinking)
	return st
}

// onText receives visible text downstream of the tag filter.
func (st *runState) onText(s string) {
	if st.xml != nil {
		for _, call := range st.xml.Feed(s) {
			st.emitXMLCall(call)
		}
		return
	}
	st.text = append(st.text, s...)
	if st.sinks.OnText != nil {
		st.sinks.OnText(s)
	}
}

// onThinking receives inline thinking content from the tag filter.
func (st *runState) onThinking(s string) {
	st.addThinking(s)
}

func (st *runState) addThinking(s string) {
	if s == "" {
		return
	}
	st.thinking = append(st.thinking, s...)
	if st.sinks.OnThinking != nil {
		st.sinks.OnThinking(s)
	}
}

func (st *runState) emitXMLCall(call toolcall.Completed) {
	observability.XMLToolCallsTotal.WithLabelValues(st.engine.provider.Name(), call.Name).Inc()
	st.xmlCalls = append(st.xmlCalls, call)
	if st.sinks.OnToolCall != nil {
		st.sinks.OnToolCall(call)
	}
}

// absorbResponse pushes a non-streaming response through the same
// extraction path a stream takes.
func (st *runState) absorbResponse(resp *provider.Response) {
	if resp.Thinking != "" {
		st.filter.NotifyThinking()
		st.addThinking(resp.Thinking)
	}
	st.signature += resp.ThinkingSignature
	st.filter.Ingest(resp.Text)
	for i, tc := range resp.ToolCalls {
		id := tc.ID
		if id == "" {
			id = api.NewCallID()
		}
		st.assembler.Add(provider.Event{
			Type:          provider.EventToolCallDelta,
			ToolCallIndex: i,
			ToolCallID:    id,
			FunctionName:  tc.Name,
			Delta:         tc.Arguments,
		})
	}
	if resp.FinishReason != "" {
		st.finish = resp.FinishReason
	}
	if resp.Usage != nil {
		st.usage = resp.Usage
	}
}

// finalize flushes the filter, closes out XML extraction, and assembles
// the result. Completed native calls come first in original stream
// order, then XML-recovered calls in block order.
func (st *runState) finalize() *Result {
	st.filter.Flush()

	toolCalls := st.assembler.Finalize()
	if st.xml != nil {
		calls, residual := st.xml.Finalize()
		for _, call := range calls {
			st.emitXMLCall(call)
		}
		st.text = append(st.text, residual...)
		if residual != "" && st.sinks.OnText != nil {
			st.sinks.OnText(residual)
		}
	}
	toolCalls = append(toolCalls, st.xmlCalls...)

	finish := st.finish
	if finish == "" && len(toolCalls) > 0 {
		finish = api.FinishReasonToolCalls
	}

	for _, tc := range toolCalls {
		if st.sinks.OnToolCall != nil && st.xml == nil {
			st.sinks.OnToolCall(tc)
		}
	}

	return &Result{
		Text:              string(st.text),
		Thinking:          string(st.thinking),
		ToolCalls:         toolCalls,
		FinishReason:      finish,
		Usage:             st.usage,
		ThinkingSignature: st.signature,
	}
}
