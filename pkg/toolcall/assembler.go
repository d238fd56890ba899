package toolcall

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/provider"
)

// Completed is an immutable completed tool invocation.
type Completed struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// DecodeArguments parses the assembled argument text as a JSON object.
// Argument text that fails to parse degrades to an empty object; it is
// never a hard failure.
func DecodeArguments(c Completed) map[string]any {
	if strings.TrimSpace(c.Arguments) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(c.Arguments), &args); err != nil {
		slog.Debug("tool call arguments are not valid JSON, using empty object",
			"call_id", c.ID,
			"name", c.Name,
			"error", err.Error(),
		)
		return map[string]any{}
	}
	return args
}

// pending accumulates one tool call for the lifetime of a request.
type pending struct {
	id       string
	name     string
	args     strings.Builder
	position int // original output position
	seq      int // first-seen order, tie-break for equal positions
}

// Assembler reconciles tool-call delta events into completed calls. It is
// owned by exactly one request and must be driven from one goroutine.
//
// Deltas are either index-addressed (ItemID empty, keyed by ToolCallIndex)
// or id-addressed (keyed by ItemID, with the stable call id arriving on a
// later event and migrating the accumulated record).
type Assembler struct {
	byIndex map[int]*pending
	byItem  map[string]*pending
	byCall  map[string]*pending
	order   []*pending
}

// NewAssembler creates an empty assembler for one request.
func NewAssembler() *Assembler {
	return &Assembler{
		byIndex: make(map[int]*pending),
		byItem:  make(map[string]*pending),
		byCall:  make(map[string]*pending),
	}
}

// Add consumes one tool-call delta event. Events of other types are ignored.
func (a *Assembler) Add(ev provider.Event) {
	if ev.Type != provider.EventToolCallDelta {
		return
	}

	rec := a.lookup(ev)

	if ev.ToolCallID != "" && rec.id != ev.ToolCallID {
		// Stable call id revealed (or rewritten from a transient item id):
		// the record keeps its accumulated arguments, only the key moves.
		delete(a.byCall, rec.id)
		rec.id = ev.ToolCallID
		a.byCall[rec.id] = rec
	}
	if ev.FunctionName != "" {
		rec.name += ev.FunctionName
	}
	if ev.Delta != "" {
		rec.args.WriteString(ev.Delta)
	}
}

// lookup finds or creates the pending record addressed by the event.
func (a *Assembler) lookup(ev provider.Event) *pending {
	if ev.ItemID != "" {
		if rec, ok := a.byItem[ev.ItemID]; ok {
			return rec
		}
		// A transitional event may address an already-migrated call by its
		// stable id rather than the item id.
		if rec, ok := a.byCall[ev.ToolCallID]; ok && ev.ToolCallID != "" {
			a.byItem[ev.ItemID] = rec
			return rec
		}
		rec := a.create(ev.ToolCallIndex)
		a.byItem[ev.ItemID] = rec
		return rec
	}

	if rec, ok := a.byIndex[ev.ToolCallIndex]; ok {
		return rec
	}
	rec := a.create(ev.ToolCallIndex)
	a.byIndex[ev.ToolCallIndex] = rec
	return rec
}

func (a *Assembler) create(position int) *pending {
	rec := &pending{position: position, seq: len(a.order)}
	a.order = append(a.order, rec)
	return rec
}

// Empty reports whether no tool-call delta has been observed.
func (a *Assembler) Empty() bool {
	return len(a.order) == 0
}

// Finalize returns the completed calls: sorted by ascending original
// position (first-seen order breaking ties), deduplicated by final id.
// A call whose name never arrived is dropped; a named call whose id
// never arrived gets a synthesized one, since index-addressed backends
// may omit ids entirely.
func (a *Assembler) Finalize() []Completed {
	recs := make([]*pending, len(a.order))
	copy(recs, a.order)
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].position != recs[j].position {
			return recs[i].position < recs[j].position
		}
		return recs[i].seq < recs[j].seq
	})

	seen := make(map[string]bool, len(recs))
	var out []Completed
	for _, rec := range recs {
		if rec.name == "" {
			if rec.args.Len() > 0 {
				slog.Debug("dropping tool call without a name",
					"call_id", rec.id,
					"argument_bytes", rec.args.Len(),
				)
			}
			continue
		}
		if rec.id == "" {
			rec.id = api.NewCallID()
		}
		if seen[rec.id] {
			continue
		}
		seen[rec.id] = true
		out = append(out, Completed{
			ID:        rec.id,
			Name:      rec.name,
			Arguments: rec.args.String(),
		})
	}
	return out
}
