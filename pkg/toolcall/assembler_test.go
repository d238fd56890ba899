package toolcall

import (
	"strings"
	"testing"

	"github.com/tributary-ai/tributary/pkg/provider"
)

func toolDelta(index int, id, name, args string) provider.Event {
	return provider.Event{
		Type:          provider.EventToolCallDelta,
		ToolCallIndex: index,
		ToolCallID:    id,
		FunctionName:  name,
		Delta:         args,
	}
}

func itemDelta(index int, itemID, callID, name, args string) provider.Event {
	ev := toolDelta(index, callID, name, args)
	ev.ItemID = itemID
	return ev
}

func TestAssembler_IndexKeyedAcrossFragments(t *testing.T) {
	a := NewAssembler()
	a.Add(toolDelta(0, "call_1", "t", ""))
	a.Add(toolDelta(0, "", "", `{"a":1}`))

	calls := a.Finalize()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "t" || calls[0].Arguments != `{"a":1}` {
		t.Errorf("call = %+v, want name=t arguments={\"a\":1}", calls[0])
	}
	if calls[0].ID != "call_1" {
		t.Errorf("ID = %q, want call_1", calls[0].ID)
	}
}

func TestAssembler_OrderedByPositionNotArrival(t *testing.T) {
	a := NewAssembler()
	a.Add(toolDelta(1, "call_b", "second", `{}`))
	a.Add(toolDelta(0, "call_a", "first", `{}`))

	calls := a.Finalize()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].Name != "first" || calls[1].Name != "second" {
		t.Errorf("order = [%s, %s], want [first, second]", calls[0].Name, calls[1].Name)
	}
}

func TestAssembler_DedupByID(t *testing.T) {
	// Positions can be reused across transitional events for the same
	// logical call; dedup is by final id.
	a := NewAssembler()
	a.Add(toolDelta(0, "call_x", "t", `{"a":`))
	a.Add(toolDelta(1, "call_x", "t", ""))

	calls := a.Finalize()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
}

func TestAssembler_DropsNamelessCall(t *testing.T) {
	a := NewAssembler()
	a.Add(toolDelta(0, "call_1", "", `{"a":1}`))

	if calls := a.Finalize(); len(calls) != 0 {
		t.Fatalf("got %d calls, want 0 (name never arrived)", len(calls))
	}
}

func TestAssembler_SynthesizesMissingID(t *testing.T) {
	a := NewAssembler()
	// Some index-addressed backends never send an id at all.
	a.Add(toolDelta(0, "", "t", ""))
	a.Add(toolDelta(0, "", "", `{"a":1}`))

	calls := a.Finalize()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	c := calls[0]
	if c.Name != "t" || c.Arguments != `{"a":1}` {
		t.Errorf("call = %+v", c)
	}
	if !strings.HasPrefix(c.ID, "call_") || len(c.ID) <= len("call_") {
		t.Errorf("ID = %q, want a synthesized call id", c.ID)
	}
}

func TestAssembler_ItemIDMigration(t *testing.T) {
	a := NewAssembler()
	// Arguments start accumulating under the transient item id.
	a.Add(itemDelta(0, "fc_item1", "", "", `{"pa`))
	// The stable call id and name arrive later on the same item.
	a.Add(itemDelta(0, "fc_item1", "call_9", "lookup", ""))
	a.Add(itemDelta(0, "fc_item1", "", "", `th":"/x"}`))

	calls := a.Finalize()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	c := calls[0]
	if c.ID != "call_9" || c.Name != "lookup" {
		t.Errorf("call = %+v, want id=call_9 name=lookup", c)
	}
	if c.Arguments != `{"path":"/x"}` {
		t.Errorf("Arguments = %q, migration lost or duplicated data", c.Arguments)
	}
}

func TestAssembler_Empty(t *testing.T) {
	a := NewAssembler()
	if !a.Empty() {
		t.Error("new assembler should be empty")
	}
	a.Add(provider.Event{Type: provider.EventTextDelta, Delta: "not a tool call"})
	if !a.Empty() {
		t.Error("non-tool events must not register")
	}
	a.Add(toolDelta(0, "call_1", "t", ""))
	if a.Empty() {
		t.Error("assembler should not be empty after a tool delta")
	}
}

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		name string
		args string
		want int // expected key count
	}{
		{"valid object", `{"a":1,"b":"x"}`, 2},
		{"empty string", "", 0},
		{"truncated json degrades to empty", `{"a":1`, 0},
		{"garbage degrades to empty", "not json at all", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeArguments(Completed{ID: "call_1", Name: "t", Arguments: tt.args})
			if got == nil {
				t.Fatal("DecodeArguments returned nil, want empty map")
			}
			if len(got) != tt.want {
				t.Errorf("got %d keys, want %d", len(got), tt.want)
			}
		})
	}
}
