package toolcall

import (
	"encoding/json"
	"strings"

	"github.com/tributary-ai/tributary/pkg/api"
)

// callIDTag is the optional embedded identifier tag inside a tool block.
// Its value overrides the generated call id.
const callIDTag = "callId"

// XMLParser extracts the text-embedded tool-call syntax from streamed
// visible text. Each tool is written as <toolName>...</toolName> with
// parameters as same-named nested tags (<param>value</param>). Matching is
// case-sensitive on the tool name and restricted to the tool names known
// for the current request.
//
// The parser is owned by exactly one request. Text is accumulated across
// Feed calls; a tool block split across any number of fragments is
// detected exactly once when its closing tag arrives.
type XMLParser struct {
	tools map[string]bool
	trim  bool

	buf     strings.Builder
	scanned int            // buffer offset before which no new block can start
	emitted map[int]string // block start offset -> emitted call id
	ids     map[string]bool
	spans   []xmlSpan
}

// xmlSpan records a completed tool block's byte range in the buffer.
type xmlSpan struct {
	start, end int
}

// NewXMLParser creates a parser for one request. toolNames is the finite
// set of recognized tool names. When trim is true, non-JSON parameter
// values are whitespace-trimmed; the default preserves whitespace.
func NewXMLParser(toolNames []string, trim bool) *XMLParser {
	tools := make(map[string]bool, len(toolNames))
	for _, n := range toolNames {
		tools[n] = true
	}
	return &XMLParser{
		tools:   tools,
		trim:    trim,
		emitted: make(map[int]string),
		ids:     make(map[string]bool),
	}
}

// Feed accumulates one visible-text fragment and returns any tool calls
// whose blocks completed with this fragment. A call already returned by an
// earlier Feed is never returned again.
func (p *XMLParser) Feed(text string) []Completed {
	p.buf.WriteString(text)
	return p.scan()
}

// Finalize returns any trailing completed calls plus the residual
// narrative text: all visible text with completed tool-call blocks removed.
func (p *XMLParser) Finalize() ([]Completed, string) {
	calls := p.scan()

	s := p.buf.String()
	var residual strings.Builder
	last := 0
	for _, sp := range p.spans {
		residual.WriteString(s[last:sp.start])
		last = sp.end
	}
	residual.WriteString(s[last:])
	return calls, residual.String()
}

// scan walks the accumulated buffer for newly completed tool blocks.
func (p *XMLParser) scan() []Completed {
	s := p.buf.String()
	var out []Completed

	i := p.scanned
	for i < len(s) {
		lt := strings.IndexByte(s[i:], '<')
		if lt < 0 {
			p.scanned = len(s)
			break
		}
		start := i + lt

		name, ok := p.openTagAt(s, start)
		if !ok {
			if p.partialOpenTagAt(s, start) {
				// The buffer ends mid-tag; a later fragment may complete
				// it, so nothing from here on can be consumed yet.
				p.scanned = start
				break
			}
			i = start + 1
			p.scanned = i
			continue
		}

		closing := "</" + name + ">"
		inner := start + len(name) + 2
		rel := strings.Index(s[inner:], closing)
		if rel < 0 {
			// Block not yet complete; it may close in a later fragment.
			// Nothing past this point can be consumed yet.
			break
		}
		end := inner + rel + len(closing)

		if _, done := p.emitted[start]; done {
			i = end
			p.scanned = i
			continue
		}

		call := p.buildCall(name, s[inner:inner+rel])
		p.emitted[start] = call.ID
		p.spans = append(p.spans, xmlSpan{start: start, end: end})
		if !p.ids[call.ID] {
			p.ids[call.ID] = true
			out = append(out, call)
		}
		i = end
		p.scanned = i
	}

	return out
}

// openTagAt reports whether a known tool's opening tag starts at offset.
func (p *XMLParser) openTagAt(s string, offset int) (string, bool) {
	rest := s[offset:]
	for name := range p.tools {
		if strings.HasPrefix(rest, "<"+name+">") {
			return name, true
		}
	}
	return "", false
}

// partialOpenTagAt reports whether the buffer ends in the middle of what
// could still become a known tool's opening tag.
func (p *XMLParser) partialOpenTagAt(s string, offset int) bool {
	rest := s[offset:]
	for name := range p.tools {
		open := "<" + name + ">"
		if len(rest) < len(open) && strings.HasPrefix(open, rest) {
			return true
		}
	}
	return false
}

// buildCall parses the inner content of a completed tool block.
func (p *XMLParser) buildCall(name, inner string) Completed {
	params := make(map[string]any)
	callID := ""

	i := 0
	for i < len(inner) {
		lt := strings.IndexByte(inner[i:], '<')
		if lt < 0 {
			break
		}
		tagStart := i + lt

		param, ok := paramTagAt(inner, tagStart)
		if !ok {
			i = tagStart + 1
			continue
		}

		open := "<" + param + ">"
		closing := "</" + param + ">"
		valueStart := tagStart + len(open)

		closeRel := strings.Index(inner[valueStart:], closing)
		if closeRel < 0 {
			// Unterminated parameter: ignore the rest of the block.
			break
		}
		value := inner[valueStart : valueStart+closeRel]

		// The same tag name opening again inside its own value means the
		// parameter is malformed; skip it whole instead of mis-parsing.
		if strings.Contains(value, open) {
			i = valueStart + closeRel + len(closing)
			continue
		}

		if param == callIDTag {
			callID = strings.TrimSpace(unescapeEntities(value))
		} else {
			params[param] = parseParamValue(unescapeEntities(value), p.trim)
		}
		i = valueStart + closeRel + len(closing)
	}

	if callID == "" {
		callID = api.NewCallID()
	}

	args, err := json.Marshal(params)
	if err != nil {
		args = []byte("{}")
	}
	return Completed{ID: callID, Name: name, Arguments: string(args)}
}

// paramTagAt reports whether a well-formed parameter opening tag starts at
// offset and returns its name.
func paramTagAt(s string, offset int) (string, bool) {
	j := offset + 1
	for j < len(s) && isTagNameChar(s[j]) {
		j++
	}
	if j == offset+1 || j >= len(s) || s[j] != '>' {
		return "", false
	}
	return s[offset+1 : j], true
}

func isTagNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}

// parseParamValue interprets one parameter value: JSON-looking values are
// parsed as JSON; anything else is the raw string, trimmed only when
// configured.
func parseParamValue(value string, trim bool) any {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	if trim {
		return trimmed
	}
	return value
}

// unescapeEntities replaces the standard XML entities in a parameter value.
func unescapeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	r := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&amp;", "&",
	)
	return r.Replace(s)
}
