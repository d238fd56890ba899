package reasoning

import "strings"

// TagHandling configures what happens to the content of a matched region.
type TagHandling int

const (
	// TagForward routes matched content to the thinking callback.
	TagForward TagHandling = iota
	// TagDrop strips matched content silently.
	TagDrop
)

// TagSpec describes one tag family: its start and end tokens and how
// matched content is handled. Tokens are matched case-insensitively.
type TagSpec struct {
	Start    string
	End      string
	Handling TagHandling
}

// Config holds the two tag families the filter recognizes.
//
// The preamble family matches only when its start token occurs at absolute
// position zero of the entire visible-text stream and no thinking content
// has been observed from any source. Once either condition fails it is
// permanently inert for the rest of the stream.
//
// The block family matches at the start of the stream or immediately after
// a newline, any number of times, regardless of prior thinking content.
type Config struct {
	// Enabled is false when the caller did not request a thinking channel;
	// the filter is then a pure passthrough, tag syntax included.
	Enabled  bool
	Preamble *TagSpec
	Block    *TagSpec
}

// DefaultConfig returns the standard tag families: a "<think>" preamble
// and a "<thinking>" block, both forwarded to the thinking channel.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Preamble: &TagSpec{Start: "<think>", End: "</think>", Handling: TagForward},
		Block:    &TagSpec{Start: "<thinking>", End: "</thinking>", Handling: TagForward},
	}
}

// TagFilter splits a streamed visible-text channel into plain-text and
// thinking sub-streams. It is owned by exactly one request: Ingest,
// NotifyThinking and Flush must be called sequentially from one goroutine.
type TagFilter struct {
	cfg        Config
	onText     func(string)
	onThinking func(string)

	// carry is the withheld suffix that might still be a tag-token prefix.
	// carryPos is the absolute stream position of carry[0]; carryPrev is
	// the character immediately before it (0 at stream start).
	carry     string
	carryPos  int
	carryPrev byte

	inside   bool
	endTag   string
	handling TagHandling

	thinkingSeen bool
}

// NewTagFilter creates a filter for one streamed response. onText receives
// visible text; onThinking receives matched thinking content. Either
// callback may be nil.
func NewTagFilter(cfg Config, onText, onThinking func(string)) *TagFilter {
	return &TagFilter{cfg: cfg, onText: onText, onThinking: onThinking}
}

// NotifyThinking records that thinking content arrived through a structured
// side-channel. It must be called before any further text is ingested; it
// permanently disables the preamble family (never the block family).
func (f *TagFilter) NotifyThinking() {
	f.thinkingSeen = true
}

// ThinkingSeen reports whether any thinking content has been observed,
// inline or via side-channel.
func (f *TagFilter) ThinkingSeen() bool {
	return f.thinkingSeen
}

// Ingest processes one visible-text fragment. Fragment boundaries carry no
// meaning: processing any split of the input produces the same output as
// processing it whole.
func (f *TagFilter) Ingest(fragment string) {
	if fragment == "" {
		return
	}
	if !f.cfg.Enabled {
		f.emitText(fragment)
		return
	}

	buf := f.carry + fragment
	pos := f.carryPos
	prev := f.carryPrev
	f.carry = ""

	for buf != "" {
		if f.inside {
			buf, pos, prev = f.scanInside(buf, pos, prev)
		} else {
			buf, pos, prev = f.scanOutside(buf, pos, prev)
		}
		if f.carry != "" {
			// The scan withheld a suffix and recorded its context.
			return
		}
	}

	// Nothing withheld: remember where the next fragment starts.
	f.carryPos = pos
	f.carryPrev = prev
}

// Flush resolves any withheld text at end of input: inside a region it is
// handled per that region's configuration, outside it is visible text.
func (f *TagFilter) Flush() {
	if f.carry == "" {
		return
	}
	carried := f.carry
	f.carry = ""
	if f.inside {
		f.emitRegion(carried)
		f.thinkingSeen = true
		f.inside = false
		return
	}
	f.emitText(carried)
}

// scanOutside looks for an eligible start token. It returns the unconsumed
// remainder of buf with updated position context; when the remainder is
// empty the scan is complete (possibly with a carry recorded).
func (f *TagFilter) scanOutside(buf string, pos int, prev byte) (string, int, byte) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != '<' {
			continue
		}
		p := prev
		if i > 0 {
			p = buf[i-1]
		}

		eligible := f.eligibleTags(pos+i, p)
		rest := buf[i:]

		// A complete start token wins over any partial candidate.
		for _, tag := range eligible {
			if len(rest) >= len(tag.Start) && foldEqual(rest[:len(tag.Start)], tag.Start) {
				// Text before the token is visible, then enter the region.
				f.emitText(buf[:i])
				f.inside = true
				f.endTag = tag.End
				f.handling = tag.Handling
				f.thinkingSeen = true
				consumed := i + len(tag.Start)
				return buf[consumed:], pos + consumed, '>'
			}
		}

		// A partial start token reaching the end of the buffer must be
		// withheld until the next fragment disambiguates it.
		for _, tag := range eligible {
			if len(rest) < len(tag.Start) && foldEqual(rest, tag.Start[:len(rest)]) {
				f.emitText(buf[:i])
				f.carry = rest
				f.carryPos = pos + i
				f.carryPrev = p
				return "", 0, 0
			}
		}
	}

	f.emitText(buf)
	return "", pos + len(buf), buf[len(buf)-1]
}

// scanInside looks only for the active region's end token.
func (f *TagFilter) scanInside(buf string, pos int, prev byte) (string, int, byte) {
	if idx := foldIndex(buf, f.endTag); idx >= 0 {
		f.emitRegion(buf[:idx])
		f.inside = false
		f.thinkingSeen = true
		consumed := idx + len(f.endTag)
		return buf[consumed:], pos + consumed, '>'
	}

	// Withhold the maximal suffix that could still be an end-token prefix;
	// everything before it is definitely region content.
	keep := maxFoldPrefixSuffix(buf, f.endTag)
	cut := len(buf) - keep
	f.emitRegion(buf[:cut])
	if keep == 0 {
		return "", pos + len(buf), buf[len(buf)-1]
	}
	f.carry = buf[cut:]
	f.carryPos = pos + cut
	if cut > 0 {
		f.carryPrev = buf[cut-1]
	} else {
		f.carryPrev = prev
	}
	return "", 0, 0
}

// eligibleTags returns the tag families that may start at the given
// absolute position, given the preceding character.
func (f *TagFilter) eligibleTags(pos int, prev byte) []*TagSpec {
	var tags []*TagSpec
	if f.cfg.Preamble != nil && pos == 0 && !f.thinkingSeen {
		tags = append(tags, f.cfg.Preamble)
	}
	if f.cfg.Block != nil && (pos == 0 || prev == '\n') {
		tags = append(tags, f.cfg.Block)
	}
	return tags
}

func (f *TagFilter) emitText(s string) {
	if s == "" {
		return
	}
	if f.onText != nil {
		f.onText(s)
	}
}

func (f *TagFilter) emitRegion(s string) {
	if s == "" || f.handling == TagDrop {
		return
	}
	if f.onThinking != nil {
		f.onThinking(s)
	}
}

// foldEqual reports whether two same-length strings are equal under
// ASCII case folding.
func foldEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// foldIndex returns the index of the first case-insensitive occurrence of
// sub in s, or -1.
func foldIndex(s, sub string) int {
	if len(sub) == 0 || len(s) < len(sub) {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

// maxFoldPrefixSuffix returns the length of the longest proper suffix of s
// that is a case-insensitive prefix of token.
func maxFoldPrefixSuffix(s, token string) int {
	max := len(token) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.EqualFold(s[len(s)-n:], token[:n]) {
			return n
		}
	}
	return 0
}
