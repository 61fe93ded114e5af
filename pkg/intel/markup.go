package intel

import (
	"fmt"
	"html"
	"strings"
)

// Link is a typed hyperlink span inserted by an annotation pass.
// Target is a routable id such as "mark_system/B-7DFU",
// "ship_name/Merlin", "show_enemy/90001", or "link/https://...".
type Link struct {
	Target  string
	Tooltip string
}

// Segment is one node of a message body: either a literal text run
// (Link == nil) or an already-substituted link span.
type Segment struct {
	Text string
	Link *Link
}

// Literal reports whether the segment is a plain text run that
// annotation passes may still scan.
func (s Segment) Literal() bool { return s.Link == nil }

// Body is the rich-text representation of a message: literal runs
// interleaved with link spans. Passes scan only literal runs, so every
// substitution shrinks the scannable text and convergence is bounded.
type Body struct {
	segs []Segment
}

// NewBody wraps plain text in a body with a single literal run.
func NewBody(text string) *Body {
	return &Body{segs: []Segment{{Text: text}}}
}

// Segments returns a copy of the body's segments.
func (b *Body) Segments() []Segment {
	out := make([]Segment, len(b.segs))
	copy(out, b.segs)
	return out
}

// Runs returns the indexes of the literal text runs, in order.
func (b *Body) Runs() []int {
	var idx []int
	for i, seg := range b.segs {
		if seg.Literal() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Run returns the text of the literal run at segment index i.
// The bool is false when i is out of range or not a literal run.
func (b *Body) Run(i int) (string, bool) {
	if i < 0 || i >= len(b.segs) || !b.segs[i].Literal() {
		return "", false
	}
	return b.segs[i].Text, true
}

// Substitute replaces [start,end) of the literal run at segment index i
// with a link span carrying the covered text, keeping any prefix and
// suffix as literal runs. Empty prefix/suffix runs are dropped.
func (b *Body) Substitute(i, start, end int, link Link) error {
	if i < 0 || i >= len(b.segs) || !b.segs[i].Literal() {
		return fmt.Errorf("markup: segment %d is not a literal run", i)
	}
	text := b.segs[i].Text
	if start < 0 || end > len(text) || start >= end {
		return fmt.Errorf("markup: bad span [%d,%d) in run of length %d", start, end, len(text))
	}

	repl := make([]Segment, 0, 3)
	if start > 0 {
		repl = append(repl, Segment{Text: text[:start]})
	}
	l := link
	repl = append(repl, Segment{Text: text[start:end], Link: &l})
	if end < len(text) {
		repl = append(repl, Segment{Text: text[end:]})
	}

	out := make([]Segment, 0, len(b.segs)+len(repl)-1)
	out = append(out, b.segs[:i]...)
	out = append(out, repl...)
	out = append(out, b.segs[i+1:]...)
	b.segs = out
	return nil
}

// Plain returns the body's text with link spans flattened back to
// their visible text.
func (b *Body) Plain() string {
	var sb strings.Builder
	for _, seg := range b.segs {
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// Markup renders the body as HTML-ish rich text for the feed view.
func (b *Body) Markup() string {
	var sb strings.Builder
	for _, seg := range b.segs {
		if seg.Link == nil {
			sb.WriteString(html.EscapeString(seg.Text))
			continue
		}
		if seg.Link.Tooltip != "" {
			fmt.Fprintf(&sb, `<a href=%q title=%q>%s</a>`,
				seg.Link.Target, seg.Link.Tooltip, html.EscapeString(seg.Text))
		} else {
			fmt.Fprintf(&sb, `<a href=%q>%s</a>`, seg.Link.Target, html.EscapeString(seg.Text))
		}
	}
	return sb.String()
}
