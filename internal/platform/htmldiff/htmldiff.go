// Package htmldiff renders a word-level diff between two HTML fragments as
// HTML, marking inserted text with <ins> and removed text with <del>.
package htmldiff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff returns after's markup annotated with the changes from before.
// Tags present only in removed regions are dropped so the result stays
// structurally close to after.
func Diff(before, after string) string {
	if before == after {
		return after
	}
	a := tokenize(before)
	b := tokenize(after)

	enc := newEncoder()
	ra := enc.encode(a)
	rb := enc.encode(b)

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(ra, rb, false)

	var sb strings.Builder
	sb.Grow(len(after) + len(after)/4)
	for _, d := range diffs {
		toks := enc.decode(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for _, t := range toks {
				sb.WriteString(t.raw)
			}
		case diffmatchpatch.DiffInsert:
			writeMarked(&sb, toks, "ins", true)
		case diffmatchpatch.DiffDelete:
			writeMarked(&sb, toks, "del", false)
		}
	}
	return sb.String()
}

// writeMarked wraps consecutive text tokens in <tag>. Markup tokens are
// emitted between the wrapped runs when keepTags is set, and dropped otherwise.
func writeMarked(sb *strings.Builder, toks []token, tag string, keepTags bool) {
	open := false
	for _, t := range toks {
		if t.kind == kindTag {
			if open {
				sb.WriteString("</" + tag + ">")
				open = false
			}
			if keepTags {
				sb.WriteString(t.raw)
			}
			continue
		}
		if !open {
			sb.WriteString("<" + tag + ">")
			open = true
		}
		sb.WriteString(t.raw)
	}
	if open {
		sb.WriteString("</" + tag + ">")
	}
}

// encoder maps each distinct token to a single rune so the diff runs over tokens.
type encoder struct {
	index map[token]rune
	toks  []token
	next  rune
}

func newEncoder() *encoder {
	return &encoder{index: map[token]rune{}, next: 1}
}

func (e *encoder) encode(toks []token) []rune {
	out := make([]rune, len(toks))
	for i, t := range toks {
		r, ok := e.index[t]
		if !ok {
			r = e.alloc()
			e.index[t] = r
			e.toks = append(e.toks, t)
		}
		out[i] = r
	}
	return out
}

func (e *encoder) alloc() rune {
	r := e.next
	e.next++
	if e.next == 0xD800 {
		e.next = 0xE000
	}
	return r
}

func (e *encoder) decode(s string) []token {
	rs := []rune(s)
	out := make([]token, 0, len(rs))
	for _, r := range rs {
		idx := int(r) - 1
		if r >= 0xE000 {
			idx -= 0xE000 - 0xD800
		}
		if idx >= 0 && idx < len(e.toks) {
			out = append(out, e.toks[idx])
		}
	}
	return out
}
