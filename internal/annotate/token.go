package annotate

import (
	"strings"
	"unicode"
)

// token is one whitespace-delimited word of a literal run, with its
// byte offsets in the run.
type token struct {
	start int
	end   int
	raw   string
}

// tokenize splits a run on whitespace, keeping offsets for later
// substitution.
func tokenize(text string) []token {
	var toks []token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, token{start: start, end: i, raw: text[start:i]})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, token{start: start, end: len(text), raw: text[start:]})
	}
	return toks
}

// core returns the token's span with ignorable punctuation trimmed off
// both edges, so the substituted link covers just the word itself.
func (t token) core(punctuation string) (int, int, string) {
	trimmed := strings.Trim(t.raw, punctuation)
	if trimmed == "" {
		return t.start, t.start, ""
	}
	off := strings.Index(t.raw, trimmed)
	return t.start + off, t.start + off + len(trimmed), trimmed
}
