package htmldiff

import (
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

type tokenKind int

const (
	kindText tokenKind = iota
	kindTag
)

type token struct {
	kind tokenKind
	raw  string
}

// tokenize splits an HTML fragment into tags and word-level text tokens.
// Raw bytes are preserved so rendering reproduces the input exactly.
func tokenize(s string) []token {
	z := html.NewTokenizer(strings.NewReader(s))
	var out []token
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				// Unparseable remainder is kept as text.
				if rest := string(z.Raw()); rest != "" {
					out = append(out, splitText(rest)...)
				}
			}
			return out
		case html.TextToken:
			out = append(out, splitText(string(z.Raw()))...)
		default:
			out = append(out, token{kind: kindTag, raw: string(z.Raw())})
		}
	}
}

func splitText(s string) []token {
	var out []token
	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		j := i + 1
		switch {
		case unicode.IsSpace(r):
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
		case isWordRune(r):
			for j < len(runes) && isWordRune(runes[j]) {
				j++
			}
		case r == '&':
			if end := entityEnd(runes, i); end > 0 {
				j = end
			}
		}
		out = append(out, token{kind: kindText, raw: string(runes[i:j])})
		i = j
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\''
}

// entityEnd returns the index just past a character reference starting at i, or 0.
func entityEnd(runes []rune, i int) int {
	for j := i + 1; j < len(runes) && j-i <= 32; j++ {
		r := runes[j]
		if r == ';' {
			if j == i+1 {
				return 0
			}
			return j + 1
		}
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '#') {
			return 0
		}
	}
	return 0
}
