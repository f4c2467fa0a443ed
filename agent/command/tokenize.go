package command

import (
	"strings"
	"unicode"
)

var closingQuote = map[rune]rune{
	'"':      '"',
	'\'':     '\'',
	'\u201c': '\u201d',
	'\u2018': '\u2019',
	'\u201e': '\u201d',
}

// Tokenize splits s on whitespace, keeping quoted substrings together.
// A quote only opens at the start of a token so apostrophes inside words
// survive; an unterminated quote runs to the end of the input.
func Tokenize(s string) []string {
	var (
		tokens  []string
		current strings.Builder
		inToken bool
		closing rune
		quoted  bool
	)

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
		}
		current.Reset()
		inToken = false
	}

	for _, r := range s {
		switch {
		case quoted:
			if r == closing || (closing == '"' && r == '\u201d') {
				quoted = false
				continue
			}
			current.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		case !inToken && isOpeningQuote(r):
			closing = closingQuote[r]
			quoted = true
			inToken = true
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	flush()
	return tokens
}

func isOpeningQuote(r rune) bool {
	_, ok := closingQuote[r]
	return ok
}
