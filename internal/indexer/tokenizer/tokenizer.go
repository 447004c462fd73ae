// Package tokenizer splits document text into index terms. A term is a
// maximal run of alphabetic or numeric runes, lowercased; every other rune
// separates terms. Alphabetic includes the Other_Alphabetic marks, so
// dependent vowel signs stay attached to their word.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	capitalSigma = 'Σ'
	finalSigma   = 'ς'
)

// Tokenize breaks text into lowercased alphanumeric terms in the order they
// appear. Text with no letters or digits yields an empty slice.
func Tokenize(text string) []string {
	return strings.FieldsFunc(lower(text), isSeparator)
}

func isSeparator(r rune) bool {
	return !unicode.In(r, unicode.L, unicode.N, unicode.Other_Alphabetic)
}

// lower is strings.ToLower plus the Greek final sigma rule: a capital sigma
// that ends a word lowercases to ς rather than σ.
func lower(text string) string {
	if !strings.ContainsRune(text, capitalSigma) {
		return strings.ToLower(text)
	}
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range text {
		if r == capitalSigma && endsWord(text, i) {
			b.WriteRune(finalSigma)
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// endsWord reports whether the rune at i is preceded by a cased letter and
// not followed by one, skipping case-ignorable runes in both directions.
func endsWord(text string, i int) bool {
	before := false
	for j := i; j > 0; {
		r, size := utf8.DecodeLastRuneInString(text[:j])
		j -= size
		if isCaseIgnorable(r) {
			continue
		}
		before = isCased(r)
		break
	}
	if !before {
		return false
	}
	for j := i + utf8.RuneLen(capitalSigma); j < len(text); {
		r, size := utf8.DecodeRuneInString(text[j:])
		j += size
		if isCaseIgnorable(r) {
			continue
		}
		return !isCased(r)
	}
	return true
}

func isCased(r rune) bool {
	return unicode.In(r, unicode.Lu, unicode.Ll, unicode.Lt, unicode.Other_Lowercase, unicode.Other_Uppercase)
}

func isCaseIgnorable(r rune) bool {
	switch r {
	case '\'', '.', ':', '\u00b7', '\u0387', '\u05f4', '\u2018', '\u2019', '\u2024', '\u2027',
		'\ufe13', '\ufe52', '\ufe55', '\uff07', '\uff0e', '\uff1a':
		return true
	}
	return unicode.In(r, unicode.Mn, unicode.Me, unicode.Cf, unicode.Lm, unicode.Sk)
}
