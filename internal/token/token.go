// Package token provides token counting used by the chunker and by
// payload size guards. Counts are provider-agnostic approximations; the
// heuristic is calibrated to roughly four characters per token.
package token

import (
	"unicode"
	"unicode/utf8"
)

// CharsPerToken is the character-to-token ratio used when converting a
// token budget into a character offset.
const CharsPerToken = 3.5

// Estimate returns a fast heuristic token count based on rune length.
// It is deterministic and monotonic in the input length, which the
// boundary splitter relies on.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// Count scans the text and counts word and punctuation tokens. It is
// slower than Estimate but closer to what tokenizers produce on prose.
func Count(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				count++
				inWord = true
			}
		default:
			// Punctuation and symbols count as standalone tokens.
			count++
			inWord = false
		}
	}
	return count
}

// Offset converts a token budget to an approximate character offset.
func Offset(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return int(float64(tokens) * CharsPerToken)
}
