package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Words ending in a period that do not end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "st": true, "jr": true, "sr": true,
	"vs": true, "e.g": true, "i.e": true, "approx": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true,
	"aug": true, "sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
}

// sentenceEnds returns the byte offsets just past each sentence terminator.
// Text after the last terminator counts as a final sentence.
func sentenceEnds(text string) []int {
	var ends []int
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i
		// Fold "?!", "..." and closing quotes or brackets into the terminator.
		for end < len(text) {
			next, n := utf8.DecodeRuneInString(text[end:])
			if !strings.ContainsRune(`.!?"')]”’`, next) {
				break
			}
			end += n
		}
		if end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(next) {
				i = end
				continue
			}
		}
		if r == '.' && isAbbreviation(text[:i-size]) {
			i = end
			continue
		}
		ends = append(ends, end)
		i = end
	}
	if len(ends) == 0 || strings.TrimSpace(text[ends[len(ends)-1]:]) != "" {
		ends = append(ends, len(text))
	}
	return ends
}

// isAbbreviation looks at the word immediately before a period.
func isAbbreviation(before string) bool {
	start := strings.LastIndexFunc(before, unicode.IsSpace) + 1
	word := strings.TrimLeft(before[start:], `"'(`)
	if word == "" {
		return false
	}
	// Single initials such as the "V" in "B.V. Raman".
	if r, n := utf8.DecodeRuneInString(word); n == len(word) && unicode.IsUpper(r) {
		return true
	}
	if strings.Contains(word, ".") && !strings.HasSuffix(word, ".") {
		last := word[strings.LastIndex(word, ".")+1:]
		if r, n := utf8.DecodeRuneInString(last); n == len(last) && unicode.IsLetter(r) {
			return true
		}
	}
	return abbreviations[strings.ToLower(word)]
}

// CountSentences returns the number of sentences in text.
func CountSentences(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return len(sentenceEnds(strings.TrimSpace(text)))
}

// LimitSentences keeps at most max leading sentences of text.
func LimitSentences(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || text == "" {
		return text
	}
	ends := sentenceEnds(text)
	if len(ends) <= max {
		return text
	}
	return strings.TrimSpace(text[:ends[max-1]])
}
