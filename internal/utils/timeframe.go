package utils

import "regexp"

// timeframePatterns recognise the ways a reading places an event in time:
// calendar years, decades, months, ages, and relative spans.
var timeframePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(19|20)\d{2}s?\b`),
	regexp.MustCompile(`\b(January|February|March|April|June|July|August|September|October|November|December)\b`),
	regexp.MustCompile(`\bMay(,| of)? (19|20)\d{2}\b`),
	regexp.MustCompile(`(?i)\b(early|mid|late)[- ]((19|20)?\d0s|'\d0s|twenties|thirties|forties|fifties|sixties|seventies|eighties)\b`),
	regexp.MustCompile(`(?i)\byour (\d0s|twenties|thirties|forties|fifties|sixties|seventies|eighties)\b`),
	regexp.MustCompile(`(?i)\bages? (of )?\d{1,3}\b`),
	regexp.MustCompile(`(?i)\b(next|coming|following|upcoming|past|last|first) (few |couple of |\d+ |two |three |four |five |six |seven |eight |nine |ten |twelve |eighteen )?(years?|months?|decades?|weeks?)\b`),
	regexp.MustCompile(`(?i)\b(within|in|for|over|after) (the )?(\d+|a|one|two|three|four|five|six|seven|eight|nine|ten|twelve|eighteen)[- ](years?|months?|decades?|weeks?)\b`),
	regexp.MustCompile(`(?i)\b(this|next|last) (year|month|spring|summer|autumn|fall|winter)\b`),
	regexp.MustCompile(`\bQ[1-4]\b`),
}

// ContainsTimeframe reports whether text names a date, date range or
// timeline that a reader could place on a calendar.
func ContainsTimeframe(text string) bool {
	for _, re := range timeframePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
