package tutor

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// FollowUpExtractor pulls a follow-up question out of a free-text teacher reply.
// Implementations return ok=false when they find nothing; they never call providers.
type FollowUpExtractor interface {
	Extract(reply string) (question string, ok bool)
}

var DefaultFollowUpMarkers = []string{
	"Follow-up Question:",
	"Follow-up question:",
	"Follow-Up Question:",
	"Follow up question:",
}

// DeflectionPhrases are generic non-questions a model sometimes puts where the
// follow-up should be. Matched case-insensitively.
var DeflectionPhrases = []string{
	"ask the student",
	"follow-up question to",
	"i'd be happy to",
	"i would be happy to",
	"let me know",
	"do you have any questions",
	"do you have any other questions",
	"any further questions",
	"as an ai",
}

// minFollowUpRunes: candidates of 10 runes or fewer are treated as noise.
const minFollowUpRunes = 11

// MarkerExtractor scans reply lines for the first one containing a marker phrase
// (case-sensitive). The marker is removed and list/markdown decoration trimmed. When
// the marked line has nothing left, the next non-empty line is used instead.
type MarkerExtractor struct {
	Markers []string
}

func NewMarkerExtractor() *MarkerExtractor {
	return &MarkerExtractor{Markers: DefaultFollowUpMarkers}
}

func (e *MarkerExtractor) Extract(reply string) (string, bool) {
	markers := e.Markers
	if len(markers) == 0 {
		markers = DefaultFollowUpMarkers
	}
	return findMarkedLine(reply, markers, false)
}

// NeedsRegeneration reports whether a follow-up candidate must be replaced.
func NeedsRegeneration(candidate string) bool {
	if !plausible(candidate) {
		return true
	}
	low := strings.ToLower(candidate)
	for _, p := range DeflectionPhrases {
		if strings.Contains(low, p) {
			return true
		}
	}
	return false
}

func plausible(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= minFollowUpRunes
}

// findMarkedLine returns the text of the first line containing any marker. Only the
// part before the marker is treated as decoration (list index, bullet, heading, bold);
// the text after it is kept as written apart from emphasis and wrapping quotes.
// afterColon drops everything up to the first ':' following the marker, which suits
// headings like "3. Diagram description: ...".
func findMarkedLine(reply string, markers []string, afterColon bool) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")
	for i, line := range lines {
		for _, m := range markers {
			idx := strings.Index(line, m)
			if idx < 0 {
				continue
			}
			rest := line[idx+len(m):]
			if afterColon {
				if c := strings.Index(rest, ":"); c >= 0 {
					rest = rest[c+1:]
				}
			}
			cand := unquote(trimEmphasis(rest))
			if lead := stripListMarker(line[:idx]); lead != "" && cand != "" {
				cand = lead + " " + cand
			}
			if cand == "" {
				cand = nextNonEmpty(lines[i+1:])
			}
			return cand, cand != ""
		}
	}
	return "", false
}

func nextNonEmpty(lines []string) string {
	for _, l := range lines {
		if c := unquote(stripListMarker(l)); c != "" {
			return c
		}
	}
	return ""
}

// stripListMarker removes, once each, a heading/quote prefix, a bullet ("- ", "* ",
// "• ") and a "5." or "5)" list index, then surrounding emphasis.
func stripListMarker(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimLeft(s, "#>"))
	for _, b := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(s, b) {
			s = strings.TrimSpace(s[len(b):])
			break
		}
	}
	return trimEmphasis(trimNumbering(s))
}

// trimEmphasis drops markdown bold/italic markers around s.
func trimEmphasis(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_"))
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// trimNumbering removes a leading "5." or "5)" list index. The index must be followed by
// whitespace (or end the string), so "2.5 kg" is left alone.
func trimNumbering(s string) string {
	i := 0
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	if i == 0 || i >= len(s) || (s[i] != '.' && s[i] != ')') {
		return s
	}
	if i+1 < len(s) && !unicode.IsSpace(rune(s[i+1])) {
		return s
	}
	return strings.TrimSpace(s[i+1:])
}
