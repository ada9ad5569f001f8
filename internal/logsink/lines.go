package logsink

import "unicode/utf8"

// SplitLines splits text into physical lines.
//
// Line boundaries are \n, \r\n, \r, \v, \f, the file/group/record separators
// (\x1c, \x1d, \x1e), NEL (U+0085), LINE SEPARATOR (U+2028) and PARAGRAPH
// SEPARATOR (U+2029). Boundaries are not included in the result. A trailing
// boundary does not produce an empty final line, and empty text yields no
// lines.
func SplitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if i < start {
			// second byte of a \r\n pair
			continue
		}
		if !isLineBreak(r) {
			continue
		}
		lines = append(lines, text[start:i])
		start = i + utf8.RuneLen(r)
		if r == '\r' && start < len(text) && text[start] == '\n' {
			start++
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
