// Package mdtext holds the line-level markdown rules shared by the extractors
// and the chunker: fences, ATX headings and noise-line cleanup.
package mdtext

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/webrag/internal/core/domain"
)

const minLineLength = 3

var (
	linkPattern     = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	escapeReplacer  = strings.NewReplacer(`\_`, `_`, `\*`, `*`, `\#`, `#`, `\.`, `.`, `\-`, `-`, `\+`, `+`, `\!`, `!`, `\[`, `[`, `\]`, `]`, `\(`, `(`, `\)`, `)`, "\\`", "`")
	navLinePrefixes = []string{"menu", "navigation", "skip to", "home |"}
)

func IsFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// ParseHeading recognizes "# Title" through "###### Title".
func ParseHeading(line string) (int, string, bool) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(trimmed) || trimmed[level] != ' ' {
		return 0, "", false
	}
	text := HeadingText(trimmed[level+1:])
	if text == "" {
		return 0, "", false
	}
	return level, text, true
}

// HeadingText strips link syntax, escapes and closing hashes from a heading.
func HeadingText(raw string) string {
	text := linkPattern.ReplaceAllString(raw, "$1")
	text = escapeReplacer.Replace(text)
	text = strings.TrimRight(strings.TrimSpace(text), "#")
	return strings.Join(strings.Fields(text), " ")
}

// Headings lists the ATX headings outside code fences in document order.
func Headings(text string) []domain.Heading {
	var out []domain.Heading
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if IsFence(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if level, heading, ok := ParseHeading(line); ok {
			out = append(out, domain.Heading{Level: level, Text: heading})
		}
	}
	return out
}

// Normalize collapses whitespace, removes empty and noise lines, and keeps
// heading markers and code fences intact.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false

	for _, line := range lines {
		if IsFence(line) {
			inFence = !inFence
			out = append(out, strings.TrimSpace(line))
			continue
		}
		if inFence {
			if strings.TrimSpace(line) != "" {
				out = append(out, strings.TrimRight(line, " \t"))
			}
			continue
		}

		collapsed := strings.Join(strings.Fields(line), " ")
		if collapsed == "" || IsNoiseLine(collapsed) {
			continue
		}
		out = append(out, collapsed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func IsNoiseLine(line string) bool {
	if _, _, ok := ParseHeading(line); ok {
		return false
	}
	if utf8.RuneCountInString(line) < minLineLength {
		return true
	}

	lower := strings.ToLower(line)
	for _, prefix := range navLinePrefixes {
		if lower == prefix || strings.HasPrefix(lower, prefix+" ") || strings.HasPrefix(lower, prefix+":") ||
			(strings.Contains(prefix, "|") && strings.HasPrefix(lower, prefix)) {
			return true
		}
	}

	tableRow := strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|")
	if !tableRow && strings.Trim(line, "-=_*|:#~ ") == "" {
		return true
	}
	if !tableRow && strings.Count(line, "|") > 5 {
		return true
	}
	return false
}

// RuneLen counts characters the way chunk sizes are measured.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
