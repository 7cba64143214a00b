package chunking

import (
	"strings"

	"github.com/kirillkom/webrag/internal/infrastructure/mdtext"
)

const maxSectionLevel = 3

type section struct {
	headingPath []string
	body        string
}

type openHeading struct {
	level int
	text  string
}

// sections splits markdown on H1-H3 headings. Each section carries the path
// of headings still open above it; the heading line itself is not body text.
func sections(text string) []section {
	var (
		out     []section
		stack   []openHeading
		body    []string
		inFence bool
	)

	flush := func() {
		joined := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if joined == "" {
			return
		}
		path := make([]string, len(stack))
		for i, h := range stack {
			path[i] = h.text
		}
		out = append(out, section{headingPath: path, body: joined})
	}

	for _, line := range strings.Split(text, "\n") {
		if mdtext.IsFence(line) {
			inFence = !inFence
			body = append(body, line)
			continue
		}
		if !inFence {
			if level, heading, ok := mdtext.ParseHeading(line); ok && level <= maxSectionLevel {
				flush()
				for len(stack) > 0 && stack[len(stack)-1].level >= level {
					stack = stack[:len(stack)-1]
				}
				stack = append(stack, openHeading{level: level, text: heading})
				continue
			}
		}
		body = append(body, line)
	}
	flush()
	return out
}
