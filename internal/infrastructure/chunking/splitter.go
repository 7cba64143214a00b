package chunking

import (
	"strings"
	"unicode"
)

// separators are tried in priority order when looking for a soft cut.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Split cuts text into windows of at most ChunkSize runes. Consecutive
// windows share up to Overlap runes.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/(s.ChunkSize-s.Overlap)+1)
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				out = append(out, chunk)
			}
			break
		}

		end = s.softCut(runes, start, end)
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		start = s.nextStart(runes, start, end)
	}
	return out
}

// softCut moves end back to the last separator in the second half of the
// window, falling back to a hard cut.
func (s *Splitter) softCut(runes []rune, start, end int) int {
	floor := start + s.ChunkSize/2
	window := runes[floor:end]
	for _, sep := range separators {
		sepRunes := []rune(sep)
		if idx := lastIndex(window, sepRunes); idx >= 0 {
			return floor + idx + len(sepRunes)
		}
	}
	return end
}

func (s *Splitter) nextStart(runes []rune, start, end int) int {
	next := end - s.Overlap
	if next <= start {
		return end
	}
	for i := next; i < end; i++ {
		if isWordStart(runes, i) {
			return i
		}
	}
	return next
}

func isWordStart(runes []rune, i int) bool {
	if i == 0 {
		return !unicode.IsSpace(runes[0])
	}
	return unicode.IsSpace(runes[i-1]) && !unicode.IsSpace(runes[i])
}

func lastIndex(haystack, needle []rune) int {
	for i := len(haystack) - len(needle); i >= 0; i-- {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
