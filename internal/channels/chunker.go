package channels

import (
	"strings"
	"unicode"
)

// DefaultMaxMessageLength is the largest single message the chat service
// accepts before replies must be split.
const DefaultMaxMessageLength = 4000

// Chunker splits long replies into transport-sized messages, preferring
// natural boundaries: paragraph breaks, then line breaks, then sentence
// endings, then word boundaries, then a hard cut.
type Chunker struct {
	MaxSize int
}

// NewChunker creates a chunker with the given max size.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageLength
	}
	return &Chunker{MaxSize: maxSize}
}

// Split breaks text into pieces no longer than MaxSize.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.MaxSize {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > c.MaxSize {
		idx := c.breakPoint(remaining)
		chunk := strings.TrimRightFunc(remaining[:idx], unicode.IsSpace)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeftFunc(remaining[idx:], unicode.IsSpace)
	}
	if remaining = strings.TrimSpace(remaining); remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func (c *Chunker) breakPoint(text string) int {
	window := text[:c.MaxSize]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndexByte(window, '\n'); idx > 0 {
		return idx
	}
	for i := len(window) - 1; i > 0; i-- {
		switch window[i] {
		case '.', '!', '?':
			if i+1 < len(window) && window[i+1] == ' ' {
				return i + 1
			}
		}
	}
	if idx := strings.LastIndexByte(window, ' '); idx > 0 {
		return idx
	}
	return c.MaxSize
}
