package chunker

import (
	"strings"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text on the coarsest separator that keeps pieces within
// size tokens, then merges neighbouring pieces back up to size with overlap
// tokens shared between consecutive chunks.
type Splitter struct {
	tok        Tokenizer
	size       int
	overlap    int
	separators []string
}

// NewSplitter returns a recursive splitter measuring length with tok.
func NewSplitter(tok Tokenizer, size, overlap int) *Splitter {
	return &Splitter{tok: tok, size: size, overlap: overlap, separators: defaultSeparators}
}

// Split returns the chunks of text in order. Every chunk is at most size
// tokens unless a single rune exceeds it.
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) count(text string) int { return len(s.tok.Encode(text)) }

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, c := range separators {
		if c == "" {
			sep = c
			break
		}
		if strings.Contains(text, c) {
			sep = c
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitOn(text, sep) {
		if s.count(piece) <= s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, sep)...)
	}
	return final
}

func (s *Splitter) merge(pieces []string, sep string) []string {
	var docs []string
	var cur []string
	for _, p := range pieces {
		if len(cur) > 0 && s.count(join(cur, sep, p)) > s.size {
			if doc := join(cur, sep, ""); doc != "" {
				docs = append(docs, doc)
			}
			for len(cur) > 0 && (s.count(join(cur, sep, "")) > s.overlap || s.count(join(cur, sep, p)) > s.size) {
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
	}
	if doc := join(cur, sep, ""); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// join concatenates cur and an optional next piece with sep, trimmed.
func join(cur []string, sep, next string) string {
	s := strings.Join(cur, sep)
	if next != "" {
		if s != "" {
			s += sep
		}
		s += next
	}
	return strings.TrimSpace(s)
}

func splitOn(text, sep string) []string {
	var parts []string
	if sep == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, p := range strings.Split(text, sep) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
