package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitterRespectsSizeAndOverlaps(t *testing.T) {
	var words []string
	for i := 0; i < 100; i++ {
		words = append(words, fmt.Sprintf("w%02d", i))
	}
	text := strings.Join(words, " ")

	chunks := NewSplitter(runeTokenizer{}, 20, 8).Split(text)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 20, "chunk %d", i)
		if i > 0 {
			first := strings.Fields(c)[0]
			assert.Contains(t, chunks[i-1], first, "chunk %d does not overlap its predecessor", i)
		}
	}
	joined := strings.Join(chunks, " ")
	for _, w := range words {
		assert.Contains(t, joined, w)
	}
}

func TestSplitterPrefersParagraphBoundaries(t *testing.T) {
	chunks := NewSplitter(runeTokenizer{}, 10, 0).Split("aaaa\n\nbbbb\n\ncccc")
	assert.Equal(t, []string{"aaaa\n\nbbbb", "cccc"}, chunks)
}

func TestSplitterFallsBackToRunes(t *testing.T) {
	chunks := NewSplitter(runeTokenizer{}, 4, 0).Split("abcdefghij")
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)
}

func TestSplitterEmptyText(t *testing.T) {
	assert.Empty(t, NewSplitter(runeTokenizer{}, 10, 2).Split(""))
}
