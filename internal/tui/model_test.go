package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/internal/answer"
)

type stubAsker struct {
	res answer.Result
	err error
}

func (s stubAsker) Answer(context.Context, string) (answer.Result, error) { return s.res, s.err }

func typed(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func TestEnterAsksAndShowsAnswer(t *testing.T) {
	res := answer.Result{
		Answer: "Coverage starts at 18. The term is 20 years.",
		Details: []answer.Detail{
			{Rank: 1, DocumentName: "jeevan.pdf", PageNumber: 2, SemanticScore: 0.71},
			{Rank: 2, DocumentName: "anand.pdf", PageNumber: 5, SemanticScore: 0.55},
		},
	}
	m := sized(New(context.Background(), stubAsker{res: res}, "2 documents"))
	m = typed(m, "what is the term")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.busy)
	require.NotNil(t, m.result)
	assert.Contains(t, m.renderSource(), "Source 1/2  jeevan.pdf  page 2  score=0.71")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Contains(t, m.renderSource(), "anand.pdf")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 0, m.cursor)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	assert.Equal(t, 1, m.cursor)

	assert.Contains(t, m.View(), "Policy Assistant")
}

func TestAnswerErrorShowsStatus(t *testing.T) {
	m := sized(New(context.Background(), stubAsker{err: errors.New("model offline")}, ""))
	next, _ := m.Update(answerMsg{question: "q", err: errors.New("model offline")})
	m = next.(Model)
	assert.Nil(t, m.result)
	assert.True(t, strings.HasPrefix(m.status, "Error: model offline"))
	assert.Equal(t, "No sources.", m.renderSource())
}

func TestDegradedAnswerFlagged(t *testing.T) {
	m := sized(New(context.Background(), stubAsker{}, ""))
	next, _ := m.Update(answerMsg{question: "q", result: answer.Result{Answer: "unavailable", Degraded: true}})
	m = next.(Model)
	assert.Contains(t, m.status, "retrieval unavailable")
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("Entry age is 18. Policy term is 20 years.", "policy term")
	assert.Contains(t, out, "Entry age is 18.")
	assert.Contains(t, out, "Policy term is 20 years.")
	assert.Equal(t, "", highlightBestSentence("", "x"))
	assert.Equal(t, "One. Two.", highlightBestSentence("One.  Two.", ""))
}
