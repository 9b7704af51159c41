package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/internal/domain"
	"policyrag/internal/llm"
	"policyrag/internal/prompts"
)

type stubRetriever struct {
	results []domain.RetrievalResult
	err     error
}

func (s stubRetriever) Retrieve(context.Context, string) ([]domain.RetrievalResult, error) {
	return s.results, s.err
}

// scriptedModel records what it was asked and replies with a fixed answer.
type scriptedModel struct {
	reply string
	err   error
	calls [][]llm.Message
}

func (m *scriptedModel) Chat(_ context.Context, msgs []llm.Message) (string, error) {
	m.calls = append(m.calls, msgs)
	return m.reply, m.err
}

func result(text, file, source string, page int, score float64) domain.RetrievalResult {
	return domain.RetrievalResult{
		Document: domain.Document{
			PageContent: text,
			Metadata: domain.Metadata{
				Provenance: domain.Provenance{FileName: file, Source: source},
				PageNumber: page,
			},
		},
		Score: score,
	}
}

func TestAnswerBuildsContextAndCitations(t *testing.T) {
	model := &scriptedModel{reply: "According to the policy documents, entry age is 18 to 65."}
	g := New(stubRetriever{results: []domain.RetrievalResult{
		result("Entry age 18 to 65", "plan-y.pdf", "docs/lic/plan-y/plan-y.pdf", 3, 0.6234),
		result("Age | 18", "plan-y.pdf", "docs/lic/plan-y/plan-y.pdf", 4, 0.5),
	}}, model, nil)

	res, err := g.Answer(context.Background(), " eligibility age for Plan Y ")
	require.NoError(t, err)
	assert.Equal(t, model.reply, res.Answer)
	assert.False(t, res.Degraded)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, Source{DocumentName: "plan-y.pdf", PageNumber: 3, Source: "docs/lic/plan-y/plan-y.pdf"}, res.Sources[0])
	assert.Equal(t, Detail{Rank: 2, DocumentName: "plan-y.pdf", PageNumber: 4, SemanticScore: 0.5}, res.Details[1])
	assert.Equal(t, 0.62, res.Details[0].SemanticScore)

	require.Len(t, model.calls, 1)
	msgs := model.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, res.RetrievalContext)
	assert.Equal(t, llm.User("eligibility age for Plan Y"), msgs[1])
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]domain.RetrievalResult{result("Entry age 18 to 65", "y.pdf", "a/b/y.pdf", 3, 0.6234)})
	want := "--- Document 1 ---\n" +
		"Source: a/b/y.pdf\n" +
		"Document Name: y.pdf\n" +
		"Page Number: 3\n" +
		"Semantic Score: 0.62\n\n" +
		"Content:\n" +
		"Entry age 18 to 65"
	assert.Equal(t, want, got)
}

func TestAnswerRefusesWithoutContext(t *testing.T) {
	model := &scriptedModel{reply: "made up"}
	res, err := New(stubRetriever{}, model, nil).Answer(context.Background(), "What is the moon made of?")
	require.NoError(t, err)
	assert.Equal(t, "I'm sorry, I do not have information regarding this.", res.Answer)
	assert.Empty(t, model.calls)
	assert.Empty(t, res.Sources)
}

func TestAnswerDegradesWhenRetrievalUnavailable(t *testing.T) {
	model := &scriptedModel{reply: "made up"}
	r := stubRetriever{err: &domain.RetrievalUnavailableError{Err: errors.New("connection refused")}}
	res, err := New(r, model, nil).Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, prompts.Unavailable, res.Answer)
	assert.Empty(t, model.calls)
}

func TestAnswerErrors(t *testing.T) {
	_, err := New(stubRetriever{}, &scriptedModel{}, nil).Answer(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	model := &scriptedModel{err: errors.New("rate limited")}
	g := New(stubRetriever{results: []domain.RetrievalResult{result("x", "f.pdf", "f.pdf", 1, 0.9)}}, model, nil)
	_, err = g.Answer(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
