package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyText = `Star Health Plan
The policy covers hospitalisation expenses for the insured person.
Hospitalisation expenses include room rent, nursing and surgeon fees.
Claims must be intimated within 48 hours of admission.
Page 3 of 12`

func TestSummarizePicksFrequentSentencesInOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	got, err := s.Summarize(policyText, 2)
	require.NoError(t, err)
	assert.Equal(t, "The policy covers hospitalisation expenses for the insured person. Hospitalisation expenses include room rent, nursing and surgeon fees.", got)
}

func TestSummarizeSkipsShortFragments(t *testing.T) {
	s := NewFrequencySummarizer()
	got, err := s.Summarize(policyText, 10)
	require.NoError(t, err)
	assert.NotContains(t, got, "Page 3 of 12")
	assert.NotContains(t, got, "Star Health Plan")
	assert.Contains(t, got, "Claims must be intimated within 48 hours of admission.")
}

func TestSummarizeFallsBackToWholeText(t *testing.T) {
	s := NewFrequencySummarizer()
	got, err := s.Summarize("  Schedule   of\nbenefits ", 0)
	require.NoError(t, err)
	assert.Equal(t, "Schedule of benefits", got)

	got, err = s.Summarize("", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
