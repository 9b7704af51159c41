// Package prompts renders the chat prompts from embedded templates.
package prompts

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

const (
	// Refusal is the exact reply when the context does not answer a question.
	Refusal = "I'm sorry, I do not have information regarding this."

	// Unavailable is returned when retrieval itself failed.
	Unavailable = "The document service is temporarily unavailable. Please try again later."

	// Unanswerable is the expected answer for generated questions the
	// documents cannot answer.
	Unanswerable = "Information not available in the provided documents."
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

// JudgeInput carries one evaluated question.
type JudgeInput struct {
	Question         string
	ExpectedAnswer   string
	GeneratedAnswer  string
	RetrievedContext string
}

// AnswerSystem renders the grounded answering system prompt.
func AnswerSystem(context string) (string, error) {
	return render("answer_system.tmpl", map[string]string{"Context": context, "Refusal": Refusal})
}

// Dataset renders the prompt asking for one evaluation item.
func Dataset(context string) (string, error) {
	return render("dataset.tmpl", map[string]string{"Context": context, "Unanswerable": Unanswerable})
}

// Judge renders the grading prompt.
func Judge(in JudgeInput) (string, error) {
	return render("judge.tmpl", in)
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}
