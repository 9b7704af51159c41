package mcpserver

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"policyrag/internal/answer"
	"policyrag/internal/retrieval"
)

type AskInput struct {
	Question string `json:"question" jsonschema:"the question about the policy documents"`
}

type AskOutput struct {
	Answer   string          `json:"answer"`
	Sources  []answer.Source `json:"sources,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`
}

type RetrieveInput struct {
	Query     string   `json:"query" jsonschema:"text to search the policy documents for"`
	K         int      `json:"k,omitempty" jsonschema:"maximum number of chunks to return"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum similarity score between 0 and 1"`
}

type RetrieveOutput struct {
	Chunks []ChunkOutput `json:"chunks"`
	Count  int           `json:"count"`
}

type ChunkOutput struct {
	Content      string  `json:"content"`
	DocumentName string  `json:"document_name"`
	PlanName     string  `json:"plan_name,omitempty"`
	PageNumber   int     `json:"page_number"`
	Type         string  `json:"type"`
	Source       string  `json:"source"`
	Score        float64 `json:"score"`
}

type DocumentsInput struct{}

type DocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
}

type DocumentOutput struct {
	FileName   string `json:"file_name"`
	Source     string `json:"source"`
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Summary    string `json:"summary,omitempty"`
	IngestedAt string `json:"ingested_at"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_policy_question",
		Description: "Answer a question from the ingested policy documents, with citations",
	}, s.handleAsk)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_policy_chunks",
		Description: "Return the policy document chunks most similar to a query",
	}, s.handleRetrieve)
	if s.ports.Documents != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_policy_documents",
			Description: "List the ingested policy documents",
		}, s.handleDocuments)
	}
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	res, err := s.ports.Answerer.Answer(ctx, strings.TrimSpace(input.Question))
	if err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{Answer: res.Answer, Sources: res.Sources, Degraded: res.Degraded}, nil
}

func (s *Server) handleRetrieve(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (*mcp.CallToolResult, RetrieveOutput, error) {
	results, err := s.ports.Retriever.RetrieveWith(ctx, strings.TrimSpace(input.Query), retrieval.Params{K: input.K, Threshold: input.Threshold})
	if err != nil {
		return nil, RetrieveOutput{}, err
	}
	out := RetrieveOutput{Chunks: make([]ChunkOutput, len(results)), Count: len(results)}
	for i, r := range results {
		md := r.Document.Metadata
		out.Chunks[i] = ChunkOutput{
			Content:      r.Document.PageContent,
			DocumentName: md.FileName,
			PlanName:     md.PlanName,
			PageNumber:   md.PageNumber,
			Type:         string(md.Type),
			Source:       md.Source,
			Score:        r.Score,
		}
	}
	return nil, out, nil
}

func (s *Server) handleDocuments(ctx context.Context, _ *mcp.CallToolRequest, _ DocumentsInput) (*mcp.CallToolResult, DocumentsOutput, error) {
	docs, err := s.ports.Documents.Documents(ctx)
	if err != nil {
		return nil, DocumentsOutput{}, err
	}
	out := DocumentsOutput{Documents: make([]DocumentOutput, len(docs))}
	for i, d := range docs {
		out.Documents[i] = DocumentOutput{
			FileName:   d.FileName,
			Source:     d.Source,
			DocumentID: d.DocumentID,
			Chunks:     d.Chunks,
			Summary:    d.Summary,
			IngestedAt: d.IngestedAt.UTC().Format(time.RFC3339),
		}
	}
	return nil, out, nil
}
