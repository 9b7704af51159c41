// Package mcpserver exposes the policy assistant as MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"policyrag/internal/answer"
	"policyrag/internal/domain"
	"policyrag/internal/retrieval"
)

const Version = "0.1.0"

var (
	ErrMissingAnswerer  = errors.New("answerer is required")
	ErrMissingRetriever = errors.New("retriever is required")
)

type Answerer interface {
	Answer(ctx context.Context, question string) (answer.Result, error)
}

type Retriever interface {
	RetrieveWith(ctx context.Context, query string, p retrieval.Params) ([]domain.RetrievalResult, error)
}

// DocumentLister is optional; without it list_policy_documents is not
// registered.
type DocumentLister interface {
	Documents(ctx context.Context) ([]domain.IngestionRecord, error)
}

type Ports struct {
	Answerer  Answerer
	Retriever Retriever
	Documents DocumentLister
}

func (p *Ports) Validate() error {
	if p.Answerer == nil {
		return ErrMissingAnswerer
	}
	if p.Retriever == nil {
		return ErrMissingRetriever
	}
	return nil
}

type Server struct {
	ports  *Ports
	server *mcp.Server
}

func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	s := &Server{
		ports:  ports,
		server: mcp.NewServer(&mcp.Implementation{Name: "policyrag", Version: Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
