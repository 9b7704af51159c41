package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLayoutExtraction marks a PDF that could not be read or parsed.
	ErrLayoutExtraction = errors.New("layout extraction failed")

	// ErrChunking marks malformed block input.
	ErrChunking = errors.New("chunking failed")

	// ErrRetrievalUnavailable marks an unreachable or failing vector store.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// LayoutExtractionError wraps a failure to extract blocks from one file.
type LayoutExtractionError struct {
	Path string
	Err  error
}

func (e *LayoutExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *LayoutExtractionError) Unwrap() []error { return []error{ErrLayoutExtraction, e.Err} }

// ChunkingError reports a block that cannot be turned into chunks.
type ChunkingError struct {
	Page   int
	Reason string
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunk page %d: %s", e.Page, e.Reason)
}

func (e *ChunkingError) Unwrap() error { return ErrChunking }

// RetrievalUnavailableError wraps a vector store failure on the read path.
type RetrievalUnavailableError struct {
	Err error
}

func (e *RetrievalUnavailableError) Error() string {
	return fmt.Sprintf("retrieval unavailable: %v", e.Err)
}

func (e *RetrievalUnavailableError) Unwrap() []error {
	return []error{ErrRetrievalUnavailable, e.Err}
}
