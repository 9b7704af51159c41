package domain

import "time"

// BlockType distinguishes paragraph text from detected tables.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockTable     BlockType = "table"
)

// ChunkType is the metadata type of a stored chunk.
type ChunkType string

const (
	ChunkText  ChunkType = "text"
	ChunkTable ChunkType = "table"
)

// Provenance describes where a block came from.
// PlanName and ProductName follow the .../plan/product/file.pdf convention.
type Provenance struct {
	PlanName    string `json:"plan_name"`
	ProductName string `json:"product_name"`
	FileName    string `json:"file_name"`
	Source      string `json:"source"`
}

// Block is one typed, page-located unit of extracted PDF content.
// Content is raw text for paragraphs and HTML table markup for tables.
type Block struct {
	Type       BlockType
	Content    string
	PageNumber int
	Y          float64
	Provenance
}

// Metadata is attached to every stored chunk.
type Metadata struct {
	Provenance
	PageNumber int       `json:"page_number"`
	Type       ChunkType `json:"type"`
	DocumentID string    `json:"document_id,omitempty"`
	ChunkID    string    `json:"chunk_id,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	IngestedAt string    `json:"ingested_at,omitempty"`
}

// Document is a retrieval unit: normalized text plus provenance.
type Document struct {
	PageContent string   `json:"page_content"`
	Metadata    Metadata `json:"metadata"`
}

// ScoredDocument is a vector store hit. Distance is ascending-better.
type ScoredDocument struct {
	Document Document
	Distance float64
}

// RetrievalResult pairs a document with a similarity score in [0,1].
type RetrievalResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// IngestionRecord is the ledger entry for one ingested file.
type IngestionRecord struct {
	Checksum   string    `json:"checksum"`
	DocumentID string    `json:"document_id"`
	FileName   string    `json:"file_name"`
	Source     string    `json:"source"`
	Chunks     int       `json:"chunks"`
	Summary    string    `json:"summary,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}
