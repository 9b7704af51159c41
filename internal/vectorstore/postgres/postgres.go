// Package postgres stores chunk vectors in PostgreSQL with the pgvector
// extension.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"policyrag/internal/domain"
	"policyrag/internal/vectorstore"
)

const (
	dimsQuery = `SELECT vector_dims(embedding) FROM policy_chunks WHERE collection = $1 LIMIT 1`

	insertQuery = `INSERT INTO policy_chunks (chunk_id, collection, document_id, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6)`

	searchQuery = `SELECT content, metadata, embedding %s $1::vector AS distance
FROM policy_chunks WHERE collection = $2 ORDER BY distance LIMIT $3`

	clearQuery = `DELETE FROM policy_chunks WHERE collection = $1`

	deleteDocumentQuery = `DELETE FROM policy_chunks WHERE collection = $1 AND document_id = $2`
)

// Store is a pgvector-backed vectorstore.Storage scoped to one collection.
type Store struct {
	db         *sql.DB
	collection string
	operator   string
}

// Open connects with lib/pq and pings the server.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func New(db *sql.DB, collection, metric string) *Store {
	op := "<=>"
	if metric == vectorstore.MetricL2 {
		op = "<->"
	}
	return &Store{db: db, collection: collection, operator: op}
}

// Init checks that vectors already stored in the collection have the given
// dimension. The schema itself is owned by migrations.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	var existing int
	err := s.db.QueryRowContext(ctx, dimsQuery, s.collection).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vector dimension: %w", err)
	}
	if existing != dimension {
		return fmt.Errorf("collection %s holds %d-dimensional vectors, got %d", s.collection, existing, dimension)
	}
	return nil
}

// Upsert inserts new chunk rows. Chunks are written once; a repeated chunk id
// is a constraint violation.
func (s *Store) Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return errors.New("documents and vectors length mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, insertQuery,
			chunkUUID(d.Metadata.ChunkID),
			s.collection,
			d.Metadata.DocumentID,
			d.PageContent,
			string(meta),
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredDocument, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(searchQuery, s.operator), pgvector.NewVector(vector), s.collection, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScoredDocument
	for rows.Next() {
		var (
			content string
			meta    []byte
			dist    float64
		)
		if err := rows.Scan(&content, &meta, &dist); err != nil {
			return nil, err
		}
		var md domain.Metadata
		if err := json.Unmarshal(meta, &md); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, domain.ScoredDocument{
			Document: domain.Document{PageContent: content, Metadata: md},
			Distance: dist,
		})
	}
	return out, rows.Err()
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, clearQuery, s.collection)
	return err
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, deleteDocumentQuery, s.collection, documentID)
	return err
}

func chunkUUID(chunkID string) string {
	if id, err := uuid.Parse(chunkID); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
