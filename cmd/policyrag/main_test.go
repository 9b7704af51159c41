package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/internal/config"
	"policyrag/internal/domain"
	"policyrag/internal/ledger"
	"policyrag/internal/logging"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(os.Stdout)
		cfgPath = ""
	})
	err := run(context.Background())
	return buf.String(), err
}

func hashingConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "embedder:\n  type: hashing\n  hashing:\n    dimension: 256\nvector_store:\n  type: memory\nledger:\n  type: memory\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestRootRegistersCommands(t *testing.T) {
	want := []string{"ingest", "ask", "retrieve", "documents", "serve", "tui", "mcp", "watch", "migrate", "eval", "reset"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	gen, _, err := rootCmd.Find([]string{"eval", "generate"})
	require.NoError(t, err)
	assert.Equal(t, "generate", gen.Name())
}

func TestIngestRequiresPath(t *testing.T) {
	_, err := execute(t, "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	_, err := execute(t, "migrate", "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")
}

func TestIngestForceFlag(t *testing.T) {
	f := ingestCmd.Flags().Lookup("force")
	require.NotNil(t, f)
	assert.Equal(t, "f", f.Shorthand)
	assert.Equal(t, "false", f.DefValue)
}

func TestEvalGenerateDefaultsToThirtyQuestions(t *testing.T) {
	f := evalGenerateCmd.Flags().Lookup("num-questions")
	require.NotNil(t, f)
	assert.Equal(t, "30", f.DefValue)
}

func TestDocumentsWithEmptyLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder:\n  type: hashing\nvector_store:\n  type: memory\nlog:\n  level: error\n"), 0o644))

	out, err := execute(t, "--config", path, "documents")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents ingested.")
}

func TestRunClosesLedgerAfterCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "embedder:\n  type: hashing\nvector_store:\n  type: qdrant\nledger:\n  type: sqlite\n  path: " +
		filepath.Join(dir, "ledger.db") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	_, err := execute(t, "--config", path, "documents")
	require.NoError(t, err)

	require.NotNil(t, rt)
	assert.Empty(t, rt.closers)
	led, ok := rt.ledger.(*ledger.SQLite)
	require.True(t, ok)
	_, _, err = led.Lookup(context.Background(), "abc")
	assert.ErrorContains(t, err, "closed")
}

func TestAppRetrievesWhatWasAdded(t *testing.T) {
	cfg := hashingConfig(t)
	a := newApp(cfg, logging.Discard())
	t.Cleanup(func() { _ = a.Close() })
	ctx := context.Background()

	col, err := a.Collection(ctx)
	require.NoError(t, err)
	again, err := a.Collection(ctx)
	require.NoError(t, err)
	assert.Same(t, col, again)

	doc := domain.Document{
		PageContent: "The minimum entry age for the endowment plan is eighteen years",
		Metadata:    domain.Metadata{Provenance: domain.Provenance{FileName: "plan.pdf"}, PageNumber: 3, Type: domain.ChunkText},
	}
	require.NoError(t, col.AddDocuments(ctx, []domain.Document{doc}))

	r, err := a.Retriever(ctx)
	require.NoError(t, err)
	results, err := r.Retrieve(ctx, "minimum entry age for the endowment plan")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 3, results[0].Document.Metadata.PageNumber)
}

func TestConfiguredZeroThresholdKeepsEveryHit(t *testing.T) {
	cfg := hashingConfig(t)
	zero := 0.0
	cfg.Retrieval.Threshold = &zero
	a := newApp(cfg, logging.Discard())
	t.Cleanup(func() { _ = a.Close() })
	ctx := context.Background()

	col, err := a.Collection(ctx)
	require.NoError(t, err)
	require.NoError(t, col.AddDocuments(ctx, []domain.Document{{
		PageContent: "Premiums are payable annually",
		Metadata:    domain.Metadata{Provenance: domain.Provenance{FileName: "plan.pdf"}, PageNumber: 1, Type: domain.ChunkText},
	}}))

	r, err := a.Retriever(ctx)
	require.NoError(t, err)
	results, err := r.Retrieve(ctx, "zebra xylophone")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestResetRequiresConfirmation(t *testing.T) {
	t.Cleanup(func() { resetYes = false })
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder:\n  type: hashing\nvector_store:\n  type: memory\nlog:\n  level: error\n"), 0o644))

	_, err := execute(t, "--config", path, "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, err := execute(t, "--config", path, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "reset memory/policy_documents: done")
}

func TestResetEmptiesCollectionAndLedger(t *testing.T) {
	cfg := hashingConfig(t)
	a := newApp(cfg, logging.Discard())
	t.Cleanup(func() { _ = a.Close() })
	ctx := context.Background()

	col, err := a.Collection(ctx)
	require.NoError(t, err)
	require.NoError(t, col.AddDocuments(ctx, []domain.Document{{
		PageContent: "Premiums are payable annually",
		Metadata:    domain.Metadata{DocumentID: "doc-1", PageNumber: 1, Type: domain.ChunkText},
	}}))
	led, err := a.Ledger()
	require.NoError(t, err)
	require.NoError(t, led.Record(ctx, domain.IngestionRecord{Checksum: "abc", DocumentID: "doc-1", Source: "plan.pdf"}))

	require.NoError(t, a.Reset(ctx))

	hits, err := col.SimilaritySearchWithScore(ctx, "premiums", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	_, found, err := led.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedgerFollowsMemoryStore(t *testing.T) {
	cfg := hashingConfig(t)
	cfg.Ledger = config.LedgerConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "ledger.db")}
	a := newApp(cfg, logging.Discard())
	t.Cleanup(func() { _ = a.Close() })

	led, err := a.Ledger()
	require.NoError(t, err)
	assert.IsType(t, &ledger.Memory{}, led)
	assert.NoFileExists(t, cfg.Ledger.Path)
}

func TestSQLiteLedgerScopedByStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	open := func(store, collection string) domain.Ledger {
		cfg := hashingConfig(t)
		cfg.VectorStore.Type = store
		cfg.VectorStore.Collection = collection
		cfg.Ledger = config.LedgerConfig{Type: "sqlite", Path: path}
		a := newApp(cfg, logging.Discard())
		t.Cleanup(func() { _ = a.Close() })
		led, err := a.Ledger()
		require.NoError(t, err)
		return led
	}
	ctx := context.Background()

	qd := open("qdrant", "policies")
	require.NoError(t, qd.Record(ctx, domain.IngestionRecord{Checksum: "abc", DocumentID: "doc-1", Source: "plan.pdf"}))

	for _, other := range []domain.Ledger{open("pgvector", "policies"), open("qdrant", "archive")} {
		_, found, err := other.Lookup(ctx, "abc")
		require.NoError(t, err)
		assert.False(t, found)
	}
	_, found, err := open("qdrant", "policies").Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestChatRequiresAPIKey(t *testing.T) {
	cfg := hashingConfig(t)
	cfg.LLM.APIKeyEnv = "POLICYRAG_TEST_MISSING_KEY"
	t.Setenv("POLICYRAG_TEST_MISSING_KEY", "")
	a := newApp(cfg, logging.Discard())

	_, err := a.Chat()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLICYRAG_TEST_MISSING_KEY")
}

func TestPostgresDSNFromEnv(t *testing.T) {
	cfg := hashingConfig(t)
	cfg.VectorStore.Postgres = &config.PostgresConfig{DSNEnv: "POLICYRAG_TEST_DSN"}
	a := newApp(cfg, logging.Discard())

	t.Setenv("POLICYRAG_TEST_DSN", "")
	_, err := a.postgresDSN()
	assert.Error(t, err)

	t.Setenv("POLICYRAG_TEST_DSN", "postgres://u:p@localhost/db")
	dsn, err := a.postgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/db", dsn)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t c", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}
