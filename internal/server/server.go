// Package server exposes ingestion, question answering and evaluation over
// HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"policyrag/internal/answer"
	"policyrag/internal/domain"
	"policyrag/internal/evaluation"
	"policyrag/internal/ingest"
	"policyrag/internal/retrieval"
)

const defaultNumQuestions = 30

type Ingester interface {
	IngestFolder(ctx context.Context, root string, force bool) (ingest.Report, error)
	Documents(ctx context.Context) ([]domain.IngestionRecord, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string) (answer.Result, error)
}

type Retriever interface {
	RetrieveWith(ctx context.Context, query string, p retrieval.Params) ([]domain.RetrievalResult, error)
}

type Evaluator interface {
	GenerateDataset(ctx context.Context, root, out string, n int) ([]evaluation.Item, error)
	Run(ctx context.Context, dataset string) (evaluation.RunReport, error)
}

// Deps are the services behind the routes. Evaluator and Metrics may be nil;
// their routes are then not mounted.
type Deps struct {
	Ingester  Ingester
	Answerer  Answerer
	Retriever Retriever
	Evaluator Evaluator
	Metrics   http.Handler
	Logger    *slog.Logger
}

type handler struct {
	Deps
}

// New builds the echo instance with all routes mounted.
func New(d Deps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{Deps: d}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				d.Logger.Warn("Request.", append(attrs, "error", v.Error)...)
				return nil
			}
			d.Logger.Info("Request.", attrs...)
			return nil
		},
	}))
	e.HTTPErrorHandler = h.errorHandler

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}
	e.POST("/ingest", h.ingest)
	e.GET("/documents", h.documents)
	e.POST("/query", h.query)
	e.POST("/retrieve", h.retrieve)
	if d.Evaluator != nil {
		e.POST("/generate-evaluation-dataset", h.generateDataset)
		e.POST("/run-evaluation", h.runEvaluation)
	}
	return e
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, d Deps) error {
	e := New(d)
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()
	if d.Logger != nil {
		d.Logger.Info("HTTP server listening.", "addr", addr)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

func (h *handler) errorHandler(err error, c echo.Context) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		req := c.Request()
		h.Logger.Error("Request failed.", "method", req.Method, "path", req.URL.Path, "error", err)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, fmt.Sprint(he.Message)
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	return nil
}

func required(name, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	return v, nil
}

type ingestRequest struct {
	Path  string `json:"path"`
	Force bool   `json:"force,omitempty"`
}

func (h *handler) ingest(c echo.Context) error {
	var req ingestRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	path, err := required("path", req.Path)
	if err != nil {
		return err
	}
	report, err := h.Ingester.IngestFolder(c.Request().Context(), path, req.Force)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *handler) documents(c echo.Context) error {
	docs, err := h.Ingester.Documents(c.Request().Context())
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []domain.IngestionRecord{}
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": docs})
}

type questionRequest struct {
	Question string `json:"question"`
}

func (h *handler) query(c echo.Context) error {
	var req questionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	q, err := required("question", req.Question)
	if err != nil {
		return err
	}
	res, err := h.Answerer.Answer(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

type retrieveRequest struct {
	Question  string   `json:"question"`
	K         int      `json:"k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type retrievedChunk struct {
	Content  string          `json:"content"`
	Metadata domain.Metadata `json:"metadata"`
	Score    float64         `json:"score"`
}

func (h *handler) retrieve(c echo.Context) error {
	var req retrieveRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	q, err := required("question", req.Question)
	if err != nil {
		return err
	}
	results, err := h.Retriever.RetrieveWith(c.Request().Context(), q, retrieval.Params{K: req.K, Threshold: req.Threshold})
	if err != nil {
		return err
	}
	chunks := make([]retrievedChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, retrievedChunk{Content: r.Document.PageContent, Metadata: r.Document.Metadata, Score: r.Score})
	}
	return c.JSON(http.StatusOK, map[string]any{"question": q, "results": chunks})
}

type generateRequest struct {
	BasePath     string `json:"base_path"`
	OutputFile   string `json:"output_file"`
	NumQuestions *int   `json:"num_questions,omitempty"`
}

func (h *handler) generateDataset(c echo.Context) error {
	var req generateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	base, err := required("base_path", req.BasePath)
	if err != nil {
		return err
	}
	out, err := required("output_file", req.OutputFile)
	if err != nil {
		return err
	}
	n := defaultNumQuestions
	if req.NumQuestions != nil {
		n = *req.NumQuestions
	}
	items, err := h.Evaluator.GenerateDataset(c.Request().Context(), base, out, n)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"output_file": out, "items": len(items)})
}

type runRequest struct {
	DatasetPath string `json:"evaluation_dataset_path"`
}

func (h *handler) runEvaluation(c echo.Context) error {
	var req runRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	path, err := required("evaluation_dataset_path", req.DatasetPath)
	if err != nil {
		return err
	}
	report, err := h.Evaluator.Run(c.Request().Context(), path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
