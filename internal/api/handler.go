// Package api exposes the sequencing pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/corpus"
	"github.com/mkoziy/antigen/sequencing/internal/models"
	"github.com/mkoziy/antigen/sequencing/internal/pipeline"
	"github.com/mkoziy/antigen/sequencing/internal/search"
)

// DefaultMaxUploadBytes caps the size of a results archive.
const DefaultMaxUploadBytes = 256 << 20

// UserHeader carries the name of the authenticated user set by the
// fronting proxy.
const UserHeader = "X-Remote-User"

// Pipeline is the part of *pipeline.Service the handler serves.
type Pipeline interface {
	CreateSequencingRun(ctx context.Context, in pipeline.NewRun) (*models.SequencingRun, error)
	Runs(ctx context.Context) ([]*models.SequencingRun, error)
	Run(ctx context.Context, id int64) (*models.SequencingRun, error)
	UploadResults(ctx context.Context, u pipeline.Upload) (*pipeline.UploadResult, error)
	RunResults(ctx context.Context, runID int64) ([]pipeline.ResultRecord, error)
	ResultsFile(ctx context.Context, runID int64, page int, kind pipeline.FileKind) (*pipeline.Download, error)
	SearchCDR3(ctx context.Context, query string) ([]corpus.Record, error)
	Blast(ctx context.Context, runID int64, mode search.Mode) ([]search.Hit, error)
	CorpusFASTA(ctx context.Context, runID *int64, mode search.Mode) ([]byte, error)
	PlateLayoutTSV(ctx context.Context, runID int64, page int) (string, error)
}

// Handler routes the sequencing API.
type Handler struct {
	svc            Pipeline
	logger         *zap.Logger
	maxUploadBytes int64
	mux            *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxUploadBytes caps upload request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandler constructs the API handler.
func NewHandler(svc Pipeline, opts ...Option) *Handler {
	h := &Handler{
		svc:            svc,
		logger:         zap.NewNop(),
		maxUploadBytes: DefaultMaxUploadBytes,
		mux:            http.NewServeMux(),
	}
	for _, o := range opts {
		o(h)
	}
	h.mux.HandleFunc("GET /api/sequencingrun", h.handleListRuns)
	h.mux.HandleFunc("POST /api/sequencingrun", h.handleCreateRun)
	h.mux.HandleFunc("GET /api/sequencingrun/{id}", h.handleGetRun)
	h.mux.HandleFunc("PUT /api/sequencingrun/{id}/resultsfile/{page}", h.handleUpload)
	h.mux.HandleFunc("GET /api/sequencingrun/{id}/resultsfile/{page}", h.handleDownload(pipeline.FileArchive))
	h.mux.HandleFunc("GET /api/sequencingrun/{id}/resultsfile/{page}/airr", h.handleDownload(pipeline.FileAIRR))
	h.mux.HandleFunc("GET /api/sequencingrun/{id}/resultsfile/{page}/parameters", h.handleDownload(pipeline.FileParameters))
	h.mux.HandleFunc("GET /api/sequencingrun/{id}/{action}", h.handleRunAction)
	h.mux.HandleFunc("GET /api/sequencingrun/{id}/submissionfile/{page}/tsv", h.handlePlateLayout)
	h.mux.HandleFunc("GET /api/fasta", h.handleFASTA)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.Runs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []*models.SequencingRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequencing_runs": runs})
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var in pipeline.NewRun
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sequencing run payload")
		return
	}
	in.AddedBy = r.Header.Get(UserHeader)
	run, err := h.svc.CreateSequencingRun(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sequencing_run": run})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	run, err := h.svc.Run(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequencing_run": run})
}

type uploadResponse struct {
	SequencingRun int64    `json:"sequencing_run"`
	Seq           int      `json:"seq"`
	WellPosOffset int      `json:"well_pos_offset"`
	Version       int      `json:"version"`
	Nanobodies    []int64  `json:"nanobodies"`
	Duplicates    []string `json:"duplicate_sequence_ids,omitempty"`
	Replaced      bool     `json:"replaced"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	page, ok := pathInt(w, r, "page")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("results file exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read uploaded file")
		return
	}

	out, err := h.svc.UploadResults(r.Context(), pipeline.Upload{
		RunID:    id,
		Page:     int(page),
		Filename: header.Filename,
		Data:     data,
		AddedBy:  r.Header.Get(UserHeader),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	nanobodies := out.Nanobodies
	if nanobodies == nil {
		nanobodies = []int64{}
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		SequencingRun: out.Results.SequencingRunID,
		Seq:           out.Results.Seq,
		WellPosOffset: out.Results.WellPosOffset,
		Version:       out.Results.Version,
		Nanobodies:    nanobodies,
		Duplicates:    out.Duplicates,
		Replaced:      out.Replaced,
	})
}

func (h *Handler) handleDownload(kind pipeline.FileKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInt(w, r, "id")
		if !ok {
			return
		}
		page, ok := pathInt(w, r, "page")
		if !ok {
			return
		}
		dl, err := h.svc.ResultsFile(r.Context(), id, int(page), kind)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if dl.URL != "" {
			http.Redirect(w, r, dl.URL, http.StatusFound)
			return
		}
		defer dl.Body.Close()
		contentType := dl.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", attachment(dl.Name))
		if dl.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, dl.Body); err != nil {
			h.logger.Warn("stream results file", zap.Int64("run", id), zap.Int64("page", page), zap.Error(err))
		}
	}
}

// handleRunAction serves the two-segment routes. The CDR3 search shares
// their shape, so distinct patterns would overlap.
func (h *Handler) handleRunAction(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") == "searchcdr3" {
		h.handleSearchCDR3(w, r, r.PathValue("action"))
		return
	}
	switch r.PathValue("action") {
	case "results":
		h.handleResults(w, r)
	case "blast":
		h.handleBlast(w, r)
	default:
		writeError(w, http.StatusNotFound, "endpoint not found")
	}
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	records, err := h.svc.RunResults(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if records == nil {
		records = []pipeline.ResultRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) handleSearchCDR3(w http.ResponseWriter, r *http.Request, query string) {
	matches, err := h.svc.SearchCDR3(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if matches == nil {
		matches = []corpus.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *Handler) handleBlast(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	mode, err := search.ParseMode(r.URL.Query().Get("queryType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hits, err := h.svc.Blast(r.Context(), id, mode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (h *Handler) handlePlateLayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	page, ok := pathInt(w, r, "page")
	if !ok {
		return
	}
	tsv, err := h.svc.PlateLayoutTSV(r.Context(), id, int(page))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/tab-separated-values")
	w.Header().Set("Content-Disposition", attachment(fmt.Sprintf("sequencing_run_%d_plate_%d.tsv", id, page)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, tsv)
}

func (h *Handler) handleFASTA(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := search.ParseMode(q.Get("queryType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var runID *int64
	if raw := q.Get("run"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "run must be a positive integer")
			return
		}
		runID = &id
	}
	data, err := h.svc.CorpusFASTA(r.Context(), runID, mode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	name := fmt.Sprintf("antigenapp_database_%s.fasta", time.Now().UTC().Format("20060102T150405"))
	w.Header().Set("Content-Type", "text/x-fasta")
	w.Header().Set("Content-Disposition", attachment(name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// fail maps a pipeline error to a response. Internal errors are logged and
// reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !pipeline.IsIntegrity(err) {
		msg = "internal server error"
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}

// StatusFor returns the HTTP status for a pipeline error.
func StatusFor(err error) int {
	switch {
	case pipeline.IsValidation(err):
		return http.StatusBadRequest
	case pipeline.IsNotFound(err):
		return http.StatusNotFound
	case pipeline.IsConflict(err):
		return http.StatusConflict
	case pipeline.IsExternal(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
		return 0, false
	}
	return v, true
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
