// Package imgt submits nucleotide sequences to IMGT/V-QUEST and collects
// the AIRR formatted alignment it returns.
package imgt

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/airr"
	"github.com/mkoziy/antigen/sequencing/internal/fasta"
	"github.com/mkoziy/antigen/sequencing/internal/metrics"
	"github.com/mkoziy/antigen/sequencing/internal/ratelimit"
)

// Names of the files in a V-QUEST result bundle.
const (
	ParametersFile = "Parameters.txt"
	AIRRFile       = "vquest_airr.tsv"
)

// maxErrorBody bounds how much of a failed response is kept in errors.
const maxErrorBody = 2048

// Bundle is the merged result of one alignment call.
type Bundle struct {
	Parameters []byte
	AIRR       []byte
}

// AlignmentServiceError wraps any failure talking to V-QUEST.
type AlignmentServiceError struct {
	Batch  int
	Status int
	Body   string
	Err    error
}

func (e *AlignmentServiceError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "alignment service batch %d", e.Batch)
	if e.Status != 0 {
		fmt.Fprintf(&sb, ": status %d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&sb, ": %s", e.Body)
	}
	return sb.String()
}

func (e *AlignmentServiceError) Unwrap() error { return e.Err }

// Client submits FASTA batches to V-QUEST.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	cfg        Config
	logger     *zap.Logger
	recorder   metrics.Recorder
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) { c.recorder = metrics.OrNop(r) }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// NewClient creates a client for cfg paced by limiter.
func NewClient(cfg Config, limiter ratelimit.Limiter, opts ...Option) *Client {
	cfg = cfg.WithDefaults()
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		cfg:        cfg,
		logger:     zap.NewNop(),
		recorder:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Align submits records in batches and merges the returned AIRR tables.
// Any failed batch fails the whole call.
func (c *Client) Align(ctx context.Context, records []fasta.Record) (*Bundle, error) {
	if len(records) == 0 {
		return nil, &AlignmentServiceError{Err: fmt.Errorf("no sequences to align")}
	}
	size := c.cfg.BatchSize
	if size < 0 {
		size = 0
	}
	batches := fasta.Batches(records, size)

	var (
		params []byte
		tables = make([][]byte, 0, len(batches))
	)
	for i, batch := range batches {
		b, err := c.submit(ctx, i+1, batch)
		if err != nil {
			return nil, err
		}
		if params == nil {
			params = b.Parameters
		}
		tables = append(tables, b.AIRR)
	}
	merged, err := airr.Merge(tables...)
	if err != nil {
		return nil, &AlignmentServiceError{Err: err}
	}
	return &Bundle{Parameters: params, AIRR: merged}, nil
}

func (c *Client) form(batch []fasta.Record) url.Values {
	form := url.Values{}
	for k, v := range c.cfg.Options {
		form.Set(k, v)
	}
	form.Set("inputType", "inline")
	form.Set("species", c.cfg.Species)
	form.Set("receptorOrLocusType", c.cfg.Receptor)
	if form.Get("resultType") == "" {
		form.Set("resultType", "excel")
	}
	if form.Get("xv_outputtype") == "" {
		form.Set("xv_outputtype", "3")
	}
	form.Set("sequences", fasta.Format(batch))
	return form
}

func (c *Client) submit(ctx context.Context, n int, batch []fasta.Record) (b *Bundle, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &AlignmentServiceError{Batch: n, Err: err}
	}
	start := time.Now()
	defer metrics.Since(ctx, c.recorder, metrics.OpAlignment, start, &err)

	c.logger.Debug("submitting batch to V-QUEST",
		zap.Int("batch", n),
		zap.Int("sequences", len(batch)),
		zap.String("species", c.cfg.Species),
		zap.String("receptor", c.cfg.Receptor))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, strings.NewReader(c.form(batch).Encode()))
	if err != nil {
		return nil, &AlignmentServiceError{Batch: n, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AlignmentServiceError{Batch: n, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AlignmentServiceError{Batch: n, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AlignmentServiceError{Batch: n, Status: resp.StatusCode, Body: snippet(body)}
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); strings.HasPrefix(mt, "text/") {
		return nil, &AlignmentServiceError{Batch: n, Status: resp.StatusCode, Err: fmt.Errorf("service returned %s instead of a result bundle", mt), Body: snippet(body)}
	}

	bundle, err := readBundle(body)
	if err != nil {
		return nil, &AlignmentServiceError{Batch: n, Status: resp.StatusCode, Err: err}
	}
	c.logger.Debug("V-QUEST batch complete", zap.Int("batch", n), zap.Duration("elapsed", time.Since(start)))
	return bundle, nil
}

func readBundle(body []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("decode result bundle: %w", err)
	}
	var b Bundle
	for _, f := range zr.File {
		var dst *[]byte
		switch path.Base(f.Name) {
		case ParametersFile:
			dst = &b.Parameters
		case AIRRFile:
			dst = &b.AIRR
		default:
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		*dst = data
	}
	if b.AIRR == nil {
		return nil, fmt.Errorf("result bundle has no %s", AIRRFile)
	}
	if b.Parameters == nil {
		b.Parameters = []byte{}
	}
	return &b, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
