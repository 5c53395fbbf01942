package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/taxonomia/internal/config"
	"github.com/hyperjump/taxonomia/internal/keyword"
	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/internal/report"
	"github.com/hyperjump/taxonomia/internal/storage"
)

// backend is the history as seen by the CLI: either the local store or a running server.
type backend interface {
	Analyze(ctx context.Context, in models.AnalysisInput) (*models.InstrumentAnalysis, error)
	AnalyzeFile(ctx context.Context, path string, meta models.AnalysisInput) (*models.InstrumentAnalysis, error)
	History(ctx context.Context, c report.Criteria) ([]*models.InstrumentAnalysis, error)
	Get(ctx context.Context, id string) (*models.InstrumentAnalysis, error)
	Consolidated(ctx context.Context, c report.Criteria) (*report.Consolidated, error)
	ExportWorkbook(ctx context.Context, c report.Criteria, w io.Writer) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int, fuzzy bool) ([]*models.InstrumentAnalysis, error)
	Status(ctx context.Context) (*statusResponse, error)
	Close()
}

type statusConfig struct {
	Provider       string   `json:"llm_provider"`
	Model          string   `json:"llm_model"`
	DatabasePath   string   `json:"database_path,omitempty"`
	BleveIndexPath string   `json:"bleve_index_path,omitempty"`
	Watch          []string `json:"watch,omitempty"`
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Analyses       int64         `json:"analyses"`
	Indexed        uint64        `json:"indexed"`
	SearchEnabled  bool          `json:"search_enabled"`
	DiskUsageBytes *int64        `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfig `json:"config,omitempty"`
}

func writeIndentedJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// local serves commands from storage opened in this process.
type local struct {
	components *Components
	cfg        *config.Config
	logger     *zap.Logger
}

func (l *local) Analyze(ctx context.Context, in models.AnalysisInput) (*models.InstrumentAnalysis, error) {
	return l.components.Service.Analyze(ctx, in)
}

func (l *local) AnalyzeFile(ctx context.Context, path string, meta models.AnalysisInput) (*models.InstrumentAnalysis, error) {
	return l.components.Service.AnalyzeFile(ctx, path, meta)
}

func (l *local) History(ctx context.Context, c report.Criteria) ([]*models.InstrumentAnalysis, error) {
	return l.components.Service.History(ctx, c)
}

func (l *local) Get(ctx context.Context, id string) (*models.InstrumentAnalysis, error) {
	return l.components.Service.Get(ctx, id)
}

func (l *local) Consolidated(ctx context.Context, c report.Criteria) (*report.Consolidated, error) {
	return l.components.Service.Consolidated(ctx, c)
}

func (l *local) ExportWorkbook(ctx context.Context, c report.Criteria, w io.Writer) error {
	stats, err := l.components.Service.Consolidated(ctx, c)
	if err != nil {
		return err
	}
	return report.WriteWorkbook(w, stats.Analyses)
}

func (l *local) Delete(ctx context.Context, id string) error {
	return l.components.Service.Delete(ctx, id)
}

func (l *local) Search(ctx context.Context, query string, limit int, fuzzy bool) ([]*models.InstrumentAnalysis, error) {
	var opts *keyword.SearchOptions
	if fuzzy {
		opts = &keyword.SearchOptions{FuzzyEnabled: true}
	}
	return l.components.Service.Search(ctx, query, limit, opts)
}

func (l *local) Status(ctx context.Context) (*statusResponse, error) {
	st, err := l.components.Service.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := &statusResponse{
		Analyses:      st.Analyses,
		Indexed:       st.Indexed,
		SearchEnabled: st.Search,
		Config: &statusConfig{
			Provider:       l.cfg.LLM.Provider,
			Model:          l.cfg.LLM.Model,
			DatabasePath:   l.cfg.Storage.DatabasePath,
			BleveIndexPath: l.cfg.Storage.BleveIndexPath,
			Watch:          l.cfg.Watch.Directories,
		},
	}
	if diskBytes, err := storage.DiskUsage(l.cfg.Storage.DatabasePath, l.cfg.Storage.BleveIndexPath); err == nil {
		out.DiskUsageBytes = &diskBytes
	}
	return out, nil
}

func (l *local) Close() {
	l.components.Close()
	_ = l.logger.Sync()
}

// remote serves commands through the HTTP API of a running server, which avoids
// contending for the SQLite and Bleve locks the server holds.
type remote struct {
	base   string
	client *http.Client
}

func newRemote(base string) *remote {
	return &remote{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (r *remote) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(b, apiErr) != nil || apiErr.Message == "" {
			apiErr.Kind = ""
			apiErr.Message = strings.TrimSpace(string(b))
		}
		return nil, apiErr
	}
	return resp, nil
}

func (r *remote) getJSON(ctx context.Context, path string, v interface{}) error {
	resp, err := r.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *remote) Analyze(ctx context.Context, in models.AnalysisInput) (*models.InstrumentAnalysis, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	resp, err := r.do(ctx, http.MethodPost, "/api/v1/analyses", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var a models.InstrumentAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &a, nil
}

func (r *remote) AnalyzeFile(ctx context.Context, path string, meta models.AnalysisInput) (*models.InstrumentAnalysis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"title":       meta.Title,
		"subject":     string(meta.Subject),
		"grade_level": string(meta.GradeLevel),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	resp, err := r.do(ctx, http.MethodPost, "/api/v1/analyses/upload", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var a models.InstrumentAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &a, nil
}

func criteriaQuery(c report.Criteria) string {
	v := url.Values{}
	if c.Subject != "" {
		v.Set("subject", string(c.Subject))
	}
	if c.Grade != "" {
		v.Set("grade", string(c.Grade))
	}
	if c.Search != "" {
		v.Set("q", c.Search)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (r *remote) History(ctx context.Context, c report.Criteria) ([]*models.InstrumentAnalysis, error) {
	var out struct {
		Analyses []*models.InstrumentAnalysis `json:"analyses"`
	}
	if err := r.getJSON(ctx, "/api/v1/analyses"+criteriaQuery(c), &out); err != nil {
		return nil, err
	}
	return out.Analyses, nil
}

func (r *remote) Get(ctx context.Context, id string) (*models.InstrumentAnalysis, error) {
	var a models.InstrumentAnalysis
	if err := r.getJSON(ctx, "/api/v1/analyses/"+url.PathEscape(id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *remote) Consolidated(ctx context.Context, c report.Criteria) (*report.Consolidated, error) {
	var out report.Consolidated
	if err := r.getJSON(ctx, "/api/v1/stats"+criteriaQuery(c), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *remote) ExportWorkbook(ctx context.Context, c report.Criteria, w io.Writer) error {
	resp, err := r.do(ctx, http.MethodGet, "/api/v1/stats/export"+criteriaQuery(c), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

func (r *remote) Delete(ctx context.Context, id string) error {
	resp, err := r.do(ctx, http.MethodDelete, "/api/v1/analyses/"+url.PathEscape(id), nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (r *remote) Search(ctx context.Context, query string, limit int, fuzzy bool) ([]*models.InstrumentAnalysis, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("limit", strconv.Itoa(limit))
	if fuzzy {
		v.Set("fuzzy", "true")
	}
	var out struct {
		Analyses []*models.InstrumentAnalysis `json:"analyses"`
	}
	if err := r.getJSON(ctx, "/api/v1/search?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Analyses, nil
}

func (r *remote) Status(ctx context.Context) (*statusResponse, error) {
	var st statusResponse
	if err := r.getJSON(ctx, "/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *remote) Close() {}
