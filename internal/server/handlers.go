package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/taxonomia/internal/analyzer"
	"github.com/hyperjump/taxonomia/internal/keyword"
	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/internal/report"
	"github.com/hyperjump/taxonomia/internal/storage"
)

const maxSearchLimit = 100

func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var input models.AnalysisInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("analysis request",
		zap.String("title", input.Title),
		zap.String("subject", string(input.Subject)),
		zap.Int("text_bytes", len(input.Text)))

	a, err := s.svc.Analyze(r.Context(), input)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUploadAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form or file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	meta := models.AnalysisInput{
		Title:      r.FormValue("title"),
		Subject:    models.Subject(r.FormValue("subject")),
		GradeLevel: models.GradeLevel(r.FormValue("grade_level")),
	}
	s.logger.Debug("upload analysis request",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))

	a, err := s.svc.AnalyzeUpload(r.Context(), content, header.Filename, meta)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, a)
}

func criteriaFromQuery(r *http.Request) report.Criteria {
	q := r.URL.Query()
	search := q.Get("q")
	if search == "" {
		search = q.Get("search")
	}
	return report.Criteria{
		Subject: models.Subject(q.Get("subject")),
		Grade:   models.GradeLevel(q.Get("grade")),
		Search:  search,
	}
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.History(r.Context(), criteriaFromQuery(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": list,
		"total":    len(list),
	})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, a)
}

type levelPoint struct {
	models.ChartDataPoint
	Color string `json:"color"`
}

func withColors(points []models.ChartDataPoint) []levelPoint {
	out := make([]levelPoint, len(points))
	for i, p := range points {
		out[i] = levelPoint{ChartDataPoint: p, Color: p.Name.Color()}
	}
	return out
}

func (s *Server) handleAnalysisChart(w http.ResponseWriter, r *http.Request) {
	points, err := s.svc.Chart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"chart": withColors(points)})
}

func (s *Server) handleExportAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, a); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.ExportFilename(a.InstrumentTitle, ".json")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete analysis request", zap.String("id", id))
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Consolidated(r.Context(), criteriaFromQuery(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"criteria":    stats.Criteria,
		"instruments": stats.Instruments,
		"total_items": stats.TotalItems,
		"chart":       withColors(stats.Chart),
	})
}

func (s *Server) handleStatsExport(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Consolidated(r.Context(), criteriaFromQuery(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, stats.Analyses); err != nil {
		s.logger.Error("workbook export failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="bloom_statistics.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	var opts *keyword.SearchOptions
	if fuzzy, _ := strconv.ParseBool(r.URL.Query().Get("fuzzy")); fuzzy {
		opts = &keyword.SearchOptions{FuzzyEnabled: true}
	}
	s.logger.Debug("search request", zap.String("query", q), zap.Int("limit", limit), zap.Bool("fuzzy", opts != nil))
	results, err := s.svc.Search(r.Context(), q, limit, opts)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":    q,
		"analyses": results,
		"total":    len(results),
	})
}

type taxonomyLevel struct {
	Name  models.BloomLevel `json:"name"`
	Rank  int               `json:"rank"`
	Color string            `json:"color"`
}

func (s *Server) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	levels := models.BloomLevels()
	out := make([]taxonomyLevel, len(levels))
	for i, l := range levels {
		out[i] = taxonomyLevel{Name: l, Rank: l.Rank(), Color: l.Color()}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"levels":   out,
		"subjects": models.Subjects(),
		"grades":   models.GradeLevels(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	resp := map[string]interface{}{
		"analyses":       st.Analyses,
		"indexed":        st.Indexed,
		"search_enabled": st.Search,
		"config": map[string]interface{}{
			"llm_provider":     s.config.LLM.Provider,
			"llm_model":        s.config.LLM.Model,
			"database_path":    s.config.Storage.DatabasePath,
			"bleve_index_path": s.config.Storage.BleveIndexPath,
			"watch":            s.config.Watch.Directories,
		},
	}
	if diskBytes, err := storage.DiskUsage(s.config.Storage.DatabasePath, s.config.Storage.BleveIndexPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, analyzer.ErrSearchDisabled) {
		return http.StatusNotImplemented
	}
	switch analyzer.KindOf(err) {
	case analyzer.KindInvalidInput, analyzer.KindEmptyInput:
		return http.StatusBadRequest
	case analyzer.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case analyzer.KindContentSafetyRejected:
		return http.StatusUnprocessableEntity
	case analyzer.KindMalformedResponse, analyzer.KindClassificationFailed:
		return http.StatusBadGateway
	case analyzer.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	msg := analyzer.UserMessage(err)
	if errors.Is(err, analyzer.ErrSearchDisabled) {
		msg = err.Error()
	}
	s.respondJSON(w, status, map[string]string{
		"error": msg,
		"kind":  string(analyzer.KindOf(err)),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
