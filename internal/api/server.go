package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"road-metrics-monitor/internal/batch"
	"road-metrics-monitor/internal/db"
	"road-metrics-monitor/internal/models"
	"road-metrics-monitor/internal/parser"
)

// Server represents the API server
type Server struct {
	db       *db.Database
	pipeline *batch.Pipeline
	router   *mux.Router
	log      zerolog.Logger
}

// NewServer creates a new API server
func NewServer(database *db.Database, pipeline *batch.Pipeline, log zerolog.Logger) *Server {
	s := &Server{
		db:       database,
		pipeline: pipeline,
		router:   mux.NewRouter(),
		log:      log,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Defect endpoints
	s.router.HandleFunc("/api/v1/defects", s.handleListDefects).Methods("GET")
	s.router.HandleFunc("/api/v1/defects", s.handleCreateDefect).Methods("POST")
	s.router.HandleFunc("/api/v1/defects/bulk", s.handleBulkDefects).Methods("POST")

	// Analytics endpoints
	s.router.HandleFunc("/api/v1/analytics", s.handleAnalytics).Methods("GET")
	s.router.HandleFunc("/api/v1/analytics/heatmap", s.handleHeatmap).Methods("GET")

	// Vehicle and stats endpoints
	s.router.HandleFunc("/api/v1/vehicles", s.handleListVehicles).Methods("GET")
	s.router.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")

	// On-demand batch trigger
	s.router.HandleFunc("/api/v1/batch/run", s.handleRunBatch).Methods("POST")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Middleware
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total  int `json:"total,omitempty"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCreateDefect(w http.ResponseWriter, r *http.Request) {
	var d models.Defect
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if errs := parser.ValidateDefect(&d); len(errs) > 0 {
		respondError(w, http.StatusBadRequest, errs[0])
		return
	}

	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	if err := s.db.CreateDefect(r.Context(), &d); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDefects(w http.ResponseWriter, r *http.Request) {
	q := models.DefectQuery{
		Severity:   r.URL.Query().Get("severity"),
		DefectType: r.URL.Query().Get("type"),
		Limit:      100,
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		q.Offset, _ = strconv.Atoi(v)
	}

	defects, err := s.db.ListDefects(r.Context(), q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithMeta(w, defects, &meta{Total: len(defects), Limit: q.Limit, Offset: q.Offset})
}

type bulkResult struct {
	Inserted int64    `json:"inserted"`
	Total    int      `json:"total"`
	Errors   []string `json:"errors,omitempty"`
}

func (s *Server) handleBulkDefects(w http.ResponseWriter, r *http.Request) {
	var records []models.Defect
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON array")
		return
	}
	if len(records) == 0 {
		respondError(w, http.StatusBadRequest, "empty array")
		return
	}

	now := time.Now().UTC()
	result := bulkResult{Total: len(records)}
	valid := make([]models.Defect, 0, len(records))

	for i := range records {
		if records[i].Severity == "" {
			records[i].Severity = models.SeverityMedium
		}
		if records[i].Timestamp.IsZero() {
			records[i].Timestamp = now
		}
		if errs := parser.ValidateDefect(&records[i]); len(errs) > 0 {
			result.Errors = append(result.Errors, "record "+strconv.Itoa(i)+": "+errs[0])
			continue
		}
		valid = append(valid, records[i])
	}

	count, err := s.db.InsertDefectBatch(r.Context(), valid)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result.Inserted = count

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analytics := make(map[string]interface{})

	for _, name := range models.RecomputableMetrics {
		m, err := s.db.LatestMetric(ctx, name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		// Scalar metrics are stringified integers; the rest are JSON
		// documents embedded as-is.
		switch name {
		case models.MetricTotalDefects, models.MetricRecentDefects7d:
			analytics[name] = m.Value
		default:
			analytics[name] = json.RawMessage(m.Value)
		}
	}

	top, err := s.db.TopVehicles(ctx, 5)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	analytics["top_vehicles"] = top

	respondJSON(w, http.StatusOK, analytics)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	m, err := s.db.LatestMetric(r.Context(), models.MetricHeatmapData)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "heatmap not generated yet")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"points":        json.RawMessage(m.Value),
		"calculated_at": m.CalculatedAt,
	})
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.db.ListVehicles(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, vehicles)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type batchFailure struct {
	Error string           `json:"error"`
	Task  string           `json:"task,omitempty"`
	Cause string           `json:"cause,omitempty"`
	Run   *batch.RunResult `json:"run,omitempty"`
}

func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	result, err := s.pipeline.Run(r.Context())
	if err != nil {
		var taskErr *batch.TaskError
		switch {
		case errors.As(err, &taskErr):
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(batchFailure{
				Error: "batch run failed",
				Task:  taskErr.Task,
				Cause: taskErr.Err.Error(),
				Run:   result,
			})
		case errors.Is(err, batch.ErrStorageUnavailable):
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(batchFailure{Error: "storage unavailable"})
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}
