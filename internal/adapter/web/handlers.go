package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quakewatch/eq-records/internal/domain"
	"github.com/quakewatch/eq-records/internal/ingest"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	if s.view.Loading() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "record view still loading",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- auth ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logger.Warn("sign in rejected", "email", req.Email, "error", err)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := s.auth.SignOut(r.Context(), token); err != nil {
		s.logger.Error("sign out failed", "error", err)
		writeError(w, http.StatusBadGateway, "sign out failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// --- records ---

func (s *Server) handleListRecords(w http.ResponseWriter, _ *http.Request) {
	records := s.view.Records()
	if records == nil {
		records = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var rec domain.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// The store owns identity and provenance for manual entries.
	rec.ID = ""
	rec.Source = domain.SourceManual
	rec.CreatedAt = time.Time{}

	if reasons := rec.Validate(); len(reasons) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "record failed validation",
			"reasons": reasons,
		})
		return
	}
	if ts, err := domain.ParseDate(rec.Date); err == nil {
		rec.Timestamp = ts
	}

	created, err := s.store.Create(r.Context(), rec)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch domain.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.store.Update(r.Context(), id, patch)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.logger.Error("store operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "storage operation failed")
}

// --- upload ---

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	uploadedBy := ""
	if user := userFrom(r.Context()); user != nil {
		uploadedBy = user.Email
	}

	outcome, err := s.ingestor.Ingest(r.Context(), header.Filename, data)
	if err != nil {
		var parseErr *ingest.ParseError
		switch {
		case errors.Is(err, ingest.ErrNotCSV):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &parseErr):
			writeError(w, http.StatusBadRequest, parseErr.Error())
		default:
			s.logger.Error("ingest failed", "file", header.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "ingestion failed")
		}
		return
	}
	s.logger.Info("csv upload ingested",
		"file", header.Filename,
		"user", uploadedBy,
		"total_rows", outcome.TotalRows,
		"created", outcome.CreatedCount,
	)
	writeJSON(w, http.StatusOK, outcome)
}

// --- predictions ---

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year query parameter is required")
		return
	}

	predictions, err := s.forecasts.Predictions(r.Context(), year)
	if err != nil {
		s.logger.Error("prediction fetch failed", "year", year, "error", err)
		writeError(w, http.StatusBadGateway, "prediction service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": predictions})
}

type generatePredictionsRequest struct {
	Year int `json:"year"`
}

func (s *Server) handleGeneratePredictions(w http.ResponseWriter, r *http.Request) {
	var req generatePredictionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Year == 0 {
		writeError(w, http.StatusBadRequest, "year is required")
		return
	}

	predictions, err := s.forecasts.Generate(r.Context(), req.Year)
	if err != nil {
		s.logger.Error("prediction generation failed", "year", req.Year, "error", err)
		writeError(w, http.StatusBadGateway, "prediction service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": predictions})
}
