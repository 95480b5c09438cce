package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

type startRequest struct {
	ScrapeType    scraper.ScrapeType `json:"scrape_type"`
	Source        string             `json:"source"`
	Mode          scraper.Mode       `json:"mode"`
	MaxPages      *int               `json:"max_pages"`
	StartID       *int64             `json:"start_id"`
	EndID         *int64             `json:"end_id"`
	ForceRescrape *bool              `json:"force_rescrape"`
}

type startRangeRequest struct {
	StartID       *int64 `json:"start_id"`
	EndID         *int64 `json:"end_id"`
	Source        string `json:"source"`
	ForceRescrape *bool  `json:"force_rescrape"`
}

type runResponse struct {
	RunID   uuid.UUID `json:"run_id"`
	Message string    `json:"message"`
}

func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.MaxPages != nil && *body.MaxPages < 0 {
		writeError(w, http.StatusBadRequest, "max_pages must be positive")
		return
	}
	req := scraper.Request{
		ScrapeType:    body.ScrapeType,
		Source:        body.Source,
		Mode:          body.Mode,
		MaxPages:      valueOrDefault(body.MaxPages, 0),
		StartID:       body.StartID,
		EndID:         body.EndID,
		ForceRescrape: valueOrDefault(body.ForceRescrape, false),
	}
	s.start(w, r, req)
}

func (s *Server) startRange(w http.ResponseWriter, r *http.Request) {
	var body startRangeRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.StartID == nil || body.EndID == nil {
		writeError(w, http.StatusBadRequest, "start_id and end_id are required")
		return
	}
	req := scraper.Request{
		ScrapeType:    scraper.ScrapeTypeFull,
		Source:        body.Source,
		Mode:          scraper.ModeRange,
		StartID:       body.StartID,
		EndID:         body.EndID,
		ForceRescrape: valueOrDefault(body.ForceRescrape, false),
	}
	s.start(w, r, req)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, req scraper.Request) {
	id, err := s.runner.StartRun(r.Context(), req)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		RunID:   id,
		Message: fmt.Sprintf("%s scrape started", s.sourceName(req.Source)),
	})
}

func (s *Server) stopScrape(w http.ResponseWriter, r *http.Request) {
	id, err := s.runner.StopRun()
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{RunID: id, Message: "stop requested"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.GetStatus())
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.runner.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	if runs == nil {
		runs = []scraper.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	got, err := s.runner.GetRun(r.Context(), id)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": got})
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.registry.List()})
}

// writeRunError maps run and store errors onto HTTP statuses.
func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict    *scraper.ConflictError
		unknown     *scraper.UnknownSourceError
		unsupported *scraper.UnsupportedModeError
		invalid     *scraper.InvalidRangeError
	)
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  err.Error(),
			"run_id": conflict.RunID.String(),
		})
	case errors.As(err, &unknown), errors.As(err, &unsupported), errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scraper.ErrNotRunning):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	default:
		s.logger.Error("request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) sourceName(key string) string {
	if key == "" {
		key = s.registry.Limits().DefaultSource
	}
	if desc, ok := s.registry.Lookup(key); ok {
		return desc.Name
	}
	return key
}

// decodeBody decodes JSON into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// parseLimit reads ?limit=. Zero means the manager default.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return val, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
