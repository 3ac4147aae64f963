// Package server exposes the annotation service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bdougie/annotator/internal/corpus"
	"github.com/bdougie/annotator/internal/models"
	"github.com/bdougie/annotator/internal/scoring"
	"github.com/bdougie/annotator/internal/service"
)

const maxBodyBytes = 10 << 20

// Backend is the subset of *service.Service the HTTP API calls.
type Backend interface {
	NextWork(ctx context.Context, annotator string) (*models.Assignment, error)
	NextValidation(ctx context.Context) (*models.Assignment, error)
	Submit(ctx context.Context, annotator string, rec *models.AnnotationRecord) (string, error)
	SubmitBatch(ctx context.Context, annotator string, recs []*models.AnnotationRecord) ([]string, error)
	ScoreValidation(ctx context.Context, rec *models.AnnotationRecord) (float64, error)
	FramePath(validation bool, clipIndex, frame int) (string, error)
}

// Options configures a Server.
type Options struct {
	Bind            string
	SecretKey       string
	SessionLifetime time.Duration
	SecureCookies   bool
	ShutdownTimeout time.Duration
}

// Server serves the annotation API.
type Server struct {
	backend  Backend
	logger   *slog.Logger
	ids      identities
	bind     string
	shutdown time.Duration

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// New builds the server and its routes. SecretKey is required.
func New(backend Backend, opts Options, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("server requires a backend")
	}
	if opts.SecretKey == "" {
		return nil, errors.New("SECRET_KEY is not set")
	}
	if opts.SessionLifetime <= 0 {
		opts.SessionLifetime = 181 * 24 * time.Hour
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		backend:  backend,
		logger:   logger,
		ids:      newIdentities(opts.SecretKey, opts.SessionLifetime, opts.SecureCookies),
		bind:     opts.Bind,
		shutdown: opts.ShutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/get-annotator-id", s.handleAnnotatorID)
	mux.HandleFunc("GET /api/detect-videos", s.handleDetectVideos)
	mux.HandleFunc("GET /api/validation/detect-videos", s.handleValidationDetectVideos)
	mux.HandleFunc("GET /api/video/{video}/frame/{frame}", s.handleFrame(false))
	mux.HandleFunc("GET /api/validation/video/{video}/frame/{frame}", s.handleFrame(true))
	mux.HandleFunc("POST /api/save-annotation", s.handleSaveAnnotation)
	mux.HandleFunc("POST /api/save-all-annotations", s.handleSaveAll)
	mux.HandleFunc("POST /api/validation/save-annotation", s.handleValidationSave)
	s.handler = s.logRequests(mux)

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on the bind address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.logger.Info("api server listening", slog.String("address", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	s.logger.Info("api server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleAnnotatorID(w http.ResponseWriter, r *http.Request) {
	annotator, err := s.ids.ensure(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, identityResponse{AnnotatorID: annotator})
}

func (s *Server) handleDetectVideos(w http.ResponseWriter, r *http.Request) {
	annotator, err := s.ids.ensure(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	assignment, err := s.backend.NextWork(r.Context(), annotator)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeAssignment(w, assignment)
}

func (s *Server) handleValidationDetectVideos(w http.ResponseWriter, r *http.Request) {
	assignment, err := s.backend.NextValidation(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeAssignment(w, assignment)
}

func (s *Server) handleFrame(validation bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, errVideo := strconv.Atoi(r.PathValue("video"))
		frame, errFrame := strconv.Atoi(r.PathValue("frame"))
		if errVideo != nil || errFrame != nil {
			s.writeJSON(w, http.StatusNotFound, frameErrorResponse{Error: "Frame not found"})
			return
		}
		path, err := s.backend.FramePath(validation, video, frame)
		if err != nil {
			if errors.Is(err, corpus.ErrFrameNotFound) || errors.Is(err, corpus.ErrClipNotFound) {
				s.writeJSON(w, http.StatusNotFound, frameErrorResponse{Error: "Frame not found"})
				return
			}
			s.writeServiceError(w, r, err)
			return
		}
		http.ServeFile(w, r, path)
	}
}

func (s *Server) handleSaveAnnotation(w http.ResponseWriter, r *http.Request) {
	var rec models.AnnotationRecord
	if !s.decode(w, r, &rec) {
		return
	}
	id, err := s.backend.Submit(r.Context(), s.ids.annotatorOrUnknown(r), &rec)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saveResponse{
		Success:      true,
		Message:      "Annotation saved",
		AnnotationID: id,
	})
}

func (s *Server) handleSaveAll(w http.ResponseWriter, r *http.Request) {
	var req saveAllRequest
	if !s.decode(w, r, &req) {
		return
	}
	ids, err := s.backend.SubmitBatch(r.Context(), s.ids.annotatorOrUnknown(r), req.Annotations)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saveResponse{
		Success:       true,
		Message:       "All annotations saved",
		AnnotationID:  ids[len(ids)-1],
		AnnotationIDs: ids,
	})
}

func (s *Server) handleValidationSave(w http.ResponseWriter, r *http.Request) {
	var rec models.AnnotationRecord
	if !s.decode(w, r, &rec) {
		return
	}
	rec.AnnotatorID = s.ids.annotatorOrUnknown(r)
	score, err := s.backend.ScoreValidation(r.Context(), &rec)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, scoreResponse{
		Success: true,
		Message: "Annotation compared to ground truth",
		Score:   score,
	})
}

func (s *Server) writeAssignment(w http.ResponseWriter, a *models.Assignment) {
	s.writeJSON(w, http.StatusOK, workResponse{
		Success:    true,
		StartIndex: a.StartIndex,
		TotalClips: a.TotalClips,
		Clips:      a.Clips,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, corpus.ErrClipNotFound),
		errors.Is(err, corpus.ErrFrameNotFound),
		errors.Is(err, corpus.ErrCorpusEmpty),
		errors.Is(err, scoring.ErrGroundTruthNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrExhausted) {
		s.writeJSON(w, http.StatusOK, errorResponse{Exhausted: true, Error: err.Error()})
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}
