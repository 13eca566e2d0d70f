// Package web exposes the extraction pipeline over a small HTTP API.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"snapcal/internal/config"
	"snapcal/internal/event"
	"snapcal/internal/extract"
	appLog "snapcal/internal/log"
	"snapcal/internal/model"
	"snapcal/internal/pipeline"
	"snapcal/internal/store"
)

// maxImageBytes caps uploaded image size; vision APIs reject larger
// payloads anyway.
const maxImageBytes = 20 << 20

// Server provides the HTTP API: POST an image, get extracted events as
// JSON or as an ICS download.
type Server struct {
	cfg        *config.Config
	pipe       *pipeline.Pipeline
	serializer *event.Serializer
	st         store.CalendarStore // nil disables /api/write
	mux        *http.ServeMux
}

// NewServer constructs a Server. st may be nil when no store is
// configured.
func NewServer(cfg *config.Config, pipe *pipeline.Pipeline, serializer *event.Serializer, st store.CalendarStore) *Server {
	s := &Server{
		cfg:        cfg,
		pipe:       pipe,
		serializer: serializer,
		st:         st,
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler, wrapped with basic auth
// when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="snapcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/extract", s.handleExtract)
	s.mux.HandleFunc("/api/export", s.handleExport)
	s.mux.HandleFunc("/api/write", s.handleWrite)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is the JSON view of one materialized event.
type eventDTO struct {
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"all_day"`
}

// extractResponse is the JSON response shape for /api/extract.
type extractResponse struct {
	Events  []eventDTO `json:"events"`
	Dropped []string   `json:"dropped,omitempty"`
}

// writeResponse is the JSON response shape for /api/write.
type writeResponse struct {
	extractResponse
	Outcome  string            `json:"outcome"`
	Written  int               `json:"written"`
	Failed   int               `json:"failed"`
	Failures []writeFailureDTO `json:"failures,omitempty"`
}

type writeFailureDTO struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// runFromRequest reads the uploaded image and runs the pipeline.
func (s *Server) runFromRequest(w http.ResponseWriter, r *http.Request) (pipeline.Result, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return pipeline.Result{}, false
	}

	image, mime, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return pipeline.Result{}, false
	}

	res, err := s.pipe.Run(r.Context(), image, mime)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, extract.ErrNoJSONFound), errors.Is(err, extract.ErrNoEventsFound):
			status = http.StatusUnprocessableEntity
		}
		appLog.Error("api extraction failed", err, "path", r.URL.Path)
		writeError(w, status, err.Error())
		return pipeline.Result{}, false
	}
	return res, true
}

// handleExtract runs the pipeline and returns events as JSON.
//
// POST /api/extract
//   - multipart/form-data with an "image" file field, or
//   - a raw image body with its Content-Type set.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	res, ok := s.runFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toExtractResponse(res))
}

// handleExport runs the pipeline and returns an ICS calendar attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	res, ok := s.runFromRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="snapcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.serializer.Calendar(res.Events))
}

// handleWrite runs the pipeline and writes the events into the configured
// calendar store, reporting the batch outcome.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if s.st == nil {
		writeError(w, http.StatusNotImplemented, "no calendar store configured")
		return
	}

	res, ok := s.runFromRequest(w, r)
	if !ok {
		return
	}

	granted, err := s.st.RequestAccess(r.Context())
	if err != nil || !granted {
		appLog.Error("store access not granted", err)
		writeError(w, http.StatusServiceUnavailable, "calendar store access not granted")
		return
	}

	outcome := store.WriteAll(r.Context(), s.st, s.cfg.Store.Calendar, res.Events)

	resp := writeResponse{
		extractResponse: toExtractResponse(res),
		Outcome:         outcome.Classify().String(),
		Written:         outcome.SuccessCount,
		Failed:          outcome.FailureCount,
	}
	for _, f := range outcome.Failures {
		resp.Failures = append(resp.Failures, writeFailureDTO{Index: f.Index, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toExtractResponse(res pipeline.Result) extractResponse {
	out := extractResponse{Events: make([]eventDTO, 0, len(res.Events))}
	for _, ev := range res.Events {
		out.Events = append(out.Events, toEventDTO(ev))
	}
	for _, err := range res.Dropped {
		out.Dropped = append(out.Dropped, err.Error())
	}
	return out
}

func toEventDTO(ev model.MaterializedEvent) eventDTO {
	return eventDTO{
		Title:    ev.Title,
		Location: ev.Location,
		Notes:    ev.Notes,
		Start:    ev.Start,
		End:      ev.End,
		AllDay:   ev.AllDay,
	}
}

// readImage extracts the uploaded image bytes and mime type from either a
// multipart form or a raw body.
func readImage(r *http.Request) ([]byte, string, error) {
	ct := r.Header.Get("Content-Type")

	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			return nil, "", errors.New("invalid multipart form")
		}
		file, hdr, err := r.FormFile("image")
		if err != nil {
			return nil, "", errors.New(`missing "image" file field`)
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
		if err != nil {
			return nil, "", errors.New("failed to read image")
		}
		mime := hdr.Header.Get("Content-Type")
		if mime == "" {
			mime = pipeline.MimeTypeForPath(hdr.Filename)
		}
		return data, mime, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes))
	if err != nil || len(data) == 0 {
		return nil, "", errors.New("empty request body")
	}
	return data, ct, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
