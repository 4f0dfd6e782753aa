package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"scenegen/internal/api"
	"scenegen/internal/config"
	"scenegen/internal/logging"
	"scenegen/internal/metrics"
	"scenegen/internal/services"
)

// statusSource supplies daemon-level views to the HTTP API.
type statusSource interface {
	Status(ctx context.Context) api.DaemonStatus
	refreshGauges()
}

type apiServer struct {
	bind    string
	token   string
	logger  *slog.Logger
	svc     *api.Service
	daemon  statusSource
	metrics *metrics.Metrics

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg config.API, svc *api.Service, d statusSource, reg *metrics.Metrics, logger *slog.Logger) *apiServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &apiServer{
		bind:    strings.TrimSpace(cfg.Bind),
		token:   strings.TrimSpace(cfg.Token),
		logger:  logging.NewComponentLogger(logger, "api-server"),
		svc:     svc,
		daemon:  d,
		metrics: reg,
	}
}

// routes builds the chi router. Everything under /api requires the bearer
// token when one is configured; /healthz and /metrics stay open for probes.
func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	if s.metrics != nil {
		r.Use(metrics.RequestMiddleware(s.metrics))
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			s.metrics.Handler(s.daemon.refreshGauges).ServeHTTP(w, req)
		})
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(s.token))
		r.Get("/status", s.handleStatus)
		r.Get("/scenes", s.handleListScenes)
		r.Post("/scenes", s.handleImportScene)
		r.Route("/scenes/{sceneID}", func(r chi.Router) {
			r.Get("/", s.handleSceneStatus)
			r.Post("/generate", s.handleStartScene)
			r.Post("/assemble", s.handleAssembleScene)
			r.Post("/cancel", s.handleCancelScene)
			r.Post("/shots/{shotID}/retry", s.handleRetryShot)
			r.Get("/shots/{shotID}/attempts", s.handleShotAttempts)
		})
		r.Get("/jobs", s.handleJobs)
		r.Get("/jobs/{jobID}", s.handleJob)
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Assembly runs inside the request.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleListScenes(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.ListScenes(r.Context(), r.URL.Query()["status"]...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type importRequest struct {
	ManifestPath string `json:"manifestPath"`
}

func (s *apiServer) handleImportScene(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.svc.ImportScene(r.Context(), req.ManifestPath)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *apiServer) handleSceneStatus(w http.ResponseWriter, r *http.Request) {
	sceneID, ok := s.pathID(w, r, "sceneID")
	if !ok {
		return
	}
	resp, err := s.svc.SceneStatus(r.Context(), sceneID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStartScene(w http.ResponseWriter, r *http.Request) {
	sceneID, ok := s.pathID(w, r, "sceneID")
	if !ok {
		return
	}
	resp, err := s.svc.StartScene(r.Context(), sceneID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleAssembleScene(w http.ResponseWriter, r *http.Request) {
	sceneID, ok := s.pathID(w, r, "sceneID")
	if !ok {
		return
	}
	resp, err := s.svc.AssembleScene(r.Context(), sceneID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleCancelScene(w http.ResponseWriter, r *http.Request) {
	sceneID, ok := s.pathID(w, r, "sceneID")
	if !ok {
		return
	}
	if err := s.svc.CancelScene(sceneID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"sceneId": sceneID, "canceled": true})
}

func (s *apiServer) handleRetryShot(w http.ResponseWriter, r *http.Request) {
	sceneID, ok := s.pathID(w, r, "sceneID")
	if !ok {
		return
	}
	shotID, ok := s.pathID(w, r, "shotID")
	if !ok {
		return
	}
	resp, err := s.svc.RetryShot(r.Context(), sceneID, shotID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleShotAttempts(w http.ResponseWriter, r *http.Request) {
	sceneID, ok := s.pathID(w, r, "sceneID")
	if !ok {
		return
	}
	shotID, ok := s.pathID(w, r, "shotID")
	if !ok {
		return
	}
	resp, err := s.svc.ShotAttempts(r.Context(), sceneID, shotID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Jobs())
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Job(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", strings.TrimSuffix(param, "ID")+" id", raw))
		return 0, false
	}
	return id, true
}

// statusCode maps the service error taxonomy onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrExternalTool):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Error(err), logging.Int("status", code))
	}
	s.writeError(w, code, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
