package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"trustScope/internal/cache"
	"trustScope/internal/metrics"
	"trustScope/internal/mirror"
)

// Cache keys and Cache-Control values of the cached reads.
const (
	activityKey    = "activity"
	leaderboardKey = "leaderboard"

	activityCacheControl = "public, s-maxage=5, stale-while-revalidate=10"
	projectsCacheControl = "public, s-maxage=60, stale-while-revalidate=300"
)

// Server serves the mirror HTTP API.
type Server struct {
	svc     *mirror.Service
	reads   *cache.Loader
	metrics *metrics.Registry
	limiter *RateLimiter
	logger  *zap.Logger
}

// Config holds the Server dependencies. Reads, Metrics and Limiter are optional.
type Config struct {
	Service *mirror.Service
	Reads   *cache.Loader
	Metrics *metrics.Registry
	Limiter *RateLimiter
	Logger  *zap.Logger
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		svc:     cfg.Service,
		reads:   cfg.Reads,
		metrics: cfg.Metrics,
		limiter: cfg.Limiter,
		logger:  logger,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware(s.logger))
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	write := func(h http.HandlerFunc) http.Handler {
		return s.limiter.Wrap(h)
	}

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.Handle("/attestations", write(s.handleRecordAttestation)).Methods(http.MethodPost)
	r.Handle("/attestations/revoke", write(s.handleRevokeAttestation)).Methods(http.MethodPost)
	r.Handle("/stakes", write(s.handleRecordStake)).Methods(http.MethodPost)
	r.HandleFunc("/activity", s.handleActivity).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)

	r.Handle("/users", write(s.handleRegisterUser)).Methods(http.MethodPost)
	r.HandleFunc("/users", s.handleSearchUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/{wallet}", s.handleProfile).Methods(http.MethodGet)

	r.Handle("/projects", write(s.handleCreateProject)).Methods(http.MethodPost)
	r.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}", s.handleGetProject).Methods(http.MethodGet)
	r.Handle("/projects/{id}", write(s.handlePatchProject)).Methods(http.MethodPatch)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecordAttestation(w http.ResponseWriter, r *http.Request) {
	var req mirror.RecordAttestationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	a, err := s.svc.RecordAttestation(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.invalidateFeed(r.Context())
	writeJSON(w, http.StatusCreated, mirror.AttestationResponse{Success: true, Attestation: a})
}

func (s *Server) handleRevokeAttestation(w http.ResponseWriter, r *http.Request) {
	var req mirror.RevokeAttestationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if _, err := s.svc.RevokeAttestation(r.Context(), req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.invalidateFeed(r.Context())
	writeJSON(w, http.StatusOK, mirror.SuccessResponse{Success: true})
}

func (s *Server) handleRecordStake(w http.ResponseWriter, r *http.Request) {
	var req mirror.RecordStakeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	st, err := s.svc.RecordStake(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.invalidateFeed(r.Context())
	writeJSON(w, http.StatusOK, mirror.StakeResponse{Success: true, Stake: st})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	body, err := s.cachedRead(r.Context(), activityKey, func(ctx context.Context) ([]byte, error) {
		items, err := s.svc.ActivityFeed(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(mirror.ActivityResponse{Activity: items})
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", activityCacheControl)
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	body, err := s.cachedRead(r.Context(), leaderboardKey, func(ctx context.Context) ([]byte, error) {
		entries, err := s.svc.Leaderboard(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(mirror.LeaderboardResponse{Leaderboard: entries})
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) cachedRead(ctx context.Context, key string, fn cache.LoadFunc) ([]byte, error) {
	if s.reads == nil {
		return fn(ctx)
	}
	return s.reads.Get(ctx, key, fn)
}

func (s *Server) invalidateFeed(ctx context.Context) {
	if s.reads != nil {
		s.reads.Invalidate(ctx, activityKey, leaderboardKey)
	}
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req mirror.RegisterUserRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user, err := s.svc.RegisterUser(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	// Feed and leaderboard rows join user metadata.
	s.invalidateFeed(r.Context())
	writeJSON(w, http.StatusOK, mirror.UserResponse{Success: true, User: user})
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mirror.UsersResponse{Users: users})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svc.Profile(r.Context(), mux.Vars(r)["wallet"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mirror.ProfileResponse{Profile: profile})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req mirror.CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	p, err := s.svc.CreateProject(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mirror.ProjectResponse{Success: true, Project: p})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjects(r.Context(), r.URL.Query().Get("approved") == "true")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", projectsCacheControl)
	writeJSON(w, http.StatusOK, mirror.ProjectsResponse{Projects: projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	p, err := s.svc.GetProject(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mirror.ProjectResponse{Project: p})
}

func (s *Server) handlePatchProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	var patch mirror.PatchProjectRequest
	if err := decodeBody(r, &patch); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	p, err := s.svc.PatchProject(r.Context(), id, patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mirror.ProjectResponse{Success: true, Project: p})
}

func projectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "Invalid project ID")
		return 0, false
	}
	return id, true
}
