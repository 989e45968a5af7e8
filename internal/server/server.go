package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"matchboard/internal/domain"
	"matchboard/internal/metrics"
	"matchboard/internal/middleware"
	"matchboard/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type Feeds interface {
	Load(ctx context.Context, sessionID string, req service.FeedRequest) (*service.Feed, error)
	Accounts(ctx context.Context, streamerID *int) ([]domain.TrackedAccount, error)
}

type CatalogInfo interface {
	Ensure(ctx context.Context) error
	Version() string
}

type Server struct {
	feeds   Feeds
	catalog CatalogInfo
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewServer(feeds Feeds, catalog CatalogInfo, m *metrics.Metrics, logger zerolog.Logger) *Server {
	return &Server{feeds: feeds, catalog: catalog, metrics: m, logger: logger}
}

type APIResponse struct {
	Success       bool              `json:"success"`
	Data          any               `json:"data,omitempty"`
	Error         string            `json:"error,omitempty"`
	PartialErrors map[string]string `json:"partialErrors,omitempty"`
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{middleware.RequestIDHeader, middleware.SessionIDHeader},
		AllowCredentials: true,
	})

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(c.Handler)

	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v0", func(r chi.Router) {
		r.Get("/accounts", s.ListAccounts)
		r.Get("/feed", s.GetFeed)
		r.Post("/feed/refresh", s.RefreshFeed)
		r.Get("/catalog/version", s.CatalogVersion)
	})

	return r
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}

func (s *Server) ListAccounts(w http.ResponseWriter, r *http.Request) {
	var streamerID *int
	if raw := r.URL.Query().Get("streamer_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: streamer_id must be an integer", domain.ErrInvalidRequest))
			return
		}
		streamerID = &id
	}

	accounts, err := s.feeds.Accounts(r.Context(), streamerID)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: accounts})
}

func (s *Server) GetFeed(w http.ResponseWriter, r *http.Request) {
	s.serveFeed(w, r, false)
}

func (s *Server) RefreshFeed(w http.ResponseWriter, r *http.Request) {
	s.serveFeed(w, r, true)
}

func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request, refresh bool) {
	req, err := parseFeedRequest(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	req.Refresh = refresh

	feed, err := s.feeds.Load(r.Context(), r.Header.Get(middleware.SessionIDHeader), req)
	if feed != nil {
		w.Header().Set(middleware.SessionIDHeader, feed.SessionID)
	}
	if err != nil {
		var aggErr *domain.AggregateError
		if errors.As(err, &aggErr) {
			zerolog.Ctx(r.Context()).Warn().Strs("accounts", aggErr.FailedAccounts()).Msg("every account failed to load")
			writeJSON(w, http.StatusBadGateway, APIResponse{
				Success:       false,
				Error:         err.Error(),
				PartialErrors: aggErr.Failures,
			})
			return
		}
		writeError(w, r, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: feed})
}

func (s *Server) CatalogVersion(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Ensure(r.Context()); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"version": s.catalog.Version()}})
}

func parseFeedRequest(r *http.Request) (service.FeedRequest, error) {
	q := r.URL.Query()
	req := service.FeedRequest{Champion: q.Get("champion")}

	for _, id := range strings.Split(q.Get("accounts"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			req.Accounts = append(req.Accounts, id)
		}
	}

	var err error
	if req.Limit, err = intParam(q.Get("limit")); err != nil {
		return req, fmt.Errorf("%w: limit: %v", domain.ErrInvalidRequest, err)
	}
	if req.Offset, err = intParam(q.Get("offset")); err != nil {
		return req, fmt.Errorf("%w: offset: %v", domain.ErrInvalidRequest, err)
	}

	if lane := q.Get("lane"); lane != "" {
		lane = strings.ToUpper(lane)
		req.Filter.Lane = &lane
	}
	if raw := q.Get("win"); raw != "" {
		win, err := strconv.ParseBool(raw)
		if err != nil {
			return req, fmt.Errorf("%w: win must be true or false", domain.ErrInvalidRequest)
		}
		req.Filter.Win = &win
	}
	if raw := q.Get("queue_id"); raw != "" {
		queueID, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("%w: queue_id must be an integer", domain.ErrInvalidRequest)
		}
		req.Filter.QueueID = &queueID
	}
	if raw := q.Get("from"); raw != "" {
		from, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, fmt.Errorf("%w: from must be a unix timestamp", domain.ErrInvalidRequest)
		}
		req.Filter.StartedAtMin = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, fmt.Errorf("%w: to must be a unix timestamp", domain.ErrInvalidRequest)
		}
		req.Filter.StartedAtMax = &to
	}

	return req, nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAllAccountsFailed), errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	log := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}
