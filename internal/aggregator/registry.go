package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"matchboard/internal/config"
	"matchboard/internal/constants"
	"matchboard/internal/metrics"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type session struct {
	agg      *Aggregator
	lastUsed time.Time
}

// Registry keeps one Aggregator per UI session and drops sessions that
// have been idle longer than the TTL.
type Registry struct {
	source  MatchSource
	timeout time.Duration
	ttl     time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry(source MatchSource, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *Registry {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = constants.SessionTTL
	}
	return &Registry{
		source:   source,
		timeout:  cfg.UpstreamTimeout,
		ttl:      ttl,
		logger:   logger.With().Str("component", "sessions").Logger(),
		metrics:  m,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Get returns the aggregator for sessionID, creating a session with a new
// id when sessionID is empty or unknown.
func (r *Registry) Get(sessionID string) (*Aggregator, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok && sessionID != "" {
		s.lastUsed = r.now()
		return s.agg, sessionID, nil
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate session id: %w", err)
	}

	agg := New(r.source, r.timeout, r.logger, r.metrics)
	r.sessions[id] = &session{agg: agg, lastUsed: r.now()}
	r.updateGauge()

	r.logger.Debug().Str("session_id", id).Msg("session created")
	return agg, id, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes idle sessions and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	evicted := 0
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.updateGauge()
		r.logger.Info().Int("evicted", evicted).Int("active", len(r.sessions)).Msg("idle sessions evicted")
	}
	return evicted
}

// Run sweeps on an interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
}
