package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"matchboard/internal/aggregator"
	"matchboard/internal/constants"
	"matchboard/internal/domain"
	"matchboard/internal/transform"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type ChampionResolver interface {
	Ensure(ctx context.Context) error
	ChampionIDByName(name string) (int, bool)
}

type AccountLister interface {
	ListAccounts(ctx context.Context, streamerID *int) ([]domain.TrackedAccount, error)
}

type FeedRequest struct {
	Accounts []string
	Limit    int
	Offset   int

	// Champion is a display name resolved through the asset catalog.
	Champion string
	Filter   domain.MatchFilter

	// Refresh drops the session's retained matches before fetching.
	Refresh bool
}

type Feed struct {
	SessionID     string                  `json:"sessionId"`
	Matches       []domain.DisplayMatch   `json:"matches"`
	PartialErrors map[string]string       `json:"partialErrors,omitempty"`
	FailedMatches []transform.FailedMatch `json:"failedMatches,omitempty"`
	Warning       string                  `json:"warning,omitempty"`
	Total         int                     `json:"total"`
	HasMore       bool                    `json:"hasMore"`
}

type FeedService struct {
	sessions    *aggregator.Registry
	transformer *transform.Transformer
	champions   ChampionResolver
	accounts    AccountLister
	logger      zerolog.Logger
}

func NewFeedService(sessions *aggregator.Registry, transformer *transform.Transformer, champions ChampionResolver, accounts AccountLister, logger zerolog.Logger) *FeedService {
	return &FeedService{
		sessions:    sessions,
		transformer: transformer,
		champions:   champions,
		accounts:    accounts,
		logger:      logger,
	}
}

// Load returns the next page of a session's merged match feed. On total
// failure the returned Feed still carries the session id and per-account
// errors alongside the *domain.AggregateError.
func (s *FeedService) Load(ctx context.Context, sessionID string, req FeedRequest) (*Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	req, err := s.normalize(ctx, req)
	if err != nil {
		return nil, err
	}

	agg, sessionID, err := s.sessions.Get(sessionID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to open aggregator session")
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	s.logger.Debug().
		Str("session_id", sessionID).
		Strs("accounts", req.Accounts).
		Int("limit", req.Limit).
		Int("offset", req.Offset).
		Bool("refresh", req.Refresh).
		Msg("loading match feed")

	filter := &req.Filter
	var res aggregator.Result
	switch {
	case req.Refresh:
		res, err = agg.Refresh(ctx, req.Accounts, filter, req.Limit)
	case req.Offset == 0:
		res, err = agg.Sync(ctx, req.Accounts, filter, req.Limit)
	default:
		res, err = agg.FetchMatches(ctx, aggregator.Request{
			Accounts: req.Accounts,
			Filter:   filter,
			Limit:    req.Limit,
			Offset:   req.Offset,
		})
	}

	feed := &Feed{
		SessionID:     sessionID,
		Matches:       []domain.DisplayMatch{},
		PartialErrors: res.PartialErrors,
		Total:         res.Total,
	}

	if err != nil {
		if errors.Is(err, domain.ErrSuperseded) {
			s.logger.Debug().Str("session_id", sessionID).Msg("feed load superseded by a newer request")
			return nil, err
		}
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to load match feed")
		return feed, err
	}

	if n := len(res.PartialErrors); n > 0 {
		feed.Warning = fmt.Sprintf("%d of %d accounts failed to load", n, len(req.Accounts))
	}

	batch := s.transformer.TransformBatch(ctx, res.Matches, trackedPuuid(req.Accounts))
	feed.Matches = batch.Matches
	feed.FailedMatches = batch.Failed
	feed.HasMore = res.HasMore

	s.logger.Info().
		Str("session_id", sessionID).
		Int("matches", len(feed.Matches)).
		Int("failed_matches", len(feed.FailedMatches)).
		Int("failed_accounts", len(res.PartialErrors)).
		Msg("match feed loaded")

	return feed, nil
}

func (s *FeedService) Accounts(ctx context.Context, streamerID *int) ([]domain.TrackedAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	accounts, err := s.accounts.ListAccounts(ctx, streamerID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list tracked accounts")
		return nil, fmt.Errorf("failed to list tracked accounts: %w", err)
	}
	return accounts, nil
}

func (s *FeedService) normalize(ctx context.Context, req FeedRequest) (FeedRequest, error) {
	req.Accounts = lo.Uniq(lo.Compact(lo.Map(req.Accounts, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})))

	if req.Offset < 0 {
		return req, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidRequest)
	}
	if req.Limit <= 0 {
		req.Limit = constants.DefaultFeedLimit
	}
	req.Limit = min(req.Limit, constants.MaxFeedLimit)

	name := strings.TrimSpace(req.Champion)
	if name == "" {
		return req, nil
	}
	if err := s.champions.Ensure(ctx); err != nil {
		return req, fmt.Errorf("failed to load champion names: %w", err)
	}
	id, ok := s.champions.ChampionIDByName(name)
	if !ok {
		return req, fmt.Errorf("%w: unknown champion %q", domain.ErrInvalidRequest, name)
	}
	req.Filter.ChampionID = &id
	return req, nil
}

// trackedPuuid picks the first requested account that played in the match.
func trackedPuuid(accounts []string) func(domain.RawMatch) string {
	return func(m domain.RawMatch) string {
		for _, puuid := range accounts {
			if lo.ContainsBy(m.Participants, func(p domain.Participant) bool { return p.Puuid == puuid }) {
				return puuid
			}
		}
		return ""
	}
}
