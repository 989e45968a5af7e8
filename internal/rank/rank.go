package rank

import (
	"context"
	"fmt"
	"strings"

	"matchboard/internal/domain"

	"github.com/rs/zerolog"
)

type Source interface {
	GetRankAtTime(ctx context.Context, puuid string, queueID int, timestamp int64) (*domain.Rank, error)
}

// Lookup fetches the rank snapshot an account held at a point in time.
type Lookup struct {
	source Source
	logger zerolog.Logger
}

func NewLookup(source Source, logger zerolog.Logger) *Lookup {
	return &Lookup{
		source: source,
		logger: logger.With().Str("component", "rank").Logger(),
	}
}

// AtTime returns nil without error when the account has no snapshot.
func (l *Lookup) AtTime(ctx context.Context, puuid string, queueID int, timestamp int64) (*domain.Rank, error) {
	rank, err := l.source.GetRankAtTime(ctx, puuid, queueID, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rank at time: %w", err)
	}
	return rank, nil
}

// BestEffort never fails; lookup errors are logged and reported as no rank.
func (l *Lookup) BestEffort(ctx context.Context, puuid string, queueID int, timestamp int64) *domain.Rank {
	rank, err := l.AtTime(ctx, puuid, queueID, timestamp)
	if err != nil {
		l.logger.Warn().
			Err(err).
			Str("puuid", puuid).
			Int("queue_id", queueID).
			Int64("timestamp", timestamp).
			Msg("rank lookup failed, rendering unranked")
		return nil
	}
	return rank
}

var apexTiers = map[string]bool{
	"MASTER":      true,
	"GRANDMASTER": true,
	"CHALLENGER":  true,
}

// Format renders "Gold II", "Master" or "Unranked".
func Format(rank *domain.Rank) string {
	if rank == nil || rank.Tier == "" {
		return "Unranked"
	}

	tier := strings.ToUpper(rank.Tier)
	title := tier[:1] + strings.ToLower(tier[1:])
	if apexTiers[tier] || rank.Division == "" {
		return title
	}
	return title + " " + rank.Division
}
