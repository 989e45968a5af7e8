package transform

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"matchboard/internal/config"
	"matchboard/internal/constants"
	"matchboard/internal/domain"
	"matchboard/internal/metrics"
	"matchboard/internal/rank"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type Catalog interface {
	Ensure(ctx context.Context) error
	ChampionIconURL(championID int) string
	ItemIconURL(itemID int) string
	SpellIconURL(spellID int) string
}

type RankLookup interface {
	BestEffort(ctx context.Context, puuid string, queueID int, timestamp int64) *domain.Rank
}

// Transformer projects raw matches into display records from one tracked
// player's perspective.
type Transformer struct {
	catalog     Catalog
	ranks       RankLookup
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	concurrency int
}

func NewTransformer(catalog Catalog, ranks RankLookup, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *Transformer {
	concurrency := constants.TransformConcurrency
	if cfg != nil && cfg.TransformConcurrency > 0 {
		concurrency = cfg.TransformConcurrency
	}
	return &Transformer{
		catalog:     catalog,
		ranks:       ranks,
		logger:      logger.With().Str("component", "transform").Logger(),
		metrics:     m,
		now:         time.Now,
		concurrency: concurrency,
	}
}

// WithClock replaces the clock used for relative timestamps.
func (t *Transformer) WithClock(now func() time.Time) *Transformer {
	t.now = now
	return t
}

// Transform fails when the tracked player is not in the match or the asset
// catalog cannot be loaded. Rank lookup failures render as "Unranked".
func (t *Transformer) Transform(ctx context.Context, raw domain.RawMatch, puuid string) (*domain.DisplayMatch, error) {
	participants := raw.Participants

	me, meIdx, ok := lo.FindIndexOf(participants, func(p domain.Participant) bool {
		return p.Puuid == puuid
	})
	if !ok {
		return nil, &domain.NotFoundError{Puuid: puuid, GameID: raw.Summary.GameID}
	}

	if err := t.catalog.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure asset catalog: %w", err)
	}

	placement := Placement(participants, meIdx)
	sameTeam := teamPredicate(participants, me)
	teammates, opponents := lo.FilterReject(participants, func(p domain.Participant, _ int) bool {
		return sameTeam(p)
	})
	teamKills := lo.SumBy(teammates, func(p domain.Participant) int { return p.Kills })

	queueID := constants.DefaultQueueID
	if raw.Summary.QueueID != nil {
		queueID = *raw.Summary.QueueID
	}
	startedAt := raw.StartedAtOrZero()
	duration := raw.DurationOrZero()
	csPerMin := CSPerMinute(me.TotalMinionsKilled, duration)

	playerRank := t.ranks.BestEffort(ctx, puuid, queueID, startedAt)

	level := me.ChampLevel
	if level <= 0 {
		level = 1
	}

	return &domain.DisplayMatch{
		ID:              raw.Summary.GameID,
		TrackedPuuid:    puuid,
		StartedAt:       startedAt,
		DurationSeconds: duration,
		QueueType:       QueueName(queueID),
		TimeAgo:         humanize.RelTime(time.Unix(startedAt, 0), t.now(), "ago", "from now"),
		Result:          resultLabel(me.Win),
		Duration:        FormatDuration(duration),
		Champion: domain.ChampionView{
			ID:    me.ChampionID,
			Image: t.catalog.ChampionIconURL(me.ChampionID),
			Level: level,
		},
		KDA: domain.KDA{
			Kills:   me.Kills,
			Deaths:  me.Deaths,
			Assists: me.Assists,
		},
		KDARatio: KDARatio(me.Kills, me.Deaths, me.Assists),
		SummonerSpells: []string{
			t.catalog.SpellIconURL(me.Summoner1ID),
			t.catalog.SpellIconURL(me.Summoner2ID),
		},
		Items: lo.Map(me.Items(), func(itemID int, _ int) string {
			return t.catalog.ItemIconURL(itemID)
		}),
		Trinket: t.catalog.ItemIconURL(me.Item6),
		Stats: domain.MatchStats{
			KillParticipation: KillParticipation(me.Kills, me.Assists, teamKills),
			CS:                fmt.Sprintf("%d (%s)", me.TotalMinionsKilled, csPerMin),
			CSPerMin:          csPerMin,
			Rank:              rank.Format(playerRank),
		},
		Placement:      placement,
		PlacementLabel: humanize.Ordinal(placement),
		PerformanceTag: PerformanceTag(placement, me.Win),
		Teams: domain.Teams{
			Blue: t.roster(teammates),
			Red:  t.roster(opponents),
		},
	}, nil
}

func (t *Transformer) roster(members []domain.Participant) []domain.TeamMember {
	return lo.Map(lo.Slice(members, 0, constants.TeamSize), func(p domain.Participant, _ int) domain.TeamMember {
		name := p.RiotIDGameName
		if name == "" {
			name = constants.UnknownPlayer
		}
		return domain.TeamMember{
			Name:     name,
			Champion: t.catalog.ChampionIconURL(p.ChampionID),
		}
	})
}

// teamPredicate groups by team id when every participant carries one and
// falls back to the shared win flag otherwise. The fallback is an
// approximation: it is only correct when exactly one side won.
func teamPredicate(participants []domain.Participant, me domain.Participant) func(domain.Participant) bool {
	hasTeamIDs := lo.EveryBy(participants, func(p domain.Participant) bool { return p.TeamID != 0 })
	if hasTeamIDs {
		return func(p domain.Participant) bool { return p.TeamID == me.TeamID }
	}
	return func(p domain.Participant) bool { return p.Win == me.Win }
}

// kdaScore ranks a deathless participant above every finite ratio.
func kdaScore(p domain.Participant) float64 {
	if p.Deaths == 0 {
		return math.Inf(1)
	}
	return float64(p.Kills+p.Assists) / float64(p.Deaths)
}

// Placement returns the 1-based rank of participants[idx] among all
// participants ordered by KDA score. Ties keep roster order.
func Placement(participants []domain.Participant, idx int) int {
	order := lo.Range(len(participants))
	sort.SliceStable(order, func(i, j int) bool {
		return kdaScore(participants[order[i]]) > kdaScore(participants[order[j]])
	})
	return lo.IndexOf(order, idx) + 1
}

func KDARatio(kills, deaths, assists int) string {
	if deaths == 0 {
		return "Perfect"
	}
	return fmt.Sprintf("%.2f:1", float64(kills+assists)/float64(deaths))
}

func KillParticipation(kills, assists, teamKills int) string {
	if teamKills == 0 {
		return "0%"
	}
	pct := math.Round(100 * float64(kills+assists) / float64(teamKills))
	return fmt.Sprintf("%d%%", int(pct))
}

func CSPerMinute(cs, durationSeconds int) string {
	if durationSeconds <= 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(cs)/(float64(durationSeconds)/60))
}

func PerformanceTag(placement int, win bool) string {
	switch {
	case placement <= 3 && win:
		return "Carry"
	case placement >= 8 && !win:
		return "Struggle"
	}
	return "Average"
}

func FormatDuration(seconds int) string {
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

func QueueName(queueID int) string {
	if name, ok := constants.QueueNames[queueID]; ok {
		return name
	}
	return "Unknown Queue"
}

func resultLabel(win bool) string {
	if win {
		return "Victory"
	}
	return "Defeat"
}
