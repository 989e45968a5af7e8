package transform

import (
	"context"

	"matchboard/internal/domain"
	"matchboard/internal/metrics"

	"golang.org/x/sync/errgroup"
)

type FailedMatch struct {
	GameID int64  `json:"gameId"`
	Reason string `json:"reason"`
}

type BatchResult struct {
	Matches []domain.DisplayMatch `json:"matches"`
	Failed  []FailedMatch         `json:"failed,omitempty"`
}

// TransformBatch transforms matches concurrently. A failing match is
// logged and reported in Failed; the rest keep their input order.
func (t *Transformer) TransformBatch(ctx context.Context, raws []domain.RawMatch, puuidFor func(domain.RawMatch) string) BatchResult {
	results := make([]*domain.DisplayMatch, len(raws))
	errs := make([]error, len(raws))

	g := new(errgroup.Group)
	g.SetLimit(t.concurrency)
	for i := range raws {
		i := i
		g.Go(func() error {
			results[i], errs[i] = t.Transform(ctx, raws[i], puuidFor(raws[i]))
			return nil
		})
	}
	_ = g.Wait()

	out := BatchResult{Matches: make([]domain.DisplayMatch, 0, len(raws))}
	for i, raw := range raws {
		if t.metrics != nil {
			t.metrics.TransformResults.WithLabelValues(metrics.Outcome(errs[i])).Inc()
		}
		if errs[i] != nil {
			t.logger.Error().
				Err(errs[i]).
				Int64("game_id", raw.Summary.GameID).
				Msg("failed to transform match, skipping")
			out.Failed = append(out.Failed, FailedMatch{GameID: raw.Summary.GameID, Reason: errs[i].Error()})
			continue
		}
		out.Matches = append(out.Matches, *results[i])
	}
	return out
}
