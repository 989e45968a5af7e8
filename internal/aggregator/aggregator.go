package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"matchboard/internal/constants"
	"matchboard/internal/domain"
	"matchboard/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type MatchSource interface {
	ListMatches(ctx context.Context, puuid string, filter *domain.MatchFilter, limit, offset int) ([]domain.RawMatch, error)
}

type Request struct {
	Accounts []string
	Filter   *domain.MatchFilter
	Limit    int
	Offset   int
}

type Result struct {
	// Matches holds the page produced by this call.
	Matches       []domain.RawMatch
	PartialErrors map[string]string
	// Total is the size of the retained collection after this call.
	Total int
	// HasMore reports whether the most recently fetched page was full.
	HasMore bool
}

type Snapshot struct {
	Matches       []domain.RawMatch
	PartialErrors map[string]string
	Key           string
	Generation    uint64
	HasMore       bool
}

// Aggregator merges match listings from several accounts into one
// deduplicated, newest-first collection that grows with "load more" pages.
// The most recently started call wins; older calls in flight are discarded.
type Aggregator struct {
	source  MatchSource
	logger  zerolog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu            sync.Mutex
	generation    uint64
	key           string
	matches       []domain.RawMatch
	seen          map[int64]struct{}
	partialErrors map[string]string
	hasMore       bool
}

func New(source MatchSource, timeout time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Aggregator {
	if timeout <= 0 {
		timeout = constants.ExternalAPITimeout
	}
	return &Aggregator{
		source:        source,
		logger:        logger.With().Str("component", "aggregator").Logger(),
		metrics:       m,
		timeout:       timeout,
		seen:          make(map[int64]struct{}),
		partialErrors: make(map[string]string),
	}
}

// FetchMatches lists up to 2*limit matches per account at the given offset,
// merges them and keeps the newest limit. Offset 0 replaces the retained
// collection; a later offset appends to it, skipping games already shown.
//
// One failing account is reported in PartialErrors. When every account
// fails the result is empty and the error is a *domain.AggregateError.
func (a *Aggregator) FetchMatches(ctx context.Context, req Request) (Result, error) {
	a.mu.Lock()
	a.generation++
	gen := a.generation
	if req.Offset <= 0 {
		a.key = SyncKey(req.Accounts, req.Filter)
	}
	a.mu.Unlock()

	return a.fetch(ctx, gen, req)
}

// Sync fetches from offset 0 when the account set or filter changed since
// the last fetch. Otherwise it returns the retained collection without
// calling upstream.
func (a *Aggregator) Sync(ctx context.Context, accounts []string, filter *domain.MatchFilter, limit int) (Result, error) {
	key := SyncKey(accounts, filter)

	a.mu.Lock()
	if a.key == key && a.key != "" {
		res := Result{
			Matches:       cloneMatches(a.matches),
			PartialErrors: cloneErrors(a.partialErrors),
			Total:         len(a.matches),
			HasMore:       a.hasMore,
		}
		a.mu.Unlock()
		return res, nil
	}
	a.generation++
	gen := a.generation
	a.key = key
	a.resetLocked()
	a.mu.Unlock()

	a.logger.Debug().Str("key", key).Msg("account set changed, refetching")
	return a.fetch(ctx, gen, Request{Accounts: accounts, Filter: filter, Limit: limit})
}

// Refresh discards retained state and fetches the first page again.
func (a *Aggregator) Refresh(ctx context.Context, accounts []string, filter *domain.MatchFilter, limit int) (Result, error) {
	a.mu.Lock()
	a.generation++
	gen := a.generation
	a.key = SyncKey(accounts, filter)
	a.resetLocked()
	a.mu.Unlock()

	return a.fetch(ctx, gen, Request{Accounts: accounts, Filter: filter, Limit: limit})
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Matches:       cloneMatches(a.matches),
		PartialErrors: cloneErrors(a.partialErrors),
		Key:           a.key,
		Generation:    a.generation,
		HasMore:       a.hasMore,
	}
}

func (a *Aggregator) resetLocked() {
	a.matches = nil
	a.seen = make(map[int64]struct{})
	a.partialErrors = make(map[string]string)
	a.hasMore = false
}

func (a *Aggregator) fetch(ctx context.Context, gen uint64, req Request) (Result, error) {
	if req.Limit <= 0 {
		req.Limit = constants.DefaultFeedLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	if len(req.Accounts) == 0 {
		return a.commit(gen, req, nil, map[string]string{})
	}

	pages, failures := a.fanOut(ctx, req)

	if len(failures) == len(req.Accounts) {
		a.logger.Error().
			Int("accounts", len(req.Accounts)).
			Int("offset", req.Offset).
			Msg("failed to fetch matches from all accounts")

		res, err := a.commitFailure(gen, req, failures)
		if err != nil {
			return res, err
		}
		return res, &domain.AggregateError{Failures: cloneErrors(failures)}
	}

	if len(failures) > 0 {
		a.logger.Warn().
			Int("failed", len(failures)).
			Int("accounts", len(req.Accounts)).
			Msg("some accounts failed to load")
	}

	return a.commit(gen, req, Merge(pages), failures)
}

// fanOut waits for every account to settle. A failing account never cancels
// its siblings.
func (a *Aggregator) fanOut(ctx context.Context, req Request) ([][]domain.RawMatch, map[string]string) {
	pages := make([][]domain.RawMatch, len(req.Accounts))
	errs := make([]error, len(req.Accounts))
	perAccount := req.Limit * constants.DedupBufferMultiplier

	g := new(errgroup.Group)
	for i, puuid := range req.Accounts {
		i, puuid := i, puuid
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			matches, err := a.source.ListMatches(callCtx, puuid, req.Filter, perAccount, req.Offset)
			if a.metrics != nil {
				a.metrics.AccountFetches.WithLabelValues(metrics.Outcome(err)).Inc()
			}
			if err != nil {
				a.logger.Error().Err(err).Str("puuid", puuid).Msg("failed to fetch matches for account")
				errs[i] = err
				return nil
			}
			pages[i] = matches
			return nil
		})
	}
	_ = g.Wait()

	failures := make(map[string]string)
	for i, err := range errs {
		if err != nil {
			failures[req.Accounts[i]] = err.Error()
		}
	}
	return pages, failures
}

func (a *Aggregator) commit(gen uint64, req Request, merged []domain.RawMatch, failures map[string]string) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		return Result{}, domain.ErrSuperseded
	}

	if req.Offset == 0 {
		a.matches = nil
		a.seen = make(map[int64]struct{})
	}

	fresh := lo.Filter(merged, func(m domain.RawMatch, _ int) bool {
		_, dup := a.seen[m.Summary.GameID]
		return !dup
	})
	page := lo.Slice(fresh, 0, req.Limit)

	for _, m := range page {
		a.seen[m.Summary.GameID] = struct{}{}
	}
	a.matches = append(a.matches, page...)
	a.partialErrors = cloneErrors(failures)
	a.hasMore = len(page) >= req.Limit

	return Result{
		Matches:       cloneMatches(page),
		PartialErrors: cloneErrors(failures),
		Total:         len(a.matches),
		HasMore:       a.hasMore,
	}, nil
}

func (a *Aggregator) commitFailure(gen uint64, req Request, failures map[string]string) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		return Result{}, domain.ErrSuperseded
	}

	if req.Offset == 0 {
		a.resetLocked()
		// the next Sync with the same accounts should retry
		a.key = ""
	}
	a.partialErrors = cloneErrors(failures)

	return Result{
		Matches:       []domain.RawMatch{},
		PartialErrors: cloneErrors(failures),
		Total:         len(a.matches),
		HasMore:       a.hasMore,
	}, nil
}

// Merge concatenates per-account pages, keeps the first occurrence of each
// game id in account order and sorts newest first. Matches without a start
// time sort as if they started at 0.
func Merge(pages [][]domain.RawMatch) []domain.RawMatch {
	merged := lo.UniqBy(lo.Flatten(pages), func(m domain.RawMatch) int64 {
		return m.Summary.GameID
	})
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartedAtOrZero() > merged[j].StartedAtOrZero()
	})
	return merged
}

// AccountsKey identifies an account set independent of order.
func AccountsKey(accounts []string) string {
	ids := lo.Uniq(accounts)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func SyncKey(accounts []string, filter *domain.MatchFilter) string {
	key := AccountsKey(accounts)
	if key == "" || filter == nil {
		return key
	}

	var parts []string
	if filter.ChampionID != nil {
		parts = append(parts, "champion="+strconv.Itoa(*filter.ChampionID))
	}
	if filter.Lane != nil {
		parts = append(parts, "lane="+*filter.Lane)
	}
	if filter.Win != nil {
		parts = append(parts, "win="+strconv.FormatBool(*filter.Win))
	}
	if filter.QueueID != nil {
		parts = append(parts, "queue="+strconv.Itoa(*filter.QueueID))
	}
	if filter.StartedAtMin != nil {
		parts = append(parts, fmt.Sprintf("from=%d", *filter.StartedAtMin))
	}
	if filter.StartedAtMax != nil {
		parts = append(parts, fmt.Sprintf("to=%d", *filter.StartedAtMax))
	}
	if len(parts) == 0 {
		return key
	}
	return key + "|" + strings.Join(parts, "&")
}

func cloneMatches(matches []domain.RawMatch) []domain.RawMatch {
	out := make([]domain.RawMatch, len(matches))
	copy(out, matches)
	return out
}

func cloneErrors(errs map[string]string) map[string]string {
	out := make(map[string]string, len(errs))
	for k, v := range errs {
		out[k] = v
	}
	return out
}
