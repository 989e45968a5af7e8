package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"matchboard/internal/domain"
	"matchboard/internal/metrics"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type listCall struct {
	puuid  string
	limit  int
	offset int
}

type fakeSource struct {
	mu    sync.Mutex
	pages map[string][]domain.RawMatch
	errs  map[string]error
	calls []listCall

	// when set, ListMatches blocks on it for the matching puuid
	block map[string]chan struct{}
}

func (f *fakeSource) ListMatches(ctx context.Context, puuid string, filter *domain.MatchFilter, limit, offset int) ([]domain.RawMatch, error) {
	f.mu.Lock()
	f.calls = append(f.calls, listCall{puuid: puuid, limit: limit, offset: offset})
	gate := f.block[puuid]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[puuid]; err != nil {
		return nil, err
	}
	page := f.pages[puuid]
	if offset >= len(page) {
		return []domain.RawMatch{}, nil
	}
	end := min(offset+limit, len(page))
	return page[offset:end], nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func match(id int64, startedAt int64) domain.RawMatch {
	return domain.RawMatch{Summary: domain.MatchSummary{GameID: id, StartedAt: &startedAt}}
}

func ids(matches []domain.RawMatch) []int64 {
	out := make([]int64, len(matches))
	for i, m := range matches {
		out[i] = m.Summary.GameID
	}
	return out
}

// rendezvousSource answers only once every expected call has started, so a
// serialized fan-out runs into the per-call timeout.
type rendezvousSource struct {
	pending sync.WaitGroup
	pages   map[string][]domain.RawMatch
}

func (r *rendezvousSource) ListMatches(ctx context.Context, puuid string, filter *domain.MatchFilter, limit, offset int) ([]domain.RawMatch, error) {
	r.pending.Done()
	released := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(released)
	}()

	select {
	case <-released:
		return r.pages[puuid], nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestAggregator(src MatchSource) *Aggregator {
	return New(src, time.Second, zerolog.Nop(), metrics.New())
}

func TestFetchMatches_MergesAndDeduplicates(t *testing.T) {
	src := &fakeSource{pages: map[string][]domain.RawMatch{
		"A": {match(10, 300), match(20, 200), match(30, 100)},
		"B": {match(20, 200), match(40, 50)},
	}}
	agg := newTestAggregator(src)

	res, err := agg.FetchMatches(context.Background(), Request{Accounts: []string{"A", "B"}, Limit: 10})
	if err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}

	if diff := cmp.Diff([]int64{10, 20, 30, 40}, ids(res.Matches)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if len(res.PartialErrors) != 0 {
		t.Errorf("PartialErrors = %v, want none", res.PartialErrors)
	}
	if res.Total != 4 {
		t.Errorf("Total = %d, want 4", res.Total)
	}
}

func TestFetchMatches_RequestsDedupBuffer(t *testing.T) {
	src := &fakeSource{pages: map[string][]domain.RawMatch{}}
	agg := newTestAggregator(src)

	if _, err := agg.FetchMatches(context.Background(), Request{Accounts: []string{"A", "B"}, Limit: 5, Offset: 15}); err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}

	for _, call := range src.calls {
		if call.limit != 10 || call.offset != 15 {
			t.Errorf("call %+v, want limit 10 offset 15", call)
		}
	}
	if len(src.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(src.calls))
	}
}

func TestFetchMatches_TruncatesToLimit(t *testing.T) {
	src := &fakeSource{pages: map[string][]domain.RawMatch{
		"A": {match(1, 600), match(2, 500), match(3, 400)},
		"B": {match(4, 550), match(5, 450)},
	}}
	agg := newTestAggregator(src)

	res, err := agg.FetchMatches(context.Background(), Request{Accounts: []string{"A", "B"}, Limit: 3})
	if err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}
	if diff := cmp.Diff([]int64{1, 4, 2}, ids(res.Matches)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchMatches_EmptyAccounts(t *testing.T) {
	src := &fakeSource{}
	agg := newTestAggregator(src)

	res, err := agg.FetchMatches(context.Background(), Request{Limit: 10})
	if err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}
	if len(res.Matches) != 0 || len(res.PartialErrors) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
	if src.callCount() != 0 {
		t.Errorf("upstream calls = %d, want 0", src.callCount())
	}
}

func TestFetchMatches_PartialFailure(t *testing.T) {
	src := &fakeSource{
		pages: map[string][]domain.RawMatch{"A": {match(1, 100)}},
		errs:  map[string]error{"B": errors.New("rate limited")},
	}
	agg := newTestAggregator(src)

	res, err := agg.FetchMatches(context.Background(), Request{Accounts: []string{"A", "B"}, Limit: 10})
	if err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}
	if diff := cmp.Diff([]int64{1}, ids(res.Matches)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"B": "rate limited"}, res.PartialErrors); diff != "" {
		t.Errorf("PartialErrors mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchMatches_TotalFailure(t *testing.T) {
	src := &fakeSource{errs: map[string]error{
		"A": errors.New("a down"),
		"B": errors.New("b down"),
	}}
	agg := newTestAggregator(src)

	res, err := agg.FetchMatches(context.Background(), Request{Accounts: []string{"A", "B"}, Limit: 10})
	if !errors.Is(err, domain.ErrAllAccountsFailed) {
		t.Fatalf("err = %v, want ErrAllAccountsFailed", err)
	}
	var aggErr *domain.AggregateError
	if !errors.As(err, &aggErr) {
		t.Fatalf("err = %T, want *domain.AggregateError", err)
	}
	if diff := cmp.Diff([]string{"A", "B"}, aggErr.FailedAccounts()); diff != "" {
		t.Errorf("FailedAccounts mismatch (-want +got):\n%s", diff)
	}
	if len(res.Matches) != 0 || len(res.PartialErrors) != 2 {
		t.Errorf("result = %+v, want empty matches and two errors", res)
	}
}

func TestFetchMatches_MissingTimestampSortsLast(t *testing.T) {
	src := &fakeSource{pages: map[string][]domain.RawMatch{
		"A": {{Summary: domain.MatchSummary{GameID: 7}}, match(8, 1)},
	}}
	agg := newTestAggregator(src)

	res, err := agg.FetchMatches(context.Background(), Request{Accounts: []string{"A"}, Limit: 10})
	if err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}
	if diff := cmp.Diff([]int64{8, 7}, ids(res.Matches)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchMatches_LoadMoreAppendsWithoutDuplicates(t *testing.T) {
	// A's second page repeats game 2, which B already surfaced on page one
	src := &fakeSource{pages: map[string][]domain.RawMatch{
		"A": {match(1, 900), match(3, 700), match(2, 800), match(5, 500)},
		"B": {match(2, 800), match(4, 600)},
	}}
	agg := newTestAggregator(src)
	ctx := context.Background()

	first, err := agg.FetchMatches(ctx, Request{Accounts: []string{"A", "B"}, Limit: 1})
	if err != nil {
		t.Fatalf("first page error = %v", err)
	}
	// A: [1, 3], B: [2, 4] -> [1]
	if diff := cmp.Diff([]int64{1}, ids(first.Matches)); diff != "" {
		t.Errorf("first page mismatch (-want +got):\n%s", diff)
	}

	second, err := agg.FetchMatches(ctx, Request{Accounts: []string{"A", "B"}, Limit: 3, Offset: 1})
	if err != nil {
		t.Fatalf("second page error = %v", err)
	}
	// A: [3, 2, 5], B: [4] -> [2, 3, 4]
	if diff := cmp.Diff([]int64{2, 3, 4}, ids(second.Matches)); diff != "" {
		t.Errorf("second page mismatch (-want +got):\n%s", diff)
	}

	third, err := agg.FetchMatches(ctx, Request{Accounts: []string{"A", "B"}, Limit: 3, Offset: 2})
	if err != nil {
		t.Fatalf("third page error = %v", err)
	}
	// A: [2, 5], B: [] -> 2 already shown
	if diff := cmp.Diff([]int64{5}, ids(third.Matches)); diff != "" {
		t.Errorf("third page mismatch (-want +got):\n%s", diff)
	}

	snap := agg.Snapshot()
	if diff := cmp.Diff([]int64{1, 2, 3, 4, 5}, ids(snap.Matches)); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// offset 0 replaces the collection and forgets what was seen
	fresh, err := agg.FetchMatches(ctx, Request{Accounts: []string{"A", "B"}, Limit: 2})
	if err != nil {
		t.Fatalf("reset page error = %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2}, ids(fresh.Matches)); diff != "" {
		t.Errorf("reset page mismatch (-want +got):\n%s", diff)
	}
	if got := len(agg.Snapshot().Matches); got != 2 {
		t.Errorf("snapshot after reset has %d matches, want 2", got)
	}
}

func TestFetchMatches_TotalFailureOnLoadMoreKeepsState(t *testing.T) {
	src := &fakeSource{pages: map[string][]domain.RawMatch{"A": {match(1, 100)}}}
	agg := newTestAggregator(src)
	ctx := context.Background()

	if _, err := agg.FetchMatches(ctx, Request{Accounts: []string{"A"}, Limit: 10}); err != nil {
		t.Fatalf("first page error = %v", err)
	}

	src.mu.Lock()
	src.errs = map[string]error{"A": errors.New("down")}
	src.mu.Unlock()

	if _, err := agg.FetchMatches(ctx, Request{Accounts: []string{"A"}, Limit: 10, Offset: 10}); !errors.Is(err, domain.ErrAllAccountsFailed) {
		t.Fatalf("err = %v, want ErrAllAccountsFailed", err)
	}
	if got := ids(agg.Snapshot().Matches); !cmp.Equal([]int64{1}, got) {
		t.Errorf("snapshot = %v, want [1]", got)
	}
}

func TestFetchMatches_StaleGenerationIsSuperseded(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{
		pages: map[string][]domain.RawMatch{
			"slow": {match(1, 100)},
			"fast": {match(2, 200)},
		},
		block: map[string]chan struct{}{"slow": gate},
	}
	agg := newTestAggregator(src)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := agg.FetchMatches(ctx, Request{Accounts: []string{"slow"}, Limit: 10})
		done <- err
	}()

	// wait until the slow call is in flight
	for src.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	res, err := agg.FetchMatches(ctx, Request{Accounts: []string{"fast"}, Limit: 10})
	if err != nil {
		t.Fatalf("newer fetch error = %v", err)
	}
	if diff := cmp.Diff([]int64{2}, ids(res.Matches)); diff != "" {
		t.Errorf("newer fetch mismatch (-want +got):\n%s", diff)
	}

	close(gate)
	if err := <-done; !errors.Is(err, domain.ErrSuperseded) {
		t.Errorf("stale fetch err = %v, want ErrSuperseded", err)
	}
	if got := ids(agg.Snapshot().Matches); !cmp.Equal([]int64{2}, got) {
		t.Errorf("snapshot = %v, want [2]", got)
	}
}

func TestSync(t *testing.T) {
	src := &fakeSource{pages: map[string][]domain.RawMatch{
		"A": {match(1, 100)},
		"B": {match(2, 200)},
	}}
	agg := newTestAggregator(src)
	ctx := context.Background()

	res, err := agg.Sync(ctx, []string{"A", "B"}, nil, 10)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if diff := cmp.Diff([]int64{2, 1}, ids(res.Matches)); diff != "" {
		t.Errorf("Sync mismatch (-want +got):\n%s", diff)
	}
	if src.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", src.callCount())
	}

	// same set in another order: no network
	if _, err := agg.Sync(ctx, []string{"B", "A"}, nil, 10); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if src.callCount() != 2 {
		t.Errorf("calls after unchanged Sync = %d, want 2", src.callCount())
	}

	res, err = agg.Sync(ctx, []string{"A"}, nil, 10)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if diff := cmp.Diff([]int64{1}, ids(res.Matches)); diff != "" {
		t.Errorf("Sync after change mismatch (-want +got):\n%s", diff)
	}
	if src.callCount() != 3 {
		t.Errorf("calls after changed Sync = %d, want 3", src.callCount())
	}

	if _, err := agg.Refresh(ctx, []string{"A"}, nil, 10); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if src.callCount() != 4 {
		t.Errorf("calls after Refresh = %d, want 4", src.callCount())
	}
}

func TestFetchMatches_QueriesAccountsConcurrently(t *testing.T) {
	src := &rendezvousSource{pages: map[string][]domain.RawMatch{
		"A": {match(1, 100)},
		"B": {match(2, 200)},
		"C": {match(3, 300)},
	}}
	src.pending.Add(3)
	agg := New(src, 2*time.Second, zerolog.Nop(), metrics.New())

	res, err := agg.FetchMatches(context.Background(), Request{Accounts: []string{"A", "B", "C"}, Limit: 10})
	if err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}
	if len(res.PartialErrors) != 0 {
		t.Errorf("PartialErrors = %v, want none", res.PartialErrors)
	}
	if diff := cmp.Diff([]int64{3, 2, 1}, ids(res.Matches)); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestSync_HasMoreFollowsLastPage(t *testing.T) {
	src := &fakeSource{pages: map[string][]domain.RawMatch{
		"A": {match(1, 500), match(2, 400), match(3, 300)},
	}}
	agg := newTestAggregator(src)
	ctx := context.Background()

	res, err := agg.Sync(ctx, []string{"A"}, nil, 2)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !res.HasMore {
		t.Error("full first page should report more")
	}

	res, err = agg.FetchMatches(ctx, Request{Accounts: []string{"A"}, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("FetchMatches() error = %v", err)
	}
	if res.HasMore {
		t.Error("short second page should not report more")
	}

	res, err = agg.Sync(ctx, []string{"A"}, nil, 2)
	if err != nil {
		t.Fatalf("cached Sync() error = %v", err)
	}
	if res.Total != 3 || res.HasMore {
		t.Errorf("cached Sync Total = %d, HasMore = %v, want 3, false", res.Total, res.HasMore)
	}
	if agg.Snapshot().HasMore {
		t.Error("Snapshot().HasMore = true, want false")
	}
}

func TestSync_RetriesAfterTotalFailure(t *testing.T) {
	src := &fakeSource{errs: map[string]error{"A": errors.New("down")}}
	agg := newTestAggregator(src)
	ctx := context.Background()

	if _, err := agg.Sync(ctx, []string{"A"}, nil, 10); err == nil {
		t.Fatal("expected error")
	}
	if _, err := agg.Sync(ctx, []string{"A"}, nil, 10); err == nil {
		t.Fatal("expected error on retry")
	}
	if src.callCount() != 2 {
		t.Errorf("calls = %d, want 2", src.callCount())
	}
}

func TestSyncKey(t *testing.T) {
	champ := 103
	win := true

	tests := []struct {
		name     string
		accounts []string
		filter   *domain.MatchFilter
		want     string
	}{
		{"empty", nil, nil, ""},
		{"sorted", []string{"b", "a", "c"}, nil, "a,b,c"},
		{"deduplicated", []string{"a", "a"}, nil, "a"},
		{"empty filter", []string{"a"}, &domain.MatchFilter{}, "a"},
		{"filter", []string{"a"}, &domain.MatchFilter{ChampionID: &champ, Win: &win}, "a|champion=103&win=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SyncKey(tt.accounts, tt.filter); got != tt.want {
				t.Errorf("SyncKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
