package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"matchboard/internal/config"
	"matchboard/internal/domain"
	"matchboard/internal/metrics"

	"github.com/valyala/fasthttp"
)

// UpstreamClient talks to the tracking backend that owns accounts,
// matches, rank snapshots and the Data Dragon documents.
type UpstreamClient struct {
	baseURL     string
	token       string
	timeout     time.Duration
	client      *fasthttp.Client
	metrics     *metrics.Metrics
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewUpstreamClient(cfg *config.Config, m *metrics.Metrics) *UpstreamClient {
	return &UpstreamClient{
		baseURL: strings.TrimRight(cfg.UpstreamBaseURL, "/"),
		token:   cfg.UpstreamAPIToken,
		timeout: cfg.UpstreamTimeout,
		metrics: m,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         cfg.UpstreamTimeout,
			WriteTimeout:        cfg.UpstreamTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *UpstreamClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *UpstreamClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *UpstreamClient) ListAccounts(ctx context.Context, streamerID *int) ([]domain.TrackedAccount, error) {
	params := url.Values{}
	if streamerID != nil {
		params.Set("streamer_id", strconv.Itoa(*streamerID))
	}
	resp, err := doRequest[AccountsResponse](ctx, c, "list_accounts", c.url("/riot/accounts", params))
	if err != nil {
		return nil, err
	}
	if resp.Accounts == nil {
		return []domain.TrackedAccount{}, nil
	}
	return resp.Accounts, nil
}

func (c *UpstreamClient) ListMatches(ctx context.Context, puuid string, filter *domain.MatchFilter, limit, offset int) ([]domain.RawMatch, error) {
	params := url.Values{}
	params.Set("puuid", puuid)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	encodeFilter(params, filter)

	resp, err := doRequest[MatchesResponse](ctx, c, "list_matches", c.url("/riot/matches", params))
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// GetRankAtTime returns nil without error when no snapshot exists.
func (c *UpstreamClient) GetRankAtTime(ctx context.Context, puuid string, queueID int, timestamp int64) (*domain.Rank, error) {
	params := url.Values{}
	params.Set("queueID", strconv.Itoa(queueID))
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))
	path := fmt.Sprintf("/riot/accounts/%s/rank-at-time", url.PathEscape(puuid))

	rank, err := doRequest[*domain.Rank](ctx, c, "rank_at_time", c.url(path, params))
	if err != nil {
		if upstreamStatus(err) == fasthttp.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return *rank, nil
}

func (c *UpstreamClient) GetDataDragonVersion(ctx context.Context) (string, error) {
	resp, err := doRequest[VersionResponse](ctx, c, "ddragon_version", c.url("/datadragon/version", nil))
	if err != nil {
		return "", err
	}
	if resp.Version == "" {
		return "", &domain.UpstreamError{Op: "ddragon_version", Err: fmt.Errorf("empty version tag")}
	}
	return resp.Version, nil
}

func (c *UpstreamClient) GetChampionData(ctx context.Context) (*ChampionData, error) {
	return doRequest[ChampionData](ctx, c, "ddragon_champions", c.url("/datadragon/champions", nil))
}

func (c *UpstreamClient) GetItemData(ctx context.Context) (*ItemData, error) {
	return doRequest[ItemData](ctx, c, "ddragon_items", c.url("/datadragon/items", nil))
}

func (c *UpstreamClient) GetSummonerSpellData(ctx context.Context) (*SummonerSpellData, error) {
	return doRequest[SummonerSpellData](ctx, c, "ddragon_spells", c.url("/datadragon/summoner-spells", nil))
}

func (c *UpstreamClient) url(path string, params url.Values) string {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func encodeFilter(params url.Values, filter *domain.MatchFilter) {
	if filter == nil {
		return
	}
	if filter.ChampionID != nil {
		params.Set("champion_id", strconv.Itoa(*filter.ChampionID))
	}
	if filter.Lane != nil {
		params.Set("lane", *filter.Lane)
	}
	if filter.Win != nil {
		params.Set("win", strconv.FormatBool(*filter.Win))
	}
	if filter.QueueID != nil {
		params.Set("queue_id", strconv.Itoa(*filter.QueueID))
	}
	if filter.StartedAtMin != nil {
		params.Set("started_at_min", strconv.FormatInt(*filter.StartedAtMin, 10))
	}
	if filter.StartedAtMax != nil {
		params.Set("started_at_max", strconv.FormatInt(*filter.StartedAtMax, 10))
	}
}

func doRequest[T any](ctx context.Context, client *UpstreamClient, op, url string) (result *T, err error) {
	start := time.Now()
	defer func() {
		if client.metrics != nil {
			client.metrics.UpstreamRequests.WithLabelValues(op, metrics.Outcome(err)).Inc()
			client.metrics.UpstreamLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if client.token != "" {
		req.Header.Set("Authorization", "Bearer "+client.token)
	}

	deadline, ok := ctx.Deadline()
	if !ok && client.timeout > 0 {
		deadline, ok = time.Now().Add(client.timeout), true
	}
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, &domain.UpstreamError{Op: op, Err: err}
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, &domain.UpstreamError{Op: op, Err: err}
		}
	}

	client.updateRateLimit(resp)

	status := resp.StatusCode()
	if status == fasthttp.StatusNoContent {
		return new(T), nil
	}
	if status != fasthttp.StatusOK {
		return nil, &domain.UpstreamError{Op: op, StatusCode: status, Err: errorBody(resp.Body())}
	}

	var out T
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &domain.UpstreamError{Op: op, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}

// errorBody surfaces the backend's {"error": "..."} message when present.
func errorBody(body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return errors.New(payload.Error)
	}
	return nil
}

func upstreamStatus(err error) int {
	var upstreamErr *domain.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.StatusCode
	}
	return 0
}
