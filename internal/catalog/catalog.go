package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"matchboard/internal/api"
	"matchboard/internal/config"
	"matchboard/internal/constants"
	"matchboard/internal/metrics"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const minNameSimilarity = 0.7

// Source provides the versioned Data Dragon documents.
type Source interface {
	GetDataDragonVersion(ctx context.Context) (string, error)
	GetChampionData(ctx context.Context) (*api.ChampionData, error)
	GetItemData(ctx context.Context) (*api.ItemData, error)
	GetSummonerSpellData(ctx context.Context) (*api.SummonerSpellData, error)
}

// Catalog resolves champion, item and summoner-spell ids to CDN icon URLs.
// It loads once per process; a failed load is not cached.
type Catalog struct {
	source      Source
	cdnBaseURL  string
	placeholder string
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	group   singleflight.Group
	current atomic.Pointer[snapshot]
}

type snapshot struct {
	version string

	// id -> image file name
	champions map[int]string
	items     map[int]string
	spells    map[int]string

	// lowercased display name and provider id -> champion id
	championNames map[string]int
}

func NewCatalog(source Source, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *Catalog {
	return &Catalog{
		source:      source,
		cdnBaseURL:  strings.TrimRight(cfg.CDNBaseURL, "/"),
		placeholder: cfg.PlaceholderIcon,
		logger:      logger.With().Str("component", "catalog").Logger(),
		metrics:     m,
	}
}

// Ensure loads the catalog on first use. Callers arriving while a load is
// in flight wait for that load instead of starting their own.
func (c *Catalog) Ensure(ctx context.Context) error {
	if c.current.Load() != nil {
		return nil
	}

	_, err, _ := c.group.Do("catalog", func() (any, error) {
		if c.current.Load() != nil {
			return nil, nil
		}

		// one caller going away must not fail the others waiting on this load
		snap, err := c.load(context.WithoutCancel(ctx))
		if c.metrics != nil {
			c.metrics.CatalogLoads.WithLabelValues(metrics.Outcome(err)).Inc()
		}
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to load asset catalog")
			return nil, err
		}

		c.current.Store(snap)
		c.logger.Info().
			Str("version", snap.version).
			Int("champions", len(snap.champions)).
			Int("items", len(snap.items)).
			Int("spells", len(snap.spells)).
			Msg("asset catalog loaded")
		return nil, nil
	})
	return err
}

func (c *Catalog) load(ctx context.Context) (*snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.CatalogLoadTimeout)
	defer cancel()

	version, err := c.source.GetDataDragonVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog version: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	var champions *api.ChampionData
	var items *api.ItemData
	var spells *api.SummonerSpellData

	g.Go(func() error {
		var err error
		champions, err = c.source.GetChampionData(gCtx)
		if err != nil {
			return fmt.Errorf("failed to fetch champion data: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		items, err = c.source.GetItemData(gCtx)
		if err != nil {
			return fmt.Errorf("failed to fetch item data: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		spells, err = c.source.GetSummonerSpellData(gCtx)
		if err != nil {
			return fmt.Errorf("failed to fetch summoner spell data: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &snapshot{
		version:       version,
		champions:     make(map[int]string),
		items:         make(map[int]string),
		spells:        make(map[int]string),
		championNames: make(map[string]int),
	}

	if champions != nil {
		for _, champ := range champions.Data {
			id, err := strconv.Atoi(champ.Key)
			if err != nil {
				c.logger.Warn().Str("key", champ.Key).Str("champion", champ.ID).Msg("failed to parse champion id")
				continue
			}
			snap.champions[id] = imageFile(champ.Image.Full, champ.ID)
			snap.championNames[strings.ToLower(champ.ID)] = id
			if champ.Name != "" {
				snap.championNames[strings.ToLower(champ.Name)] = id
			}
		}
	}

	if items != nil {
		for idStr, item := range items.Data {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				c.logger.Warn().Str("key", idStr).Msg("failed to parse item id")
				continue
			}
			snap.items[id] = imageFile(item.Image.Full, idStr)
		}
	}

	if spells != nil {
		for _, spell := range spells.Data {
			id, err := strconv.Atoi(spell.Key)
			if err != nil {
				c.logger.Warn().Str("key", spell.Key).Str("spell", spell.ID).Msg("failed to parse summoner spell id")
				continue
			}
			snap.spells[id] = imageFile(spell.Image.Full, spell.ID)
		}
	}

	return snap, nil
}

func imageFile(full, fallbackID string) string {
	if full != "" {
		return full
	}
	return fallbackID + ".png"
}

func (c *Catalog) Version() string {
	if snap := c.current.Load(); snap != nil {
		return snap.version
	}
	return ""
}

func (c *Catalog) Placeholder() string {
	return c.placeholder
}

func (c *Catalog) ChampionIconURL(championID int) string {
	return c.iconURL("champion", championID, func(s *snapshot) map[int]string { return s.champions })
}

// ItemIconURL maps the empty slot (0) straight to the placeholder.
func (c *Catalog) ItemIconURL(itemID int) string {
	if itemID == 0 {
		return c.placeholder
	}
	return c.iconURL("item", itemID, func(s *snapshot) map[int]string { return s.items })
}

func (c *Catalog) SpellIconURL(spellID int) string {
	return c.iconURL("spell", spellID, func(s *snapshot) map[int]string { return s.spells })
}

func (c *Catalog) iconURL(kind string, id int, table func(*snapshot) map[int]string) string {
	snap := c.current.Load()
	if snap == nil {
		return c.placeholder
	}
	file, ok := table(snap)[id]
	if !ok {
		return c.placeholder
	}
	return fmt.Sprintf("%s/%s/img/%s/%s", c.cdnBaseURL, snap.version, kind, file)
}

// ChampionIDByName matches a display name or provider id, falling back to
// the closest name by Levenshtein similarity.
func (c *Catalog) ChampionIDByName(name string) (int, bool) {
	snap := c.current.Load()
	if snap == nil {
		return 0, false
	}

	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return 0, false
	}
	if id, ok := snap.championNames[needle]; ok {
		return id, true
	}

	bestID := 0
	bestScore := 0.0
	for candidate, id := range snap.championNames {
		distance := fuzzy.LevenshteinDistance(needle, candidate)
		maxLen := float64(max(len(needle), len(candidate)))
		similarity := 1 - float64(distance)/maxLen
		if similarity > minNameSimilarity && (similarity > bestScore || (similarity == bestScore && id < bestID)) {
			bestScore = similarity
			bestID = id
		}
	}
	return bestID, bestID != 0
}
