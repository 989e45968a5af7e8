package fx

import (
	"matchboard/internal/aggregator"
	"matchboard/internal/api"
	"matchboard/internal/catalog"
	"matchboard/internal/config"
	"matchboard/internal/logger"
	"matchboard/internal/metrics"
	"matchboard/internal/rank"
	"matchboard/internal/server"
	"matchboard/internal/service"
	"matchboard/internal/transform"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ApplyLogLevel swaps the bootstrap debug level for the configured one.
func ApplyLogLevel(cfg *config.Config, log zerolog.Logger) {
	level := logger.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)
	log.Info().Str("level", level.String()).Msg("log level set")
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(metrics.New),
	// upstream client
	fx.Provide(fx.Annotate(
		api.NewUpstreamClient,
		fx.As(new(catalog.Source)),
		fx.As(new(rank.Source)),
		fx.As(new(aggregator.MatchSource)),
		fx.As(new(service.AccountLister)),
	)),
	// core
	fx.Provide(fx.Annotate(
		catalog.NewCatalog,
		fx.As(new(transform.Catalog)),
		fx.As(new(service.ChampionResolver)),
		fx.As(new(server.CatalogInfo)),
	)),
	fx.Provide(fx.Annotate(rank.NewLookup, fx.As(new(transform.RankLookup)))),
	fx.Provide(transform.NewTransformer),
	fx.Provide(aggregator.NewRegistry),
	// svc
	fx.Provide(fx.Annotate(service.NewFeedService, fx.As(new(server.Feeds)))),
	// server
	fx.Provide(server.NewServer),
	fx.Invoke(ApplyLogLevel),
)
