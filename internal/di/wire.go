//go:build wireinject
// +build wireinject

package di

import (
	"StockPipe/pkg/config"
	"StockPipe/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStorage,
		ProvideCache,
		ProvideRunLock,
		ProvideHTTPClient,
		ProvideClickHouseClient,
		ProvideKafkaPublisher,
		ProvideEventPublisher,

		// Fetching
		ProvidePriceProviders,
		ProvideBackoff,
		ProvideLimiter,
		ProvideFetchClient,
		ProvideUniverseSource,

		// Repositories
		ProvideHistoryStore,
		ProvideRunStore,
		ProvideUniverseStore,
		ProvideFeatureStore,
		ProvidePruner,
		ProvideCHRunStore,
		ProvideRunRecorder,

		// Use cases
		ProvideUniverseProvider,
		ProvideAcquisitionEngine,
		ProvideFeatureEngine,
		ProvidePipeline,

		// Application server
		ProvideStatusHandler,
		ProvideClosers,
		ProvideApp,
	)
	return &server.App{}, nil
}
