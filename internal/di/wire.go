//go:build wireinject
// +build wireinject

package di

import (
	"LOBFuse/pkg/config"
	"LOBFuse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideRedisCache,
		ProvideStatusCache,

		// Repositories
		ProvideRecordStore,
		ProvideRecordPublisher,
		ProvideAuditLog,
		ProvideMarketStream,

		// Pipeline components
		ProvideBook,
		ProvideAggregator,
		ProvideAnalyzer,
		ProvideDetector,
		ProvideMerger,
		ProvideModelRunner,
		ProvideRunner,

		// HTTP
		ProvideStatusHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
