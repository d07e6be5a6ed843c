package di

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"StockPipe/internal/domain/repository"
	"StockPipe/internal/handler/api"
	internalrepo "StockPipe/internal/repository"
	"StockPipe/internal/service/fetch"
	"StockPipe/internal/service/provider/alpaca"
	"StockPipe/internal/service/provider/alphavantage"
	"StockPipe/internal/service/provider/yahoo"
	"StockPipe/internal/service/ratelimit"
	"StockPipe/internal/service/universe"
	"StockPipe/internal/usecase"
	"StockPipe/pkg/cache"
	pkgch "StockPipe/pkg/clickhouse"
	"StockPipe/pkg/config"
	xhttp "StockPipe/pkg/http"
	pkgkafka "StockPipe/pkg/kafka"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/metrics"
	"StockPipe/pkg/server"
	"StockPipe/pkg/storage"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const userAgent = "StockPipe/1.0 (daily market data pipeline)"

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment), applogger.String("mode", cfg.Mode)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStorage selects the object storage backend.
func ProvideStorage(cfg *config.Config) (storage.Backend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sc := cfg.Storage
	switch sc.Type {
	case "s3":
		b, err := storage.NewS3(ctx, sc.Bucket,
			storage.WithS3Prefix(sc.Prefix),
			storage.WithS3Region(sc.Region),
			storage.WithS3Endpoint(sc.Endpoint, sc.UsePathStyle),
		)
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
		return b, nil
	case "gcs":
		b, err := storage.NewGCS(ctx, sc.Bucket, storage.WithGCSPrefix(sc.Prefix))
		if err != nil {
			return nil, fmt.Errorf("gcs storage: %w", err)
		}
		return b, nil
	case "memory":
		return storage.NewMemory(), nil
	default:
		b, err := storage.NewLocal(sc.Root)
		if err != nil {
			return nil, fmt.Errorf("local storage: %w", err)
		}
		return b, nil
	}
}

// ProvideCache creates the Redis cache when enabled, otherwise an in-process one.
// It backs the universe page cache and the per-day run lock.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPingTimeout(cfg.Redis.Pool.Timeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.Pool.Size, cfg.Redis.Pool.MinIdleConns, cfg.Redis.Pool.Timeout),
		cache.WithRedisOwner(lockOwner()),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// lockOwner names this process in run lock values so a stuck lock can be traced
// to its host.
func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// ProvideRunLock exposes the cache as the per-day run lock.
func ProvideRunLock(c cache.Service) repository.RunLock {
	return c
}

// ProvideHTTPClient creates the outbound HTTP client shared by providers and the universe source.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(cfg.Providers.Timeout),
		xhttp.WithUserAgent(userAgent),
		xhttp.WithMaxConnsPerHost(2*cfg.Acquisition.Workers),
	)
}

// ProvidePriceProviders builds the providers in configured fallback order.
func ProvidePriceProviders(cfg *config.Config, hc *xhttp.Client) ([]repository.PriceProvider, error) {
	pc := cfg.Providers
	out := make([]repository.PriceProvider, 0, len(pc.Order))
	for _, name := range pc.Order {
		switch name {
		case yahoo.Name:
			out = append(out, yahoo.New(hc,
				yahoo.WithBaseURL(pc.Yahoo.BaseURL),
				yahoo.WithMaxLookbackDays(pc.Yahoo.MaxLookbackDays),
			))
		case alphavantage.Name:
			out = append(out, alphavantage.New(hc, pc.AlphaVantage.APIKey,
				alphavantage.WithBaseURL(pc.AlphaVantage.BaseURL),
				alphavantage.WithMaxLookbackDays(pc.AlphaVantage.MaxLookbackDays),
			))
		case alpaca.Name:
			out = append(out, alpaca.New(alpaca.Config{
				APIKey:          pc.Alpaca.APIKey,
				APISecret:       pc.Alpaca.APISecret,
				BaseURL:         pc.Alpaca.BaseURL,
				Feed:            pc.Alpaca.Feed,
				MaxLookbackDays: pc.Alpaca.MaxLookbackDays,
			}))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return out, nil
}

// ProvideBackoff creates the cooldown policy.
func ProvideBackoff(cfg *config.Config) (ratelimit.Backoff, error) {
	b, err := ratelimit.NewBackoff(cfg.RateLimit.Strategy, cfg.RateLimit.BaseCooldown, cfg.RateLimit.MaxCooldown)
	if err != nil {
		return ratelimit.Backoff{}, fmt.Errorf("backoff: %w", err)
	}
	return b, nil
}

// ProvideLimiter creates the run-wide sliding window limiter.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.CallsPerWindow, cfg.RateLimit.Window)
}

// ProvideFetchClient creates the retrying multi-provider fetcher.
func ProvideFetchClient(cfg *config.Config, providers []repository.PriceProvider, limiter *ratelimit.Limiter, backoff ratelimit.Backoff, m repository.Metrics, l *applogger.Logger) (*fetch.Client, error) {
	c, err := fetch.NewClient(providers, limiter, fetch.Config{
		RetryAttempts:    cfg.RateLimit.RetryAttempts,
		MaxRateLimitHits: cfg.RateLimit.MaxHits,
		Backoff:          backoff,
	}, fetch.WithMetrics(m), fetch.WithLogger(l))
	if err != nil {
		return nil, fmt.Errorf("fetch client: %w", err)
	}
	return c, nil
}

// ProvideHistoryStore creates the partitioned history repository.
func ProvideHistoryStore(backend storage.Backend, m repository.Metrics, l *applogger.Logger) *internalrepo.HistoryStore {
	return internalrepo.NewHistoryStore(backend,
		internalrepo.WithHistoryMetrics(m),
		internalrepo.WithHistoryLogger(l),
	)
}

func ProvideRunStore(backend storage.Backend) *internalrepo.RunStore {
	return internalrepo.NewRunStore(backend)
}

func ProvideUniverseStore(backend storage.Backend) *internalrepo.UniverseStore {
	return internalrepo.NewUniverseStore(backend)
}

func ProvideFeatureStore(backend storage.Backend) *internalrepo.FeatureStore {
	return internalrepo.NewFeatureStore(backend)
}

// ProvidePruner creates the partition retention pass.
func ProvidePruner(backend storage.Backend, l *applogger.Logger) repository.Pruner {
	return internalrepo.NewRetention(backend, l)
}

// ProvideClickHouseClient creates a ClickHouse client with the mirror schema,
// or nil when the mirror is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(4, 2, 10*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithCompression(cfg.ClickHouse.Compression),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.RunSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCHRunStore creates the ClickHouse mirror, or nil without a client.
func ProvideCHRunStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) *internalrepo.CHRunStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHRunStore(ch, cfg.ClickHouse.Database, l)
}

// ProvideRunRecorder fans run artifacts out to the object store and the
// optional ClickHouse mirror.
func ProvideRunRecorder(runs *internalrepo.RunStore, mirror *internalrepo.CHRunStore, l *applogger.Logger) repository.RunRecorder {
	if mirror == nil {
		return runs
	}
	return internalrepo.NewFanoutRecorder(runs, l, mirror)
}

// ProvideKafkaPublisher creates the run event publisher, or nil when Kafka is disabled.
func ProvideKafkaPublisher(cfg *config.Config) (*internalrepo.KafkaPublisher, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(kc.Brokers),
		pkgkafka.WithCompression(kc.Compression),
		pkgkafka.WithRequiredAcks(kc.RequiredAcks),
		pkgkafka.WithBatching(kc.Producer.BatchSize, kc.Producer.BatchBytes, kc.Producer.Linger),
		pkgkafka.WithTimeouts(kc.Producer.WriteTimeout, kc.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(kc.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(kc.AutoCreate),
		pkgkafka.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, internalrepo.Topics{
		Runs:     kc.Topics.Runs,
		Universe: kc.Topics.Universe,
		Features: kc.Topics.Features,
	}), nil
}

// ProvideEventPublisher falls back to a no-op publisher without Kafka.
func ProvideEventPublisher(kp *internalrepo.KafkaPublisher) repository.EventPublisher {
	if kp == nil {
		return internalrepo.NopPublisher{}
	}
	return kp
}

// ProvideUniverseSource selects the constituent source, cached for the configured TTL.
func ProvideUniverseSource(cfg *config.Config, hc *xhttp.Client, c cache.Service, backoff ratelimit.Backoff) universe.Source {
	var src universe.Source
	if cfg.Universe.Source == "static" {
		src = universe.NewStaticSource(cfg.Universe.Static)
	} else {
		src = universe.NewWikipediaSource(hc,
			universe.WithURL(cfg.Universe.URL),
			universe.WithRetry(cfg.RateLimit.RetryAttempts, backoff, ratelimit.RealSleeper),
		)
	}
	if cfg.Universe.CacheTTL <= 0 {
		return src
	}
	return universe.NewCachedSource(src, c, cfg.Universe.CacheTTL)
}

func ProvideUniverseProvider(cfg *config.Config, src universe.Source, store *internalrepo.UniverseStore, pub repository.EventPublisher, m repository.Metrics, l *applogger.Logger) *usecase.UniverseProvider {
	return usecase.NewUniverseProvider(src, store, pub, m, l, usecase.UniverseConfig{
		MinExpected: cfg.Universe.MinExpected,
		MaxExpected: cfg.Universe.MaxExpected,
		DryRun:      cfg.Acquisition.DryRun,
	})
}

func ProvideAcquisitionEngine(cfg *config.Config, fetcher *fetch.Client, limiter *ratelimit.Limiter, store *internalrepo.HistoryStore, recorder repository.RunRecorder, pub repository.EventPublisher, m repository.Metrics, l *applogger.Logger) *usecase.AcquisitionEngine {
	ac := cfg.Acquisition
	return usecase.NewAcquisitionEngine(fetcher, limiter, store, recorder, usecase.AcquisitionConfig{
		FullHistoryDays:     ac.FullHistoryDays,
		BatchSize:           ac.BatchSize,
		BatchCooldown:       ac.BatchCooldown,
		Workers:             ac.Workers,
		AdaptiveReduceEvery: ac.AdaptiveReduceEvery,
		FailureThreshold:    ac.FailureThreshold,
		MaxRuntime:          ac.MaxRuntime,
		DryRun:              ac.DryRun,
		Force:               ac.Force,
	},
		usecase.WithAcquisitionLogger(l),
		usecase.WithAcquisitionMetrics(m),
		usecase.WithAcquisitionPublisher(pub),
	)
}

func ProvideFeatureEngine(cfg *config.Config, store *internalrepo.HistoryStore, sink *internalrepo.FeatureStore, mirror *internalrepo.CHRunStore, recorder repository.RunRecorder, pub repository.EventPublisher, m repository.Metrics, l *applogger.Logger) *usecase.FeatureEngine {
	opts := []usecase.FeatureOption{
		usecase.WithFeatureLogger(l),
		usecase.WithFeatureMetrics(m),
		usecase.WithFeaturePublisher(pub),
	}
	if mirror != nil {
		opts = append(opts, usecase.WithFeatureMirrors(mirror))
	}
	fc := cfg.Features
	return usecase.NewFeatureEngine(store, sink, recorder, usecase.FeatureConfig{
		OutputWindowDays: fc.OutputWindowDays,
		DropIncomplete:   fc.DropIncomplete,
		MinRowsPerTicker: fc.MinRowsPerTicker,
		Workers:          fc.Workers,
		FailureThreshold: cfg.Acquisition.FailureThreshold,
		DryRun:           cfg.Acquisition.DryRun,
	}, opts...)
}

func ProvidePipeline(cfg *config.Config, u *usecase.UniverseProvider, a *usecase.AcquisitionEngine, f *usecase.FeatureEngine, lock repository.RunLock, pruner repository.Pruner, l *applogger.Logger) *usecase.Pipeline {
	pc := usecase.PipelineConfig{
		RetentionEnabled: cfg.Retention.Enabled,
		RetentionDays:    cfg.Retention.Days,
		Force:            cfg.Acquisition.Force,
		DryRun:           cfg.Acquisition.DryRun,
		LockTTL:          cfg.Redis.LockTTL,
	}
	if cfg.TestMode() {
		pc.TickerLimit = usecase.TestModeTickers
	}
	return usecase.NewPipeline(u, a, f, lock, pruner, l, pc)
}

// ProvideStatusHandler creates the read-only status API.
func ProvideStatusHandler(cfg *config.Config, runs *internalrepo.RunStore, store *internalrepo.UniverseStore, l *applogger.Logger) xhttp.Handler {
	return api.NewStatusEchoHandler(l, runs, store, cfg.Storage.Type)
}

// ProvideClosers collects the infrastructure clients released on shutdown.
func ProvideClosers(c cache.Service, ch *pkgch.Client, kp *internalrepo.KafkaPublisher) map[string]io.Closer {
	closers := map[string]io.Closer{"cache": c}
	if ch != nil {
		closers["clickhouse"] = ch
	}
	if kp != nil {
		closers["kafka"] = kp
	}
	return closers
}

// ProvideApp creates the application.
func ProvideApp(cfg *config.Config, l *applogger.Logger, p *usecase.Pipeline, h xhttp.Handler, closers map[string]io.Closer) *server.App {
	return server.New(cfg, l, p, h, closers)
}
