// Command server starts the CardShield fraud scoring API.
//
// Usage:
//
//	go run ./cmd/server [flags]
//
// Flags:
//
//	-c, --config  Path to the application config file (default: config.yml)
//	    --seed    Path to a JSON file of transactions to score on startup
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	_ "github.com/jsternberg/zap-logfmt"
	goredis "github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"

	"cardshield/fraud-api/internal/analysis"
	"cardshield/fraud-api/internal/api"
	"cardshield/fraud-api/internal/archive"
	"cardshield/fraud-api/internal/config"
	"cardshield/fraud-api/internal/domain"
	"cardshield/fraud-api/internal/metrics"
	"cardshield/fraud-api/internal/scoring"
	"cardshield/fraud-api/internal/store"
	"cardshield/fraud-api/internal/stream"
	"cardshield/fraud-api/internal/webhook"
)

var version = "dev"

func main() {
	configPath := kingpin.Flag("config", "Path to the application config file").Short('c').Default("config.yml").String()
	seedFile := kingpin.Flag("seed", "Path to a JSON file of transactions to score on startup").String()
	kingpin.Version(version)
	kingpin.Parse()

	conf, k, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *seedFile != "" {
		conf.SeedFile = *seedFile
	}
	if err = conf.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if !conf.IsProdMode {
		k.Print()
	}

	logger := newLogger(conf)
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Wire dependencies ─────────────────────────────────────────────────────
	var redisClient *goredis.Client
	var s store.Store
	switch conf.Store.Backend {
	case "redis":
		redisClient, err = store.Connect(ctx, conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			logger.Fatal("cannot create redis client", zap.Error(err))
		}
		defer redisClient.Close()
		s = store.NewRedis(redisClient, conf.Store.KeyPrefix, conf.Store.Capacity)
	default:
		s = store.NewMemory(conf.Store.Capacity)
	}

	src := scoring.DefaultSource()
	if conf.Scoring.Seed != 0 {
		src = scoring.SeededSource(conf.Scoring.Seed)
	}

	m := metrics.New(conf.Metrics.Namespace)
	notifier := webhook.New(conf.Webhooks.URLs, conf.Webhooks.Threshold, logger)
	opts := []analysis.Option{
		analysis.WithMetrics(m),
		analysis.WithNotifier(notifier),
	}

	if conf.Mongo.URI != "" {
		mongoClient, err := archive.Connect(ctx, conf.Mongo.URI)
		if err != nil {
			logger.Fatal("cannot create mongo client", zap.Error(err))
		}
		defer func() {
			_ = mongoClient.Disconnect(context.Background())
		}()
		opts = append(opts, analysis.WithArchive(archive.NewMongo(mongoClient, conf.Mongo.Database)))
	}

	svc := analysis.New(scoring.New(src), s, logger, opts...)
	handler := api.NewHandler(svc, s, m, logger, api.DefaultLimits, version)
	router := api.NewRouter(handler)

	// ── Load seed data ────────────────────────────────────────────────────────
	if conf.SeedFile != "" {
		if err := loadSeedData(ctx, svc, conf.SeedFile, logger); err != nil {
			logger.Warn("seed data not loaded", zap.String("file", conf.SeedFile), zap.Error(err))
		}
	}

	// ── Stream intake ─────────────────────────────────────────────────────────
	consumerDone := make(chan struct{})
	if !conf.Kafka.Consume {
		close(consumerDone)
	} else {
		var dlq stream.DeadLetterSink
		if redisClient != nil {
			dlq = store.NewDeadLetterQueue(redisClient, conf.Store.KeyPrefix, logger)
		}
		processor := stream.NewProcessor(svc, dlq, m, logger)
		consumer, err := stream.NewConsumer(&stream.ConsumerConfig{
			Brokers:        conf.Kafka.Brokers,
			Group:          conf.Kafka.ConsumerName,
			Topic:          conf.Kafka.Topic,
			RecordsPerPoll: conf.Kafka.RecordsPerPoll,
		}, processor, kprom.NewMetrics(conf.Metrics.Namespace, kprom.Registerer(m.Registry())), logger)
		if err != nil {
			logger.Fatal("cannot create transactions consumer", zap.Error(err))
		}
		go func() {
			defer close(consumerDone)
			if err := consumer.Poll(ctx); err != nil {
				logger.Error("cannot poll records from topic", zap.Error(err))
			}
		}()
	}

	// ── Start HTTP server ─────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", conf.HTTP.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.Int("port", conf.HTTP.Port), zap.String("store", conf.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn("stream consumer did not stop before the shutdown deadline")
	}
	notifier.Wait()
	logger.Info("server stopped")
}

func newLogger(conf *config.Config) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "logfmt"
	_ = cfg.Level.UnmarshalText([]byte(conf.Logger.Level))
	cfg.InitialFields = make(map[string]any)
	cfg.InitialFields["host"], _ = os.Hostname()
	cfg.InitialFields["service"] = conf.Application
	cfg.OutputPaths = []string{"stdout"}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	return logger
}

// loadSeedData reads a JSON array of transaction requests and scores each one
// so the API starts with history.
func loadSeedData(ctx context.Context, svc *analysis.Service, filePath string, logger *zap.Logger) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	var requests []domain.TransactionRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	loaded, skipped := svc.Load(ctx, requests, analysis.SourceSeed)
	logger.Info("seed data loaded", zap.String("file", filePath), zap.Int("loaded", loaded), zap.Int("skipped", skipped))
	return nil
}
