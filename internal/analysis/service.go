// Package analysis runs the full scoring pipeline shared by the HTTP API and
// the stream intake: validate, normalize, score, record, then fan out to
// metrics, webhooks and the archive.
package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cardshield/fraud-api/internal/domain"
	apperrors "cardshield/fraud-api/internal/errors"
	"cardshield/fraud-api/internal/metrics"
	"cardshield/fraud-api/internal/sample"
	"cardshield/fraud-api/internal/scoring"
	"cardshield/fraud-api/internal/store"
	"cardshield/fraud-api/internal/webhook"
)

// Intake sources, used as a metrics label.
const (
	SourceHTTP   = "http"
	SourceStream = "stream"
	SourceSample = "sample"
	SourceSeed   = "seed"
)

// Archiver receives every scored transaction after it is recorded.
type Archiver interface {
	Archive(ctx context.Context, st *domain.ScoredTransaction) error
}

// Service wires the scorer to the history store and its side channels.
type Service struct {
	engine   *scoring.Engine
	store    store.Store
	logger   *zap.Logger
	notifier *webhook.Notifier
	archive  Archiver
	metrics  *metrics.Metrics
	samples  *sample.Generator
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier sends fraud alerts through n.
func WithNotifier(n *webhook.Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithArchive copies every scored transaction to a.
func WithArchive(a Archiver) Option { return func(s *Service) { s.archive = a } }

// WithMetrics records scoring metrics on m.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithSampler replaces the sample generator.
func WithSampler(g *sample.Generator) Option { return func(s *Service) { s.samples = g } }

// WithClock overrides the processing timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a Service.
func New(engine *scoring.Engine, st store.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		engine:  engine,
		store:   st,
		logger:  logger,
		samples: sample.New(nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze validates and scores req, records the result and returns it.
// Validation failures are returned as Invalid errors before any scoring;
// store failures as Internal errors. Archive failures are only logged.
func (s *Service) Analyze(ctx context.Context, req *domain.TransactionRequest, source string) (*domain.ScoredTransaction, error) {
	if err := req.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.ObserveRejected("validation")
		}
		return nil, err
	}

	tx := req.Normalize()
	st := &domain.ScoredTransaction{
		Transaction: tx,
		Analysis:    s.engine.Analyze(&tx),
		ProcessedAt: s.now().UTC(),
	}

	if err := s.store.Record(ctx, st); err != nil {
		return nil, apperrors.E(apperrors.Internal, "record transaction", err)
	}

	if s.metrics != nil {
		s.metrics.ObserveScore(source, st.Analysis.TotalRisk, st.Analysis.IsFraud)
	}
	if st.Analysis.IsFraud {
		s.notifier.NotifyAsync(st)
	}
	if s.archive != nil {
		if err := s.archive.Archive(ctx, st); err != nil {
			s.logger.Warn("archive failed", zap.String("transaction_id", tx.ID), zap.Error(err))
		}
	}

	s.logger.Debug("transaction scored",
		zap.String("transaction_id", tx.ID),
		zap.String("source", source),
		zap.Float64("total_risk", st.Analysis.TotalRisk),
		zap.Bool("is_fraud", st.Analysis.IsFraud),
	)
	return st, nil
}

// Sample generates a random transaction and analyzes it.
func (s *Service) Sample(ctx context.Context) (*domain.ScoredTransaction, error) {
	req := s.samples.Next()
	return s.Analyze(ctx, &req, SourceSample)
}

// Load analyzes a batch of requests, e.g. a seed file, and reports how many
// were recorded and how many were rejected.
func (s *Service) Load(ctx context.Context, reqs []domain.TransactionRequest, source string) (loaded, skipped int) {
	for i := range reqs {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Analyze(ctx, &reqs[i], source); err != nil {
			skipped++
			continue
		}
		loaded++
	}
	return loaded, skipped
}
