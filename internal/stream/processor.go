package stream

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"cardshield/fraud-api/internal/analysis"
	"cardshield/fraud-api/internal/domain"
	apperrors "cardshield/fraud-api/internal/errors"
	"cardshield/fraud-api/internal/metrics"
	"cardshield/fraud-api/internal/store"
)

// Record is one message fetched from the topic.
type Record struct {
	Key   []byte
	Value []byte
	Topic string
}

// Analyzer scores one request. *analysis.Service satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req *domain.TransactionRequest, source string) (*domain.ScoredTransaction, error)
}

// DeadLetterSink parks records that cannot be scored.
type DeadLetterSink interface {
	Send(ctx context.Context, letters []store.DeadLetter) error
}

// Processor scores batches of transaction records.
type Processor struct {
	analyzer   Analyzer
	deadLetter DeadLetterSink
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewProcessor creates a processor. dlq may be nil, in which case rejected
// records are only logged. m may be nil.
func NewProcessor(analyzer Analyzer, dlq DeadLetterSink, m *metrics.Metrics, logger *zap.Logger) *Processor {
	return &Processor{analyzer: analyzer, deadLetter: dlq, metrics: m, logger: logger}
}

// ProcessRecords scores records in order and returns how many leading
// records were fully handled. Undecodable or invalid records are
// dead-lettered and count as handled. A store failure stops the batch: the
// failing record and everything after it are left for the caller to redeliver.
func (p *Processor) ProcessRecords(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var rejected []store.DeadLetter
	var scored, fraud int
	for i, rec := range records {
		var req domain.TransactionRequest
		if err := json.Unmarshal(rec.Value, &req); err != nil {
			if p.metrics != nil {
				p.metrics.ObserveRejected("decode")
			}
			rejected = append(rejected, deadLetter(rec, apperrors.InvalidBodyErr(err)))
			continue
		}

		st, err := p.analyzer.Analyze(ctx, &req, analysis.SourceStream)
		if err != nil {
			if apperrors.Is(err, apperrors.Invalid) {
				rejected = append(rejected, deadLetter(rec, err))
				continue
			}
			p.flush(ctx, rejected)
			return i, err
		}
		scored++
		if st.Analysis.IsFraud {
			fraud++
		}
	}

	p.flush(ctx, rejected)
	p.logger.Info("batch scored",
		zap.Int("records", len(records)),
		zap.Int("scored", scored),
		zap.Int("fraud", fraud),
		zap.Int("rejected", len(rejected)),
	)
	return len(records), nil
}

func (p *Processor) flush(ctx context.Context, letters []store.DeadLetter) {
	if len(letters) == 0 {
		return
	}
	if p.deadLetter == nil {
		for _, l := range letters {
			p.logger.Warn("record rejected", zap.String("key", l.Key), zap.String("reason", l.Reason))
		}
		return
	}
	if err := p.deadLetter.Send(ctx, letters); err != nil {
		p.logger.Error("failed to dead-letter records", zap.Int("count", len(letters)), zap.Error(err))
	}
}

func deadLetter(rec Record, err error) store.DeadLetter {
	return store.DeadLetter{
		Key:    string(rec.Key),
		Value:  string(rec.Value),
		Topic:  rec.Topic,
		Reason: err.Error(),
	}
}
