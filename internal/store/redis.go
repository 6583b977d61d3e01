package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cardshield/fraud-api/internal/domain"
)

const (
	defaultKeyPrefix = "cardshield"
	statTotal        = "total"
	statFraud        = "fraud"
)

// Connect connects to the redis server and returns the client.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Redis is a Store backed by a Redis list (history, newest at the head) and
// a hash (statistics counters).
type Redis struct {
	client     *redis.Client
	capacity   int
	historyKey string
	statsKey   string
}

// NewRedis creates a Redis store. An empty prefix uses "cardshield".
func NewRedis(client *redis.Client, prefix string, capacity int) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Redis{
		client:     client,
		capacity:   capacity,
		historyKey: prefix + ":history",
		statsKey:   prefix + ":stats",
	}
}

// Record implements Store. The push, trim and counter updates run in one
// MULTI/EXEC so concurrent writers never observe a half-applied record.
func (r *Redis) Record(ctx context.Context, st *domain.ScoredTransaction) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal scored transaction: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.historyKey, data)
	pipe.LTrim(ctx, r.historyKey, 0, int64(r.capacity-1))
	pipe.HIncrBy(ctx, r.statsKey, statTotal, 1)
	if st.Analysis.IsFraud {
		pipe.HIncrBy(ctx, r.statsKey, statFraud, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record transaction %s: %w", st.Transaction.ID, err)
	}
	return nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, id string) (*domain.ScoredTransaction, error) {
	history, err := r.load(ctx, -1)
	if err != nil {
		return nil, err
	}
	for i := range history {
		if history[i].Transaction.ID == id {
			return &history[i], nil
		}
	}
	return nil, ErrNotFound
}

// Recent implements Store.
func (r *Redis) Recent(ctx context.Context, n int) ([]domain.ScoredTransaction, error) {
	if n <= 0 {
		return []domain.ScoredTransaction{}, nil
	}
	return r.load(ctx, int64(n-1))
}

// Alerts implements Store.
func (r *Redis) Alerts(ctx context.Context, n int) ([]domain.Alert, error) {
	if n <= 0 {
		return []domain.Alert{}, nil
	}
	history, err := r.load(ctx, -1)
	if err != nil {
		return nil, err
	}
	return alertsFrom(history, n), nil
}

// load reads the history list from the head up to index stop (-1 for all).
func (r *Redis) load(ctx context.Context, stop int64) ([]domain.ScoredTransaction, error) {
	raw, err := r.client.LRange(ctx, r.historyKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]domain.ScoredTransaction, 0, len(raw))
	for _, item := range raw {
		var st domain.ScoredTransaction
		if err := json.Unmarshal([]byte(item), &st); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Statistics implements Store.
func (r *Redis) Statistics(ctx context.Context) (domain.Statistics, error) {
	vals, err := r.client.HGetAll(ctx, r.statsKey).Result()
	if err != nil {
		return domain.Statistics{}, fmt.Errorf("read statistics: %w", err)
	}
	total, _ := strconv.Atoi(vals[statTotal])
	fraud, _ := strconv.Atoi(vals[statFraud])
	return domain.NewStatistics(total, fraud), nil
}

// Reset implements Store.
func (r *Redis) Reset(ctx context.Context) error {
	return r.client.Del(ctx, r.historyKey, r.statsKey).Err()
}

// ─── Dead-letter queue ────────────────────────────────────────────────────────

// DeadLetter is a record the stream intake could not score.
type DeadLetter struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Topic  string `json:"topic"`
	Reason string `json:"reason"`
}

// DeadLetterQueue parks rejected stream records in a Redis list for inspection.
type DeadLetterQueue struct {
	client  *redis.Client
	logger  *zap.Logger
	listKey string
}

// NewDeadLetterQueue creates a queue under "<prefix>:dead-letter".
func NewDeadLetterQueue(client *redis.Client, prefix string, logger *zap.Logger) *DeadLetterQueue {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &DeadLetterQueue{client: client, logger: logger, listKey: prefix + ":dead-letter"}
}

// Send pushes every letter; marshal or write failures are logged and skipped.
func (q *DeadLetterQueue) Send(ctx context.Context, letters []DeadLetter) error {
	if len(letters) == 0 {
		return nil
	}

	sent := 0
	for _, l := range letters {
		data, err := json.Marshal(l)
		if err != nil {
			q.logger.Error("failed to marshal dead letter", zap.Error(err))
			continue
		}
		if err := q.client.RPush(ctx, q.listKey, data).Err(); err != nil {
			q.logger.Error("failed to store dead letter", zap.String("key", l.Key), zap.Error(err))
			continue
		}
		sent++
	}

	if sent > 0 {
		q.logger.Info("dead letters stored", zap.Int("count", sent), zap.String("list", q.listKey))
	}
	return nil
}

// Len returns the number of parked letters.
func (q *DeadLetterQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.listKey).Result()
}
