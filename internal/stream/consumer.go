// Package stream scores transactions published to a Kafka topic.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

const defaultRetryBackoff = time.Second

// ConsumerConfig selects the brokers, group and topic to read from.
type ConsumerConfig struct {
	Brokers        []string
	Group          string
	Topic          string
	RecordsPerPoll int
	// RetryBackoff is the pause before a failed batch is polled again.
	RetryBackoff time.Duration
}

// BatchProcessor handles one polled batch and reports how many leading
// records were fully handled. *Processor satisfies it.
type BatchProcessor interface {
	ProcessRecords(ctx context.Context, records []Record) (int, error)
}

// client is the subset of *kgo.Client the consumer drives.
type client interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	SetOffsets(setOffsets map[string]map[int32]kgo.EpochOffset)
	AllowRebalance()
	Close()
}

// Consumer polls records and hands them to a BatchProcessor. Only the
// handled prefix of a batch is committed; the rest is rewound and polled
// again.
type Consumer struct {
	client    client
	config    *ConsumerConfig
	processor BatchProcessor
	logger    *zap.Logger
}

// NewConsumer creates the Kafka client. Call Poll to start consuming.
// metrics may be nil.
func NewConsumer(conf *ConsumerConfig, processor BatchProcessor, metrics *kprom.Metrics, logger *zap.Logger) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(conf.Brokers...),
		kgo.ConsumerGroup(conf.Group),
		kgo.ConsumeTopics(conf.Topic),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	}
	if metrics != nil {
		opts = append(opts, kgo.WithHooks(metrics))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return newConsumer(cl, conf, processor, logger), nil
}

func newConsumer(cl client, conf *ConsumerConfig, processor BatchProcessor, logger *zap.Logger) *Consumer {
	return &Consumer{client: cl, config: conf, processor: processor, logger: logger}
}

// Poll consumes until ctx is cancelled or the client is closed. The client
// is closed before Poll returns.
func (c *Consumer) Poll(ctx context.Context) error {
	defer c.client.Close()

	for {
		if ctx.Err() != nil {
			c.logger.Info("stream polling stopped")
			return nil
		}

		fetches := c.client.PollRecords(ctx, c.config.RecordsPerPoll)
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		if errors.Is(fetches.Err0(), context.Canceled) {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Warn("fetch error", zap.String("topic", topic), zap.Int32("partition", partition), zap.Error(err))
		})

		failed := false
		if fetched := fetches.Records(); len(fetched) > 0 {
			failed = !c.handle(ctx, fetched)
		}

		c.client.AllowRebalance()

		if failed {
			c.backoff(ctx)
		}
	}
}

// handle processes one batch, commits the handled prefix and rewinds every
// partition to its first unhandled record. It reports whether the whole
// batch was handled.
func (c *Consumer) handle(ctx context.Context, fetched []*kgo.Record) bool {
	records := make([]Record, len(fetched))
	for i, r := range fetched {
		records[i] = Record{Key: r.Key, Value: r.Value, Topic: r.Topic}
	}

	handled, err := c.processor.ProcessRecords(ctx, records)
	if handled < 0 {
		handled = 0
	}
	if handled > len(fetched) {
		handled = len(fetched)
	}

	if handled > 0 {
		if cerr := c.client.CommitRecords(ctx, fetched[:handled]...); cerr != nil {
			c.logger.Warn("commit failed", zap.Error(cerr))
		}
	}
	if err == nil && handled == len(fetched) {
		return true
	}

	rest := fetched[handled:]
	c.logger.Error("failed to process records",
		zap.Int("handled", handled),
		zap.Int("pending", len(rest)),
		zap.Error(err),
	)
	c.client.SetOffsets(rewindOffsets(rest))
	return false
}

// rewindOffsets maps each partition to the offset of its first record in rs.
func rewindOffsets(rs []*kgo.Record) map[string]map[int32]kgo.EpochOffset {
	offsets := make(map[string]map[int32]kgo.EpochOffset)
	for _, r := range rs {
		partitions, ok := offsets[r.Topic]
		if !ok {
			partitions = make(map[int32]kgo.EpochOffset)
			offsets[r.Topic] = partitions
		}
		if _, seen := partitions[r.Partition]; !seen {
			partitions[r.Partition] = kgo.EpochOffset{Epoch: r.LeaderEpoch, Offset: r.Offset}
		}
	}
	return offsets
}

func (c *Consumer) backoff(ctx context.Context) {
	d := c.config.RetryBackoff
	if d <= 0 {
		d = defaultRetryBackoff
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
