package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer applies signals read from a Kafka topic. A message is committed
// once it is applied or found to be permanently invalid; transient failures
// are retried in place so ordering within a partition holds.
type Consumer struct {
	reader    messageReader
	service   *Service
	logger    *slog.Logger
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewConsumer wraps a kafka-go reader configured with a consumer group.
func NewConsumer(reader *kafka.Reader, service *Service, logger *slog.Logger) *Consumer {
	return newConsumer(reader, service, logger)
}

func newConsumer(reader messageReader, service *Service, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:    reader,
		service:   service,
		logger:    logger,
		baseDelay: 200 * time.Millisecond,
		maxDelay:  10 * time.Second,
	}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("settlement fetch failed", slog.Any("error", err))
			if !sleep(ctx, c.baseDelay) {
				return nil
			}
			continue
		}

		if !c.handle(ctx, m) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("settlement commit failed", slog.Int64("offset", m.Offset), slog.Any("error", err))
		}
	}
}

// handle returns false only when ctx ended before the message was settled.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	var sig Signal
	if err := json.Unmarshal(m.Value, &sig); err != nil {
		c.logger.Warn("dropping malformed settlement signal", slog.Int64("offset", m.Offset), slog.Any("error", err))
		return true
	}

	delay := c.baseDelay
	for {
		_, err := c.service.Apply(ctx, sig)
		if err == nil {
			return true
		}
		if !Transient(err) {
			c.logger.Warn("dropping settlement signal",
				slog.String("transaction_id", sig.TransactionID),
				slog.String("signal", string(sig.Type)),
				slog.Any("error", err),
			)
			return true
		}
		c.logger.Warn("settlement signal retry", slog.String("transaction_id", sig.TransactionID), slog.Any("error", err))
		if !sleep(ctx, delay) {
			return false
		}
		delay = min(2*delay, c.maxDelay)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
