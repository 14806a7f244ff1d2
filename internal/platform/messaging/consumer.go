package messaging

import (
	"context"
	"errors"
	"sync"
	"time"
	"tle_zone_contest/internal/common"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// EventHandler processes one message. Errors wrapping common.ErrServiceUnavailable
// are retried; any other error drops the message.
type EventHandler func(ctx context.Context, message kafka.Message) error

const maxRetryBackoff = 30 * time.Second

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type topicReader struct {
	topic  string
	reader messageReader
}

type Consumer struct {
	readers  []topicReader
	handlers map[string]EventHandler
	logger   zerolog.Logger
	// onResult is called after each handled message, for metrics.
	onResult     func(topic, status string)
	retryBackoff time.Duration
}

func NewConsumer(brokers []string, groupID string, topics []string, logger zerolog.Logger) *Consumer {
	readers := make([]topicReader, 0, len(topics))
	for _, topic := range topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       10e3,
			MaxBytes:       10e6,
			MaxWait:        1 * time.Second,
			CommitInterval: 1 * time.Second,
			// Rankings are rebuilt from the event store, so a new group only needs events from now on.
			StartOffset: kafka.LastOffset,
		})
		readers = append(readers, topicReader{topic: topic, reader: reader})
	}
	return newConsumer(readers, logger)
}

func newConsumer(readers []topicReader, logger zerolog.Logger) *Consumer {
	return &Consumer{
		readers:      readers,
		handlers:     make(map[string]EventHandler),
		logger:       logger.With().Str("component", "kafka").Logger(),
		onResult:     func(string, string) {},
		retryBackoff: 1 * time.Second,
	}
}

func (c *Consumer) RegisterHandler(topic string, handler EventHandler) {
	c.handlers[topic] = handler
}

// OnResult installs a callback that observes every processed message.
func (c *Consumer) OnResult(fn func(topic, status string)) {
	if fn != nil {
		c.onResult = fn
	}
}

// Run consumes all topics until ctx is cancelled, then closes the readers.
func (c *Consumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, tr := range c.readers {
		wg.Add(1)
		go func(tr topicReader) {
			defer wg.Done()
			c.consumeFromReader(ctx, tr)
		}(tr)
	}
	c.logger.Info().Int("topics", len(c.readers)).Msg("Kafka consumer started")

	wg.Wait()
	return c.close()
}

func (c *Consumer) consumeFromReader(ctx context.Context, tr topicReader) {
	c.logger.Info().Str("topic", tr.topic).Msg("Starting consumer for topic")

	for {
		msg, err := tr.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error().Err(err).Str("topic", tr.topic).Msg("Failed to fetch message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(1 * time.Second):
			}
			continue
		}

		c.logger.Debug().
			Str("topic", tr.topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("Received message")

		status, done := c.handle(ctx, tr, msg)
		if !done {
			// Left uncommitted; the group redelivers it after a restart.
			return
		}
		c.onResult(tr.topic, status)

		if err := tr.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Str("topic", tr.topic).Msg("Failed to commit message")
		}
	}
}

// handle runs the topic's handler, retrying with backoff while it fails transiently.
// done is false only when ctx ends before the message was settled.
func (c *Consumer) handle(ctx context.Context, tr topicReader, msg kafka.Message) (status string, done bool) {
	handler, ok := c.handlers[tr.topic]
	if !ok {
		c.logger.Warn().Str("topic", tr.topic).Msg("No handler registered for topic")
		return "unhandled", true
	}

	backoff := c.retryBackoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return "ok", true
		}
		if !errors.Is(err, common.ErrServiceUnavailable) {
			// Poison messages are committed; retrying cannot fix them.
			c.logger.Error().Err(err).Str("topic", tr.topic).Int64("offset", msg.Offset).Msg("Handler failed")
			return "error", true
		}

		c.logger.Warn().
			Err(err).
			Str("topic", tr.topic).
			Int64("offset", msg.Offset).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Handler failed transiently, retrying")
		c.onResult(tr.topic, "retry")

		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func (c *Consumer) close() error {
	var lastErr error
	for _, tr := range c.readers {
		if err := tr.reader.Close(); err != nil {
			lastErr = err
			c.logger.Error().Err(err).Str("topic", tr.topic).Msg("Failed to close reader")
		}
	}
	c.logger.Info().Msg("Kafka consumer stopped")
	return lastErr
}
