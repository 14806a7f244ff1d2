package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// LeaderboardPublisher announces that a new ranking snapshot is available.
type LeaderboardPublisher interface {
	PublishLeaderboardUpdated(ctx context.Context, event LeaderboardUpdatedEvent) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	logger zerolog.Logger
}

func NewProducer(brokers []string, topic string, logger zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newProducer(writer, logger)
}

func newProducer(writer messageWriter, logger zerolog.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger.With().Str("component", "kafka-producer").Logger(),
	}
}

// PublishLeaderboardUpdated keys by contest so updates for one contest stay ordered.
func (p *Producer) PublishLeaderboardUpdated(ctx context.Context, event LeaderboardUpdatedEvent) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("Producer.PublishLeaderboardUpdated: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ContestID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("Producer.PublishLeaderboardUpdated %s: %w", event.ContestID, err)
	}

	p.logger.Debug().
		Str("contestId", event.ContestID).
		Int64("version", event.Version).
		Bool("final", event.Final).
		Msg("Published leaderboard.updated")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
