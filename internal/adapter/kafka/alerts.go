// Package kafka publishes city-wide early warnings to a Kafka topic so
// downstream alerting channels (SMS gateways, dashboards) can fan them out.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/config"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

// AlertPublisher produces alert events to the configured topic.
// It implements predict.AlertPublisher.
type AlertPublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewAlertPublisher creates a Kafka producer for the alert topic.
func NewAlertPublisher(cfg *config.Config, logger *slog.Logger) *AlertPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &AlertPublisher{writer: w, logger: logger}
}

// Publish serializes and writes one alert event. The city is the message
// key so alerts for the same city land on the same partition in order.
func (p *AlertPublisher) Publish(ctx context.Context, ev domain.AlertEvent) error {
	msg, err := serializeToMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	p.logger.Info("alert published", "city", ev.City, "station", ev.Station, "discharge", ev.Discharge)
	return nil
}

// serializeToMessage marshals an AlertEvent into a Kafka message.
func serializeToMessage(ev domain.AlertEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.City),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "rule_id", Value: []byte(strconv.Itoa(ev.RuleID))},
			{Key: "issued_at", Value: []byte(ev.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}

func (p *AlertPublisher) Close() error {
	return p.writer.Close()
}
