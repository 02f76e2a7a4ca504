package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/mbd888/riskline/internal/metrics"
)

// KafkaEmitter produces alerts to a Kafka topic, keyed by customer so
// one customer's alerts stay ordered within a partition.
type KafkaEmitter struct {
	producer *kafka.Producer
	topic    string
	logger   *slog.Logger
}

// NewKafkaEmitter connects a producer to the broker list and starts a
// goroutine draining delivery reports.
func NewKafkaEmitter(brokers, topic string, logger *slog.Logger) (*KafkaEmitter, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &KafkaEmitter{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "alerts"),
	}
	go e.drainDeliveryReports()
	return e, nil
}

// Emit produces the alert asynchronously. Delivery outcome arrives via
// the report channel; a full local queue is logged and dropped.
func (e *KafkaEmitter) Emit(ctx context.Context, alert *Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		e.logger.Error("failed to marshal alert", "error", err)
		return
	}

	err = e.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &e.topic, Partition: kafka.PartitionAny},
		Key:            []byte(alert.CustomerID),
		Value:          payload,
	}, nil)
	if err != nil {
		e.logger.Warn("alert kafka produce failed",
			"evaluation_id", alert.EvaluationID, "error", err)
		return
	}
	metrics.AlertsTotal.WithLabelValues(string(alert.Severity), "kafka").Inc()
}

func (e *KafkaEmitter) drainDeliveryReports() {
	for ev := range e.producer.Events() {
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			e.logger.Warn("alert kafka delivery failed", "error", m.TopicPartition.Error)
		}
	}
}

// Close flushes pending messages and shuts the producer down.
func (e *KafkaEmitter) Close() {
	e.producer.Flush(5000)
	e.producer.Close()
}
