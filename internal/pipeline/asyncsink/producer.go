// Package asyncsink fire-and-forgets the side effects of a decision —
// evidence persistence and, eventually, analytics — onto a Kafka topic so
// the decision endpoint never waits on them. It repurposes the CDC
// analytics pipeline's consumer-group shape: where that worker consumed
// Debezium change events for reporting, this one consumes decision events
// for durable evidence writes.
package asyncsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/riskcore/fraudengine/internal/models"
)

// DecisionEvent is the envelope published to the async sink topic.
type DecisionEvent struct {
	Event    *models.PaymentEvent    `json:"event"`
	Features *models.FeatureSnapshot `json:"features"`
	Scores   models.RiskScores       `json:"scores"`
	Decision *models.Decision        `json:"decision"`
}

// Producer publishes decision events onto Kafka.
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewProducer builds an async producer against the given brokers/topic.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Version = sarama.V3_0_0_0

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := &Producer{producer: producer, topic: topic}
	go p.logErrors()
	return p, nil
}

func (p *Producer) logErrors() {
	for err := range p.producer.Errors() {
		log.Error().Err(err.Err).Msg("async sink publish failed")
	}
}

// Publish implements pipeline.Sink: it serializes the decision envelope and
// sends it without blocking on broker acknowledgement.
func (p *Producer) Publish(_ context.Context, event *models.PaymentEvent, snapshot *models.FeatureSnapshot, scores models.RiskScores, decision *models.Decision) {
	payload, err := json.Marshal(DecisionEvent{Event: event, Features: snapshot, Scores: scores, Decision: decision})
	if err != nil {
		log.Error().Err(err).Str("transaction_id", event.TransactionID).Msg("failed to marshal decision event")
		return
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.TransactionID),
		Value: sarama.ByteEncoder(payload),
	}
}

// Close shuts down the producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
