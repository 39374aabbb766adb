package asyncsink

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/riskcore/fraudengine/internal/evidence"
)

// Consumer drains the async sink topic and writes each decision to the
// evidence store, mirroring the CDC analytics pipeline's consumer-group
// handler shape.
type Consumer struct {
	store *evidence.Store
}

// NewConsumer builds a consumer writing into the given evidence store.
func NewConsumer(store *evidence.Store) *Consumer {
	return &Consumer{store: store}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.handle(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	var decEvent DecisionEvent
	if err := json.Unmarshal(msg.Value, &decEvent); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal decision event")
		return
	}

	if _, err := c.store.Record(ctx, decEvent.Event, decEvent.Features, decEvent.Scores, decEvent.Decision); err != nil {
		log.Error().Err(err).Str("transaction_id", decEvent.Event.TransactionID).Msg("failed to persist evidence")
	}
}
