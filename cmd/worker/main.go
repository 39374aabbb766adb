// cmd/worker runs the async evidence sink: a Kafka consumer group that
// drains decision events published by the API server's fire-and-forget
// sink and writes them durably to the evidence vault. It reuses the
// consumer-group retry-connect loop the engine's CDC analytics pipeline
// used, pointed at the decisioning topic instead of a Debezium CDC stream.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/riskcore/fraudengine/configs"
	"github.com/riskcore/fraudengine/internal/evidence"
	"github.com/riskcore/fraudengine/internal/pipeline/asyncsink"
	"github.com/riskcore/fraudengine/internal/repositories"
)

func main() {
	_ = godotenv.Load()

	cfg := configs.Load()
	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Msg("starting evidence sink worker")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	vaultKey, err := vaultKeyFrom(cfg.Vault.KeyHex)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid vault key")
	}
	vault, err := evidence.NewVault(vaultKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build evidence vault")
	}
	evidenceStore := evidence.NewStore(db, vault, cfg.Scoring.EvidenceRetention)

	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	consumerConfig.Consumer.Return.Errors = true
	consumerConfig.Version = sarama.V3_0_0_0

	var consumerGroup sarama.ConsumerGroup
	for attempt := 0; attempt < 30; attempt++ {
		consumerGroup, err = sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, consumerConfig)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("failed to connect to kafka, retrying")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer group after retries")
	}
	defer consumerGroup.Close()

	handler := asyncsink.NewConsumer(evidenceStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received, stopping evidence sink worker")
		cancel()
	}()

	for {
		if err := consumerGroup.Consume(ctx, []string{cfg.Kafka.Topic}, handler); err != nil {
			log.Error().Err(err).Msg("error from consumer group")
		}
		if ctx.Err() != nil {
			log.Info().Msg("evidence sink worker shut down")
			return
		}
	}
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func vaultKeyFrom(keyHex string) ([32]byte, error) {
	var key [32]byte
	if keyHex == "" {
		log.Warn().Msg("EVIDENCE_VAULT_KEY not set, using an ephemeral random key — evidence will not be decryptable across restarts")
		if _, err := rand.Read(key[:]); err != nil {
			return key, err
		}
		return key, nil
	}
	decoded, err := hex.DecodeString(keyHex)
	if err != nil {
		return key, err
	}
	copy(key[:], decoded)
	return key, nil
}
