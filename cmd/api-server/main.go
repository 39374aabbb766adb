package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/riskcore/fraudengine/configs"
	"github.com/riskcore/fraudengine/internal/api"
	"github.com/riskcore/fraudengine/internal/auth"
	"github.com/riskcore/fraudengine/internal/detectors"
	"github.com/riskcore/fraudengine/internal/evidence"
	"github.com/riskcore/fraudengine/internal/featurestore"
	"github.com/riskcore/fraudengine/internal/mlscore"
	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/pipeline"
	"github.com/riskcore/fraudengine/internal/pipeline/asyncsink"
	"github.com/riskcore/fraudengine/internal/pipeline/replay"
	"github.com/riskcore/fraudengine/internal/policy"
	"github.com/riskcore/fraudengine/internal/policyversion"
	"github.com/riskcore/fraudengine/internal/queue"
	"github.com/riskcore/fraudengine/internal/repositories"
	"github.com/riskcore/fraudengine/internal/riskscore"
	"github.com/riskcore/fraudengine/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := configs.Load()

	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("starting fraud decisioning API server")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer cacheClient.Close()

	velocityStore := store.NewVelocityStore(cacheClient)
	profileStore := store.NewProfileStore(cacheClient, cfg.Scoring.ProfileRetention)
	idempotencyCache := store.NewIdempotencyCache(cacheClient, cfg.Scoring.IdempotencyTTL)
	featureStore := featurestore.NewStore(velocityStore, profileStore)

	detectorSet := []detectors.Detector{
		detectors.NewCardTestingDetector(),
		detectors.NewVelocityAttackDetector(),
		detectors.NewGeoAnomalyDetector(),
		detectors.NewBotAutomationDetector(),
		detectors.NewFriendlyFraudDetector(),
	}

	champion := mlscore.NewBehavioralModel(cfg.Scoring.ModelVersion)
	challenger := mlscore.NewBehavioralModel(cfg.Scoring.ModelVersion + "-challenger")
	mlScorer := mlscore.NewScorer(champion, challenger, cfg.Scoring.ChallengerPct, cfg.Scoring.HoldoutPct)

	riskScorer := riskscore.NewScorer(riskscore.DetectorWeights{
		CardTesting: cfg.Scoring.CardTestingWeight,
		Velocity:    cfg.Scoring.VelocityWeight,
		Geo:         cfg.Scoring.GeoWeight,
		Bot:         cfg.Scoring.BotWeight,
	}, cfg.Scoring.MLWeight)

	policyEngine := policy.NewEngine()
	policyStore := policyversion.NewStore(db)

	vaultKey, err := vaultKeyFrom(cfg.Vault.KeyHex)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid vault key")
	}
	vault, err := evidence.NewVault(vaultKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build evidence vault")
	}
	evidenceStore := evidence.NewStore(db, vault, cfg.Scoring.EvidenceRetention)

	var sink pipeline.Sink
	producer, err := asyncsink.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		log.Warn().Err(err).Msg("kafka producer unavailable, decisions will not be persisted asynchronously")
	} else {
		sink = producer
		defer producer.Close()
	}

	decisionPipeline := &pipeline.Pipeline{
		Features:   featureStore,
		Detectors:  detectorSet,
		ML:         mlScorer,
		Risk:       riskScorer,
		Policy:     policyEngine,
		Policies:   policyStore,
		Idempotent: idempotencyCache,
		Sink:       sink,
		Budgets: pipeline.Budgets{
			Feature:  cfg.Scoring.FeatureBudget,
			Scoring:  cfg.Scoring.ScoringBudget,
			Policy:   cfg.Scoring.PolicyBudget,
			EndToEnd: cfg.Scoring.EndToEndBudget,
		},
		SafeMode: func() bool { return cfg.SafeMode.Enabled },
	}

	if err := ensureSeedPolicy(context.Background(), policyStore); err != nil {
		log.Warn().Err(err).Msg("failed to seed default policy")
	}

	reloader := policyversion.NewReloader(policyStore, cfg.Policy.ReloadPath, cfg.Policy.ReloadPeriod)
	reloadCtx, stopReload := context.WithCancel(context.Background())
	defer stopReload()
	if reloader.Enabled() {
		log.Info().Str("path", cfg.Policy.ReloadPath).Dur("period", cfg.Policy.ReloadPeriod).Msg("policy hot-reload enabled")
		go reloader.Run(reloadCtx)
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	operatorStore := auth.NewStaticOperatorStore(uuid.New(), cfg.Admin.Email, cfg.Admin.PasswordHash, cfg.Admin.Role)
	authService := auth.NewService(operatorStore, jwtManager)
	replayRunner := replay.NewRunner(policyEngine)

	router := api.NewRouter(api.Dependencies{
		DB:            db,
		Pipeline:      decisionPipeline,
		PolicyStore:   policyStore,
		EvidenceStore: evidenceStore,
		ProfileStore:  profileStore,
		ReplayRunner:  replayRunner,
		AuthService:   authService,
		JWTManager:    jwtManager,
	}, cfg.Server.Environment)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
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

func ensureSeedPolicy(ctx context.Context, store *policyversion.Store) error {
	if _, err := store.Active(ctx); err == nil {
		return nil
	}

	seed := &models.Policy{
		BlockThreshold:    0.85,
		ReviewThreshold:   0.6,
		FrictionThreshold: 0.4,
		DefaultAction:     models.ActionAllow,
		ChallengerPct:     10,
		HoldoutPct:        5,
		CreatedBy:         "system",
	}
	_, err := store.Publish(ctx, seed, models.ChangeRules)
	return err
}
