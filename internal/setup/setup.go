package setup

import (
	"context"
	"log"

	aiClient "github.com/chatmod/chatmod/internal/ai/client"
	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/feedback"
	"github.com/chatmod/chatmod/internal/finetune"
	"github.com/chatmod/chatmod/internal/pipeline"
	"github.com/chatmod/chatmod/internal/policy"
	"github.com/chatmod/chatmod/internal/policy/classifier"
	"github.com/chatmod/chatmod/internal/redis"
	"github.com/chatmod/chatmod/internal/setup/config"
	"github.com/chatmod/chatmod/internal/setup/telemetry"
	"github.com/chatmod/chatmod/internal/store"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	LogManager   *telemetry.Manager
	RedisManager *redis.Manager
	AIClient     *aiClient.AIClient
	Documents    *store.Documents

	Policy       *policy.Store
	Corpus       *corpus.Store
	Ledger       *feedback.Ledger
	Promoter     *feedback.Promoter
	Reconciler   *feedback.Reconciler
	Pipeline     *pipeline.Pipeline
	Orchestrator *finetune.Orchestrator

	pprofServer *pprofServer
}

// InitializeApp bootstraps all application dependencies in the correct
// order, each component getting its requirements from the ones before it.
func InitializeApp(_ context.Context, logDir string) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging comes up first to capture setup issues
	logManager := telemetry.NewManager(logDir, &cfg.Debug)

	logger, err := logManager.GetLogger()
	if err != nil {
		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Redis, logger)

	// Policy generation counter and feedback counters are optional; the
	// stores degrade to cache-always-fresh when Redis is unreachable.
	var (
		generation *redis.Generation
		counters   *redis.Counters
	)

	if cacheClient, err := redisManager.GetClient(redis.CacheDBIndex); err != nil {
		logger.Warn("Redis unavailable, running without cross-instance invalidation", zap.Error(err))
	} else {
		generation = redis.NewGeneration(cacheClient, policy.GenerationKey)
	}

	if statsClient, err := redisManager.GetClient(redis.StatsDBIndex); err == nil {
		counters = redis.NewCounters(statsClient, "feedback:counters")
	}

	aiCli, err := aiClient.NewClient(&cfg.OpenAI, logger)
	if err != nil {
		return nil, err
	}

	remote := store.NewRepoClient(&cfg.Repository, logger)
	documents := store.NewDocuments(remote, cfg.Repository.MirrorDir, logger)

	policyStore := policy.NewStore(documents, generation, logger)
	corpusStore := corpus.NewStore(documents, logger)
	ledger := feedback.NewLedger(documents, logger)
	cls := classifier.New()

	promoter := feedback.NewPromoter(ledger, corpusStore, policyStore, cls, counters, logger)
	reconciler := feedback.NewReconciler(ledger, logger)

	assembler := pipeline.NewAssembler(&cfg.Assembler, logger)
	replyPipeline := pipeline.New(aiCli.Chat(), policyStore, corpusStore, cls,
		assembler, ledger, cfg.OpenAI.ChatModel, logger)

	moderations := finetune.NewModerationService(aiCli.OpenAI(), cfg.OpenAI.ModerationModel)
	filter := finetune.NewSafetyFilter(moderations, logger)
	trainer := finetune.NewTrainingService(aiCli.OpenAI())
	orchestrator := finetune.NewOrchestrator(corpusStore, documents, trainer, filter,
		&cfg.FineTune, cfg.OpenAI.FineTuneBaseModel, logger)

	var pprofSrv *pprofServer

	if cfg.Debug.EnablePprof {
		srv, err := startPprofServer(cfg.Debug.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		} else {
			pprofSrv = srv

			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		LogManager:   logManager,
		RedisManager: redisManager,
		AIClient:     aiCli,
		Documents:    documents,
		Policy:       policyStore,
		Corpus:       corpusStore,
		Ledger:       ledger,
		Promoter:     promoter,
		Reconciler:   reconciler,
		Pipeline:     replyPipeline,
		Orchestrator: orchestrator,
		pprofServer:  pprofSrv,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse
// initialization order. Cleanup errors are logged, not fatal.
func (s *App) Cleanup(ctx context.Context) {
	if s.pprofServer != nil {
		if err := s.pprofServer.srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown pprof server", zap.Error(err))
		}

		s.pprofServer.listener.Close()
	}

	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	s.RedisManager.Close()
}
