package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/xrplevm/docsbot/internal/bot"
	"github.com/xrplevm/docsbot/internal/config"
	"github.com/xrplevm/docsbot/internal/conversation"
	"github.com/xrplevm/docsbot/internal/docsync"
	"github.com/xrplevm/docsbot/internal/extract"
	"github.com/xrplevm/docsbot/internal/handlers"
	"github.com/xrplevm/docsbot/internal/logger"
	"github.com/xrplevm/docsbot/internal/reasoner"
	"github.com/xrplevm/docsbot/internal/retrieval"
	"github.com/xrplevm/docsbot/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot, HTTP API and scheduled docs refresh",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideOCR,
			provideExtractor,
			provideNormalizer,
			provideReasonerClient,
			provideQdrantStore,
			providePipeline,
			provideReconstructor,
			provideRegistry,
			provideBot,
			provideMirror,
			provideConverter,
			provideJob,
			provideScheduler,
			providePingHandler,
			provideAskHandler,
			provideSyncHandler,
			provideServer,
		),
		fx.Invoke(
			startBot,
			startScheduler,
			startInitialRefresh,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideOCR() extract.OCR {
	return extract.NewTesseractOCR("eng")
}

func provideExtractor(log *slog.Logger, ocr extract.OCR) *extract.Extractor {
	return extract.NewExtractor(log, nil, ocr)
}

func provideNormalizer(log *slog.Logger, extractor *extract.Extractor) conversation.Normalizer {
	return extract.NewMessageNormalizer(log, extractor)
}

func provideReasonerClient(log *slog.Logger, cfg config.Config) *reasoner.Client {
	return buildReasonerClient(log, cfg)
}

func buildReasonerClient(log *slog.Logger, cfg config.Config) *reasoner.Client {
	return reasoner.NewClient(log, reasoner.Options{
		BaseURL:             cfg.OpenAI.BaseURL,
		APIKey:              cfg.OpenAI.APIKey,
		Model:               cfg.OpenAI.Model,
		EmbeddingModel:      cfg.OpenAI.EmbeddingModel,
		AssistantName:       cfg.OpenAI.AssistantName,
		Instructions:        cfg.OpenAI.Instructions,
		PollInterval:        cfg.Reasoner.PollInterval(),
		PollTimeout:         cfg.Reasoner.PollTimeout(),
		RetryAttempts:       cfg.Reasoner.RetryAttempts,
		RetryDelay:          cfg.Reasoner.RetryDelay(),
		MaxPromptTokens:     cfg.Reasoner.MaxPromptTokens,
		MaxCompletionTokens: cfg.Reasoner.MaxCompletionTokens,
	})
}

func provideQdrantStore(log *slog.Logger, cfg config.Config) (*retrieval.QdrantStore, error) {
	return retrieval.NewQdrantStore(log, retrieval.QdrantOptions{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
	})
}

func providePipeline(log *slog.Logger, cfg config.Config, client *reasoner.Client, store *retrieval.QdrantStore) *retrieval.Pipeline {
	return retrieval.NewPipeline(log, client, store, retrieval.NewLLMReranker(client),
		cfg.Retrieval.TopK, cfg.Retrieval.ScoreThreshold, cfg.Retrieval.RerankTopN)
}

func provideReconstructor(log *slog.Logger, normalizer conversation.Normalizer) *conversation.Reconstructor {
	return conversation.NewReconstructor(log, normalizer)
}

func provideRegistry(log *slog.Logger, cfg config.Config) *conversation.Registry {
	return conversation.NewRegistry(log, cfg.Registry.TTL(), cfg.Registry.MaxEntries)
}

func provideBot(log *slog.Logger, cfg config.Config, registry *conversation.Registry, reconstructor *conversation.Reconstructor, normalizer conversation.Normalizer, pipeline *retrieval.Pipeline, client *reasoner.Client) (*bot.Bot, error) {
	var augmenter bot.Augmenter
	if cfg.Retrieval.Enabled {
		augmenter = pipeline
	}
	return bot.New(log, cfg.Discord, registry, reconstructor, normalizer, augmenter, client)
}

func provideMirror(log *slog.Logger, cfg config.Config) *docsync.Mirror {
	return docsync.NewMirror(log, cfg.Docs.RepoURL, cfg.Docs.LocalPath)
}

func provideConverter(log *slog.Logger, ocr extract.OCR) *docsync.Converter {
	return docsync.NewConverter(log, ocr)
}

func provideJob(log *slog.Logger, cfg config.Config, mirror *docsync.Mirror, converter *docsync.Converter, client *reasoner.Client, store *retrieval.QdrantStore) *docsync.Job {
	return docsync.NewJob(log, mirror, converter, client, store, docsync.JobOptions{
		Roots:     []string{cfg.Docs.LocalPath, cfg.Docs.ManualFolder},
		StateDir:  cfg.Docs.StateDir,
		StoreName: cfg.OpenAI.AssistantName + " Vector Store",
	})
}

func provideScheduler(log *slog.Logger, cfg config.Config, job *docsync.Job) *docsync.Scheduler {
	return docsync.NewScheduler(log, job, cfg.Docs.SyncCron)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideAskHandler(log *slog.Logger, cfg config.Config, client *reasoner.Client, pipeline *retrieval.Pipeline) *handlers.AskHandler {
	var augmenter handlers.Augmenter
	if cfg.Retrieval.Enabled {
		augmenter = pipeline
	}
	return handlers.NewAskHandler(log, client, augmenter)
}

func provideSyncHandler(log *slog.Logger, job *docsync.Job) *handlers.SyncHandler {
	return handlers.NewSyncHandler(log, job)
}

func provideServer(cfg config.Config, log *slog.Logger, pingHandler *handlers.PingHandler, askHandler *handlers.AskHandler, syncHandler *handlers.SyncHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, log, pingHandler, askHandler, syncHandler)
}

func startBot(lc fx.Lifecycle, b *bot.Bot) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return b.Start(ctx) },
		OnStop: func(context.Context) error {
			cancel()
			return b.Stop()
		},
	})
}

func startScheduler(lc fx.Lifecycle, scheduler *docsync.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return scheduler.Start() },
		OnStop: func(context.Context) error {
			scheduler.Stop()
			return nil
		},
	})
}

// startInitialRefresh provisions the assistant on boot, reusing a persisted
// vector store when one exists so restarts stay fast.
func startInitialRefresh(lc fx.Lifecycle, log *slog.Logger, job *docsync.Job) {
	lc.Append(fx.Hook{OnStart: func(context.Context) error {
		go func() {
			if err := job.Run(context.Background(), false); err != nil {
				log.Error("initial docs refresh failed", slog.Any("error", err))
			}
		}()
		return nil
	}})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
