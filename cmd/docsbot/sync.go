package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xrplevm/docsbot/internal/config"
	"github.com/xrplevm/docsbot/internal/docsync"
	"github.com/xrplevm/docsbot/internal/extract"
	"github.com/xrplevm/docsbot/internal/logger"
	"github.com/xrplevm/docsbot/internal/retrieval"
)

func newSyncCmd() *cobra.Command {
	var reupload bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one docs refresh and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(reupload)
		},
	}
	cmd.Flags().BoolVar(&reupload, "reupload", true, "re-upload the corpus instead of reusing the stored vector store")
	return cmd
}

func runSync(reupload bool) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.L

	client := buildReasonerClient(log, cfg)
	store, err := retrieval.NewQdrantStore(log, retrieval.QdrantOptions{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
	})
	if err != nil {
		return err
	}

	ocr := extract.NewTesseractOCR("eng")
	job := docsync.NewJob(log,
		docsync.NewMirror(log, cfg.Docs.RepoURL, cfg.Docs.LocalPath),
		docsync.NewConverter(log, ocr),
		client, store,
		docsync.JobOptions{
			Roots:     []string{cfg.Docs.LocalPath, cfg.Docs.ManualFolder},
			StateDir:  cfg.Docs.StateDir,
			StoreName: cfg.OpenAI.AssistantName + " Vector Store",
		})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return job.Run(ctx, reupload)
}
