package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/seelix/docqa/internal/ai"
	"github.com/seelix/docqa/internal/config"
	"github.com/seelix/docqa/internal/db"
	"github.com/seelix/docqa/internal/filestore"
	"github.com/seelix/docqa/internal/handler"
	"github.com/seelix/docqa/internal/indexer"
	"github.com/seelix/docqa/internal/job"
	"github.com/seelix/docqa/internal/middleware"
	"github.com/seelix/docqa/internal/repo"
	"github.com/seelix/docqa/internal/schedule"
	"github.com/seelix/docqa/internal/searchindex"
	"github.com/seelix/docqa/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "document question-answering server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docqa server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, database *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("search_backend", cfg.Search.Backend),
		zap.String("file_store", cfg.FileStore.Type),
	)

	docRepo := repo.NewDocumentRepo(database)
	folderRepo := repo.NewFolderRepo(database)

	index, err := searchindex.New(cfg.Search, searchindex.Deps{DB: database})
	if err != nil {
		return fmt.Errorf("init search index: %w", err)
	}
	indexerClient := indexer.NewHTTPClient(cfg.Indexer)
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	aiProvider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedder := ai.NewEmbedder(aiProvider, cfg.AI.EmbedModel)
	generator := ai.NewGenerator(aiProvider, cfg.AI.Model)

	ingestService := service.NewIngestService(docRepo, folderRepo, indexerClient, index, cfg.Indexer)
	retrievalService := service.NewRetrievalService(index, cfg.Search)
	chatService := service.NewChatService(docRepo, folderRepo, retrievalService, embedder, generator, cfg.Search, cfg.AI)
	documentService := service.NewDocumentService(docRepo, folderRepo, store)

	deps := handler.RouterDeps{
		Webhooks:  handler.NewWebhookHandler(ingestService, cfg.WebhookToken),
		Documents: handler.NewDocumentHandler(documentService),
		Chat:      handler.NewChatHandler(chatService),
		JWTSecret: []byte(cfg.JWTSecret),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(nil),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Jobs.DisableScheduler {
		scheduler := schedule.NewCronScheduler()
		sweep := job.NewStaleProcessingSweepJob(
			docRepo,
			time.Duration(cfg.Jobs.StaleAgeMinutes)*time.Minute,
			cfg.Jobs.SweepBatchLimit,
		)
		if err := scheduler.AddJob(sweep, cfg.Jobs.StaleSweepSpec); err != nil {
			return fmt.Errorf("schedule sweep job: %w", err)
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
