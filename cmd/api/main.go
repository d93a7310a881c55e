package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/zhouzirui/docchat/internal/config"
	"github.com/zhouzirui/docchat/internal/handler"
	chatHandler "github.com/zhouzirui/docchat/internal/handler/chat"
	"github.com/zhouzirui/docchat/internal/logger"
	"github.com/zhouzirui/docchat/internal/service/ai"
	"github.com/zhouzirui/docchat/internal/service/chat"
	"github.com/zhouzirui/docchat/internal/service/index"
	"github.com/zhouzirui/docchat/internal/service/usage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.AddFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		// logger 依赖配置，这里只能用标准库输出。
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	if envErr != nil {
		appLogger.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	store, err := usage.NewStore(cfg.Usage.URL, cfg.Usage.Key)
	if err != nil {
		appLogger.Fatal("failed to open usage store", zap.Error(err))
	}
	defer store.Close()

	counter, err := usage.NewCounter(store, cfg.Usage.Table, cfg.Usage.Column)
	if err != nil {
		appLogger.Fatal("invalid usage counter target", zap.Error(err))
	}

	var chains chatHandler.ChainFactory
	if aiService, err := newAIService(ctx, cfg, appLogger); err != nil {
		appLogger.Warn("continuing without chat functionality - 请检查 Ark 模型相关环境变量", zap.Error(err))
	} else {
		chains = aiService
		appLogger.Info("AI service initialized",
			zap.String("model", cfg.AI.Model),
			zap.String("embedding", cfg.Embedding.Provider),
		)
	}

	router, err := handler.NewRouter(handler.Deps{
		Chains:   chains,
		Sessions: chat.NewService(),
		Usage:    counter,
		Chat: chatHandler.Options{
			ForwardCondensedQuestion: cfg.Chat.ForwardCondensedQuestion,
			AnswerTimeout:            cfg.Chat.AnswerTimeout,
			SetupTimeout:             cfg.Chat.SetupTimeout,
			UsageTimeout:             cfg.Usage.Timeout,
		},
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Fatal("failed to build router", zap.Error(err))
	}

	startServer(ctx, cfg.Server, router, appLogger)
}

// newAIService 组装对话模型、向量化和索引构建器。
func newAIService(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (*ai.Service, error) {
	if !cfg.AI.Enabled() {
		return nil, errors.New("Ark 凭证未配置")
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	embedder, err := cfg.Embedding.NewEmbedder(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	splitter, err := index.NewSplitter(ctx, cfg.Chat.ChunkSize, cfg.Chat.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("create splitter: %w", err)
	}

	builder := index.NewBuilder(splitter, embedder, cfg.Chat.RetrievalTopK)
	return ai.NewService(ctx, chatModel, builder, ai.Options{Tracing: cfg.Chat.Tracing}, appLogger.Named("ai"))
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, appLogger *zap.Logger) {
	addr := serverCfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	appLogger.Info("docchat listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		appLogger.Fatal("server error", zap.Error(err))
	}
	appLogger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
