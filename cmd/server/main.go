package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardoC/docchat/internal/api"
	"github.com/RichardoC/docchat/internal/chat"
	"github.com/RichardoC/docchat/internal/config"
	"github.com/RichardoC/docchat/internal/db"
	"github.com/RichardoC/docchat/internal/extract"
	"github.com/RichardoC/docchat/internal/llm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("failed to load configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DatabasePath))
	}
	defer database.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	err = database.Ping(pingCtx)
	cancelPing()
	if err != nil {
		logger.Fatal("database is not reachable",
			zap.Error(err),
			zap.String("dbPath", cfg.DatabasePath))
	}

	model, err := llm.NewModel(ctx, cfg.ProviderConfig())
	if err != nil {
		logger.Fatal("failed to initialize LLM provider",
			zap.Error(err),
			zap.String("provider", cfg.Provider))
	}

	gateway, err := llm.New(model, cfg.Variants(), logger.Named("llm"))
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}

	chatService, err := chat.NewService(database, gateway, extract.PDF, logger.Named("chat"))
	if err != nil {
		logger.Fatal("failed to initialize chat service", zap.Error(err))
	}

	handler := api.NewHandler(database, chatService, logger.Named("api"), cfg.MaxUploadBytes)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", srv.Addr),
			zap.String("provider", cfg.Provider),
			zap.Strings("models", cfg.ModelNames()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped unexpectedly", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down server cleanly", zap.Error(err))
	}
}

// newLogger builds a production logger, or a development one at debug level.
func newLogger(level string) (*zap.Logger, error) {
	zc, err := loggerConfig(level)
	if err != nil {
		return nil, err
	}
	return zc.Build()
}

func loggerConfig(level string) (zap.Config, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zap.Config{}, err
	}
	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc, nil
}
