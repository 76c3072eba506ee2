package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/RichardoC/docchat/internal/config"
	"github.com/RichardoC/docchat/internal/llm"
	"go.uber.org/zap"
)

func main() {
	prompt := flag.String("p", "", "prompt to send to the model")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: ask -p \"<prompt>\"")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	model, err := llm.NewModel(ctx, cfg.ProviderConfig())
	if err != nil {
		logger.Fatal("failed to initialize LLM provider", zap.Error(err))
	}
	gateway, err := llm.New(model, cfg.Variants(), logger)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}

	completion, err := gateway.Generate(ctx, *prompt)
	if err != nil {
		var exhausted *llm.ExhaustedError
		if errors.As(err, &exhausted) {
			for _, a := range exhausted.Attempts() {
				logger.Error("model attempt failed", zap.String("model", a.Model), zap.Error(a.Err))
			}
		}
		logger.Fatal("failed to generate completion", zap.Error(err))
	}
	fmt.Println(completion)
}
