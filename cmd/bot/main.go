package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fvgbot/internal/config"
	"fvgbot/internal/engine"
	"fvgbot/internal/exchange/connect"
	"fvgbot/internal/indicator"
	"fvgbot/internal/logger"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	logger := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	gw, err := connect.Open(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Не удалось подключиться к бирже.")
	}

	eng, err := engine.New(engine.ParamsFromConfig(cfg), gw, logger)
	if err != nil {
		logger.WithError(err).Fatal("Некорректные параметры риска.")
	}

	runner, err := engine.NewRunner(eng, gw, indicator.New(indicator.ParamsFromConfig(cfg.Bot)), engine.RunnerConfig{
		Symbol:        cfg.Bot.Symbol,
		Timeframe:     cfg.Bot.Timeframe,
		Limit:         cfg.Bot.Limit,
		PollInterval:  cfg.Bot.PollInterval,
		StreamTickers: true,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Не удалось создать runner.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runner.Start(ctx); err != nil {
		logger.WithError(err).Fatal("\"Двигатель\" завершился с ошибкой.")
	}
	<-sigCh

	logger.Info("Остановка...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Minute)
	defer stopCancel()
	if err := runner.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Ошибка при остановке.")
	}
	cancel()

	logger.Info("Бот остановлен.")
}
