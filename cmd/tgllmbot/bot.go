package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/auth"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/clientpool"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/config"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/dispatch"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/gateway"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/logutil"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/router"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/session"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/telegram"
)

// app holds the assembled bot. Close releases the backend clients.
type app struct {
	logger  *slog.Logger
	runtime *telegram.Runtime
	pool    *clientpool.Pool
}

func (a *app) Close() {
	a.pool.ReleaseAll()
}

func buildApp() (*app, error) {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	token := strings.TrimSpace(viper.GetString("telegram.bot_token"))
	if token == "" {
		return nil, fmt.Errorf("telegram.bot_token is required (set %s_TELEGRAM_BOT_TOKEN or the config file)", envPrefix)
	}

	reg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if len(reg.Commands) == 0 {
		logger.Warn("config_no_commands")
	}

	pool, err := clientpool.New(clientpool.Options{
		Registry:       reg,
		RequestTimeout: viper.GetDuration("llm.request_timeout"),
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(viper.GetInt("session.history_cap"))
	api := telegram.NewAPI(nil, viper.GetString("telegram.base_url"), token)

	service, err := dispatch.NewService(dispatch.Options{
		Gate:      auth.NewGate(reg.AllowedUserIDs),
		Router:    router.New(reg, sessions),
		Gateway:   gateway.New(gateway.Options{Pool: pool, RequestTimeout: viper.GetDuration("llm.request_timeout"), Logger: logger}),
		Sessions:  sessions,
		Transport: telegram.NewTransport(api, logger),
		Logger:    logger,
	})
	if err != nil {
		pool.ReleaseAll()
		return nil, err
	}

	runtime, err := telegram.NewRuntime(telegram.Options{
		API:            api,
		Dispatch:       service,
		Registry:       reg,
		Logger:         logger,
		PollTimeout:    viper.GetDuration("telegram.poll_timeout"),
		MaxConcurrency: viper.GetInt("telegram.max_concurrency"),
	})
	if err != nil {
		pool.ReleaseAll()
		return nil, err
	}

	return &app{logger: logger, runtime: runtime, pool: pool}, nil
}
