package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"TGModule/global/config"
	"TGModule/logger"
	"TGModule/module/bot"
	"TGModule/service/auth"
	"TGModule/service/mainapi"
	"TGModule/service/ops"
	"TGModule/service/storage"
	redisx "TGModule/service/storage/redis"
	"TGModule/service/tg"
	"TGModule/tools/safe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rdb, err := redisx.Connect(redisx.Config{
		Addr: cfg.RedisHost + ":" + strconv.Itoa(cfg.RedisPort),
	})
	if err != nil {
		logger.Error("failed to connect to Redis", zap.Error(err))
		os.Exit(1)
	}
	store := storage.NewSessionStore(rdb, cfg.RedisPrefix)

	transport, err := tg.New(cfg.BotToken)
	if err != nil {
		logger.Error("failed to create the Telegram client", zap.Error(err))
		os.Exit(1)
	}

	b := bot.New(store,
		auth.NewClient(cfg.AuthBaseURL),
		mainapi.NewClient(cfg.MainBaseURL),
		transport,
		bot.Options{
			SuccessMarker:  cfg.SuccessMarker,
			NotifyInterval: time.Duration(cfg.NotificationIntervalSec) * time.Second,
		})

	ctx := context.Background()
	transport.Bind(ctx, b)
	b.StartLoops(ctx)
	if cfg.OpsAddr != "" {
		safe.Go("ops", func() { ops.Start(ctx, cfg.OpsAddr, store) })
	}

	logger.Info("TG bot started")
	transport.Start()
}
