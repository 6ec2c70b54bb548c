package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/cfg"
	"github.com/guildkit/treasury-backend/coordinator"
	"github.com/guildkit/treasury-backend/executor"
	"github.com/guildkit/treasury-backend/notify"
	"github.com/guildkit/treasury-backend/storage"
	"github.com/guildkit/treasury-backend/wallet"
)

func main() {
	if err := godotenv.Load(); err != nil {
		panic(err.Error())
	}

	serviceCfg, err := cfg.FromEnv()
	if err != nil {
		panic(err.Error())
	}

	logger, err := newLogger(serviceCfg)
	if err != nil {
		panic("cannot init logger")
	}
	logger.Info("Start treasury coordinator...")

	defer func() {
		if err := recover(); err != nil {
			logger.Error("cannot recover")
		}
		if err := logger.Sync(); err != nil {
			logger.Error("cannot sync log")
		}
	}()

	if err := setupSentry(serviceCfg); err != nil {
		panic(err)
	}
	defer sentry.Flush(2 * time.Second)

	store, err := storage.NewClient(storage.Config{
		Adapter:             storage.Adapter(serviceCfg.StorageAdapter),
		Dir:                 serviceCfg.StorageDir,
		EnableBackups:       serviceCfg.EnableBackups,
		MaxBackupsPerRecord: serviceCfg.MaxBackupsPerRecord,
		URI:                 serviceCfg.StorageURI,
		DbName:              serviceCfg.StorageDB,
		Logger:              logger,
	})
	if err != nil {
		log.Panicf("cannot create storage client %s", err.Error())
	}

	fanout, err := newFanout(serviceCfg, logger)
	if err != nil {
		log.Panicf("cannot create notification fanout %s", err.Error())
	}

	svc, err := coordinator.New(context.Background(), coordinator.Config{
		Storage:   store,
		Wallets:   walletsFromEnv(),
		Executors: executor.DefaultRegistry(executor.NewDryRunClient(logger), logger),
		Fanout:    fanout,

		ExpiryDays: serviceCfg.DefaultExpiryDaysByUrgency,
		Logger:     logger,
	})
	if err != nil {
		log.Panicf("cannot create coordinator %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sweepLoop(ctx, svc, serviceCfg.AuditRetentionDays, logger)

	sigCh := make(chan os.Signal, 1)
	waitExit := make(chan bool)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			cancel()
			waitExit <- true
		}
	}()
	<-waitExit
}

// sweepLoop makes lazily expired proposals durable and prunes old audit
// partitions on a fixed cadence.
func sweepLoop(ctx context.Context, svc *coordinator.Coordinator, retentionDays int, logger *zap.Logger) {
	sweep := time.NewTicker(time.Minute)
	cleanup := time.NewTicker(24 * time.Hour)
	defer sweep.Stop()
	defer cleanup.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			n, err := svc.SweepExpired(ctx)
			if err != nil {
				logger.Warn("cannot sweep expired proposals", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired proposals swept", zap.Int("count", n))
			}
		case <-cleanup.C:
			n, err := svc.CleanupAudit(ctx, retentionDays)
			if err != nil {
				logger.Warn("cannot cleanup audit log", zap.Error(err))
				continue
			}
			logger.Info("audit partitions removed", zap.Int("count", n))
		}
	}
}

func newFanout(serviceCfg cfg.Config, logger *zap.Logger) (*notify.Fanout, error) {
	var buffer notify.EventBuffer
	if serviceCfg.Notifications.RedisURL != "" {
		redisBuffer, err := notify.NewRedisBuffer(notify.RedisConfig{
			URL:       serviceCfg.Notifications.RedisURL,
			DB:        serviceCfg.Notifications.RedisDB,
			QueueSize: serviceCfg.Notifications.QueueSize,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		buffer = redisBuffer
	}

	fanout := notify.NewFanout(notify.Config{
		QueueSize:   serviceCfg.Notifications.QueueSize,
		SinkTimeout: serviceCfg.Notifications.SinkTimeout,
		Buffer:      buffer,
		Logger:      logger,
	})
	if serviceCfg.Notifications.ConsoleEnabled {
		fanout.Register(notify.NewConsoleSink(os.Stdout))
	}
	if serviceCfg.Notifications.Webhook.Enabled {
		fanout.Register(notify.NewWebhookSink(notify.WebhookConfig{
			URL:     serviceCfg.Notifications.Webhook.URL,
			Retries: serviceCfg.Notifications.Webhook.Retries,
			Timeout: serviceCfg.Notifications.Webhook.Timeout,
			Logger:  logger,
		}))
	}
	if serviceCfg.Notifications.Chat.Enabled {
		fanout.Register(notify.NewChatSink(serviceCfg.Notifications.Chat.Endpoint, serviceCfg.Notifications.SinkTimeout))
	}
	if serviceCfg.Notifications.Email.Enabled {
		fanout.Register(notify.NewEmailSink(
			serviceCfg.Notifications.Email.Endpoint,
			serviceCfg.Notifications.Email.From,
			serviceCfg.Notifications.Email.To,
			serviceCfg.Notifications.SinkTimeout))
	}
	return fanout, nil
}

// walletsFromEnv seeds the registry from WALLETS, a comma separated list of
// name:address pairs. Production deployments replace this with the wallet
// toolkit's own resolver.
func walletsFromEnv() *wallet.StaticRegistry {
	registry := wallet.NewStaticRegistry()
	for _, pair := range strings.Split(os.Getenv("WALLETS"), ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		registry.Add(parts[0], parts[1])
	}
	return registry
}

func setupSentry(serviceCfg cfg.Config) error {
	opts := sentry.ClientOptions{
		Dsn:         serviceCfg.SentryDSN,
		Environment: serviceCfg.ServerMode,
	}
	if err := sentry.Init(opts); err != nil {
		return err
	}
	return nil
}
