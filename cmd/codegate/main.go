// main wires configuration, stores, transports and the relay loop, then
// supervises them until a shutdown signal. Business logic lives in the
// internal services packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"codegate/internal/audit"
	"codegate/internal/delivery"
	"codegate/internal/intake"
	"codegate/internal/matcher"
	"codegate/internal/ops"
	"codegate/internal/orders"
	"codegate/internal/pending"
	"codegate/internal/platform/config"
	"codegate/internal/platform/httpserver"
	"codegate/internal/platform/logger"
	"codegate/internal/platform/metrics"
	platformredis "codegate/internal/platform/redis"
	"codegate/internal/quota"
	"codegate/internal/relay"
	"codegate/internal/storage/snapshot"
	"codegate/internal/transport/imapmail"
	"codegate/internal/transport/telegram"
)

const auditCapacity = 512

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	rdb, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var registry pending.Registry
	var quotaStore quota.Store
	if rdb != nil {
		log.Info("using redis-backed state", "url", cfg.RedisURL)
		registry = pending.NewRedis(rdb.Client)
		quotaStore = quota.NewRedis(rdb.Client)
	} else {
		log.Info("using file-backed state", "dir", cfg.DataDir)
		registry, err = pending.NewMemory(snapshot.NewFile(filepath.Join(cfg.DataDir, "pending.json")))
		if err != nil {
			return fmt.Errorf("restore pending state: %w", err)
		}
		quotaStore, err = quota.NewMemory(snapshot.NewFile(filepath.Join(cfg.DataDir, "delivers.json")))
		if err != nil {
			return fmt.Errorf("restore quota state: %w", err)
		}
	}

	set, err := orders.Load(filepath.Join(cfg.DataDir, "orders.json"))
	if err != nil {
		return fmt.Errorf("load order list: %w", err)
	}
	log.Info("order list loaded", "count", set.Len())

	auditStore := audit.NewMemory(auditCapacity)
	auditPub := audit.NewPublisher(auditStore, log)

	bot, err := telegram.New(cfg.BotToken, log)
	if err != nil {
		return err
	}

	tracker := quota.NewTracker(quotaStore, cfg.DailyLimit)
	gate := delivery.NewGate(bot, tracker, auditPub, m, log)
	intakeSvc := intake.New(set, registry, bot, cfg.OwnerID, auditPub, log)
	matcherSvc := matcher.New(registry, gate, bot, cfg.OwnerID, cfg.SinglePendingFallback, auditPub, m, log)
	core := relay.New(intakeSvc, matcherSvc, registry, cfg.PendingTTL, auditPub, m, log)

	poller := imapmail.NewPoller(
		fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		cfg.IMAPUser, cfg.IMAPPass, cfg.MailSender, cfg.PollEvery, log,
	)

	var health ops.HealthChecker
	if rdb != nil {
		health = rdb
	}
	srv := httpserver.New(cfg.OpsAddr, ops.New(registry, auditStore, health, log).Router())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return core.Run(ctx) })
	g.Go(func() error { return bot.Run(ctx, core.HandleChatMessage) })
	g.Go(func() error { return poller.Run(ctx, core.HandleMailBody) })
	g.Go(func() error {
		log.Info("ops server listening", "addr", cfg.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("codegate running")
	return g.Wait()
}
