package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/config"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/queue"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/storage"
)

// API プロセスの依存待ちはワーカーより短くします。
const apiConnectAttempts = 20

type jobDeps struct {
	manager *jobs.Manager
	store   *storage.PostgresStore
	broker  *queue.AsynqBroker
}

func (d *jobDeps) Close() error {
	var errs []error
	if d.broker != nil {
		errs = append(errs, d.broker.Close())
	}
	if d.store != nil {
		d.store.Close()
	}
	return errors.Join(errs...)
}

// apiWaitOptions は API 用の依存待ち設定です。回数は最大 20 回、間隔は API_CONNECT_WAIT です。
func apiWaitOptions(cfg *config.Config, logger *slog.Logger) queue.WaitOptions {
	return queue.WaitOptions{
		Attempts: min(cfg.ConnectAttempts, apiConnectAttempts),
		Wait:     cfg.APIConnectWait,
		Logger:   logger,
	}
}

func setupJobs(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*jobDeps, error) {
	wait := apiWaitOptions(cfg, logger)
	deps := &jobDeps{}

	store, err := storage.Open(ctx, storage.Config{
		DSN:      cfg.DatabaseURL,
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	}, logger)
	if err != nil {
		return nil, err
	}
	deps.store = store
	if err := queue.WaitFor(ctx, "postgres", wait, store.Ping); err != nil {
		deps.Close()
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		deps.Close()
		return nil, err
	}

	ping, err := queue.PingRedis(cfg.QueueRedisURL)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if err := queue.WaitFor(ctx, "redis", wait, ping); err != nil {
		deps.Close()
		return nil, err
	}
	broker, err := queue.NewAsynqBroker(cfg.QueueRedisURL, queue.AsynqOptions{
		Redeliveries: cfg.BrokerRedeliveries(),
		Logger:       logger,
	})
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.broker = broker

	manager, err := jobs.NewManager(store, broker, topologyFrom(cfg), logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.manager = manager
	return deps, nil
}

func topologyFrom(cfg *config.Config) queue.Topology {
	return queue.Topology{
		Ingest:    cfg.QueueIngest,
		OCR:       cfg.QueueOCR,
		NLP:       cfg.QueueNLP,
		Completed: cfg.QueueCompleted,
	}
}
