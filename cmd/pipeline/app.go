package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/config"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/logging"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/queue"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/storage"
)

// appContext はコマンド共通の設定とロガー、必要に応じて開いた接続を保持します。
type appContext struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	store    *storage.PostgresStore
	broker   *queue.AsynqBroker
}

func newAppContext(component string) (*appContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, closeLog := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	return &appContext{
		cfg:      cfg,
		logger:   logger.With("service", component),
		closeLog: closeLog,
	}, nil
}

func (a *appContext) Close() {
	if a.broker != nil {
		_ = a.broker.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.closeLog()
}

func (a *appContext) waitOptions() queue.WaitOptions {
	return queue.WaitOptions{Attempts: a.cfg.ConnectAttempts, Wait: a.cfg.ConnectWait, Logger: a.logger}
}

func (a *appContext) topology() queue.Topology {
	return queue.Topology{
		Ingest:    a.cfg.QueueIngest,
		OCR:       a.cfg.QueueOCR,
		NLP:       a.cfg.QueueNLP,
		Completed: a.cfg.QueueCompleted,
	}
}

// openStore はジョブストアに接続し、テーブルを用意します。
func (a *appContext) openStore(ctx context.Context) (*storage.PostgresStore, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, storage.Config{
		DSN:      a.cfg.DatabaseURL,
		MaxConns: int32(a.cfg.DBMaxConns),
		MinConns: int32(a.cfg.DBMinConns),
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	if err := queue.WaitFor(ctx, "postgres", a.waitOptions(), store.Ping); err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// openBroker は Redis を待ってからブローカーを作ります。
func (a *appContext) openBroker(ctx context.Context) (*queue.AsynqBroker, error) {
	ping, err := queue.PingRedis(a.cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}
	if err := queue.WaitFor(ctx, "redis", a.waitOptions(), ping); err != nil {
		return nil, err
	}
	broker, err := queue.NewAsynqBroker(a.cfg.QueueRedisURL, queue.AsynqOptions{
		Redeliveries: a.cfg.BrokerRedeliveries(),
		RetryDelay:   a.cfg.JobRetryDelay,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.broker = broker
	return broker, nil
}

// stageQueue は --stage の値から作業キュー名を求めます。デッドレターを持たない completed は対象外です。
func (a *appContext) stageQueue(value string) (jobs.Stage, string, error) {
	stage, err := jobs.ParseStage(value)
	if err != nil {
		return "", "", err
	}
	top := a.topology()
	q, err := top.QueueFor(string(stage))
	if err != nil {
		return "", "", err
	}
	if !top.HasDeadLetter(q) {
		return "", "", fmt.Errorf("stage %q has no worker or dead-letter queue", stage)
	}
	return stage, q, nil
}
