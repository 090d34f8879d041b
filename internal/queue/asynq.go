package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/logging"
)

// errRequeue は asynq に再配送させるためのエラーです。
var errRequeue = errors.New("requeued by handler")

// AsynqOptions は AsynqBroker の設定です。
type AsynqOptions struct {
	// Redeliveries は asynq 側の再配送上限（MaxRetry）です。これを超えるとタスクはアーカイブされます。
	// ワーカー側の上限より大きくしておきます。
	Redeliveries int
	// RetryDelay が正の値なら固定間隔で再配送します。0 なら asynq の既定バックオフです。
	RetryDelay time.Duration
	// Retention は完了済みタスクを保持する期間です。保持中は同じジョブの再発行が重複として扱われます。
	Retention time.Duration
	Logger    *slog.Logger
}

// AsynqBroker は asynq（Redis）上でキュー構成を実現します。
// ジョブ ID をタスク ID に使うため、同じキューへの同じジョブの発行は1回に畳まれます。
// 再配送なしで捨てられたタスクは asynq のアーカイブに入り、これをそのキューのデッドレターとして扱います。
type AsynqBroker struct {
	redisOpt  asynq.RedisConnOpt
	client    *asynq.Client
	inspector *asynq.Inspector
	opts      AsynqOptions
	logger    *slog.Logger
}

// NewAsynqBroker は Redis URL から AsynqBroker を作成します。
func NewAsynqBroker(redisURL string, opts AsynqOptions) (*AsynqBroker, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.Redeliveries <= 0 {
		opts.Redeliveries = 25
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqBroker{
		redisOpt:  redisOpt,
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		opts:      opts,
		logger:    logger,
	}, nil
}

// Close はクライアントを閉じます。
func (b *AsynqBroker) Close() error {
	var errs []error
	if err := b.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.inspector.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Publish はメッセージを永続タスクとして発行します。
func (b *AsynqBroker) Publish(ctx context.Context, queue string, msg Message) error {
	if msg.JobID == "" {
		return fmt.Errorf("msg.JobID is required")
	}
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	task := asynq.NewTask(queue, body)
	_, err = b.client.EnqueueContext(ctx, task,
		asynq.Queue(queue),
		asynq.TaskID(msg.JobID),
		asynq.MaxRetry(b.opts.Redeliveries),
		asynq.Retention(b.opts.Retention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		b.logger.Info("message already published",
			"queue", queue, "correlation_id", msg.CorrelationID())
		return nil
	}
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Consume は queue を prefetch 件の並行度で消費します。ctx が終わると停止します。
func (b *AsynqBroker) Consume(ctx context.Context, queue string, prefetch int, handler Handler) error {
	if prefetch <= 0 {
		return fmt.Errorf("prefetch must be positive")
	}
	cfg := asynq.Config{
		Concurrency: prefetch,
		Queues:      map[string]int{queue: 1},
		Logger:      logging.NewAsynqLogger(b.logger),
		// Requeue も失敗として数えさせる。数えないと Retried が進まず MaxRetry の上限も効かない。
	}
	if b.opts.RetryDelay > 0 {
		delay := b.opts.RetryDelay
		cfg.RetryDelayFunc = func(int, error, *asynq.Task) time.Duration { return delay }
	}
	server := asynq.NewServer(b.redisOpt, cfg)

	err := server.Start(asynq.HandlerFunc(func(taskCtx context.Context, task *asynq.Task) error {
		d := Delivery{Queue: queue, Body: task.Payload()}
		if id, ok := asynq.GetTaskID(taskCtx); ok {
			d.TaskID = id
		}
		if n, ok := asynq.GetRetryCount(taskCtx); ok {
			d.Retried = n
		}
		switch handler(taskCtx, d) {
		case Ack:
			return nil
		case Requeue:
			return errRequeue
		default:
			return fmt.Errorf("discarded: %w", asynq.SkipRetry)
		}
	}))
	if err != nil {
		return fmt.Errorf("start consumer on %s: %w", queue, err)
	}
	b.logger.Info("consumer started", "queue", queue, "prefetch", prefetch)

	<-ctx.Done()
	server.Shutdown()
	b.logger.Info("consumer stopped", "queue", queue)
	return nil
}

// ListDeadLetters はアーカイブ済みタスクを新しい順に最大 limit 件返します。
func (b *AsynqBroker) ListDeadLetters(ctx context.Context, queue string, limit int) ([]DeadLetterEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	tasks, err := b.inspector.ListArchivedTasks(queue, asynq.PageSize(limit))
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list dead letters of %s: %w", queue, err)
	}
	out := make([]DeadLetterEntry, 0, len(tasks))
	for _, info := range tasks {
		msg, decodeErr := Decode(info.Payload)
		if decodeErr != nil {
			msg = Message{}
		}
		out = append(out, DeadLetterEntry{
			TaskID:   info.ID,
			Queue:    info.Queue,
			Message:  msg,
			LastErr:  info.LastErr,
			FailedAt: info.LastFailedAt,
			Retried:  info.Retried,
		})
	}
	return out, nil
}

// PurgeDeadLetters はアーカイブ済みタスクをすべて削除し、削除件数を返します。
func (b *AsynqBroker) PurgeDeadLetters(ctx context.Context, queue string) (int, error) {
	n, err := b.inspector.DeleteAllArchivedTasks(queue)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("purge dead letters of %s: %w", queue, err)
	}
	return n, nil
}
