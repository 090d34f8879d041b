package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/queue"
)

const redeliveryLimitMessage = "job could not be processed: redelivery limit reached"

// Checkpoint はステージ開始時と完了時の進捗です。
type Checkpoint struct {
	Start int
	End   int
}

// 各ステージの進捗チェックポイント
var checkpoints = map[jobs.Stage]Checkpoint{
	jobs.StageIngest: {Start: 10, End: 10},
	jobs.StageOCR:    {Start: 35, End: 60},
	jobs.StageNLP:    {Start: 75, End: 100},
}

// Outcome はステージの出力です。Result / Meta はトップレベルのキー単位でジョブにマージされます。
type Outcome struct {
	Result map[string]any
	Meta   map[string]any
}

// Processor は1つのステージの処理本体です。
type Processor interface {
	Stage() jobs.Stage
	// Process はジョブストアから読み直したジョブを受け取ります。
	Process(ctx context.Context, job *jobs.Job) (*Outcome, error)
}

// DefaultMaxRedeliveries は1件のメッセージを再配送する回数の既定上限です。
const DefaultMaxRedeliveries = 10

// Options はワーカーの依存です。
type Options struct {
	Store      jobs.Store
	Publisher  queue.Publisher
	Queues     queue.Topology
	MaxRetries int
	// MaxRedeliveries はジョブストア障害などで attempt_count を数えられない場合も含めた再配送の上限です。
	// MaxRetries より大きくなければなりません。0 なら DefaultMaxRedeliveries です。
	MaxRedeliveries int
	Logger          *slog.Logger
}

// Worker は1つの入力キューを消費するステージワーカーです。
//
// ack は成功時のジョブ更新と次キューへの発行の後にだけ行い、
// 失敗時は attempt_count か failed の書き込みが済んでから否定応答します。
type Worker struct {
	stage           jobs.Stage
	processor       Processor
	store           jobs.Store
	publisher       queue.Publisher
	queues          queue.Topology
	input           string
	maxRetries      int
	maxRedeliveries int
	checkpoint      Checkpoint
	logger          *slog.Logger
}

// NewWorker は Worker を作成します。
func NewWorker(p Processor, opts Options) (*Worker, error) {
	if p == nil {
		return nil, errors.New("processor is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Publisher == nil {
		return nil, errors.New("publisher is nil")
	}
	if opts.MaxRetries < 0 {
		return nil, errors.New("max retries must not be negative")
	}
	if opts.MaxRedeliveries == 0 {
		opts.MaxRedeliveries = DefaultMaxRedeliveries
	}
	if opts.MaxRedeliveries <= opts.MaxRetries {
		return nil, fmt.Errorf("max redeliveries (%d) must exceed max retries (%d)", opts.MaxRedeliveries, opts.MaxRetries)
	}
	stage := p.Stage()
	cp, ok := checkpoints[stage]
	if !ok {
		return nil, fmt.Errorf("stage %q has no worker", stage)
	}
	input, err := opts.Queues.QueueFor(string(stage))
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		stage:           stage,
		processor:       p,
		store:           opts.Store,
		publisher:       opts.Publisher,
		queues:          opts.Queues,
		input:           input,
		maxRetries:      opts.MaxRetries,
		maxRedeliveries: opts.MaxRedeliveries,
		checkpoint:      cp,
		logger:          logger.With("stage", string(stage)),
	}, nil
}

// Queue は入力キュー名です。
func (w *Worker) Queue() string {
	return w.input
}

// Run は ctx が終わるまで入力キューを消費します。
func (w *Worker) Run(ctx context.Context, consumer queue.Consumer, prefetch int) error {
	w.logger.Info("worker waiting for messages", "queue", w.input, "prefetch", prefetch)
	return consumer.Consume(ctx, w.input, prefetch, w.Handle)
}

// Handle は1件の配送を処理し、ack / requeue / dead-letter を返します。
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) queue.Disposition {
	msg, err := queue.Decode(d.Body)
	if err != nil || msg.JobID == "" {
		// 相関 ID のないメッセージはどのジョブにも帰属できない。
		w.logger.Error("discarding message without jobId", "queue", d.Queue, "task_id", d.TaskID, "error", err)
		return queue.DeadLetter
	}
	log := w.logger.With("job_id", msg.JobID, "correlation_id", msg.CorrelationID())

	job, err := w.store.Get(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			log.Error("job not found, discarding message")
			return queue.DeadLetter
		}
		log.Warn("failed to load job, requeueing", "error", err)
		return w.requeue(ctx, log, d, msg.JobID)
	}
	if job.Status.Terminal() || w.stage.Before(job.Stage) {
		log.Info("duplicate delivery, job already moved on", "status", job.Status, "job_stage", job.Stage)
		return queue.Ack
	}

	if !w.alreadyProcessed(job) {
		if err := w.process(ctx, job); err != nil {
			return w.fail(ctx, log, d, job, err)
		}
	}

	if err := w.forward(ctx, job, msg); err != nil {
		return w.fail(ctx, log, d, job, err)
	}
	log.Info("stage completed", "retried", d.Retried)
	return queue.Ack
}

// alreadyProcessed は前回の配送でステージ出力を保存済みかどうかを返します。
// その場合は処理をやり直さず、次キューへの発行だけを行います。
func (w *Worker) alreadyProcessed(job *jobs.Job) bool {
	return job.Status == jobs.StatusProcessing &&
		job.Stage == w.stage &&
		w.checkpoint.End > w.checkpoint.Start &&
		job.Progress >= w.checkpoint.End
}

func (w *Worker) process(ctx context.Context, job *jobs.Job) error {
	start := max(job.Progress, w.checkpoint.Start)
	current, err := w.store.Update(ctx, job.ID, jobs.Patch{
		Status:       jobs.StatusPtr(jobs.StatusProcessing),
		Stage:        jobs.StagePtr(w.stage),
		Progress:     jobs.IntPtr(start),
		ErrorMessage: jobs.ClearError(),
	})
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	out, err := w.processor.Process(ctx, current)
	if err != nil {
		return err
	}
	if out == nil {
		out = &Outcome{}
	}

	result, err := toJSONMap(out.Result)
	if err != nil {
		return newError(CodeInternal, "stage output is not serializable", err)
	}
	meta, err := toJSONMap(out.Meta)
	if err != nil {
		return newError(CodeInternal, "stage output is not serializable", err)
	}

	patch := jobs.Patch{
		Progress: jobs.IntPtr(w.checkpoint.End),
		Result:   result,
		Meta:     meta,
	}
	if next, _ := w.stage.Next(); next == jobs.StageCompleted {
		patch.Status = jobs.StatusPtr(jobs.StatusDone)
		patch.Stage = jobs.StagePtr(jobs.StageCompleted)
		patch.ErrorMessage = jobs.ClearError()
	}
	if _, err := w.store.Update(ctx, job.ID, patch); err != nil {
		return fmt.Errorf("save stage output: %w", err)
	}
	return nil
}

func (w *Worker) forward(ctx context.Context, job *jobs.Job, in queue.Message) error {
	next, ok := w.stage.Next()
	if !ok {
		return nil
	}
	target, err := w.queues.QueueFor(string(next))
	if err != nil {
		return err
	}
	out := queue.Message{JobID: job.ID, Type: job.Type, Stage: string(next)}
	if next != jobs.StageCompleted {
		out.Payload = in.Payload
	}
	if err := w.publisher.Publish(ctx, target, out); err != nil {
		// ブローカー側の障害は再配送で回復しうる。
		return Transient(fmt.Errorf("publish to %s: %w", target, err))
	}
	return nil
}

// fail は失敗を分類し、ジョブストアへの書き込みを済ませてから配送の扱いを返します。
func (w *Worker) fail(ctx context.Context, log *slog.Logger, d queue.Delivery, job *jobs.Job, cause error) queue.Disposition {
	class := Classify(cause)
	log = log.With("error", cause, "class", class.String())

	current, err := w.store.Get(ctx, job.ID)
	if err != nil {
		log.Warn("failed to reload job after error, requeueing", "store_error", err)
		return w.requeue(ctx, log, d, job.ID)
	}
	if current.Status.Terminal() {
		log.Info("job already terminal, dropping message")
		return queue.Ack
	}

	if class == Retryable {
		if current.AttemptCount < w.maxRetries {
			if _, err := w.store.Update(ctx, job.ID, jobs.Patch{IncrementAttempt: true}); err != nil {
				log.Warn("failed to record attempt, requeueing", "store_error", err)
				return w.requeue(ctx, log, d, job.ID)
			}
			log.Warn("transient failure, requeueing", "attempt", current.AttemptCount+1, "max_retries", w.maxRetries)
			return w.requeue(ctx, log, d, job.ID)
		}
		log.Error("retries exhausted", "attempts", current.AttemptCount, "max_retries", w.maxRetries)
	}

	patch := jobs.Patch{
		Status:       jobs.StatusPtr(jobs.StatusFailed),
		ErrorMessage: jobs.StringPtr(userMessage(cause)),
	}
	if jobs.CheckTransition(current.Status, current.Stage, jobs.StatusFailed, w.stage) == nil {
		patch.Stage = jobs.StagePtr(w.stage)
	}
	if _, err := w.store.Update(ctx, job.ID, patch); err != nil {
		if errors.Is(err, jobs.ErrTerminal) {
			log.Info("job already terminal, dropping message")
			return queue.Ack
		}
		log.Warn("failed to mark job failed, requeueing", "store_error", err)
		return w.requeue(ctx, log, d, job.ID)
	}
	log.Error("job failed, dead-lettering message")
	return queue.DeadLetter
}

// requeue は再配送を返します。再配送回数が上限に達した配送はデッドレターへ送り、
// ジョブを failed にできれば failed にします。
func (w *Worker) requeue(ctx context.Context, log *slog.Logger, d queue.Delivery, jobID string) queue.Disposition {
	if d.Retried < w.maxRedeliveries {
		return queue.Requeue
	}
	log.Error("redelivery limit reached, dead-lettering message", "retried", d.Retried, "max_redeliveries", w.maxRedeliveries)
	_, err := w.store.Update(ctx, jobID, jobs.Patch{
		Status:       jobs.StatusPtr(jobs.StatusFailed),
		ErrorMessage: jobs.StringPtr(redeliveryLimitMessage),
	})
	if err != nil && !errors.Is(err, jobs.ErrTerminal) {
		log.Warn("failed to mark job failed after redelivery limit", "store_error", err)
	}
	return queue.DeadLetter
}

func toJSONMap(in map[string]any) (map[string]any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
