package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/queue"
)

const (
	defaultJobType      = "full"
	defaultLanguageCode = "pt"
)

// Manager はジョブの作成・初回発行・参照を担います。
type Manager struct {
	store     Store
	publisher queue.Publisher
	queues    queue.Topology
	logger    *slog.Logger
	newID     func() string
}

// CreateRequest はジョブ作成リクエストです。
type CreateRequest struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// NewManager は Manager を初期化します。
func NewManager(store Store, publisher queue.Publisher, queues queue.Topology, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher is nil")
	}
	if err := queues.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		publisher: publisher,
		queues:    queues,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
	}, nil
}

// Create はジョブ行を queued/ingest/0 で作成し、ingest キューへ発行します。
// 発行に失敗した場合は行を failed にしてからエラーを返します。
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Job, error) {
	jobType := strings.TrimSpace(req.Type)
	if jobType == "" {
		jobType = defaultJobType
	}
	id := m.newID()

	lang := req.Payload.LanguageCode
	if lang == "" {
		lang = defaultLanguageCode
	}
	var s3Key any
	if req.Payload.S3Key != "" {
		s3Key = req.Payload.S3Key
	}

	job := &Job{
		ID:       id,
		Type:     jobType,
		Status:   StatusQueued,
		Stage:    StageIngest,
		Progress: 0,
		Payload:  req.Payload,
		Meta: map[string]any{
			"languageCode": lang,
			"s3Key":        s3Key,
		},
		Result: map[string]any{},
	}
	if err := m.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, err
	}
	msg := queue.Message{
		JobID:   id,
		Type:    jobType,
		Stage:   string(StageIngest),
		Payload: payload,
	}
	if err := m.publisher.Publish(ctx, m.queues.Ingest, msg); err != nil {
		m.logger.Error("failed to publish ingest message", "correlation_id", id, "error", err)
		if _, markErr := m.store.Update(ctx, id, Patch{
			Status:       StatusPtr(StatusFailed),
			ErrorMessage: StringPtr("failed to publish job to ingest queue"),
		}); markErr != nil {
			err = fmt.Errorf("%w (mark failed: %v)", err, markErr)
		}
		return nil, fmt.Errorf("publish job: %w", err)
	}

	m.logger.Info("job created", "correlation_id", id, "type", jobType)
	return job, nil
}

// Get はジョブのスナップショットを返します。
func (m *Manager) Get(ctx context.Context, id string) (*Snapshot, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := job.Snapshot()
	return &snap, nil
}

// Stats は status/stage ごとの件数を返します。
func (m *Manager) Stats(ctx context.Context) ([]StatusCount, error) {
	return m.store.Stats(ctx)
}

// Ping はジョブストアの接続を確認します。
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
