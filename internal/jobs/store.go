package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store はジョブ状態の永続化先です。
type Store interface {
	// Insert は新しいジョブ行を作成します。同じ ID が既にあれば ErrExists を返します。
	Insert(ctx context.Context, job *Job) error
	// Get はジョブを取得します。存在しない場合は ErrNotFound を返します。
	Get(ctx context.Context, id string) (*Job, error)
	// Update は Patch を適用した後の行を返します。updated_at は常に更新されます。
	Update(ctx context.Context, id string, patch Patch) (*Job, error)
	// Stats は status/stage ごとの件数を返します。
	Stats(ctx context.Context) ([]StatusCount, error)
	// Ping は接続確認を行います。
	Ping(ctx context.Context) error
}

// MemoryStore はプロセス内で完結する Store 実装です。テストとローカル実行で使います。
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Insert はジョブを保存します。
func (s *MemoryStore) Insert(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if job.ID == "" {
		return fmt.Errorf("job.ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.Version = 1
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get はジョブを取得します。
func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.Clone(), nil
}

// Update は Patch を適用します。
func (s *MemoryStore) Update(ctx context.Context, id string, patch Patch) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := current.Clone()
	if err := patch.Apply(next, s.now()); err != nil {
		return nil, err
	}
	next.Version++
	s.jobs[id] = next
	return next.Clone(), nil
}

// Stats は status/stage ごとの件数を返します。
func (s *MemoryStore) Stats(ctx context.Context) ([]StatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[state]int)
	for _, job := range s.jobs {
		counts[state{job.Status, job.Stage}]++
	}
	out := make([]StatusCount, 0, len(counts))
	for k, total := range counts {
		out = append(out, StatusCount{Status: k.status, Stage: k.stage, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].Stage < out[j].Stage
	})
	return out, nil
}

// Ping は常に成功します。
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
