package ocr

import (
	"context"
	"fmt"
	"sync"
)

// MockText はモックモードでドキュメントに返す本文です。
func MockText(key string) string {
	return fmt.Sprintf("MOCK OCR do arquivo %s", key)
}

// MockExtractor は外部サービスを呼ばずに固定の行を返す Extractor です。
type MockExtractor struct {
	mu   sync.Mutex
	seq  int
	keys map[string]string
}

// NewMockExtractor は MockExtractor を作成します。
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{keys: make(map[string]string)}
}

// StartDocument は疑似ジョブ ID を払い出します。
func (m *MockExtractor) StartDocument(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("mock-%d", m.seq)
	m.keys[id] = key
	return id, nil
}

// PollDocument は即座に成功を返します。
func (m *MockExtractor) PollDocument(ctx context.Context, jobID string) (PollResult, error) {
	m.mu.Lock()
	key, ok := m.keys[jobID]
	m.mu.Unlock()
	if !ok {
		return PollResult{Status: JobFailed, StatusMessage: "unknown job " + jobID}, nil
	}
	return PollResult{
		Status: JobSucceeded,
		Lines:  []Line{{Text: MockText(key), Confidence: 99}},
	}, nil
}

// ExtractBytes はサイズだけを含む1行を返します。
func (m *MockExtractor) ExtractBytes(ctx context.Context, data []byte) ([]Line, error) {
	return []Line{{Text: fmt.Sprintf("MOCK OCR (%d bytes)", len(data)), Confidence: 99}}, nil
}
