// Package ocr は文字抽出サービス（AWS Textract）との境界を定義します。
package ocr

import (
	"context"
	"strings"
)

// Line は抽出された1行と信頼度です。
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// JobStatus は非同期抽出ジョブの状態です。
type JobStatus string

const (
	JobInProgress     JobStatus = "IN_PROGRESS"
	JobSucceeded      JobStatus = "SUCCEEDED"
	JobFailed         JobStatus = "FAILED"
	JobPartialSuccess JobStatus = "PARTIAL_SUCCESS"
)

// Done は抽出ジョブがこれ以上進まない状態かどうかを返します。
func (s JobStatus) Done() bool {
	return s != JobInProgress && s != ""
}

// PollResult は非同期抽出ジョブの問い合わせ結果です。
// Status が JobSucceeded のときだけ Lines が埋まります。
type PollResult struct {
	Status        JobStatus
	StatusMessage string
	Lines         []Line
}

// Extractor は文字抽出サービスです。
type Extractor interface {
	// StartDocument は保存済みドキュメントの抽出ジョブを開始し、ジョブ ID を返します。
	StartDocument(ctx context.Context, key string) (string, error)
	// PollDocument は抽出ジョブの状態を問い合わせます。
	PollDocument(ctx context.Context, jobID string) (PollResult, error)
	// ExtractBytes は小さな入力を同期で抽出します。
	ExtractBytes(ctx context.Context, data []byte) ([]Line, error)
}

// JoinLines は行を順番どおり改行で連結します。
func JoinLines(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}
