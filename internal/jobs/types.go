package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal は終端状態（done / failed）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Valid は定義済みの状態かどうかを返します。
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Stage はジョブが最後に通過した処理段階を表します。
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageOCR       Stage = "ocr"
	StageNLP       Stage = "nlp"
	StageCompleted Stage = "completed"
)

// pipelineOrder は段階の前後関係です。
var pipelineOrder = []Stage{StageIngest, StageOCR, StageNLP, StageCompleted}

// ParseStage は文字列を Stage に変換します。
func ParseStage(value string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	if stage.Index() < 0 {
		return "", fmt.Errorf("unknown stage %q", value)
	}
	return stage, nil
}

// Index はパイプライン上の位置を返します。未知の段階は -1 です。
func (s Stage) Index() int {
	for i, st := range pipelineOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next は次の段階を返します。completed の次は存在しません。
func (s Stage) Next() (Stage, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(pipelineOrder) {
		return "", false
	}
	return pipelineOrder[idx+1], true
}

// Before は s が other より前の段階かどうかを返します。
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

// Payload は作成時のリクエスト入力です。
type Payload struct {
	Text         string `json:"text,omitempty"`
	S3Key        string `json:"s3Key,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
	UseMockAws   *bool  `json:"useMockAws,omitempty"`
}

// HasText はインラインテキストを持つかどうかを返します。
func (p Payload) HasText() bool {
	return strings.TrimSpace(p.Text) != ""
}

// HasDocument は外部ドキュメント参照を持つかどうかを返します。
func (p Payload) HasDocument() bool {
	return strings.TrimSpace(p.S3Key) != ""
}

// Job はジョブテーブルの1行を表します。
type Job struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Status       Status         `json:"status"`
	Stage        Stage          `json:"stage"`
	Progress     int            `json:"progress"`
	Payload      Payload        `json:"payload"`
	Meta         map[string]any `json:"meta"`
	Result       map[string]any `json:"result"`
	AttemptCount int            `json:"attempt_count"`
	ErrorMessage *string        `json:"error_message"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Version      int64          `json:"-"`
}

// Clone はマップを複製したコピーを返します。
// マップの値は不変として扱うため、トップレベルのみ複製します。
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Meta = cloneMap(j.Meta)
	cp.Result = cloneMap(j.Result)
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		cp.ErrorMessage = &msg
	}
	if j.Payload.UseMockAws != nil {
		v := *j.Payload.UseMockAws
		cp.Payload.UseMockAws = &v
	}
	return &cp
}

// MetaString は meta の文字列値を返します。
func (j *Job) MetaString(key string) string {
	if j == nil || j.Meta == nil {
		return ""
	}
	if v, ok := j.Meta[key].(string); ok {
		return v
	}
	return ""
}

// Snapshot はポーリングクライアントに返す読み取り専用ビューです。
type Snapshot struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Status       Status         `json:"status"`
	Stage        Stage          `json:"stage"`
	Progress     int            `json:"progress"`
	Result       map[string]any `json:"result"`
	ErrorMessage *string        `json:"error_message"`
	AttemptCount int            `json:"attempt_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Snapshot は Job から Snapshot を作ります。
func (j *Job) Snapshot() Snapshot {
	result := j.Result
	if result == nil {
		result = map[string]any{}
	}
	return Snapshot{
		ID:           j.ID,
		Type:         j.Type,
		Status:       j.Status,
		Stage:        j.Stage,
		Progress:     j.Progress,
		Result:       result,
		ErrorMessage: j.ErrorMessage,
		AttemptCount: j.AttemptCount,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// StatusCount は status/stage ごとの件数です。
type StatusCount struct {
	Status Status `json:"status"`
	Stage  Stage  `json:"stage"`
	Total  int    `json:"total"`
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
