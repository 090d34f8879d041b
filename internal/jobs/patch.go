package jobs

import (
	"fmt"
	"time"
)

// Patch はジョブの部分更新です。nil のフィールドは変更しません。
type Patch struct {
	Status   *Status
	Stage    *Stage
	Progress *int
	// Meta / Result はトップレベルのキー単位でマージされます。
	// 同じキーの再マージは上書きになるため冪等です。
	Meta   map[string]any
	Result map[string]any
	// ErrorMessage が空文字の場合はエラーをクリアします。
	ErrorMessage     *string
	IncrementAttempt bool
}

// Apply は Patch を job に適用し、updated_at を now に更新します。
// 遷移表に違反する場合や進捗が後退する場合は job を変更せずにエラーを返します。
func (p Patch) Apply(job *Job, now time.Time) error {
	if job == nil {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrTerminal, job.ID, job.Status)
	}

	nextStatus, nextStage := job.Status, job.Stage
	if p.Status != nil {
		nextStatus = *p.Status
	}
	if p.Stage != nil {
		nextStage = *p.Stage
	}
	if p.Status != nil || p.Stage != nil {
		if err := CheckTransition(job.Status, job.Stage, nextStatus, nextStage); err != nil {
			return err
		}
	}

	nextProgress := job.Progress
	if p.Progress != nil {
		nextProgress = *p.Progress
		if nextProgress < 0 || nextProgress > 100 {
			return fmt.Errorf("%w: progress %d out of range", ErrInvalidTransition, nextProgress)
		}
		if nextProgress < job.Progress {
			return fmt.Errorf("%w: progress %d -> %d", ErrInvalidTransition, job.Progress, nextProgress)
		}
	}

	job.Status = nextStatus
	job.Stage = nextStage
	job.Progress = nextProgress
	job.Meta = mergeKeys(job.Meta, p.Meta)
	job.Result = mergeKeys(job.Result, p.Result)
	if p.ErrorMessage != nil {
		if *p.ErrorMessage == "" {
			job.ErrorMessage = nil
		} else {
			msg := *p.ErrorMessage
			job.ErrorMessage = &msg
		}
	}
	if p.IncrementAttempt {
		job.AttemptCount++
	}
	job.UpdatedAt = now
	return nil
}

func mergeKeys(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// 以下は Patch 組み立て用の小さなヘルパーです。

func StatusPtr(s Status) *Status { return &s }
func StagePtr(s Stage) *Stage    { return &s }
func IntPtr(v int) *int          { return &v }
func StringPtr(v string) *string { return &v }

// ClearError はエラーメッセージを消去する値です。
func ClearError() *string { return StringPtr("") }
