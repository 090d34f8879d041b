package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound は指定 ID のジョブが存在しない場合に返されます。
	ErrNotFound = errors.New("job not found")
	// ErrExists は同じ ID のジョブを再挿入しようとした場合に返されます。
	ErrExists = errors.New("job already exists")
	// ErrTerminal は終端状態のジョブを更新しようとした場合に返されます。
	ErrTerminal = errors.New("job is in a terminal state")
	// ErrInvalidTransition は遷移表にない状態変更です。
	ErrInvalidTransition = errors.New("invalid job transition")
	// ErrConflict は楽観ロックの再試行上限に達した場合に返されます。
	ErrConflict = errors.New("job update conflict")
)

// state は status と stage の組です。
type state struct {
	status Status
	stage  Stage
}

func (s state) String() string {
	return fmt.Sprintf("%s(%s)", s.status, s.stage)
}

// CheckTransition は (status, stage) の変更が遷移表に従うか検証します。
//
//	queued(s)      -> queued(s) | processing(s) | failed(s)
//	processing(s)  -> processing(s) | processing(next(s)) | failed(s) | failed(next(s))
//	processing(nlp) -> done(completed)
//	done / failed  -> (なし)
func CheckTransition(fromStatus Status, fromStage Stage, toStatus Status, toStage Stage) error {
	from := state{fromStatus, fromStage}
	to := state{toStatus, toStage}

	if fromStatus.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminal, from, to)
	}
	if !toStatus.Valid() || toStage.Index() < 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	switch toStatus {
	case StatusQueued:
		if fromStatus == StatusQueued && toStage == fromStage {
			return nil
		}
	case StatusProcessing:
		if toStage == StageCompleted {
			break
		}
		if toStage == fromStage {
			return nil
		}
		if next, ok := fromStage.Next(); ok && fromStatus == StatusProcessing && next == toStage {
			return nil
		}
	case StatusDone:
		if fromStatus == StatusProcessing && fromStage == StageNLP && toStage == StageCompleted {
			return nil
		}
	case StatusFailed:
		if toStage == StageCompleted {
			break
		}
		if toStage == fromStage {
			return nil
		}
		if next, ok := fromStage.Next(); ok && fromStatus == StatusProcessing && next == toStage {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
