package pipeline

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/aws/smithy-go"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
)

// Class はエラーの分類です。
type Class int

const (
	// Fatal は再試行しても結果が変わらない失敗です。
	Fatal Class = iota
	// Retryable はタイムアウト・切断・スロットリングなど再試行で回復しうる失敗です。
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "transient"
	}
	return "fatal"
}

var transientAPICodes = map[string]bool{
	"ThrottlingException":                    true,
	"Throttling":                             true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
	"LimitExceededException":                 true,
	"RequestTimeout":                         true,
	"RequestTimeoutException":                true,
	"TimeoutError":                           true,
	"NetworkingError":                        true,
	"ServiceUnavailable":                     true,
}

var transientSubstrings = []string{"timeout", "throttl", "temporar"}

// Classify はエラーを一時的か致命的かに分類します。該当しないものはすべて致命的です。
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}

	var stageErr *Error
	if errors.As(err, &stageErr) {
		switch stageErr.Code {
		case CodeTransient:
			return Retryable
		case CodeValidation, CodeNotFound, CodeOCRFailed, CodeOCRTimeout:
			return Fatal
		}
	}
	if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, jobs.ErrInvalidTransition) || errors.Is(err, jobs.ErrTerminal) {
		return Fatal
	}
	if errors.Is(err, jobs.ErrConflict) {
		return Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Retryable
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retryable
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && transientAPICodes[apiErr.ErrorCode()] {
		return Retryable
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return Retryable
		}
	}
	return Fatal
}

// userMessage はジョブに保存するエラー文言です。内部の分類情報は含めません。
func userMessage(err error) string {
	var stageErr *Error
	if errors.As(err, &stageErr) && stageErr.Message != "" {
		return stageErr.Message
	}
	return err.Error()
}
