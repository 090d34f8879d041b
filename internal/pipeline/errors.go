// Package pipeline はステージワーカー（ingest / ocr / nlp）とその再試行方針を提供します。
package pipeline

import "fmt"

// エラーコード
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeTransient  = "TRANSIENT"
	CodeOCRFailed  = "OCR_FAILED"
	CodeOCRTimeout = "OCR_TIMEOUT"
	CodeInternal   = "INTERNAL_ERROR"
)

// Error はステージ処理のエラーです。Message はジョブの error_message にそのまま保存されます。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation は入力不備による失敗です。再試行しません。
func Validation(message string) error {
	return newError(CodeValidation, message, nil)
}

// Transient は再試行で回復しうる失敗として err を包みます。
func Transient(err error) error {
	return newError(CodeTransient, err.Error(), err)
}
