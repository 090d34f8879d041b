// Package logging はプロセス共通のロガーを構築します。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options はロガーの設定です。
type Options struct {
	Level  string // debug / info / warn / error
	Format string // text / json（標準エラー出力の形式）
	File   string // 指定時は JSON 行をファイルにも書き出します
}

// Setup は標準エラー出力と（指定があれば）ファイルへ書き出すロガーを作り、
// slog のデフォルトにも設定します。戻り値の関数でファイルを閉じます。
func Setup(opts Options) (*slog.Logger, func() error) {
	level := ParseLevel(opts.Level)
	stderrHandler := newHandler(os.Stderr, opts.Format, level)

	if opts.File == "" {
		logger := slog.New(stderrHandler)
		slog.SetDefault(logger)
		return logger, func() error { return nil }
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(stderrHandler)
		logger.Error("failed to open log file, using stderr only", "error", err, "file", opts.File)
		slog.SetDefault(logger)
		return logger, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	logger := slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
	slog.SetDefault(logger)
	return logger, file.Close
}

// NewWithWriters はテスト用に任意の出力先でロガーを作ります。
func NewWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}

// Discard は何も出力しないロガーです。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel はログレベル文字列を解釈します。不明な値は info です。
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// AsynqLogger は asynq.Logger を slog に流します。
type AsynqLogger struct {
	logger *slog.Logger
}

// NewAsynqLogger は AsynqLogger を作成します。
func NewAsynqLogger(logger *slog.Logger) *AsynqLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqLogger{logger: logger.With("component", "asynq")}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *AsynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *AsynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

// Fatal は asynq の契約どおりプロセスを終了します。
func (l *AsynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}

// Fatal はエラーを記録してプロセスを終了します。起動処理でだけ使います。
func Fatal(logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(msg, "error", err)
	os.Exit(1)
}
