// Package config は環境変数から設定を読み込み、API とワーカーで共通に使う設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port               string // APIサーバーのポート番号
	GinMode            string // Ginの実行モード (debug, release, test)
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）
	APIBaseURL         string // CLI がジョブ投入・ポーリングに使う API の URL

	// データベース設定
	DatabaseURL string // PostgreSQL 接続文字列
	DBMaxConns  int    // 接続プールの最大接続数
	DBMinConns  int    // 接続プールの最小接続数

	// キュー設定
	QueueRedisURL      string        // asynq 用 Redis 接続URL
	QueueIngest        string
	QueueOCR           string
	QueueNLP           string
	QueueCompleted     string
	JobMaxRetries      int           // 一時的エラーの再試行上限（ジョブ全体で共有）
	JobMaxRedeliveries int           // 1メッセージの再配送上限（ストア障害時も含む）
	JobRetryDelay      time.Duration // 再配送までの固定待ち時間（0 ならブローカー既定）
	PrefetchIngest     int
	PrefetchOCR        int
	PrefetchNLP        int
	ConnectAttempts    int           // 起動時の依存待ち回数（ワーカー）
	ConnectWait        time.Duration // 起動時の依存待ち間隔（ワーカー）
	APIConnectWait     time.Duration // API の起動時の依存待ち間隔

	// AWS 設定
	MockAWS              bool   // 外部サービスを呼ばずに固定応答を返す
	AWSRegion            string // AWS リージョン
	TextractS3Bucket     string // 非同期 OCR 対象ドキュメントのバケット
	TextractPollInterval time.Duration
	TextractMaxPolls     int

	// ログ設定
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load は環境変数から設定を読み込みます。
// .env.local / .env ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:               getEnv("PORT", "3000"),
		GinMode:            getEnv("GIN_MODE", "debug"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		APIBaseURL:         getEnv("API_BASE_URL", "http://localhost:3000"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getEnvAsInt("DB_MAX_CONNS", 10),
		DBMinConns:  getEnvAsInt("DB_MIN_CONNS", 1),

		QueueRedisURL:      getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		QueueIngest:        getEnv("JOB_QUEUE_INGEST", "jobs.ingest"),
		QueueOCR:           getEnv("JOB_QUEUE_OCR", "jobs.ocr"),
		QueueNLP:           getEnv("JOB_QUEUE_NLP", "jobs.nlp"),
		QueueCompleted:     getEnv("JOB_QUEUE_COMPLETED", "jobs.completed"),
		JobMaxRetries:      getEnvAsInt("JOB_MAX_RETRIES", 3),
		JobMaxRedeliveries: getEnvAsInt("JOB_MAX_REDELIVERIES", 10),
		JobRetryDelay:      getEnvAsDuration("JOB_RETRY_DELAY", 0),
		PrefetchIngest:     getEnvAsInt("WORKER_PREFETCH_INGEST", 5),
		PrefetchOCR:        getEnvAsInt("WORKER_PREFETCH_OCR", 3),
		PrefetchNLP:        getEnvAsInt("WORKER_PREFETCH_NLP", 5),
		ConnectAttempts:    getEnvAsInt("BROKER_CONNECT_RETRIES", 60),
		ConnectWait:        getEnvAsDuration("BROKER_CONNECT_WAIT", 6*time.Second),
		APIConnectWait:     getEnvAsDuration("API_CONNECT_WAIT", 1500*time.Millisecond),

		MockAWS:              getEnvAsBool("MOCK_AWS", false),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		TextractS3Bucket:     getEnv("TEXTRACT_S3_BUCKET", ""),
		TextractPollInterval: getEnvAsDuration("TEXTRACT_POLL_INTERVAL", 4*time.Second),
		TextractMaxPolls:     getEnvAsInt("TEXTRACT_MAX_POLLS", 60),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadEnvFile() {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			return
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(filepath.Join(parent, name)); err == nil {
			return
		}
	}
}

// Validate は設定の妥当性を検証します。
// DATABASE_URL は使う側（API / ワーカー）で RequireDatabase により確認します。
func (c *Config) Validate() error {
	if c.JobMaxRetries < 0 {
		return fmt.Errorf("JOB_MAX_RETRIES must not be negative")
	}
	if c.JobMaxRedeliveries <= c.JobMaxRetries {
		return fmt.Errorf("JOB_MAX_REDELIVERIES must be greater than JOB_MAX_RETRIES")
	}
	for name, v := range map[string]int{
		"WORKER_PREFETCH_INGEST": c.PrefetchIngest,
		"WORKER_PREFETCH_OCR":    c.PrefetchOCR,
		"WORKER_PREFETCH_NLP":    c.PrefetchNLP,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.TextractMaxPolls <= 0 {
		return fmt.Errorf("TEXTRACT_MAX_POLLS must be positive")
	}
	if c.QueueRedisURL == "" {
		return fmt.Errorf("QUEUE_REDIS_URL is required")
	}
	return nil
}

// RequireDatabase は DATABASE_URL が設定されているか確認します。
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// BrokerRedeliveries は asynq に渡す再配送上限（MaxRetry）です。
// ワーカーが先に上限を判断できるよう JOB_MAX_REDELIVERIES より1つ多くします。
func (c *Config) BrokerRedeliveries() int {
	return c.JobMaxRedeliveries + 1
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は true/1/yes を真として扱います。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch valueStr {
	case "":
		return defaultValue
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// getEnvAsDuration は "4s" のような期間、または整数（ミリ秒）を受け付けます。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
