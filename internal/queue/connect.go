package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// WaitOptions は起動時の依存待ちの設定です。定常時の再試行には使いません。
type WaitOptions struct {
	Attempts int
	Wait     time.Duration
	Logger   *slog.Logger
}

// WaitFor は check が成功するまで固定間隔で最大 Attempts 回試します。
// 上限に達した場合は最後のエラーを包んで返し、呼び出し側のプロセスは起動を諦めます。
func WaitFor(ctx context.Context, name string, opts WaitOptions, check func(context.Context) error) error {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = check(ctx)
		if lastErr == nil {
			if i > 1 {
				logger.Info("dependency is ready", "dependency", name, "attempt", i)
			}
			return nil
		}
		if i == attempts {
			break
		}
		logger.Warn("dependency not ready",
			"dependency", name, "attempt", i, "max_attempts", attempts, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Wait):
		}
	}
	return fmt.Errorf("%s unreachable after %d attempts: %w", name, attempts, lastErr)
}

// PingRedis は Redis URL に接続して PING を送る check を返します。
func PingRedis(redisURL string) (func(context.Context) error, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return func(ctx context.Context) error {
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		return rdb.Ping(ctx).Err()
	}, nil
}
