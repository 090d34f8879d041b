// Package main はジョブ API サーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/config"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/logging"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal(slog.Default(), "api server exited", err)
	}
}

// run は API サーバーを起動し、シグナルを受けるまで動かします。
// 戻る前に依存の接続とログファイルを閉じます。
func run() error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer closeLog()
	logger = logger.With("service", "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setupJobs(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize job pipeline: %w", err)
	}
	defer deps.Close()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", jobs.MockHeader}
	// クライアントが作成応答から相関 ID を読めるように公開
	corsConfig.ExposeHeaders = []string{jobs.CorrelationHeader}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, logger.With("mode", cfg.GinMode))
}

// serve は ctx が終わるまでサーバーを動かし、終わったら graceful shutdown します。
// 待ち受けに失敗した場合はそのエラーを返します。
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting api server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// setupRoutes はヘルスチェックとジョブ API を登録します。
func setupRoutes(router *gin.Engine, deps *jobDeps) {
	router.GET("/health", handleHealth(deps.manager))
	jobs.RegisterRoutes(router, deps.manager)
}

// handleHealth はジョブストアに接続できるかを返します。
func handleHealth(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := manager.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ok":      false,
				"service": "aws-intelligence-api",
				"error":   "database unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"service": "aws-intelligence-api",
		})
	}
}

// requestLogger はリクエストごとに1行の構造化ログを出します。
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"correlation_id", c.Writer.Header().Get(jobs.CorrelationHeader),
		)
	}
}
