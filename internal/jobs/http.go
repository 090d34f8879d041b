package jobs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CorrelationHeader はジョブ作成時に相関 ID を返すヘッダーです。
const CorrelationHeader = "X-Correlation-Id"

// MockHeader はリクエスト単位でモックモードを指定するヘッダーです。
const MockHeader = "X-Use-Mock-Aws"

// Service は HTTP ハンドラーが必要とする操作です。
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Job, error)
	Get(ctx context.Context, id string) (*Snapshot, error)
	Stats(ctx context.Context) ([]StatusCount, error)
}

// RegisterRoutes は /jobs 以下のルートを登録します。
func RegisterRoutes(r gin.IRouter, svc Service) {
	r.POST("/jobs", CreateHandler(svc))
	r.GET("/jobs/stats", StatsHandler(svc))
	r.GET("/jobs/:id", StatusHandler(svc))
}

// CreateHandler は POST /jobs のハンドラーを返します。
func CreateHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				c.JSON(http.StatusBadRequest, gin.H{
					"code":    "INVALID_INPUT",
					"message": "リクエストボディは JSON で送信してください。",
				})
				return
			}
		}
		if req.Payload.UseMockAws == nil {
			if v, ok := parseMockHeader(c.GetHeader(MockHeader)); ok {
				req.Payload.UseMockAws = &v
			}
		}

		job, err := svc.Create(c.Request.Context(), req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブの登録に失敗しました。",
			})
			return
		}

		c.Header(CorrelationHeader, job.ID)
		c.JSON(http.StatusCreated, gin.H{
			"jobId":    job.ID,
			"status":   job.Status,
			"stage":    job.Stage,
			"progress": job.Progress,
		})
	}
}

// StatusHandler は GET /jobs/:id のハンドラーを返します。
func StatusHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		snap, err := svc.Get(c.Request.Context(), jobID)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true, "job": snap})
	}
}

// StatsHandler は GET /jobs/stats のハンドラーを返します。
func StatsHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "集計の取得に失敗しました。",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "stats": stats})
	}
}

func parseMockHeader(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return false, false
	case "true", "1", "yes", "mock":
		return true, true
	default:
		return false, true
	}
}
