// Package client はジョブ API の HTTP クライアントと、終了状態までのポーリングを提供します。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
)

// ErrNotFound はジョブが存在しない場合のエラーです。
var ErrNotFound = errors.New("job not found")

// ErrPollTimeout は待ち時間の上限までにジョブが終了しなかった場合のエラーです。
var ErrPollTimeout = errors.New("job did not finish in time")

// APIError は API が返したエラー応答です。
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Created はジョブ作成の応答です。
type Created struct {
	JobID    string      `json:"jobId"`
	Status   jobs.Status `json:"status"`
	Stage    jobs.Stage  `json:"stage"`
	Progress int         `json:"progress"`
}

// Client はジョブ API のクライアントです。
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New は Client を作成します。httpClient が nil なら 10 秒タイムアウトのクライアントを使います。
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    httpClient,
		logger:  logger,
	}, nil
}

// Create はジョブを登録します。
func (c *Client) Create(ctx context.Context, req jobs.CreateRequest) (*Created, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out Created
	if err := c.do(httpReq, http.StatusCreated, &out); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return &out, nil
}

// Get はジョブのスナップショットを取得します。
func (c *Client) Get(ctx context.Context, id string) (*jobs.Snapshot, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		OK  bool           `json:"ok"`
		Job *jobs.Snapshot `json:"job"`
	}
	if err := c.do(httpReq, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if out.Job == nil {
		return nil, fmt.Errorf("get job %s: empty response", id)
	}
	return out.Job, nil
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
		}
		return apiErr
	}
	return json.Unmarshal(data, out)
}
