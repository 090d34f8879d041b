package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
)

// PollOptions はポーリング間隔の設定です。
type PollOptions struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
	// Timeout は待ち時間の合計の上限です。
	Timeout time.Duration
	// OnUpdate は取得したスナップショットごとに呼ばれます。
	OnUpdate func(*jobs.Snapshot)
}

// DefaultPollOptions は 500ms から倍々で最大 5 秒、合計 2 分まで待つ設定です。
func DefaultPollOptions() PollOptions {
	return PollOptions{
		Initial: 500 * time.Millisecond,
		Factor:  2,
		Max:     5 * time.Second,
		Timeout: 2 * time.Minute,
	}
}

var errNotFinished = errors.New("job still running")

// Wait はジョブが done か failed になるまで指数バックオフで問い合わせ、最後のスナップショットを返します。
// 上限時間を過ぎた場合は直前のスナップショットと ErrPollTimeout を返します。
func (c *Client) Wait(ctx context.Context, id string, opts PollOptions) (*jobs.Snapshot, error) {
	def := DefaultPollOptions()
	if opts.Initial <= 0 {
		opts.Initial = def.Initial
	}
	if opts.Factor < 1 {
		opts.Factor = def.Factor
	}
	if opts.Max <= 0 {
		opts.Max = def.Max
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.Initial
	b.Multiplier = opts.Factor
	b.MaxInterval = opts.Max
	b.MaxElapsedTime = opts.Timeout
	b.RandomizationFactor = 0
	b.Reset()

	var last *jobs.Snapshot
	poll := func() error {
		snap, err := c.Get(ctx, id)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		last = snap
		if opts.OnUpdate != nil {
			opts.OnUpdate(snap)
		}
		if snap.Status.Terminal() {
			return nil
		}
		return errNotFinished
	}
	notify := func(err error, wait time.Duration) {
		if !errors.Is(err, errNotFinished) {
			c.logger.Warn("poll failed, retrying", "job_id", id, "wait", wait, "error", err)
		}
	}

	err := backoff.RetryNotify(poll, backoff.WithContext(b, ctx), notify)
	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, errNotFinished):
		return last, ErrPollTimeout
	case ctx.Err() != nil:
		return last, ctx.Err()
	default:
		return last, err
	}
}

// isPermanent は問い合わせを続けても結果が変わらないエラーかどうかを返します。
func isPermanent(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusTooManyRequests
}
