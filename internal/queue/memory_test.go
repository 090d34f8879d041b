package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/logging"
)

func TestMemoryBrokerDeduplicatesPerQueue(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "jobs.ocr", Message{JobID: "j1", Stage: "ocr"}))
	require.NoError(t, b.Publish(ctx, "jobs.ocr", Message{JobID: "j1", Stage: "ocr"}))
	require.NoError(t, b.Publish(ctx, "jobs.nlp", Message{JobID: "j1", Stage: "nlp"}))

	assert.Equal(t, 1, b.Pending("jobs.ocr"))
	assert.Equal(t, 1, b.Pending("jobs.nlp"))
	assert.Error(t, b.Publish(ctx, "jobs.ocr", Message{}))
}

func TestMemoryBrokerRequeueAndDeadLetter(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "jobs.ingest", Message{JobID: "j1", Stage: "ingest"}))

	var seen []int
	handled := b.Drain(ctx, "jobs.ingest", func(ctx context.Context, d Delivery) Disposition {
		seen = append(seen, d.Retried)
		if d.Retried < 2 {
			return Requeue
		}
		return DeadLetter
	})

	assert.Equal(t, 3, handled)
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Zero(t, b.Pending("jobs.ingest"))

	dl, err := b.ListDeadLetters(ctx, "jobs.ingest", 10)
	require.NoError(t, err)
	require.Len(t, dl, 1)
	assert.Equal(t, "j1", dl[0].Message.JobID)
	assert.Equal(t, "j1", dl[0].TaskID)
	assert.Equal(t, 2, dl[0].Retried)

	n, err := b.PurgeDeadLetters(ctx, "jobs.ingest")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	dl, err = b.ListDeadLetters(ctx, "jobs.ingest", 10)
	require.NoError(t, err)
	assert.Empty(t, dl)
}

func TestMemoryBrokerConsumeRespectsPrefetch(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		require.NoError(t, b.Publish(ctx, "jobs.nlp", Message{JobID: id}))
	}

	var inFlight, peak, done atomic.Int32
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Consume(ctx, "jobs.nlp", 2, func(ctx context.Context, d Delivery) Disposition {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			done.Add(1)
			return Ack
		})
	}()

	require.Eventually(t, func() bool { return done.Load() == 6 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestMemoryBrokerConsumeRejectsZeroPrefetch(t *testing.T) {
	err := NewMemoryBroker().Consume(context.Background(), "jobs.ocr", 0, nil)
	assert.Error(t, err)
}

func TestDecodeKeepsMissingJobID(t *testing.T) {
	msg, err := Decode([]byte(`{"stage":"ocr","payload":{"text":"x"}}`))
	require.NoError(t, err)
	assert.Empty(t, msg.JobID)
	assert.JSONEq(t, `{"text":"x"}`, string(msg.Payload))

	_, err = Decode([]byte(`{`))
	assert.Error(t, err)
}

func TestTopology(t *testing.T) {
	top := DefaultTopology()
	require.NoError(t, top.Validate())

	q, err := top.QueueFor("nlp")
	require.NoError(t, err)
	assert.Equal(t, "jobs.nlp", q)
	_, err = top.QueueFor("archive")
	assert.Error(t, err)

	assert.True(t, top.HasDeadLetter("jobs.ingest"))
	assert.False(t, top.HasDeadLetter("jobs.completed"))
	assert.Equal(t, "jobs.ocr.dlq", DeadLetterName("jobs.ocr"))

	top.NLP = top.OCR
	assert.Error(t, top.Validate())
	top.NLP = " "
	assert.Error(t, top.Validate())
}

func TestWaitForRetriesUntilReady(t *testing.T) {
	calls := 0
	err := WaitFor(context.Background(), "postgres", WaitOptions{Attempts: 5, Wait: time.Millisecond, Logger: logging.Discard()},
		func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitForGivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("connection refused")
	err := WaitFor(context.Background(), "redis", WaitOptions{Attempts: 2, Wait: time.Millisecond, Logger: logging.Discard()},
		func(ctx context.Context) error {
			calls++
			return boom
		})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "redis unreachable after 2 attempts")
}
