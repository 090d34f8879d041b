package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBroker はプロセス内で完結するブローカーです。
// 発行の重複排除・再配送・デッドレターの扱いは AsynqBroker と揃えています。
type MemoryBroker struct {
	mu        sync.Mutex
	pending   map[string][]Delivery
	dead      map[string][]DeadLetterEntry
	published map[string][]Message
	seen      map[string]map[string]bool
	notify    chan struct{}
}

// NewMemoryBroker は空の MemoryBroker を作成します。
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		pending:   make(map[string][]Delivery),
		dead:      make(map[string][]DeadLetterEntry),
		published: make(map[string][]Message),
		seen:      make(map[string]map[string]bool),
		notify:    make(chan struct{}, 1),
	}
}

// Publish はメッセージをキューの末尾に追加します。同じジョブの2回目以降の発行は無視されます。
func (b *MemoryBroker) Publish(ctx context.Context, queue string, msg Message) error {
	if msg.JobID == "" {
		return fmt.Errorf("msg.JobID is required")
	}
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.seen[queue] == nil {
		b.seen[queue] = make(map[string]bool)
	}
	if b.seen[queue][msg.JobID] {
		b.mu.Unlock()
		return nil
	}
	b.seen[queue][msg.JobID] = true
	b.pending[queue] = append(b.pending[queue], Delivery{Queue: queue, Body: body, TaskID: msg.JobID})
	b.published[queue] = append(b.published[queue], msg)
	b.mu.Unlock()
	b.wake()
	return nil
}

// Published はキューに発行されたメッセージの履歴を返します。
func (b *MemoryBroker) Published(queue string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.published[queue]...)
}

// Pending は未処理の配送数を返します。
func (b *MemoryBroker) Pending(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[queue])
}

// DispatchOne は先頭の1件を handler で処理します。キューが空なら false を返します。
func (b *MemoryBroker) DispatchOne(ctx context.Context, queue string, handler Handler) bool {
	d, ok := b.pop(queue)
	if !ok {
		return false
	}
	b.settle(d, handler(ctx, d))
	return true
}

// Drain はキューが空になるまで逐次処理します。再配送されたものも処理対象です。
func (b *MemoryBroker) Drain(ctx context.Context, queue string, handler Handler) int {
	n := 0
	for ctx.Err() == nil && b.DispatchOne(ctx, queue, handler) {
		n++
	}
	return n
}

// Consume は prefetch 件まで並行に処理します。ctx が終わるまで戻りません。
func (b *MemoryBroker) Consume(ctx context.Context, queue string, prefetch int, handler Handler) error {
	if prefetch <= 0 {
		return fmt.Errorf("prefetch must be positive")
	}
	slots := make(chan struct{}, prefetch)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case slots <- struct{}{}:
		}
		d, ok := b.pop(queue)
		if !ok {
			<-slots
			select {
			case <-ctx.Done():
				return nil
			case <-b.notify:
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			b.settle(d, handler(ctx, d))
		}()
	}
}

// ListDeadLetters はデッドレターに移されたメッセージを返します。
func (b *MemoryBroker) ListDeadLetters(ctx context.Context, queue string, limit int) ([]DeadLetterEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]DeadLetterEntry(nil), b.dead[queue]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PurgeDeadLetters はデッドレターを空にします。
func (b *MemoryBroker) PurgeDeadLetters(ctx context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.dead[queue])
	delete(b.dead, queue)
	return n, nil
}

func (b *MemoryBroker) pop(queue string) (Delivery, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.pending[queue]
	if len(items) == 0 {
		return Delivery{}, false
	}
	d := items[0]
	b.pending[queue] = items[1:]
	return d, true
}

func (b *MemoryBroker) settle(d Delivery, disp Disposition) {
	switch disp {
	case Ack:
		return
	case Requeue:
		d.Retried++
		b.mu.Lock()
		b.pending[d.Queue] = append(b.pending[d.Queue], d)
		b.mu.Unlock()
		b.wake()
	default:
		msg, _ := Decode(d.Body)
		b.mu.Lock()
		b.dead[d.Queue] = append(b.dead[d.Queue], DeadLetterEntry{
			TaskID:   d.TaskID,
			Queue:    d.Queue,
			Message:  msg,
			LastErr:  "discarded",
			FailedAt: time.Now().UTC(),
			Retried:  d.Retried,
		})
		b.mu.Unlock()
	}
}

func (b *MemoryBroker) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
