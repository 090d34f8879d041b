// Package queue はステージ間のメッセージ配送（キュー構成・発行・消費・デッドレター）を扱います。
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Message はキューを流れるメッセージ本体です。相関 ID は JobID と同じ値です。
type Message struct {
	JobID   string          `json:"jobId"`
	Type    string          `json:"type"`
	Stage   string          `json:"stage"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CorrelationID はログやデッドレターでジョブを特定するための ID です。
func (m Message) CorrelationID() string {
	return m.JobID
}

// Encode はメッセージを JSON に変換します。
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode は JSON からメッセージを復元します。jobId の有無は検査しません。
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}

// Delivery は消費側に渡される1件の配送です。
// Retried はこれまでに Requeue で再配送された回数で、どのブローカーでも同じ数え方です。
type Delivery struct {
	Queue   string
	Body    []byte
	TaskID  string
	Retried int
}

// Disposition は配送の処理結果です。
type Disposition int

const (
	// Ack は処理完了。メッセージを削除します。
	Ack Disposition = iota
	// Requeue は否定応答（再配送あり）。
	Requeue
	// DeadLetter は否定応答（再配送なし）。メッセージはそのキューのデッドレターへ移ります。
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead-letter"
	}
	return fmt.Sprintf("disposition(%d)", int(d))
}

// Handler は1件の配送を処理し、その扱いを返します。
type Handler func(ctx context.Context, d Delivery) Disposition

// Publisher はキューへメッセージを発行します。
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
}

// Consumer は1つのキューを prefetch 件まで並行して消費します。ctx が終わるまで戻りません。
type Consumer interface {
	Consume(ctx context.Context, queue string, prefetch int, handler Handler) error
}

// DeadLetterEntry はデッドレターに移されたメッセージです。
type DeadLetterEntry struct {
	TaskID   string
	Queue    string
	Message  Message
	LastErr  string
	FailedAt time.Time
	Retried  int
}

// DeadLetters はデッドレターの参照と削除を提供します。
type DeadLetters interface {
	ListDeadLetters(ctx context.Context, queue string, limit int) ([]DeadLetterEntry, error)
	PurgeDeadLetters(ctx context.Context, queue string) (int, error)
}
