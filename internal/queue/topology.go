package queue

import (
	"fmt"
	"strings"
)

// Topology は4つの作業キューの名前です。
// ingest / ocr / nlp にはそれぞれデッドレターがあり、completed には消費者もデッドレターもありません。
type Topology struct {
	Ingest    string
	OCR       string
	NLP       string
	Completed string
}

// DefaultTopology は標準のキュー名を返します。
func DefaultTopology() Topology {
	return Topology{
		Ingest:    "jobs.ingest",
		OCR:       "jobs.ocr",
		NLP:       "jobs.nlp",
		Completed: "jobs.completed",
	}
}

// Validate はキュー名が空でなく重複しないことを確認します。
func (t Topology) Validate() error {
	seen := make(map[string]bool, 4)
	for _, name := range []string{t.Ingest, t.OCR, t.NLP, t.Completed} {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("queue name must not be empty")
		}
		if seen[name] {
			return fmt.Errorf("queue name %q is used twice", name)
		}
		seen[name] = true
	}
	return nil
}

// QueueFor はステージ名に対応する作業キューを返します。
func (t Topology) QueueFor(stage string) (string, error) {
	switch stage {
	case "ingest":
		return t.Ingest, nil
	case "ocr":
		return t.OCR, nil
	case "nlp":
		return t.NLP, nil
	case "completed":
		return t.Completed, nil
	}
	return "", fmt.Errorf("no queue for stage %q", stage)
}

// HasDeadLetter はキューがデッドレターを持つかどうかを返します。
func (t Topology) HasDeadLetter(queue string) bool {
	return queue == t.Ingest || queue == t.OCR || queue == t.NLP
}

// DeadLetterName は表示用のデッドレター名です。
func DeadLetterName(queue string) string {
	return queue + ".dlq"
}
