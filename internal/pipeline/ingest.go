package pipeline

import (
	"context"
	"strings"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
)

var supportedLanguages = map[string]bool{"pt": true, "en": true}

// IngestStage は受付検証だけを行うステージです。内容の変換はしません。
type IngestStage struct{}

func (IngestStage) Stage() jobs.Stage { return jobs.StageIngest }

// Process はインラインテキストかドキュメント参照のどちらかがあること、
// 言語ヒントがあれば対応言語であることを確認します。
func (IngestStage) Process(ctx context.Context, job *jobs.Job) (*Outcome, error) {
	p := job.Payload
	if !p.HasText() && !p.HasDocument() {
		return nil, Validation("invalid payload: provide 's3Key' or 'text'")
	}
	if p.LanguageCode != "" && !supportedLanguages[strings.ToLower(strings.TrimSpace(p.LanguageCode))] {
		return nil, Validation("invalid payload: languageCode must be 'pt' or 'en'")
	}
	return &Outcome{}, nil
}
