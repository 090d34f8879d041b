package pipeline

import (
	"context"
	"strings"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/nlp"
)

// NLPStage は抽出済みテキストの感情と固有表現を解析するステージです。
type NLPStage struct {
	analyzer    nlp.Analyzer
	mock        nlp.Analyzer
	mockDefault bool
}

// NewNLPStage は NLPStage を作成します。analyzer はモックモード専用の構成なら nil でも構いません。
func NewNLPStage(analyzer nlp.Analyzer, mockDefault bool) *NLPStage {
	return &NLPStage{analyzer: analyzer, mock: nlp.MockAnalyzer{}, mockDefault: mockDefault}
}

func (s *NLPStage) Stage() jobs.Stage { return jobs.StageNLP }

// Process は解析結果を result.nlp に保存します。テキストが無い場合は再試行しない失敗です。
func (s *NLPStage) Process(ctx context.Context, job *jobs.Job) (*Outcome, error) {
	hint := job.MetaString("languageCode")
	if hint == "" {
		hint = job.Payload.LanguageCode
	}
	lang := nlp.NormalizeLanguage(hint)

	text := ResolveText(job)
	if strings.TrimSpace(text) == "" {
		return nil, Validation("empty text for nlp processing")
	}

	var analysis *nlp.Analysis
	if IsUsabilityText(text) {
		analysis = UsabilityAnalysis(lang)
	} else {
		analyzer := s.analyzer
		if useMock(job.Payload, s.mockDefault) {
			analyzer = s.mock
		}
		if analyzer == nil {
			return nil, newError(CodeInternal, "text analysis is not configured", nil)
		}
		var err error
		analysis, err = nlp.Analyze(ctx, analyzer, text, lang)
		if err != nil {
			return nil, err
		}
	}
	return &Outcome{Result: map[string]any{"nlp": analysis}}, nil
}

// ResolveText は result.ocrText、result.ocr.text、payload.text の順に本文を探します。
func ResolveText(job *jobs.Job) string {
	if v, ok := job.Result["ocrText"].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	if o, ok := job.Result["ocr"].(map[string]any); ok {
		if v, ok := o["text"].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return job.Payload.Text
}
