package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/ocr"
)

// 抽出テキストの出所
const (
	SourcePayloadText = "payload.text"
	SourceMock        = "mock"
	SourceTextract    = "textract"
)

// OCRStage はドキュメントの本文を解決するステージです。
// インラインテキスト、固定の報告書、モック、外部抽出ジョブの順に確認します。
type OCRStage struct {
	extractor    ocr.Extractor
	mockDefault  bool
	pollInterval time.Duration
	maxPolls     int
	sleep        func(ctx context.Context, d time.Duration) error
}

// OCROptions は OCRStage の設定です。
type OCROptions struct {
	Extractor    ocr.Extractor
	MockDefault  bool
	PollInterval time.Duration
	MaxPolls     int
}

// NewOCRStage は OCRStage を作成します。Extractor はモックモード専用の構成なら nil でも構いません。
func NewOCRStage(opts OCROptions) *OCRStage {
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 60
	}
	if opts.PollInterval < 0 {
		opts.PollInterval = 0
	}
	return &OCRStage{
		extractor:    opts.Extractor,
		mockDefault:  opts.MockDefault,
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
		sleep:        sleepContext,
	}
}

func (s *OCRStage) Stage() jobs.Stage { return jobs.StageOCR }

// Process は本文を result.ocrText と result.ocr に、外部ジョブ ID を meta.textractJobId に保存します。
func (s *OCRStage) Process(ctx context.Context, job *jobs.Job) (*Outcome, error) {
	p := job.Payload
	var (
		lines    []ocr.Line
		text     string
		source   string
		external string
		err      error
	)
	switch {
	case p.HasText():
		text = p.Text
		source = SourcePayloadText
		lines = textLines(p.Text)
	case IsUsabilityDocument(p.S3Key):
		lines = UsabilityLines()
		source = UsabilityMarker
	case useMock(p, s.mockDefault):
		lines = []ocr.Line{{Text: ocr.MockText(p.S3Key), Confidence: 99}}
		source = SourceMock
	case p.HasDocument():
		external, lines, err = s.extract(ctx, p.S3Key)
		if err != nil {
			return nil, err
		}
		source = SourceTextract
	default:
		return nil, Validation("no text or document reference to extract from")
	}
	if text == "" {
		text = ocr.JoinLines(lines)
	}

	var textractJobID any
	if external != "" {
		textractJobID = external
	}
	lineCount := len(lines)
	return &Outcome{
		Result: map[string]any{
			"ocrText": text,
			"ocr": map[string]any{
				"text":          text,
				"lineCount":     lineCount,
				"source":        source,
				"lines":         lines,
				"textractJobId": textractJobID,
			},
		},
		Meta: map[string]any{"textractJobId": textractJobID},
	}, nil
}

// extract は外部抽出ジョブを開始し、固定間隔で最大 maxPolls 回問い合わせます。
// 上限に達しても完了しない場合は再試行しない失敗です。
func (s *OCRStage) extract(ctx context.Context, key string) (string, []ocr.Line, error) {
	if s.extractor == nil {
		return "", nil, newError(CodeInternal, "text extraction is not configured", nil)
	}
	jobID, err := s.extractor.StartDocument(ctx, key)
	if err != nil {
		return "", nil, err
	}
	for attempt := 1; attempt <= s.maxPolls; attempt++ {
		res, err := s.extractor.PollDocument(ctx, jobID)
		if err != nil {
			return "", nil, err
		}
		if res.Status.Done() {
			if res.Status == ocr.JobSucceeded {
				return jobID, res.Lines, nil
			}
			msg := fmt.Sprintf("text extraction job %s ended with status %s", jobID, res.Status)
			if res.StatusMessage != "" {
				msg += ": " + res.StatusMessage
			}
			return "", nil, newError(CodeOCRFailed, msg, nil)
		}
		if attempt < s.maxPolls {
			if err := s.sleep(ctx, s.pollInterval); err != nil {
				return "", nil, err
			}
		}
	}
	return "", nil, newError(CodeOCRTimeout,
		fmt.Sprintf("text extraction job %s did not finish after %d polls", jobID, s.maxPolls), nil)
}

// textLines はインラインテキストを空行を除いた行に分けます。
func textLines(text string) []ocr.Line {
	var lines []ocr.Line
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, ocr.Line{Text: strings.TrimRight(l, "\r"), Confidence: 100})
	}
	return lines
}

func useMock(p jobs.Payload, fallback bool) bool {
	if p.UseMockAws != nil {
		return *p.UseMockAws
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
