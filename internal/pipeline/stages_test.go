package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/nlp"
)

func TestIngestStageValidatesPayload(t *testing.T) {
	cases := []struct {
		name    string
		payload jobs.Payload
		wantErr bool
	}{
		{"text", jobs.Payload{Text: "ola"}, false},
		{"document", jobs.Payload{S3Key: "a.pdf", LanguageCode: "EN"}, false},
		{"blank text", jobs.Payload{Text: "   "}, true},
		{"nothing", jobs.Payload{}, true},
		{"unsupported language", jobs.Payload{Text: "hola", LanguageCode: "es"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := IngestStage{}.Process(context.Background(), &jobs.Job{Payload: tc.payload})
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			var stageErr *Error
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, CodeValidation, stageErr.Code)
		})
	}
}

func TestOCRStageMockDocument(t *testing.T) {
	stage := NewOCRStage(OCROptions{MockDefault: true})
	out, err := stage.Process(context.Background(), &jobs.Job{Payload: jobs.Payload{S3Key: "docs/nota.png"}})
	require.NoError(t, err)

	assert.Equal(t, "MOCK OCR do arquivo docs/nota.png", out.Result["ocrText"])
	assert.Nil(t, out.Meta["textractJobId"])
}

func TestOCRStageWithoutExtractor(t *testing.T) {
	stage := NewOCRStage(OCROptions{})
	_, err := stage.Process(context.Background(), &jobs.Job{Payload: jobs.Payload{S3Key: "docs/nota.png"}})

	var stageErr *Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, CodeInternal, stageErr.Code)
}

func TestOCRStageInlineTextLines(t *testing.T) {
	stage := NewOCRStage(OCROptions{})
	out, err := stage.Process(context.Background(), &jobs.Job{Payload: jobs.Payload{Text: "um\n\ndois\r\n"}})
	require.NoError(t, err)

	o := out.Result["ocr"].(map[string]any)
	assert.Equal(t, 2, o["lineCount"])
	assert.Equal(t, "um\n\ndois\r\n", out.Result["ocrText"])
}

type failingAnalyzer struct{}

func (failingAnalyzer) DetectSentiment(ctx context.Context, text, languageCode string) (nlp.Sentiment, error) {
	return nlp.Sentiment{}, errors.New("comprehend: request timeout")
}

func (failingAnalyzer) DetectEntities(ctx context.Context, text, languageCode string) ([]nlp.Entity, error) {
	return nil, nil
}

func TestNLPStagePrefersExtractedText(t *testing.T) {
	job := &jobs.Job{
		Payload: jobs.Payload{Text: "payload"},
		Result:  map[string]any{"ocr": map[string]any{"text": "from ocr"}},
	}
	assert.Equal(t, "from ocr", ResolveText(job))

	job.Result["ocrText"] = "top level"
	assert.Equal(t, "top level", ResolveText(job))
}

func TestNLPStageLanguageFromMeta(t *testing.T) {
	stage := NewNLPStage(nil, true)
	out, err := stage.Process(context.Background(), &jobs.Job{
		Payload: jobs.Payload{Text: "great product", LanguageCode: "pt"},
		Meta:    map[string]any{"languageCode": "en-US"},
	})
	require.NoError(t, err)

	analysis := out.Result["nlp"].(*nlp.Analysis)
	assert.Equal(t, "en", analysis.LanguageCode)
	assert.Equal(t, "NEUTRAL", analysis.Sentiment.Sentiment)
}

func TestNLPStageRejectsEmptyText(t *testing.T) {
	stage := NewNLPStage(nil, true)
	_, err := stage.Process(context.Background(), &jobs.Job{Payload: jobs.Payload{S3Key: "a.pdf"}})

	assert.Equal(t, Fatal, Classify(err))
}

func TestNLPStagePropagatesAnalyzerErrors(t *testing.T) {
	stage := NewNLPStage(failingAnalyzer{}, false)
	_, err := stage.Process(context.Background(), &jobs.Job{Payload: jobs.Payload{Text: "texto"}})

	require.Error(t, err)
	assert.Equal(t, Retryable, Classify(err))
}
