package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// TextractAPI は使用する Textract 操作の部分集合です。
type TextractAPI interface {
	StartDocumentTextDetection(ctx context.Context, in *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, in *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// Textract は Extractor の AWS 実装です。
type Textract struct {
	api    TextractAPI
	bucket string
}

// NewTextract は既定の認証情報チェーンで Textract クライアントを作ります。
func NewTextract(ctx context.Context, region, bucket string) (*Textract, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewTextractWithAPI(textract.NewFromConfig(cfg), bucket), nil
}

// NewTextractWithAPI は任意の API 実装から Textract を作ります。
func NewTextractWithAPI(api TextractAPI, bucket string) *Textract {
	return &Textract{api: api, bucket: bucket}
}

// StartDocument はバケット上の key を対象に非同期抽出を開始します。
func (t *Textract) StartDocument(ctx context.Context, key string) (string, error) {
	if t.bucket == "" {
		return "", errors.New("TEXTRACT_S3_BUCKET is not configured")
	}
	out, err := t.api.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(t.bucket),
				Name:   aws.String(key),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("start document text detection: %w", err)
	}
	jobID := aws.ToString(out.JobId)
	if jobID == "" {
		return "", errors.New("textract did not return a job id")
	}
	return jobID, nil
}

// PollDocument は抽出ジョブの状態を返します。成功時は NextToken をたどって全ページの行を集めます。
func (t *Textract) PollDocument(ctx context.Context, jobID string) (PollResult, error) {
	out, err := t.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
		JobId: aws.String(jobID),
	})
	if err != nil {
		return PollResult{}, fmt.Errorf("get document text detection: %w", err)
	}
	result := PollResult{
		Status:        JobStatus(out.JobStatus),
		StatusMessage: aws.ToString(out.StatusMessage),
	}
	if result.Status != JobSucceeded {
		return result, nil
	}

	result.Lines = appendLines(nil, out.Blocks)
	for next := out.NextToken; next != nil && *next != ""; {
		page, err := t.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: next,
		})
		if err != nil {
			return PollResult{}, fmt.Errorf("get document text detection page: %w", err)
		}
		result.Lines = appendLines(result.Lines, page.Blocks)
		next = page.NextToken
	}
	return result, nil
}

// ExtractBytes は同期 API で画像または1ページ PDF から行を抽出します。
func (t *Textract) ExtractBytes(ctx context.Context, data []byte) ([]Line, error) {
	out, err := t.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return nil, fmt.Errorf("detect document text: %w", err)
	}
	return appendLines(nil, out.Blocks), nil
}

func appendLines(lines []Line, blocks []types.Block) []Line {
	for _, b := range blocks {
		if b.BlockType != types.BlockTypeLine {
			continue
		}
		lines = append(lines, Line{
			Text:       aws.ToString(b.Text),
			Confidence: float64(aws.ToFloat32(b.Confidence)),
		})
	}
	return lines
}
