package nlp

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

// ComprehendAPI は使用する Comprehend 操作の部分集合です。
type ComprehendAPI interface {
	DetectSentiment(ctx context.Context, in *comprehend.DetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error)
	DetectEntities(ctx context.Context, in *comprehend.DetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error)
}

// Comprehend は Analyzer の AWS 実装です。
type Comprehend struct {
	api ComprehendAPI
}

// NewComprehend は既定の認証情報チェーンで Comprehend クライアントを作ります。
func NewComprehend(ctx context.Context, region string) (*Comprehend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewComprehendWithAPI(comprehend.NewFromConfig(cfg)), nil
}

// NewComprehendWithAPI は任意の API 実装から Comprehend を作ります。
func NewComprehendWithAPI(api ComprehendAPI) *Comprehend {
	return &Comprehend{api: api}
}

// DetectSentiment は感情分析を行います。
func (c *Comprehend) DetectSentiment(ctx context.Context, text, languageCode string) (Sentiment, error) {
	out, err := c.api.DetectSentiment(ctx, &comprehend.DetectSentimentInput{
		Text:         aws.String(text),
		LanguageCode: types.LanguageCode(languageCode),
	})
	if err != nil {
		return Sentiment{}, fmt.Errorf("detect sentiment: %w", err)
	}
	s := Sentiment{Sentiment: string(out.Sentiment)}
	if sc := out.SentimentScore; sc != nil {
		s.SentimentScore = Scores{
			Positive: float64(aws.ToFloat32(sc.Positive)),
			Negative: float64(aws.ToFloat32(sc.Negative)),
			Neutral:  float64(aws.ToFloat32(sc.Neutral)),
			Mixed:    float64(aws.ToFloat32(sc.Mixed)),
		}
	}
	return s, nil
}

// DetectEntities は固有表現を抽出します。
func (c *Comprehend) DetectEntities(ctx context.Context, text, languageCode string) ([]Entity, error) {
	out, err := c.api.DetectEntities(ctx, &comprehend.DetectEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: types.LanguageCode(languageCode),
	})
	if err != nil {
		return nil, fmt.Errorf("detect entities: %w", err)
	}
	entities := make([]Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		entities = append(entities, Entity{
			Type:        string(e.Type),
			Text:        aws.ToString(e.Text),
			Score:       float64(aws.ToFloat32(e.Score)),
			BeginOffset: int(aws.ToInt32(e.BeginOffset)),
			EndOffset:   int(aws.ToInt32(e.EndOffset)),
		})
	}
	return entities, nil
}
