package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComprehend struct {
	lang types.LanguageCode
	err  error
}

func (f *fakeComprehend) DetectSentiment(ctx context.Context, in *comprehend.DetectSentimentInput, _ ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error) {
	f.lang = in.LanguageCode
	if f.err != nil {
		return nil, f.err
	}
	return &comprehend.DetectSentimentOutput{
		Sentiment: types.SentimentTypePositive,
		SentimentScore: &types.SentimentScore{
			Positive: aws.Float32(0.9),
			Negative: aws.Float32(0.01),
			Neutral:  aws.Float32(0.08),
			Mixed:    aws.Float32(0.01),
		},
	}, nil
}

func (f *fakeComprehend) DetectEntities(ctx context.Context, in *comprehend.DetectEntitiesInput, _ ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error) {
	return &comprehend.DetectEntitiesOutput{Entities: []types.Entity{{
		Type:        types.EntityTypeCommercialItem,
		Text:        aws.String("product"),
		Score:       aws.Float32(0.95),
		BeginOffset: aws.Int32(6),
		EndOffset:   aws.Int32(13),
	}}}, nil
}

func TestAnalyzeWithComprehend(t *testing.T) {
	api := &fakeComprehend{}

	res, err := Analyze(context.Background(), NewComprehendWithAPI(api), "great product", "en")
	require.NoError(t, err)

	assert.Equal(t, types.LanguageCode("en"), api.lang)
	assert.Equal(t, "POSITIVE", res.Sentiment.Sentiment)
	assert.InDelta(t, 0.9, res.Sentiment.SentimentScore.Positive, 0.0001)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, Entity{Type: "COMMERCIAL_ITEM", Text: "product", Score: float64(float32(0.95)), BeginOffset: 6, EndOffset: 13}, res.Entities[0])
	assert.Equal(t, "en", res.LanguageCode)
}

func TestAnalyzePropagatesErrors(t *testing.T) {
	_, err := Analyze(context.Background(), NewComprehendWithAPI(&fakeComprehend{err: errors.New("ThrottlingException")}), "x", "pt")

	assert.ErrorContains(t, err, "ThrottlingException")
}

func TestMockAnalyzerIsNeutral(t *testing.T) {
	res, err := Analyze(context.Background(), MockAnalyzer{}, "anything", "pt")
	require.NoError(t, err)

	assert.Equal(t, "NEUTRAL", res.Sentiment.Sentiment)
	assert.Len(t, res.Entities, 1)
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"":      "pt",
		"pt":    "pt",
		"pt-BR": "pt",
		"EN":    "en",
		"en-US": "en",
		"es":    "en",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLanguage(in), "hint %q", in)
	}
}
