// Package nlp は文章解析サービス（AWS Comprehend）との境界を定義します。
package nlp

import (
	"context"
	"strings"
)

// Scores は感情ごとのスコアです。
type Scores struct {
	Positive float64 `json:"Positive"`
	Negative float64 `json:"Negative"`
	Neutral  float64 `json:"Neutral"`
	Mixed    float64 `json:"Mixed"`
}

// Sentiment は感情分析の結果です。
type Sentiment struct {
	Sentiment      string `json:"Sentiment"`
	SentimentScore Scores `json:"SentimentScore"`
}

// Entity は固有表現の抽出結果です。
type Entity struct {
	Type        string  `json:"Type"`
	Text        string  `json:"Text"`
	Score       float64 `json:"Score"`
	BeginOffset int     `json:"BeginOffset"`
	EndOffset   int     `json:"EndOffset"`
}

// Analysis は結果の nlp キーに保存する内容です。
type Analysis struct {
	Sentiment    Sentiment `json:"sentiment"`
	Entities     []Entity  `json:"entities"`
	LanguageCode string    `json:"languageCode"`
}

// Analyzer は文章解析サービスです。
type Analyzer interface {
	DetectSentiment(ctx context.Context, text, languageCode string) (Sentiment, error)
	DetectEntities(ctx context.Context, text, languageCode string) ([]Entity, error)
}

// Analyze は感情と固有表現を順に取得します。
func Analyze(ctx context.Context, a Analyzer, text, languageCode string) (*Analysis, error) {
	sentiment, err := a.DetectSentiment(ctx, text, languageCode)
	if err != nil {
		return nil, err
	}
	entities, err := a.DetectEntities(ctx, text, languageCode)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []Entity{}
	}
	return &Analysis{Sentiment: sentiment, Entities: entities, LanguageCode: languageCode}, nil
}

// NormalizeLanguage は言語ヒントを pt / en のどちらかに揃えます。空なら pt です。
func NormalizeLanguage(hint string) string {
	value := strings.ToLower(strings.TrimSpace(hint))
	switch {
	case value == "":
		return "pt"
	case strings.HasPrefix(value, "pt"):
		return "pt"
	default:
		return "en"
	}
}
