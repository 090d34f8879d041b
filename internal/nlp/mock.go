package nlp

import "context"

// MockAnalyzer は外部サービスを呼ばずに中立の結果を返します。
type MockAnalyzer struct{}

func (MockAnalyzer) DetectSentiment(ctx context.Context, text, languageCode string) (Sentiment, error) {
	return Sentiment{
		Sentiment:      "NEUTRAL",
		SentimentScore: Scores{Positive: 0.1, Negative: 0.1, Neutral: 0.8, Mixed: 0},
	}, nil
}

func (MockAnalyzer) DetectEntities(ctx context.Context, text, languageCode string) ([]Entity, error) {
	return []Entity{{Type: "OTHER", Text: "MOCK", Score: 0.99}}, nil
}
