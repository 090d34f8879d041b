package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/nlp"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/ocr"
)

// UsabilityMarker はユーザビリティテスト報告書の固定テキストに含まれる目印です。
const UsabilityMarker = "mock:usability-pdf"

var usabilityExactKeys = map[string]bool{
	"teste de usabilidade .pdf":      true,
	"teste-de-usabilidade.pdf":       true,
	"docs/teste de usabilidade .pdf": true,
}

var usabilitySuffixes = []string{
	"/teste de usabilidade .pdf",
	"/teste-de-usabilidade.pdf",
}

var usabilityLines = []string{
	"[mock:usability-pdf] Relatorio de Teste de Usabilidade",
	"Objetivo: avaliar clareza de navegacao e eficiencia das tarefas principais.",
	"Publico-alvo: usuarios iniciantes e intermediarios do sistema.",
	"Cenario 1: localizar funcionalidade de cadastro e concluir o fluxo.",
	"Cenario 2: consultar historico, aplicar filtros e exportar informacoes.",
	"Metrica - taxa de sucesso por tarefa: 86%.",
	"Metrica - tempo medio por tarefa: 2min42s.",
	"Metrica - taxa de erro observada: 14%.",
	"Principais problemas encontrados:",
	"1) Rotulos pouco claros em etapas de confirmacao.",
	"2) Contraste insuficiente em elementos secundarios.",
	"3) Excesso de cliques para concluir a tarefa de exportacao.",
	"Recomendacoes:",
	"a) Padronizar nomenclatura e melhorar feedback de estado.",
	"b) Aumentar contraste e reforcar hierarquia visual.",
	"c) Reduzir passos no fluxo critico e simplificar a navegacao.",
	"Conclusao: experiencia geral positiva, com pontos de melhoria em acessibilidade e fluidez.",
}

// NormalizeDocumentKey はアクセント記号を落とし、区切りと空白を揃えて小文字にします。
func NormalizeDocumentKey(key string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(stripMarks, key)
	if err != nil {
		folded = key
	}
	folded = strings.ReplaceAll(folded, `\`, "/")
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}

// IsUsabilityDocument はドキュメント参照が固定の報告書を指すかどうかを返します。
func IsUsabilityDocument(key string) bool {
	k := NormalizeDocumentKey(key)
	if k == "" {
		return false
	}
	if usabilityExactKeys[k] {
		return true
	}
	for _, s := range usabilitySuffixes {
		if strings.HasSuffix(k, s) {
			return true
		}
	}
	return false
}

// IsUsabilityText は抽出済みテキストが固定の報告書由来かどうかを返します。
func IsUsabilityText(text string) bool {
	return strings.Contains(text, UsabilityMarker)
}

// UsabilityLines は報告書の固定行を返します。
func UsabilityLines() []ocr.Line {
	lines := make([]ocr.Line, 0, len(usabilityLines))
	for _, l := range usabilityLines {
		lines = append(lines, ocr.Line{Text: l, Confidence: 100})
	}
	return lines
}

// UsabilityAnalysis は報告書テキストに対する固定の解析結果です。
func UsabilityAnalysis(languageCode string) *nlp.Analysis {
	other := func(text string, score float64) nlp.Entity {
		return nlp.Entity{Type: "OTHER", Text: text, Score: score}
	}
	return &nlp.Analysis{
		Sentiment: nlp.Sentiment{
			Sentiment:      "NEUTRAL",
			SentimentScore: nlp.Scores{Positive: 0.31, Negative: 0.12, Neutral: 0.54, Mixed: 0.03},
		},
		Entities: []nlp.Entity{
			other("usabilidade", 0.99),
			other("teste", 0.98),
			other("usuario", 0.97),
			other("fluxo", 0.97),
			other("tempo de tarefa", 0.96),
			other("taxa de sucesso", 0.96),
			other("acessibilidade", 0.95),
			other("navegacao", 0.95),
		},
		LanguageCode: languageCode,
	}
}
