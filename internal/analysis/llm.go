package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/pkg/anthropic"
)

const systemPrompt = `あなたは企業分析の専門家です。以下の企業Webサイトを詳細に分析し、事業内容、強み、ターゲット顧客、課題などを抽出してください。

分析の際は以下の点に注意してください：
- 事業内容は100-200文字で要約
- 強みは最大3つまで抽出
- ターゲット顧客層を明確に特定
- 潜在的な課題（pain points）を推測
- 業界分類を正確に判定`

const outputFormat = `以下の形式でJSON形式で出力してください：

{
  "businessDescription": "事業内容の要約（100-200文字）",
  "industry": "業界名（IT・ソフトウェア、製造業、小売業など）",
  "strengths": ["強み1", "強み2", "強み3"],
  "targetCustomers": "ターゲット顧客層の説明",
  "keyTopics": ["キーワード1", "キーワード2", "キーワード3"],
  "companySize": "企業規模（大企業、中堅企業、中小企業、スタートアップ）",
  "painPoints": ["潜在的な課題1", "潜在的な課題2"]
}

JSON以外のテキストは出力しないでください。`

// rawResponseLimit caps how much of an unparseable response is kept in the
// error.
const rawResponseLimit = 500

var requiredFields = []string{
	"businessDescription", "industry", "strengths", "targetCustomers",
	"keyTopics", "companySize", "painPoints",
}

// Result is one model analysis with its usage.
type Result struct {
	Analysis model.Analysis
	Usage    model.TokenUsage
	Cost     float64
}

// Analyzer extracts a structured analysis from website text.
type Analyzer interface {
	Analyze(ctx context.Context, companyURL, text string) (*Result, error)
}

// LLMAnalyzer analyzes website text with an Anthropic model.
type LLMAnalyzer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	maxChars  int
	pricing   anthropic.Pricing
}

// NewLLMAnalyzer creates an LLMAnalyzer. maxChars bounds the website text
// placed in the prompt.
func NewLLMAnalyzer(client anthropic.Client, model string, maxTokens int64, maxChars int, pricing anthropic.Pricing) *LLMAnalyzer {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &LLMAnalyzer{client: client, model: model, maxTokens: maxTokens, maxChars: maxChars, pricing: pricing}
}

// Analyze prompts the model and parses its JSON reply.
func (a *LLMAnalyzer) Analyze(ctx context.Context, companyURL, text string) (*Result, error) {
	prompt := fmt.Sprintf("企業URL: %s\n\nWebサイトコンテンツ:\n%s\n\n%s", companyURL, truncate(text, a.maxChars), outputFormat)

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(a.model, "company_analysis", a.pricing)

	analysis, err := ParseAnalysis(resp.Text())
	if err != nil {
		return nil, err
	}
	return &Result{
		Analysis: *analysis,
		Usage: model.TokenUsage{
			Input:  int(resp.Usage.InputTokens),
			Output: int(resp.Usage.OutputTokens),
			Total:  int(resp.Usage.Total()),
		},
		Cost: resp.Usage.Cost(a.pricing),
	}, nil
}

// ParseAnalysis decodes a model reply, tolerating a surrounding code fence.
// Every field must be present, and the description and industry non-empty.
func ParseAnalysis(reply string) (*model.Analysis, error) {
	body := stripCodeFence(reply)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, eris.Wrapf(err, "analysis: parse model response: %s", truncate(reply, rawResponseLimit))
	}
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return nil, eris.Errorf("analysis: model response missing %s: %s", f, truncate(reply, rawResponseLimit))
		}
	}

	var out model.Analysis
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, eris.Wrapf(err, "analysis: decode model response: %s", truncate(reply, rawResponseLimit))
	}
	if strings.TrimSpace(out.BusinessDescription) == "" || strings.TrimSpace(out.Industry) == "" {
		return nil, eris.Errorf("analysis: model response has empty description or industry: %s", truncate(reply, rawResponseLimit))
	}
	for _, list := range []*[]string{&out.Strengths, &out.KeyTopics, &out.PainPoints} {
		if *list == nil {
			*list = []string{}
		}
	}
	return &out, nil
}

// stripCodeFence removes a leading ``` or ```json fence and its closing
// fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
