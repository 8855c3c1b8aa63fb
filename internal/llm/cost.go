package llm

import (
	"fmt"

	"github.com/nikhilbhutani/pagescribe/pkg/tokenizer"
)

// costPerToken stores per-1K-token pricing for known models.
// Prices in USD per 1K tokens: [input, output].
var costPerToken = map[string][2]float64{
	// OpenAI
	"gpt-4o":       {0.0025, 0.01},
	"gpt-4o-mini":  {0.00015, 0.0006},
	"gpt-4.1":      {0.002, 0.008},
	"gpt-4.1-mini": {0.0004, 0.0016},

	// Anthropic
	"claude-3-haiku-20240307":  {0.00025, 0.00125},
	"claude-sonnet-4-20250514": {0.003, 0.015},
	"claude-opus-4-20250514":   {0.015, 0.075},
}

// geminiPerImage is the flat published rate for one page image sent to
// Gemini, output included.
const geminiPerImage = 0.0025

const outputTokensPerPage = 700

// imageTokensPerPage prices an A4 page rendered at 2x scale.
var imageTokensPerPage = tokenizer.ImageTokens(1190, 1684)

// estimatePromptTokens is the size of the default transcription prompt.
var estimatePromptTokens = tokenizer.CountTokens(
	"Transcribe ALL text visible in this page image exactly as written. Preserve paragraphs, lists, headings and tables (use markdown tables). Do not summarize, translate or comment. Return only the transcribed text.",
)

// Default models used for estimates when the caller does not choose one.
var defaultEstimateModel = map[ProviderID]string{
	ProviderOpenAI:    "gpt-4o",
	ProviderAnthropic: "claude-sonnet-4-20250514",
}

func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	prices, ok := costPerToken[model]
	if !ok {
		return 0
	}
	inputCost := float64(inputTokens) / 1000.0 * prices[0]
	outputCost := float64(outputTokens) / 1000.0 * prices[1]
	return inputCost + outputCost
}

// PerPageRate returns the approximate USD cost of transcribing one page.
func PerPageRate(p ProviderID) float64 {
	if p == ProviderGemini {
		return geminiPerImage
	}
	model, ok := defaultEstimateModel[p]
	if !ok {
		return 0
	}
	return CalculateCost(model, imageTokensPerPage+estimatePromptTokens, outputTokensPerPage)
}

// Estimate is an advisory cost for a page selection.
type Estimate struct {
	Provider ProviderID `json:"provider"`
	Pages    int        `json:"pages"`
	USD      float64    `json:"usd"`
}

func (e Estimate) String() string {
	return fmt.Sprintf("US$ %.4f", e.USD)
}

// EstimateCost prices pageCount pages on provider p. It reports false when
// there is nothing to price.
func EstimateCost(pageCount int, p ProviderID) (Estimate, bool) {
	if pageCount <= 0 {
		return Estimate{}, false
	}
	return Estimate{
		Provider: p,
		Pages:    pageCount,
		USD:      float64(pageCount) * PerPageRate(p),
	}, true
}
