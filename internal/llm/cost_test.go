package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost_Empty(t *testing.T) {
	_, ok := EstimateCost(0, ProviderGemini)
	assert.False(t, ok)
}

func TestEstimateCost_Gemini(t *testing.T) {
	est, ok := EstimateCost(4, ProviderGemini)
	assert.True(t, ok)
	assert.Equal(t, 4, est.Pages)
	assert.InDelta(t, 0.01, est.USD, 1e-9)
	assert.Equal(t, "US$ 0.0100", est.String())
}

func TestEstimateCost_ScalesLinearly(t *testing.T) {
	for _, p := range []ProviderID{ProviderGemini, ProviderOpenAI, ProviderAnthropic} {
		one, _ := EstimateCost(1, p)
		ten, _ := EstimateCost(10, p)
		assert.Greater(t, one.USD, 0.0, p)
		assert.InDelta(t, one.USD*10, ten.USD, 1e-9, p)
	}
}

func TestEstimateCost_ProvidersDiffer(t *testing.T) {
	g, _ := EstimateCost(1, ProviderGemini)
	o, _ := EstimateCost(1, ProviderOpenAI)
	assert.NotEqual(t, g.USD, o.USD)
}

func TestCalculateCost_UnknownModel(t *testing.T) {
	assert.Zero(t, CalculateCost("nope", 1000, 1000))
	assert.InDelta(t, 0.0125, CalculateCost("gpt-4o", 1000, 1000), 1e-9)
}
