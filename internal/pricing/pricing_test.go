package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModelsYAML = `
pricing:
  defaults:
    combined_per_1k: 0.004
  models:
    openai:
      gpt-4o-mini:
        input_per_1k: 0.00015
        output_per_1k: 0.0006
    anthropic:
      claude-3-5-haiku-latest:
        combined_per_1k: 0.002
`

func useModelsFile(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("MODELS_CONFIG_PATH", path)
	Reload()
	t.Cleanup(Reload)
}

func TestCostForSplit(t *testing.T) {
	useModelsFile(t, testModelsYAML)

	assert.InDelta(t, 0.00015+0.0006, CostForSplit("gpt-4o-mini", 1000, 1000), 1e-12)
	assert.InDelta(t, 0.004, CostForSplit("claude-3-5-haiku-latest", 1000, 1000), 1e-12)
	// unknown and missing models use the default combined price
	assert.InDelta(t, 0.004, CostForSplit("mystery-model", 500, 500), 1e-12)
	assert.InDelta(t, 0.004, CostForSplit("", 1000, 0), 1e-12)
	assert.Zero(t, CostForSplit("gpt-4o-mini", -5, -5))
}

func TestPricePerTokenForModel(t *testing.T) {
	useModelsFile(t, testModelsYAML)

	price, ok := PricePerTokenForModel("gpt-4o-mini")
	require.True(t, ok)
	assert.InDelta(t, (0.00015+0.0006)/2/1000, price, 1e-15)

	price, ok = PricePerTokenForModel("claude-3-5-haiku-latest")
	require.True(t, ok)
	assert.InDelta(t, 0.002/1000, price, 1e-15)

	_, ok = PricePerTokenForModel("unknown-model")
	assert.False(t, ok)
	_, ok = PricePerTokenForModel("")
	assert.False(t, ok)
}

func TestProviderForModel(t *testing.T) {
	useModelsFile(t, testModelsYAML)

	assert.Equal(t, "openai", ProviderForModel("gpt-4o-mini"))
	assert.Equal(t, "anthropic", ProviderForModel("claude-3-5-haiku-latest"))
	assert.Empty(t, ProviderForModel("gemini-2.0-flash"))
	assert.Empty(t, ProviderForModel(""))
}

func TestDefaultPerTokenFallback(t *testing.T) {
	useModelsFile(t, "pricing: {}\n")
	assert.InDelta(t, 0.000002, DefaultPerToken(), 1e-15)
}

func TestMalformedFileIgnored(t *testing.T) {
	useModelsFile(t, "pricing: [not, a, map")
	assert.Greater(t, DefaultPerToken(), 0.0)
	assert.NotPanics(t, func() { _ = CostForSplit("gpt-4o-mini", 10, 10) })
}

func TestSource(t *testing.T) {
	useModelsFile(t, testModelsYAML)
	assert.Equal(t, os.Getenv("MODELS_CONFIG_PATH"), Source())
}
