package pricing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentFirstLookup(t *testing.T) {
	useModelsFile(t, testModelsYAML)
	mu.Lock()
	initialized, loaded, loadedFrom = false, nil, ""
	mu.Unlock()

	const readers = 50
	costs := make(chan float64, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			costs <- CostForSplit("gpt-4o-mini", 1000, 1000)
		}()
	}
	waitOrFail(t, &wg, 2*time.Second)
	close(costs)

	for c := range costs {
		assert.InDelta(t, 0.00015+0.0006, c, 1e-12)
	}
	assert.NotEmpty(t, Source())
}

func TestLookupsDuringReload(t *testing.T) {
	useModelsFile(t, testModelsYAML)

	stop := make(chan struct{})
	var reloads sync.WaitGroup
	reloads.Add(1)
	go func() {
		defer reloads.Done()
		for {
			select {
			case <-stop:
				return
			default:
				Reload()
			}
		}
	}()

	var readers sync.WaitGroup
	for i := 0; i < 20; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for j := 0; j < 50; j++ {
				// every reload reads the same file, so a lookup never sees a partial table
				assert.InDelta(t, 0.004, CostForSplit("claude-3-5-haiku-latest", 1000, 1000), 1e-12)
				assert.Equal(t, "openai", ProviderForModel("gpt-4o-mini"))
				_ = Source()
			}
		}()
	}
	waitOrFail(t, &readers, 5*time.Second)
	close(stop)
	waitOrFail(t, &reloads, time.Second)
}

func TestReloadPicksUpNewFile(t *testing.T) {
	useModelsFile(t, testModelsYAML)
	first := Source()
	require.NotEmpty(t, first)

	useModelsFile(t, "pricing:\n  defaults:\n    combined_per_1k: 0.01\n")
	assert.NotEqual(t, first, Source())
	assert.InDelta(t, 0.01, CostForSplit("gpt-4o-mini", 500, 500), 1e-12)
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup, limit time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(limit):
		t.Fatalf("pricing lookups did not finish within %s", limit)
	}
}
