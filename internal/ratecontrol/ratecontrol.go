package ratecontrol

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type limitEntry struct {
	RPM int `yaml:"rpm"`
	TPM int `yaml:"tpm"`
}

type config struct {
	RateLimits struct {
		DefaultRPM int `yaml:"default_rpm"`
		DefaultTPM int `yaml:"default_tpm"`
		// Review is the budget reserved for review traffic across providers.
		Review            limitEntry            `yaml:"review"`
		ProviderOverrides map[string]limitEntry `yaml:"provider_overrides"`
	} `yaml:"rate_limits"`
}

type RateLimit struct {
	RPM int
	TPM int
}

var (
	mu          sync.RWMutex
	loaded      *config
	initialized bool
)

func candidatePaths() []string {
	return []string{
		os.Getenv("MODELS_CONFIG_PATH"),
		"/app/config/models.yaml",
		"./config/models.yaml",
	}
}

func loadLocked() {
	loaded = &config{}
	paths := candidatePaths()
	if p, ok := findUpConfig(); ok {
		paths = append(paths, p)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var tmp config
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			zap.L().Warn("Failed to parse rate limit config", zap.String("path", p), zap.Error(err))
			continue
		}
		loaded = &tmp
		zap.L().Debug("Loaded rate limit configuration", zap.String("path", p))
		break
	}
	initialized = true
}

func findUpConfig() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "models.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}

func get() *config {
	mu.RLock()
	if initialized {
		defer mu.RUnlock()
		return loaded
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		loadLocked()
	}
	return loaded
}

// Reload forces a re-read of models.yaml. Limiters already built keep their limits.
func Reload() {
	mu.Lock()
	defer mu.Unlock()
	initialized = false
	loadLocked()
}

// LimitForReviews returns the review traffic budget, falling back to the defaults.
func LimitForReviews() RateLimit {
	cfg := get()
	r := cfg.RateLimits.Review
	if r.RPM > 0 || r.TPM > 0 {
		return RateLimit{RPM: r.RPM, TPM: r.TPM}
	}
	return RateLimit{RPM: cfg.RateLimits.DefaultRPM, TPM: cfg.RateLimits.DefaultTPM}
}

func LimitForProvider(provider string) RateLimit {
	key := strings.ToLower(strings.TrimSpace(provider))
	cfg := get()
	if override, ok := cfg.RateLimits.ProviderOverrides[key]; ok {
		return RateLimit{RPM: override.RPM, TPM: override.TPM}
	}
	if limit, ok := builtInProviderLimits[key]; ok {
		return limit
	}
	return RateLimit{}
}

var builtInProviderLimits = map[string]RateLimit{
	"openai":    {RPM: 30, TPM: 60000},
	"anthropic": {RPM: 20, TPM: 40000},
	"google":    {RPM: 40, TPM: 80000},
	"mistral":   {RPM: 50, TPM: 100000},
	"unknown":   {RPM: 45, TPM: 90000},
}

// CombineLimits keeps the tighter positive value of each dimension.
func CombineLimits(a, b RateLimit) RateLimit {
	limit := RateLimit{}
	limit.RPM = minPositive(a.RPM, b.RPM)
	limit.TPM = minPositive(a.TPM, b.TPM)
	if limit.RPM == 0 {
		limit.RPM = max(a.RPM, b.RPM)
	}
	if limit.TPM == 0 {
		limit.TPM = max(a.TPM, b.TPM)
	}
	return limit
}

func minPositive(a, b int) int {
	switch {
	case a <= 0 && b <= 0:
		return 0
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		if a < b {
			return a
		}
		return b
	}
}

// Limiter hands out review call permits per provider without ever waiting.
type Limiter struct {
	limitFor func(provider string) RateLimit

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewLimiter builds a limiter from models.yaml: the review budget combined
// with each provider's own limit.
func NewLimiter() *Limiter {
	return newLimiter(func(provider string) RateLimit {
		return CombineLimits(LimitForReviews(), LimitForProvider(provider))
	})
}

func newLimiter(limitFor func(string) RateLimit) *Limiter {
	return &Limiter{limitFor: limitFor, buckets: make(map[string]*bucket)}
}

func newBucket(limit RateLimit) *bucket {
	b := &bucket{}
	// burst is ten seconds worth of budget
	if limit.RPM > 0 {
		b.requests = rate.NewLimiter(rate.Limit(float64(limit.RPM)/60.0), max(1, limit.RPM/6))
	}
	if limit.TPM > 0 {
		b.tokens = rate.NewLimiter(rate.Limit(float64(limit.TPM)/60.0), max(1, limit.TPM/6))
	}
	return b
}

func (l *Limiter) bucketFor(provider string) *bucket {
	key := strings.ToLower(strings.TrimSpace(provider))
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(l.limitFor(key))
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether a call estimated at estimatedTokens may start now.
// A refused call consumes nothing.
func (l *Limiter) Allow(provider string, estimatedTokens int) bool {
	b := l.bucketFor(provider)
	now := time.Now()

	var req *rate.Reservation
	if b.requests != nil {
		req = b.requests.ReserveN(now, 1)
		if !req.OK() || req.DelayFrom(now) > 0 {
			req.CancelAt(now)
			return false
		}
	}
	if b.tokens != nil && estimatedTokens > 0 {
		if !b.tokens.AllowN(now, min(estimatedTokens, b.tokens.Burst())) {
			if req != nil {
				req.CancelAt(now)
			}
			return false
		}
	}
	return true
}
