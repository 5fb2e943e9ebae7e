package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultConfigPath is used when neither --config nor REFLECTION_CONFIG_PATH is set.
const DefaultConfigPath = "/app/config/reflection.yaml"

// ReflectionConfig is the review gate policy. It is loaded once at startup
// and never mutated afterwards.
type ReflectionConfig struct {
	Enabled                bool     `mapstructure:"enabled"`
	ReviewModel            string   `mapstructure:"review_model" validate:"required_if=Enabled true"`
	TriggerTools           []string `mapstructure:"trigger_tools" validate:"dive,required"`
	TriggerContentPatterns []string `mapstructure:"trigger_content_patterns" validate:"dive,required"`
	MinResponseLength      int      `mapstructure:"min_response_length" validate:"gte=0"`
	TimeoutSeconds         float64  `mapstructure:"timeout_seconds" validate:"gt=0"`
	Temperature            float64  `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens              int      `mapstructure:"max_tokens" validate:"gt=0"`
	MaxGoalsInContext      int      `mapstructure:"max_goals_in_context" validate:"gte=0"`
	LogMetrics             bool     `mapstructure:"log_metrics"`
}

// Timeout returns TimeoutSeconds as a duration.
func (r ReflectionConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds * float64(time.Second))
}

// GateConfig holds the operational limits of the gate host.
type GateConfig struct {
	MaxConcurrentReviews int `mapstructure:"max_concurrent_reviews" validate:"gt=0"`
	AdmissionWaitMs      int `mapstructure:"admission_wait_ms" validate:"gte=0"`
	MaxHealthNotes       int `mapstructure:"max_health_notes" validate:"gt=0"`
	MaxNoteChars         int `mapstructure:"max_note_chars" validate:"gt=0"`
}

// AdmissionWait returns AdmissionWaitMs as a duration.
func (g GateConfig) AdmissionWait() time.Duration {
	return time.Duration(g.AdmissionWaitMs) * time.Millisecond
}

// ReviewerConfig selects and configures the review transport.
type ReviewerConfig struct {
	// Provider is one of auto, llm_service, openai, anthropic, google.
	Provider        string `mapstructure:"provider" validate:"omitempty,oneof=auto llm_service openai anthropic google"`
	LLMServiceURL   string `mapstructure:"llm_service_url" validate:"omitempty,url"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIBaseURL   string `mapstructure:"openai_base_url" validate:"omitempty,url"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
}

// StreamingConfig controls the Redis stream outcome reporter.
type StreamingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	RedisAddr string `mapstructure:"redis_addr" validate:"required_if=Enabled true"`
	Stream    string `mapstructure:"stream" validate:"required_if=Enabled true"`
	MaxLen    int64  `mapstructure:"max_len" validate:"gte=0"`
}

// TracingConfig mirrors tracing.Config.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// ServiceConfig holds listener settings.
type ServiceConfig struct {
	HTTPPort        int           `mapstructure:"http_port" validate:"gt=0,lte=65535"`
	MetricsPort     int           `mapstructure:"metrics_port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	// AuthToken, when set, is required as a bearer token on /v1/reflect.
	AuthToken       string        `mapstructure:"auth_token"`
}

// LoggingConfig selects the zap logger flavor.
type LoggingConfig struct {
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// Config is the full process configuration.
type Config struct {
	Reflection ReflectionConfig `mapstructure:"reflection"`
	Gate       GateConfig       `mapstructure:"gate"`
	Reviewer   ReviewerConfig   `mapstructure:"reviewer"`
	Streaming  StreamingConfig  `mapstructure:"streaming"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Service    ServiceConfig    `mapstructure:"service"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DefaultTriggerTools are the assistant tools whose output is always reviewed.
var DefaultTriggerTools = []string{
	"create_plan",
	"create_workout_plan",
	"modify_plan",
	"generate_program",
	"suggest_exercises",
}

// DefaultTriggerContentPatterns flag responses that prescribe load, volume or
// touch on injuries. Matched case-insensitively as substrings.
var DefaultTriggerContentPatterns = []string{
	"sets",
	"reps",
	"x8",
	"x10",
	"x12",
	"x15",
	"% of 1rm",
	"max effort",
	"injury",
	"pain",
	"rehab",
	"surgery",
	"pregnan",
	"blood pressure",
	"heart rate",
	"supplement",
	"calorie deficit",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reflection.enabled", true)
	v.SetDefault("reflection.review_model", "gpt-4o-mini")
	v.SetDefault("reflection.trigger_tools", DefaultTriggerTools)
	v.SetDefault("reflection.trigger_content_patterns", DefaultTriggerContentPatterns)
	v.SetDefault("reflection.min_response_length", 200)
	v.SetDefault("reflection.timeout_seconds", 8.0)
	v.SetDefault("reflection.temperature", 0.2)
	v.SetDefault("reflection.max_tokens", 1500)
	v.SetDefault("reflection.max_goals_in_context", 3)
	v.SetDefault("reflection.log_metrics", true)

	v.SetDefault("gate.max_concurrent_reviews", 8)
	v.SetDefault("gate.admission_wait_ms", 50)
	v.SetDefault("gate.max_health_notes", 10)
	v.SetDefault("gate.max_note_chars", 300)

	v.SetDefault("reviewer.provider", "auto")
	v.SetDefault("reviewer.llm_service_url", "http://llm-service:8000")
	v.SetDefault("reviewer.openai_api_key", "")
	v.SetDefault("reviewer.openai_base_url", "")
	v.SetDefault("reviewer.anthropic_api_key", "")
	v.SetDefault("reviewer.gemini_api_key", "")

	v.SetDefault("streaming.enabled", false)
	v.SetDefault("streaming.redis_addr", "redis:6379")
	v.SetDefault("streaming.stream", "reflection:outcomes")
	v.SetDefault("streaming.max_len", 10000)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "reflection-gate")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("service.http_port", 8081)
	v.SetDefault("service.metrics_port", 2112)
	v.SetDefault("service.read_timeout", 10*time.Second)
	v.SetDefault("service.write_timeout", 30*time.Second)
	v.SetDefault("service.graceful_timeout", 15*time.Second)
	v.SetDefault("service.auth_token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// Load reads the configuration file at path (or REFLECTION_CONFIG_PATH, or
// DefaultConfigPath), applies environment overrides and validates the result.
// A missing file is not an error; built-in defaults apply. Any validation
// failure is returned and should be treated as fatal by the caller.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("REFLECTION_CONFIG_PATH")
	}
	if path == "" {
		path = DefaultConfigPath
	}

	v := viper.New()
	setDefaults(v)
	// reflection.timeout_seconds -> REFLECTION_TIMEOUT_SECONDS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("reviewer.openai_api_key", "REVIEWER_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("reviewer.anthropic_api_key", "REVIEWER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("reviewer.gemini_api_key", "REVIEWER_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("reviewer.llm_service_url", "REVIEWER_LLM_SERVICE_URL", "LLM_SERVICE_URL")
	_ = v.BindEnv("service.metrics_port", "SERVICE_METRICS_PORT", "METRICS_PORT")
	_ = v.BindEnv("service.http_port", "SERVICE_HTTP_PORT", "HEALTH_PORT")
	_ = v.BindEnv("logging.level", "LOGGING_LEVEL", "LOG_LEVEL")

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

var validate = validator.New()

// Validate reports configuration errors that must stop the process.
func Validate(c Config) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// UsedFile reports whether path exists, for startup logging.
func UsedFile(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
