package reflection

import (
	"context"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/interceptors"
)

// Candidate is the not-yet-delivered output of the primary generation path.
type Candidate struct {
	Text string `json:"text"`
	// Tool is the assistant tool that produced Text, empty when none did.
	Tool string `json:"producing_tool,omitempty"`
}

// Context is the user snapshot used for one review. It belongs to the
// request that built it and is never cached.
type Context struct {
	HealthNotes  []string `json:"health_notes"`
	Equipment    []string `json:"equipment"`
	FitnessLevel string   `json:"fitness_level,omitempty"`
	Goals        []string `json:"goals"`
}

// ErrorKind names a locally recovered review failure.
type ErrorKind string

const (
	ErrorTimeout          ErrorKind = "timeout"
	ErrorUpstream         ErrorKind = "upstream_error"
	ErrorRateLimited      ErrorKind = "rate_limited"
	ErrorMalformedVerdict ErrorKind = "malformed_verdict"
)

// OutcomeKind is the observability classification of one evaluation.
type OutcomeKind string

const (
	OutcomeSkipped          OutcomeKind = "skipped"
	OutcomeClean            OutcomeKind = "clean"
	OutcomeRevised          OutcomeKind = "revised"
	OutcomeIssuesUnresolved OutcomeKind = "issues-unresolved"
	OutcomeTimeout          OutcomeKind = "timeout"
	OutcomeUpstreamError    OutcomeKind = "upstream-error"
	OutcomeMalformedVerdict OutcomeKind = "malformed-verdict"
)

// outcomeForFailure classifies a failure. A rate-limited review is an
// upstream error; FailureReason keeps the finer kind.
func outcomeForFailure(k ErrorKind) OutcomeKind {
	switch k {
	case ErrorTimeout:
		return OutcomeTimeout
	case ErrorMalformedVerdict:
		return OutcomeMalformedVerdict
	default:
		return OutcomeUpstreamError
	}
}

// Outcome is produced fresh for every call to Gate.Apply. Lengths are in
// characters; response text itself is never copied into the outcome.
type Outcome struct {
	Triggered      bool        `json:"triggered"`
	Ran            bool        `json:"ran"`
	Kind           OutcomeKind `json:"outcome"`
	Verdict        *Verdict    `json:"verdict,omitempty"`
	DurationMs     int64       `json:"duration_ms"`
	FailureReason  ErrorKind   `json:"failure_reason,omitempty"`
	IssueCount     int         `json:"issue_count"`
	TriggerReason  string      `json:"trigger_reason,omitempty"`
	SkipReason     string      `json:"skip_reason,omitempty"`
	OriginalLength int         `json:"original_length,omitempty"`
	RevisedLength  int         `json:"revised_length,omitempty"`
	RequestID      string      `json:"request_id,omitempty"`
}

// Policy is the immutable review policy the gate evaluates against.
// Build it once with NewPolicy and share it freely.
type Policy struct {
	Enabled           bool
	ReviewModel       string
	MinResponseLength int
	Timeout           time.Duration
	Temperature       float64
	MaxTokens         int
	MaxGoalsInContext int
	LogMetrics        bool

	MaxConcurrentReviews int
	AdmissionWait        time.Duration
	MaxHealthNotes       int
	MaxNoteChars         int

	tools    map[string]struct{}
	patterns []string
}

// NewPolicy precomputes the tool set and lower-cased patterns. Blank
// patterns are dropped since they would match every response.
func NewPolicy(rc config.ReflectionConfig, gc config.GateConfig) Policy {
	p := Policy{
		Enabled:              rc.Enabled,
		ReviewModel:          rc.ReviewModel,
		MinResponseLength:    rc.MinResponseLength,
		Timeout:              rc.Timeout(),
		Temperature:          rc.Temperature,
		MaxTokens:            rc.MaxTokens,
		MaxGoalsInContext:    rc.MaxGoalsInContext,
		LogMetrics:           rc.LogMetrics,
		MaxConcurrentReviews: gc.MaxConcurrentReviews,
		AdmissionWait:        gc.AdmissionWait(),
		MaxHealthNotes:       gc.MaxHealthNotes,
		MaxNoteChars:         gc.MaxNoteChars,
		tools:                make(map[string]struct{}, len(rc.TriggerTools)),
		patterns:             make([]string, 0, len(rc.TriggerContentPatterns)),
	}
	for _, t := range rc.TriggerTools {
		if t = strings.TrimSpace(t); t != "" {
			p.tools[t] = struct{}{}
		}
	}
	for _, pat := range rc.TriggerContentPatterns {
		if pat = strings.ToLower(strings.TrimSpace(pat)); pat != "" {
			p.patterns = append(p.patterns, pat)
		}
	}
	return p
}

// WithRequestID attaches a request id that is copied into every Outcome and
// sent to the review service.
func WithRequestID(ctx context.Context, id string) context.Context {
	return interceptors.WithRequestID(ctx, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return interceptors.RequestIDFromContext(ctx)
}
