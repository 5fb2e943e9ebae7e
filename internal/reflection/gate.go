package reflection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/pricing"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/reviewer"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/tracing"
)

const (
	reportTimeout = 250 * time.Millisecond
	// maxPendingReports bounds reports in flight; extra outcomes are dropped.
	maxPendingReports = 256
)

// Reporter receives the outcome of every triggered evaluation.
type Reporter interface {
	Report(ctx context.Context, outcome Outcome) error
}

// Gate reviews risky candidate responses and substitutes a revision when the
// reviewer supplies one. It is safe for concurrent use.
type Gate struct {
	policy    Policy
	client    reviewer.Client
	admission *admission
	reporter  Reporter
	logger    *zap.Logger

	reportSlots chan struct{}
	reports     sync.WaitGroup
}

// NewGate creates a gate. reporter may be nil.
func NewGate(policy Policy, client reviewer.Client, reporter Reporter, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		policy:      policy,
		client:      client,
		admission:   newAdmission(policy.MaxConcurrentReviews, policy.AdmissionWait),
		reporter:    reporter,
		logger:      logger,
		reportSlots: make(chan struct{}, maxPendingReports),
	}
}

// Drain waits for outcome reports still in flight.
func (g *Gate) Drain() { g.reports.Wait() }

// Policy returns the policy the gate was built with.
func (g *Gate) Policy() Policy { return g.policy }

// Apply returns the response to deliver and the outcome of the evaluation.
// Review failures never surface as errors: the original text is returned and
// the failure is recorded in Outcome.FailureReason.
func (g *Gate) Apply(ctx context.Context, candidate Candidate, rctx Context) (string, Outcome) {
	reason := TriggerReason(candidate, g.policy)
	if reason == "" {
		out := Outcome{Kind: OutcomeSkipped, RequestID: RequestIDFromContext(ctx)}
		g.record(ctx, out, nil)
		return candidate.Text, out
	}

	out := Outcome{
		Triggered:      true,
		Kind:           OutcomeSkipped,
		TriggerReason:  reason,
		OriginalLength: utf8.RuneCountInString(candidate.Text),
		RequestID:      RequestIDFromContext(ctx),
	}

	release, ok := g.admission.acquire(ctx)
	if !ok {
		out.SkipReason = "capacity"
		if ctx.Err() != nil {
			out.SkipReason = "canceled"
		}
		metrics.AdmissionRejections.Inc()
		g.record(ctx, out, nil)
		return candidate.Text, out
	}
	defer release()

	start := time.Now()
	final := candidate.Text
	verdict, notes, failure := g.safeReview(ctx, candidate, rctx)
	out.Ran = true
	out.DurationMs = time.Since(start).Milliseconds()

	switch {
	case failure != "":
		out.FailureReason = failure
		out.Kind = outcomeForFailure(failure)
	case !verdict.IssuesFound:
		out.Kind = OutcomeClean
	case verdict.RevisedResponse != nil:
		out.Kind = OutcomeRevised
		final = *verdict.RevisedResponse
		out.RevisedLength = utf8.RuneCountInString(final)
	default:
		out.Kind = OutcomeIssuesUnresolved
	}
	if failure == "" {
		out.Verdict = &verdict
		out.IssueCount = len(verdict.Issues)
		if notes.extracted || notes.droppedRevision {
			g.logger.Debug("Review verdict normalized",
				zap.Bool("extracted_from_text", notes.extracted),
				zap.Bool("dropped_revision", notes.droppedRevision),
				zap.String("request_id", out.RequestID),
			)
		}
	}

	g.record(ctx, out, verdict.Issues)
	return final, out
}

// safeReview turns a panic anywhere in the review path into an upstream failure.
func (g *Gate) safeReview(ctx context.Context, candidate Candidate, rctx Context) (v Verdict, notes parseNotes, kind ErrorKind) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Recovered panic in review path", zap.Any("panic", r))
			v, notes, kind = Verdict{}, parseNotes{}, ErrorUpstream
		}
	}()
	return g.review(ctx, candidate, rctx)
}

type reviewResult struct {
	resp reviewer.Response
	err  error
}

// review runs one bounded review call and parses its verdict. It returns as
// soon as the deadline passes even if the client ignores its context.
func (g *Gate) review(ctx context.Context, candidate Candidate, rctx Context) (Verdict, parseNotes, ErrorKind) {
	ctx, span := tracing.StartSpan(ctx, "reflection.review")
	defer span.End()
	span.SetAttributes(
		attribute.String("reflection.model", g.policy.ReviewModel),
		attribute.String("reflection.provider", g.client.Provider()),
	)

	system, user, err := BuildReviewRequest(candidate, rctx, g.policy)
	if err != nil {
		g.logger.Error("Failed to build review prompt", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, parseNotes{}, ErrorUpstream
	}
	req := reviewer.Request{
		System:      system,
		User:        user,
		Model:       g.policy.ReviewModel,
		Temperature: g.policy.Temperature,
		MaxTokens:   g.policy.MaxTokens,
	}

	callCtx, cancel := context.WithTimeout(ctx, g.policy.Timeout)
	defer cancel()

	done := make(chan reviewResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reviewResult{err: fmt.Errorf("review client panic: %v", r)}
			}
		}()
		resp, err := g.client.Review(callCtx, req)
		done <- reviewResult{resp: resp, err: err}
	}()

	var res reviewResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = reviewResult{err: callCtx.Err()}
	}

	if res.err != nil {
		kind := failureKind(callCtx, res.err)
		span.SetStatus(codes.Error, res.err.Error())
		span.SetAttributes(attribute.String("reflection.failure", string(kind)))
		g.logger.Debug("Review call failed", zap.String("failure", string(kind)), zap.Error(res.err))
		return Verdict{}, parseNotes{}, kind
	}

	g.recordUsage(res.resp)

	verdict, notes, err := parseVerdict(res.resp.Text)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		g.logger.Debug("Review verdict rejected",
			zap.Error(err),
			zap.Int("raw_length", utf8.RuneCountInString(res.resp.Text)),
		)
		return Verdict{}, parseNotes{}, ErrorMalformedVerdict
	}
	span.SetAttributes(
		attribute.Bool("reflection.issues_found", verdict.IssuesFound),
		attribute.Int("reflection.issue_count", len(verdict.Issues)),
	)
	return verdict, notes, ""
}

// failureKind maps a client error to the gate's failure taxonomy. An expired
// call deadline is a timeout no matter how the client wrapped it.
func failureKind(callCtx context.Context, err error) ErrorKind {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return ErrorTimeout
	}
	switch reviewer.KindOf(err) {
	case reviewer.KindTimeout:
		return ErrorTimeout
	case reviewer.KindRateLimited:
		return ErrorRateLimited
	default:
		return ErrorUpstream
	}
}

func (g *Gate) recordUsage(resp reviewer.Response) {
	if !g.policy.LogMetrics || resp.InputTokens+resp.OutputTokens == 0 {
		return
	}
	model := resp.Model
	if model == "" {
		model = g.policy.ReviewModel
	}
	cost := pricing.CostForSplit(model, resp.InputTokens, resp.OutputTokens)
	metrics.RecordReviewUsage(model, resp.InputTokens, resp.OutputTokens, cost)
}

// record emits the single per-evaluation log entry, the metrics and, for
// triggered evaluations, the outcome report.
func (g *Gate) record(ctx context.Context, out Outcome, issues []string) {
	if !g.policy.LogMetrics {
		return
	}
	metrics.RecordEvaluation(string(out.Kind), out.Ran, out.DurationMs, out.IssueCount)
	if out.Triggered {
		metrics.RecordTrigger(triggerSignal(out.TriggerReason))
	}

	level := zapcore.InfoLevel
	if out.FailureReason != "" || out.Kind == OutcomeIssuesUnresolved {
		level = zapcore.WarnLevel
	}
	if ce := g.logger.Check(level, "Reflection evaluated"); ce != nil {
		fields := []zap.Field{
			zap.Bool("triggered", out.Triggered),
			zap.Bool("ran", out.Ran),
			zap.Int64("duration_ms", out.DurationMs),
			zap.String("outcome", string(out.Kind)),
			zap.Int("issue_count", out.IssueCount),
		}
		if out.Triggered {
			fields = append(fields,
				zap.String("trigger_reason", out.TriggerReason),
				zap.Int("original_length", out.OriginalLength),
			)
		}
		if out.RevisedLength > 0 {
			fields = append(fields, zap.Int("revised_length", out.RevisedLength))
		}
		if out.FailureReason != "" {
			fields = append(fields, zap.String("failure_reason", string(out.FailureReason)))
		}
		if out.SkipReason != "" {
			fields = append(fields, zap.String("skip_reason", out.SkipReason))
		}
		if len(issues) > 0 && out.Kind != OutcomeClean {
			fields = append(fields, zap.Strings("issues", issues))
		}
		if out.RequestID != "" {
			fields = append(fields, zap.String("request_id", out.RequestID))
		}
		ce.Write(fields...)
	}

	if out.Triggered && g.reporter != nil {
		g.report(ctx, out)
	}
}

// report hands the outcome to the reporter in the background. The response
// is never held back by the sink; when too many reports are pending the
// outcome is dropped.
func (g *Gate) report(ctx context.Context, out Outcome) {
	select {
	case g.reportSlots <- struct{}{}:
	default:
		metrics.OutcomeReports.WithLabelValues("gate", "dropped").Inc()
		g.logger.Warn("Dropped reflection outcome report", zap.String("request_id", out.RequestID))
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	g.reports.Add(1)
	go func() {
		defer g.reports.Done()
		defer func() { <-g.reportSlots }()
		defer cancel()
		if err := g.reporter.Report(rctx, out); err != nil {
			g.logger.Warn("Failed to report reflection outcome",
				zap.Error(err),
				zap.String("request_id", out.RequestID),
			)
		}
	}()
}
