package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordEvaluation(t *testing.T) {
	before := testutil.ToFloat64(ReflectionEvaluations.WithLabelValues("revised"))
	RecordEvaluation("revised", true, 1200, 2)
	RecordEvaluation("revised", true, 800, 1)
	assert.Equal(t, before+2, testutil.ToFloat64(ReflectionEvaluations.WithLabelValues("revised")))
}

func TestRecordTriggerIgnoresEmptySignal(t *testing.T) {
	before := testutil.CollectAndCount(ReflectionTriggers)
	RecordTrigger("")
	assert.Equal(t, before, testutil.CollectAndCount(ReflectionTriggers))

	toolBefore := testutil.ToFloat64(ReflectionTriggers.WithLabelValues("tool"))
	RecordTrigger("tool")
	assert.Equal(t, toolBefore+1, testutil.ToFloat64(ReflectionTriggers.WithLabelValues("tool")))
}

func TestRecordReviewUsage(t *testing.T) {
	in := testutil.ToFloat64(ReviewTokens.WithLabelValues("gpt-4o-mini", "input"))
	out := testutil.ToFloat64(ReviewTokens.WithLabelValues("gpt-4o-mini", "output"))
	RecordReviewUsage("gpt-4o-mini", 300, 40, 0.0001)
	assert.Equal(t, in+300, testutil.ToFloat64(ReviewTokens.WithLabelValues("gpt-4o-mini", "input")))
	assert.Equal(t, out+40, testutil.ToFloat64(ReviewTokens.WithLabelValues("gpt-4o-mini", "output")))
}

func TestRecordReviewCall(t *testing.T) {
	before := testutil.ToFloat64(ReviewRequests.WithLabelValues("openai", "rate_limited"))
	RecordReviewCall("openai", "rate_limited", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(ReviewRequests.WithLabelValues("openai", "rate_limited")))
}
