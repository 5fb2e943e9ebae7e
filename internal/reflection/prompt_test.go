package reflection

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReviewRequestEmbedsContext(t *testing.T) {
	p := testPolicy()
	c := Candidate{Text: "Day 1: 3x10 squats {not a template} {{.Goals}}", Tool: "create_plan"}
	rctx := Context{
		HealthNotes:  []string{"lower back pain", "  "},
		Equipment:    []string{"dumbbells", "bench"},
		FitnessLevel: "beginner",
		Goals:        []string{"lose fat", "run 5k", "deadlift 100kg", "sleep better"},
	}

	system, user, err := BuildReviewRequest(c, rctx, p)
	require.NoError(t, err)

	assert.Contains(t, system, "JSON")
	assert.Contains(t, user, "- lower back pain")
	assert.Contains(t, user, "Equipment: dumbbells, bench")
	assert.Contains(t, user, "Fitness level: beginner")
	assert.Contains(t, user, "- lose fat\n- run 5k\n- deadlift 100kg")
	assert.NotContains(t, user, "sleep better")
	// candidate is embedded verbatim, not evaluated as a template
	assert.Contains(t, user, c.Text)
	assert.Contains(t, user, `"issues_found"`)
	assert.Contains(t, user, `"revised_response"`)

	safety := strings.Index(user, "SAFETY")
	quality := strings.Index(user, "QUALITY")
	personal := strings.Index(user, "PERSONALIZATION")
	assert.True(t, safety < quality && quality < personal)
}

func TestBuildReviewRequestDefaults(t *testing.T) {
	_, user, err := BuildReviewRequest(Candidate{Text: "hello"}, Context{}, testPolicy())
	require.NoError(t, err)
	assert.Contains(t, user, "Health notes: none reported")
	assert.Contains(t, user, "Equipment: not specified")
	assert.Contains(t, user, "Fitness level: not specified")
	assert.Contains(t, user, "Goals: none stated")
}

func TestBuildReviewRequestBoundsHealthNotes(t *testing.T) {
	gc := testGateConfig()
	gc.MaxHealthNotes = 2
	gc.MaxNoteChars = 20
	p := NewPolicy(testReflectionConfig(), gc)

	rctx := Context{HealthNotes: []string{
		"torn meniscus in the left knee two years ago",
		"asthma",
		"third note dropped",
	}}
	_, user, err := BuildReviewRequest(Candidate{Text: "x"}, rctx, p)
	require.NoError(t, err)
	assert.NotContains(t, user, "third note dropped")
	assert.NotContains(t, user, "two years ago")
	assert.Contains(t, user, "- asthma")
	assert.Contains(t, user, "- torn meniscus in...")
}

func TestBuildReviewRequestZeroGoals(t *testing.T) {
	rc := testReflectionConfig()
	rc.MaxGoalsInContext = 0
	p := NewPolicy(rc, testGateConfig())
	_, user, err := BuildReviewRequest(Candidate{Text: "x"}, Context{Goals: []string{"a goal"}}, p)
	require.NoError(t, err)
	assert.NotContains(t, user, "a goal")
}

func TestBuildReviewRequestDeterministic(t *testing.T) {
	c := Candidate{Text: pad("3x10", 600), Tool: "create_plan"}
	rctx := Context{HealthNotes: []string{"knee"}, Goals: []string{"strength"}}
	s1, u1, err := BuildReviewRequest(c, rctx, testPolicy())
	require.NoError(t, err)
	s2, u2, err := BuildReviewRequest(c, rctx, testPolicy())
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Equal(t, u1, u2)
}
