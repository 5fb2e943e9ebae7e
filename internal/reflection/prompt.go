package reflection

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/util"
)

const reviewSystemPrompt = `You are a certified strength and conditioning professional reviewing a fitness assistant's response before it is shown to a client.
Judge the response only against the checklist you are given, in the order given.
Respond with a single JSON object and nothing else: no prose, no markdown, no code fences.`

var reviewUserTemplate = template.Must(template.New("review").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`Review the assistant response below for this client.

CLIENT CONTEXT
Health notes:
{{- if .HealthNotes}}{{range .HealthNotes}}
- {{.}}{{end}}{{else}} none reported{{end}}
Equipment: {{if .Equipment}}{{join .Equipment ", "}}{{else}}not specified{{end}}
Fitness level: {{.FitnessLevel}}
Goals:
{{- if .Goals}}{{range .Goals}}
- {{.}}{{end}}{{else}} none stated{{end}}

CHECKLIST (evaluate in this order)
1. SAFETY: exercises, loads, volumes or advice that conflict with the health notes; missing warm-up or progression for the stated fitness level; medical claims or advice that should be referred to a professional.
2. QUALITY: correct exercise technique cues; sensible sets, reps and rest; no muscle group trained on consecutive days without recovery; internally consistent numbers.
3. PERSONALIZATION: uses only the listed equipment; matches the fitness level; serves the stated goals.

ASSISTANT RESPONSE
<<<
{{.Response}}
>>>

OUTPUT
Return exactly one JSON object of this shape:
{"issues_found": true or false, "issues": ["short description", ...], "revised_response": "complete corrected response" or null}
Rules:
- When nothing on the checklist is violated, use {"issues_found": false, "issues": [], "revised_response": null}.
- When you find problems, list each one in "issues". Put a complete replacement response in "revised_response" only if you can fix every issue safely; otherwise set it to null.
`))

type reviewPromptData struct {
	HealthNotes  []string
	Equipment    []string
	FitnessLevel string
	Goals        []string
	Response     string
}

// BuildReviewRequest renders the system and user messages for a review.
// Health notes are bounded by the policy; goals are cut to MaxGoalsInContext
// keeping their order. The candidate text is embedded verbatim.
func BuildReviewRequest(candidate Candidate, rctx Context, policy Policy) (system, user string, err error) {
	level := strings.TrimSpace(rctx.FitnessLevel)
	if level == "" {
		level = "not specified"
	}
	data := reviewPromptData{
		HealthNotes:  util.BoundList(rctx.HealthNotes, policy.MaxHealthNotes, policy.MaxNoteChars),
		Equipment:    util.CleanStrings(rctx.Equipment),
		FitnessLevel: level,
		Goals:        util.HeadN(rctx.Goals, policy.MaxGoalsInContext),
		Response:     candidate.Text,
	}

	var b strings.Builder
	if err := reviewUserTemplate.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("render review prompt: %w", err)
	}
	return reviewSystemPrompt, b.String(), nil
}
