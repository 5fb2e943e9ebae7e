package reflection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedVerdict is wrapped by every ParseVerdict failure.
var ErrMalformedVerdict = errors.New("malformed review verdict")

// Verdict is the structured result of one review. RevisedResponse is nil
// whenever IssuesFound is false.
type Verdict struct {
	IssuesFound     bool
	Issues          []string
	RevisedResponse *string
}

type verdictWire struct {
	IssuesFound     *bool    `json:"issues_found"`
	Issues          []string `json:"issues"`
	RevisedResponse *string  `json:"revised_response"`
}

type canonicalVerdict struct {
	IssuesFound     bool     `json:"issues_found"`
	Issues          []string `json:"issues"`
	RevisedResponse *string  `json:"revised_response"`
}

// MarshalJSON emits the wire form the reviewer is asked to produce.
func (v Verdict) MarshalJSON() ([]byte, error) {
	issues := v.Issues
	if issues == nil {
		issues = []string{}
	}
	return json.Marshal(canonicalVerdict{
		IssuesFound:     v.IssuesFound,
		Issues:          issues,
		RevisedResponse: v.RevisedResponse,
	})
}

// parseNotes records how a verdict was recovered, for debug logging.
type parseNotes struct {
	extracted       bool
	droppedRevision bool
}

// ParseVerdict decodes raw review output. The whole text is tried as JSON
// first; failing that, the first JSON object embedded in the text (fenced or
// surrounded by prose) is used.
func ParseVerdict(raw string) (Verdict, error) {
	v, _, err := parseVerdict(raw)
	return v, err
}

func parseVerdict(raw string) (Verdict, parseNotes, error) {
	var notes parseNotes
	text := strings.TrimSpace(raw)
	if text == "" {
		return Verdict{}, notes, fmt.Errorf("%w: empty review output", ErrMalformedVerdict)
	}

	w, err := decodeStrict(text)
	if err != nil {
		var ok bool
		w, ok = extractVerdict(stripFences(text))
		if !ok {
			return Verdict{}, notes, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
		}
		notes.extracted = true
	}

	v := Verdict{
		IssuesFound: *w.IssuesFound,
		Issues:      make([]string, 0, len(w.Issues)),
	}
	for _, issue := range w.Issues {
		if s := strings.TrimSpace(issue); s != "" {
			v.Issues = append(v.Issues, s)
		}
	}
	if w.RevisedResponse != nil && strings.TrimSpace(*w.RevisedResponse) != "" {
		if v.IssuesFound {
			rev := *w.RevisedResponse
			v.RevisedResponse = &rev
		} else {
			notes.droppedRevision = true
		}
	}
	return v, notes, nil
}

// decodeStrict requires text to be exactly one JSON object with a boolean
// issues_found key.
func decodeStrict(text string) (verdictWire, error) {
	var w verdictWire
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&w); err != nil {
		return verdictWire{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return verdictWire{}, errors.New("trailing data after JSON object")
	}
	if w.IssuesFound == nil {
		return verdictWire{}, errors.New("missing issues_found")
	}
	return w, nil
}

// extractVerdict tries each balanced {...} span of text in order and returns
// the first that decodes strictly. A stray unbalanced brace is skipped.
func extractVerdict(text string) (verdictWire, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end >= 0 {
			if w, err := decodeStrict(text[start : end+1]); err == nil {
				return w, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return verdictWire{}, false
}

// matchBrace returns the index of the brace closing the one at open, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripFences removes markdown code fence lines such as ``` and ```json.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var b bytes.Buffer
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
