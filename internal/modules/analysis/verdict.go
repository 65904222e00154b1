package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/codeverdict/core/internal/modules/processing/ai"
)

var (
	errNoJSONObject = errors.New("no JSON object in response")
	fencePattern    = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
)

const (
	defaultReasoning    = "No reasoning provided"
	defaultWritingStyle = "Unknown"
)

// rawVerdict keeps every field raw so a wrongly typed field falls back to its
// default instead of failing the whole object.
type rawVerdict struct {
	Score      json.RawMessage `json:"authenticity_score"`
	Reasoning  json.RawMessage `json:"reasoning"`
	Style      json.RawMessage `json:"writing_style"`
	Confidence json.RawMessage `json:"confidence_level"`
}

// ParseVerdict extracts a Verdict from free model text: a fenced block first,
// then the whole text, then the outermost {...} span.
func ParseVerdict(raw string) (*Verdict, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ai.ErrEmptyResponse
	}

	candidates := make([]string, 0, 3)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	for _, c := range candidates {
		if !strings.HasPrefix(c, "{") {
			continue
		}
		var rv rawVerdict
		if err := json.Unmarshal([]byte(c), &rv); err != nil {
			continue
		}
		return rv.verdict(), nil
	}
	return nil, errNoJSONObject
}

func (rv rawVerdict) verdict() *Verdict {
	confidence, _ := parseString(rv.Confidence)
	v := &Verdict{
		AuthenticityScore: parseScore(rv.Score),
		Reasoning:         defaultReasoning,
		WritingStyle:      defaultWritingStyle,
		ConfidenceLevel:   normalizeConfidence(confidence),
	}
	if s, ok := parseString(rv.Reasoning); ok {
		v.Reasoning = s
	}
	if s, ok := parseString(rv.Style); ok {
		v.WritingStyle = s
	}
	return v
}

// parseString returns the trimmed value of a non-empty JSON string.
func parseString(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// parseScore accepts numbers and numeric strings ("85", "85%"); anything else is 0.
func parseScore(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		n, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
	}
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	}
	return n
}

func normalizeConfidence(raw string) string {
	switch strings.ToLower(raw) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Analyzer sends one batch to the text generator.
type Analyzer struct {
	gen ai.Generator
}

func NewAnalyzer(gen ai.Generator) *Analyzer { return &Analyzer{gen: gen} }

// Analyze returns the batch verdict or an analysis error.
func (a *Analyzer) Analyze(ctx context.Context, b Batch) (*Verdict, error) {
	op := fmt.Sprintf("analyze batch %d", b.Index)
	out, err := a.gen.Generate(ctx, systemInstruction, b.Content)
	if err != nil {
		return nil, newError(KindAnalysis, op, err)
	}
	v, err := ParseVerdict(out)
	if err != nil {
		return nil, newError(KindAnalysis, op, err)
	}
	return v, nil
}
