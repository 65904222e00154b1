package analysis

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeverdict/core/internal/models"
)

const maxReasoningFragments = 3

// Aggregate folds verdicts into one record for repoID. Confidence is taken from
// the first verdict.
func Aggregate(repoID string, verdicts []Verdict, batchCount int, now time.Time) models.AnalysisRecord {
	rec := models.AnalysisRecord{
		ID:              uuid.New().String(),
		RepoID:          repoID,
		ConfidenceLevel: ConfidenceLow,
		BatchCount:      batchCount,
		CreatedAt:       now.UTC().Truncate(time.Second),
	}
	if len(verdicts) == 0 {
		return rec
	}

	var sum float64
	for _, v := range verdicts {
		sum += v.AuthenticityScore
	}
	rec.AuthenticityScore = sum / float64(len(verdicts))
	rec.ConfidenceLevel = verdicts[0].ConfidenceLevel
	rec.Reasoning = joinReasoning(verdicts)
	return rec
}

func joinReasoning(verdicts []Verdict) string {
	seen := make(map[string]struct{})
	fragments := make([]string, 0, maxReasoningFragments)
	for _, v := range verdicts {
		for _, part := range strings.Split(v.Reasoning, ".") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			fragments = append(fragments, part)
			if len(fragments) == maxReasoningFragments {
				return strings.Join(fragments, ". ")
			}
		}
	}
	return strings.Join(fragments, ". ")
}
