package discussion

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/argumap/collab.go/pkg/constants"
)

// ValidationSubmission is one validator's quality assessment of an entity.
type ValidationSubmission struct {
	ID          string    `json:"id"`
	TargetID    string    `json:"targetId"`
	ValidatorID string    `json:"validatorId"`
	Score       float64   `json:"score"`      // [0,100]
	Confidence  float64   `json:"confidence"` // [0,1]
	Feedback    string    `json:"feedback,omitempty"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ValidationResult aggregates all submissions for one entity.
type ValidationResult struct {
	TargetID       string  `json:"targetId"`
	OverallScore   float64 `json:"overallScore"`   // confidence-weighted mean
	Consensus      float64 `json:"consensus"`      // dispersion-based agreement, clamped to >= 0
	CommunityScore float64 `json:"communityScore"` // unweighted mean
	Submissions    int     `json:"submissions"`
}

// SubmitValidation records a submission and recomputes the aggregate for
// its target. Aggregation is always recomputed over the full submission
// list rather than updated incrementally, to avoid drift.
func (s *Store) SubmitValidation(sub ValidationSubmission) (ValidationResult, error) {
	if sub.Score < 0 || sub.Score > 100 {
		return ValidationResult{}, constants.ErrScoreOutOfRange
	}
	if sub.Confidence < 0 || sub.Confidence > 1 {
		return ValidationResult{}, constants.ErrConfidenceOutOfRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.clock()
	}

	s.submissions[sub.TargetID] = append(s.submissions[sub.TargetID], sub)
	result := aggregate(sub.TargetID, s.submissions[sub.TargetID])
	s.results[sub.TargetID] = result

	return result, nil
}

// ValidationFor returns the current aggregate for an entity.
func (s *Store) ValidationFor(targetID string) (ValidationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[targetID]
	return r, ok
}

// Submissions returns a copy of all submissions for an entity.
func (s *Store) Submissions(targetID string) []ValidationSubmission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.submissions[targetID]
	out := make([]ValidationSubmission, len(subs))
	copy(out, subs)
	return out
}

// aggregate is a pure function over the full submission list.
//
//	overallScore   = sum(score_i * confidence_i) / sum(confidence_i)
//	consensus      = max(0, 1 - stddev(scores)/50)
//	communityScore = mean(scores)
func aggregate(targetID string, subs []ValidationSubmission) ValidationResult {
	if len(subs) == 0 {
		return ValidationResult{TargetID: targetID}
	}

	var weighted, weight, sum float64
	for _, s := range subs {
		weighted += s.Score * s.Confidence
		weight += s.Confidence
		sum += s.Score
	}

	mean := sum / float64(len(subs))

	var variance float64
	for _, s := range subs {
		d := s.Score - mean
		variance += d * d
	}
	variance /= float64(len(subs))

	overall := mean
	if weight > 0 {
		overall = weighted / weight
	}

	return ValidationResult{
		TargetID:       targetID,
		OverallScore:   overall,
		Consensus:      math.Max(0, 1-math.Sqrt(variance)/50),
		CommunityScore: mean,
		Submissions:    len(subs),
	}
}
