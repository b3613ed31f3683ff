package contacts

import (
	"math"
	"time"

	"github.com/wolfeidau/plugbook/internal/config"
	"github.com/wolfeidau/plugbook/internal/models"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Score computes the lead score of a contact from its interaction history.
// It is deterministic for a given now.
//
// Each interaction is weighted by 0.5^(age/HalfLife); interactions dated in
// the future weigh 1. The score is the sum of:
//   - Base
//   - RecencyWeight * (1 - e^(-weighted count / Saturation))
//   - DiversityWeight * distinct kinds / known kinds
//   - OutcomeWeight * weighted mean of outcome signals in [-1, 1]
//
// rounded and clamped to [0, 100]. A contact with no interactions scores 0.
func Score(policy config.ScoringPolicy, interactions []*models.ContactInteraction, now time.Time) int {
	if len(interactions) == 0 {
		return MinScore
	}

	var weighted, signal float64
	kinds := make(map[models.InteractionKind]struct{}, len(models.InteractionKinds))
	for _, in := range interactions {
		w := decay(now.Sub(in.OccurredAt), policy.HalfLife)
		weighted += w
		signal += w * in.Outcome.Signal()
		kinds[in.Kind] = struct{}{}
	}

	score := policy.Base
	if policy.Saturation > 0 {
		score += policy.RecencyWeight * (1 - math.Exp(-weighted/policy.Saturation))
	}
	score += policy.DiversityWeight * float64(len(kinds)) / float64(len(models.InteractionKinds))
	if weighted > 0 {
		score += policy.OutcomeWeight * (signal / weighted)
	}

	return clamp(score)
}

// Classify maps a score onto a lead status.
func Classify(policy config.ScoringPolicy, score int) models.ContactStatus {
	if score >= policy.HotLeadThreshold {
		return models.ContactStatusHotLead
	}
	return models.ContactStatusColdLead
}

func decay(age, halfLife time.Duration) float64 {
	if age <= 0 || halfLife <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}

func clamp(score float64) int {
	if math.IsNaN(score) {
		return MinScore
	}
	return int(math.Max(MinScore, math.Min(MaxScore, math.Round(score))))
}
