package scoring

import (
	"math"
	"time"

	"github.com/quietloop/backlogpilot/internal/domain"
)

// Business value bonuses by label, stacked on a 1.0 baseline.
var valueBonus = map[string]float64{
	"critical":         3.0,
	"urgent":           3.0,
	"high-priority":    2.0,
	"technical-debt":   1.5,
	"good-first-issue": 1.0,
}

var feasibility = map[domain.Risk]float64{
	domain.RiskLow:    1.0,
	domain.RiskMedium: 0.7,
	domain.RiskHigh:   0.3,
}

// Priority converts business value, complexity, feasibility, and age into
// a single ranking score. Higher means more valuable to run now. Age is
// measured against the caller's clock reading so that tasks scored in the
// same fetch see the same instant and equal tasks tie exactly.
func Priority(task *domain.Task, score domain.ScoreResult, now time.Time) float64 {
	effort := 1 / math.Max(score.Complexity, 1)

	feas, ok := feasibility[score.Risk]
	if !ok {
		feas = feasibility[domain.RiskMedium]
	}

	return businessValue(task) * effort * feas * ageBonus(task.Age(now))
}

func businessValue(task *domain.Task) float64 {
	value := 1.0
	for label, bonus := range valueBonus {
		if task.HasLabel(label) {
			value += bonus
		}
	}
	return value
}

// ageBonus rises by 0.1 for every 30 days a task has waited, saturating
// at +0.5 so ancient tasks cannot dominate on age alone.
func ageBonus(age time.Duration) float64 {
	bonus := 0.1 * (age.Hours() / (30 * 24))
	return 1 + math.Min(bonus, 0.5)
}

// Less orders queue entries by descending priority. Ties fall to lower
// complexity, then earlier creation, then id, so runs are reproducible.
func Less(a, b domain.QueueEntry) bool {
	if a.Score.Priority != b.Score.Priority {
		return a.Score.Priority > b.Score.Priority
	}
	if a.Score.Complexity != b.Score.Complexity {
		return a.Score.Complexity < b.Score.Complexity
	}
	if !a.Task.CreatedAt.Equal(b.Task.CreatedAt) {
		return a.Task.CreatedAt.Before(b.Task.CreatedAt)
	}
	return a.Task.ID < b.Task.ID
}
