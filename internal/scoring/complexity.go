// Package scoring estimates how hard a task is and how valuable it is to
// run now. Complexity blends a cheap structural heuristic with an optional
// semantic estimate from an external model; priority folds complexity,
// label-declared business value, risk, and age into one ranking number.
package scoring

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/quietloop/backlogpilot/internal/config"
	"github.com/quietloop/backlogpilot/internal/domain"
)

// Label deltas for the heuristic signal.
const (
	easyDelta     = -3.0
	breakingDelta = 4.0
	docsDelta     = -2.0
)

// staleAfter is the age past which an untouched task picks up a
// complexity penalty; long-ignored tasks are rarely ignored for no reason.
const staleAfter = 90 * 24 * time.Hour

// filePathRe approximates "mentions a file path". Lowercase extensions
// keep Go selector expressions like fmt.Errorf out of the count.
var filePathRe = regexp.MustCompile(`[A-Za-z0-9_\-]+(?:/[A-Za-z0-9_\-.]+)*\.[a-z]{2,8}\b`)

// Scorer blends heuristic and semantic complexity signals into one
// ScoreResult.
type Scorer struct {
	heuristicWeight float64
	semanticWeight  float64
	estimator       Estimator
}

// NewScorer creates a Scorer. A nil estimator disables the semantic
// signal; scoring then runs on heuristics alone.
func NewScorer(cfg *config.ScoringConfig, estimator Estimator) *Scorer {
	return &Scorer{
		heuristicWeight: cfg.HeuristicWeight,
		semanticWeight:  cfg.SemanticWeight,
		estimator:       estimator,
	}
}

// Score computes complexity, estimated hours, and risk for a task as of
// now, the caller's clock reading. The semantic estimator may fail or be
// absent; scoring itself never fails.
func (s *Scorer) Score(ctx context.Context, task *domain.Task, now time.Time) domain.ScoreResult {
	heuristic, parts := heuristicScore(task, now)

	var est *Estimate
	if s.estimator != nil {
		e, err := s.estimator.Estimate(ctx, task)
		if err != nil {
			parts = append(parts, "semantic estimate unavailable")
		} else {
			est = e
		}
	}

	// An absent semantic signal counts as agreeing with the heuristic.
	semantic := heuristic
	if est != nil {
		semantic = est.Complexity
		parts = append(parts, fmt.Sprintf("semantic %.1f", est.Complexity))
	}

	weightSum := s.heuristicWeight + s.semanticWeight
	complexity := clamp((s.heuristicWeight*heuristic+s.semanticWeight*semantic)/weightSum, 0, 10)

	hours := hoursForComplexity(complexity)
	if est != nil && est.Hours > 0 {
		hours = est.Hours
	}

	risk := riskForComplexity(complexity)
	if est != nil {
		if r := domain.Risk(strings.ToLower(est.Risk)); r == domain.RiskLow || r == domain.RiskMedium || r == domain.RiskHigh {
			risk = r
		}
	}

	return domain.ScoreResult{
		Complexity:     complexity,
		EstimatedHours: hours,
		Risk:           risk,
		Rationale:      strings.Join(parts, "; "),
	}
}

func heuristicScore(task *domain.Task, now time.Time) (float64, []string) {
	score := 0.0
	var parts []string

	if len(task.Description) < 100 {
		score += 2
		parts = append(parts, "short description (+2.0)")
	}
	if task.HasLabel("easy") {
		score += easyDelta
		parts = append(parts, "easy label (-3.0)")
	}
	if task.HasLabel("breaking-change") {
		score += breakingDelta
		parts = append(parts, "breaking-change label (+4.0)")
	}
	if task.HasLabel("docs") {
		score += docsDelta
		parts = append(parts, "docs label (-2.0)")
	}
	if n := countCodeBlocks(task.Description); n > 0 {
		score += 0.5 * float64(n)
		parts = append(parts, fmt.Sprintf("%d code blocks (+%.1f)", n, 0.5*float64(n)))
	}
	if n := countFilePaths(task.Description); n > 0 {
		score += 0.3 * float64(n)
		parts = append(parts, fmt.Sprintf("%d file paths (+%.1f)", n, 0.3*float64(n)))
	}
	if task.Age(now) > staleAfter {
		score += 1.5
		parts = append(parts, "open more than 90 days (+1.5)")
	}

	parts = append([]string{fmt.Sprintf("heuristic %.1f", score)}, parts...)
	return score, parts
}

func countCodeBlocks(text string) int {
	return strings.Count(text, "```") / 2
}

func countFilePaths(text string) int {
	seen := make(map[string]bool)
	for _, m := range filePathRe.FindAllString(text, -1) {
		seen[m] = true
	}
	return len(seen)
}

// hoursForComplexity is the fallback duration estimate when no semantic
// estimate carries one.
func hoursForComplexity(c float64) float64 {
	switch {
	case c < 3:
		return 0.5
	case c < 6:
		return 1.5
	default:
		return 3
	}
}

func riskForComplexity(c float64) domain.Risk {
	switch {
	case c < 3:
		return domain.RiskLow
	case c < 6:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
