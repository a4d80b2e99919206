// Package scoring computes compliance scores from a finding collection.
// All functions are pure and deterministic: the same findings and framework
// list always yield bit-identical scores.
package scoring

import (
	"math"

	"github.com/secureaudit/secureaudit/pkg/models/domain"
)

// Severity weights used for compliance scoring. A framework whose every
// finding is CRITICAL scores 0.
var severityWeights = map[domain.Severity]float64{
	domain.SeverityCritical: 100,
	domain.SeverityHigh:     70,
	domain.SeverityMedium:   50,
	domain.SeverityLow:      30,
}

// ComputeFrameworkScore scores one framework from 0 (fully non-compliant) to
// 100 (no detected violations). Only findings tagged with the framework count.
func ComputeFrameworkScore(findings []domain.Finding, framework string) float64 {
	var totalRisk float64
	var matched int

	for _, f := range findings {
		if !hasFramework(f, framework) {
			continue
		}
		matched++
		totalRisk += severityWeights[f.Severity]
	}

	if matched == 0 {
		return 100.0
	}

	maxRisk := float64(matched) * 100
	score := 100 - (totalRisk/maxRisk)*100
	if score < 0 {
		score = 0
	}
	return round1(score)
}

// ComputeOverallScore is the unweighted mean of the per-framework scores for
// the requested frameworks. Frameworks without findings still count as 100.
func ComputeOverallScore(frameworkScores map[string]float64, frameworks []string) float64 {
	if len(frameworks) == 0 {
		return 100.0
	}
	var sum float64
	for _, fw := range frameworks {
		sum += frameworkScores[fw]
	}
	return round1(sum / float64(len(frameworks)))
}

// ComputeScores returns the per-framework scores and the overall score for a
// run's requested frameworks. Iteration follows the framework slice, never a
// map, to keep the result reproducible.
func ComputeScores(findings []domain.Finding, frameworks []string) (map[string]float64, float64) {
	scores := make(map[string]float64, len(frameworks))
	for _, fw := range frameworks {
		scores[fw] = ComputeFrameworkScore(findings, fw)
	}
	return scores, ComputeOverallScore(scores, frameworks)
}

func hasFramework(f domain.Finding, framework string) bool {
	for _, fw := range f.Frameworks {
		if fw == framework {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
