package annotation

// RiskSummary aggregates the findings of one decoded document.
type RiskSummary struct {
	HighCount   int `json:"high_count"`
	MediumCount int `json:"medium_count"`
	LowCount    int `json:"low_count"`
	Total       int `json:"total"`
	// Score is a 0-100 aggregate where each level carries a fixed base
	// weight (high 70, medium 40, low 10), averaged over all findings.
	Score int `json:"score"`
}

const (
	baseScoreHigh   = 70
	baseScoreMedium = 40
	baseScoreLow    = 10
)

// Summarize computes level counts and the aggregate risk score for a set of
// findings. An empty set scores zero.
func Summarize(findings []Finding) RiskSummary {
	summary := RiskSummary{Total: len(findings)}
	sum := 0
	for _, f := range findings {
		switch f.Level {
		case LevelHigh:
			summary.HighCount++
			sum += baseScoreHigh
		case LevelMedium:
			summary.MediumCount++
			sum += baseScoreMedium
		case LevelLow:
			summary.LowCount++
			sum += baseScoreLow
		}
	}
	if summary.Total > 0 {
		summary.Score = sum / summary.Total
	}
	if summary.Score > 100 {
		summary.Score = 100
	}
	return summary
}
