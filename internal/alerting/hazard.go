package alerting

import (
	"strings"

	"safety-monitor-backend/internal/model"
)

// Keyword lists are checked from most to least severe; the first hit wins.
var hazardKeywords = []struct {
	severity model.Severity
	words    []string
}{
	{model.SeverityCritical, []string{"fire", "smoke", "explosion", "chemical leak"}},
	{model.SeverityHigh, []string{"corrosion", "structural damage", "electrical hazard"}},
	{model.SeverityMedium, []string{"obstruction", "spill", "equipment malfunction"}},
}

// HazardSeverity grades a free-text inspection finding.
func HazardSeverity(hazard string) model.Severity {
	h := strings.ToLower(hazard)
	for _, group := range hazardKeywords {
		for _, w := range group.words {
			if strings.Contains(h, w) {
				return group.severity
			}
		}
	}
	return model.SeverityLow
}
