package pipeline

import (
	"context"
	"strings"

	"github.com/lanewatch/lanewatch/pkg/models"
)

// ruleBasedModelVersion stamps risks classified by the keyword table.
const ruleBasedModelVersion = "rule-based/v1"

// categoryRule maps trigger keywords to a category and a base severity.
// Rules are checked in order; the first whose keyword appears in the signal
// content wins.
type categoryRule struct {
	keywords []string
	category models.RiskCategory
	severity float64
}

var defaultRules = []categoryRule{
	{
		keywords: []string{"cyclone", "hurricane", "storm", "flood", "monsoon", "heatwave", "blizzard"},
		category: models.RiskCategoryWeather,
		severity: 0.8,
	},
	{
		keywords: []string{"strike", "port closure", "congestion", "road closed", "derail", "customs delay", "traffic"},
		category: models.RiskCategoryLogistics,
		severity: 0.7,
	},
	{
		keywords: []string{"sanction", "embargo", "border", "conflict", "unrest", "tariff"},
		category: models.RiskCategoryGeopolitical,
		severity: 0.75,
	},
	{
		keywords: []string{"bankrupt", "recall", "shortage", "factory fire", "plant shutdown", "insolven"},
		category: models.RiskCategorySupplier,
		severity: 0.65,
	},
	{
		keywords: []string{"demand spike", "panic buying", "festival", "surge"},
		category: models.RiskCategoryDemand,
		severity: 0.5,
	},
}

// RuleBasedClassifier is the deterministic fallback: a keyword table over the
// lowercased signal content. It never fails and always returns a draft.
type RuleBasedClassifier struct {
	rules []categoryRule
}

// NewRuleBasedClassifier creates a classifier with the default rule table.
func NewRuleBasedClassifier() *RuleBasedClassifier {
	return &RuleBasedClassifier{rules: defaultRules}
}

// ModelVersion implements Classifier.
func (c *RuleBasedClassifier) ModelVersion() string { return ruleBasedModelVersion }

// Classify implements Classifier. Signals matching no rule fall through to a
// low-severity logistics draft; confidence scales with the number of
// matching keywords in the winning rule.
func (c *RuleBasedClassifier) Classify(_ context.Context, signal models.ExternalSignal) (RiskDraft, error) {
	content := strings.ToLower(signal.RawContent)

	for _, rule := range c.rules {
		matched := 0
		for _, kw := range rule.keywords {
			if strings.Contains(content, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		confidence := 0.6 + 0.1*float64(matched)
		if confidence > 0.9 {
			confidence = 0.9
		}
		return RiskDraft{
			RiskCategory: rule.category,
			Severity:     rule.severity,
			Confidence:   confidence,
			ImpactRegion: signal.GeographicScope,
			Summary:      summarize(signal.RawContent),
		}, nil
	}

	return RiskDraft{
		RiskCategory: models.RiskCategoryLogistics,
		Severity:     0.3,
		Confidence:   0.4,
		ImpactRegion: signal.GeographicScope,
		Summary:      summarize(signal.RawContent),
	}, nil
}

// summarize truncates content to a short single-line summary.
func summarize(content string) string {
	const maxLen = 140
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen]
}
