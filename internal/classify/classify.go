// Package classify infers runner type and cost category from runs-on labels.
//
// Classification is a pure function of the label set. The keyword table is
// package data so it can be inspected and tested without running jobs.
package classify

import (
	"regexp"
	"strings"

	"github.com/ternarybob/runner-usage/internal/models"
)

// Keywords is the static keyword table used by Classify. All entries are lowercase
// and are matched as substrings of lowercased labels.
type Keywords struct {
	SelfHosted []string
	Large      []string
	Hosted     []string
	Platforms  []Platform
}

// Platform maps a label keyword to a runner type
type Platform struct {
	Keyword string
	Type    models.RunnerType
}

// DefaultKeywords is the table used by Classify
var DefaultKeywords = Keywords{
	SelfHosted: []string{"self-hosted"},
	Large:      []string{"xlarge", "large"},
	Hosted:     []string{"latest", "github-hosted"},
	Platforms: []Platform{
		{Keyword: "ubuntu", Type: models.RunnerTypeUbuntu},
		{Keyword: "windows", Type: models.RunnerTypeWindows},
		{Keyword: "macos", Type: models.RunnerTypeMacOS},
	},
}

// coreCountPattern matches core-count sizes such as "4-core", "ubuntu-22.04-16-cores"
var coreCountPattern = regexp.MustCompile(`(^|[^a-z0-9])\d+-cores?($|[^a-z0-9])`)

// Classify returns the runner type and cost category for a label set.
// Rules are evaluated in order and the first match wins:
//  1. "self-hosted", or labels that match no GitHub-hosted pattern -> self_hosted
//  2. large instance marker -> platform (or github_hosted), large_instance
//  3. platform keyword -> platform, standard
//  4. hosted marker -> github_hosted, standard
//  5. nothing usable (no labels) -> unknown, standard
func Classify(labels []string) (models.RunnerType, models.CostCategory) {
	return DefaultKeywords.Classify(labels)
}

// Classify applies the rules using this keyword table
func (k Keywords) Classify(labels []string) (models.RunnerType, models.CostCategory) {
	lowered := lowerNonEmpty(labels)
	if len(lowered) == 0 {
		return models.RunnerTypeUnknown, models.CostCategoryStandard
	}

	if containsAny(lowered, k.SelfHosted) {
		return models.RunnerTypeSelfHosted, models.CostCategorySelfHostedCustom
	}

	platform, hasPlatform := k.platform(lowered)
	large := k.isLarge(lowered)
	hosted := containsAny(lowered, k.Hosted)

	switch {
	case !hasPlatform && !large && !hosted:
		return models.RunnerTypeSelfHosted, models.CostCategorySelfHostedCustom
	case large && hasPlatform:
		return platform, models.CostCategoryLargeInstance
	case large:
		return models.RunnerTypeGitHubHosted, models.CostCategoryLargeInstance
	case hasPlatform:
		return platform, models.CostCategoryStandard
	default:
		return models.RunnerTypeGitHubHosted, models.CostCategoryStandard
	}
}

// platform returns the platform of the first label that names one
func (k Keywords) platform(labels []string) (models.RunnerType, bool) {
	for _, label := range labels {
		for _, p := range k.Platforms {
			if strings.Contains(label, p.Keyword) {
				return p.Type, true
			}
		}
	}
	return models.RunnerTypeUnknown, false
}

func (k Keywords) isLarge(labels []string) bool {
	if containsAny(labels, k.Large) {
		return true
	}
	for _, label := range labels {
		if coreCountPattern.MatchString(label) {
			return true
		}
	}
	return false
}

func containsAny(labels []string, keywords []string) bool {
	for _, label := range labels {
		for _, kw := range keywords {
			if strings.Contains(label, kw) {
				return true
			}
		}
	}
	return false
}

func lowerNonEmpty(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
