package domain

import "strings"

// Client-side model family knowledge: context budgets and capability flags
// the engine needs before the first byte is sent. Prefix matched in order.
var modelFamilies = []ModelFamily{
	{Name: "gpt-5", ContextWindow: 272000, AutoCompactTokenLimit: 245000, SupportsReasoningSummaries: true},
	{Name: "gpt-4.1", ContextWindow: 1047576, AutoCompactTokenLimit: 943000},
	{Name: "o3", ContextWindow: 200000, AutoCompactTokenLimit: 180000, SupportsReasoningSummaries: true},
	{Name: "o4", ContextWindow: 200000, AutoCompactTokenLimit: 180000, SupportsReasoningSummaries: true},
}

// defaultModelFamily covers slugs outside the table with conservative limits.
var defaultModelFamily = ModelFamily{
	Name:                  "default",
	ContextWindow:         128000,
	AutoCompactTokenLimit: 115000,
}

// ResolveModelFamily maps a model slug to its family entry.
func ResolveModelFamily(model string) ModelFamily {
	slug := strings.ToLower(strings.TrimSpace(model))
	for _, family := range modelFamilies {
		if strings.HasPrefix(slug, family.Name) {
			return family
		}
	}
	return defaultModelFamily
}
