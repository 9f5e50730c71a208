package parser

import (
	"strings"

	"github.com/marketlens/marketlens-cli/internal/patterns"
)

// ExtractFirst tries rules in priority order and returns the first
// non-empty capture. A rule whose match yields only empty captures is
// skipped and the cascade continues. Reports ok=false when no rule
// produced a value.
func ExtractFirst(text string, rules []patterns.CompiledRule) (value, ruleName string, ok bool) {
	for _, r := range rules {
		m := r.Re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for _, group := range m[1:] {
			if v := strings.TrimSpace(group); v != "" {
				return v, r.Name, true
			}
		}
	}
	return "", "", false
}
