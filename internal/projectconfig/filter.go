package projectconfig

import "token-manager-dashboard/internal/domain"

// FilterTokens applies rules in order, each narrowing the previous result.
// An empty rule list returns a copy of the input; unknown rule types are
// skipped. The result never shares a backing array with tokens.
func FilterTokens(rules []FilterRule, tokens []domain.TokenData) []domain.TokenData {
	out := make([]domain.TokenData, len(tokens))
	copy(out, tokens)
	if len(rules) == 0 {
		return out
	}

	for _, rule := range rules {
		var keep func(domain.TokenData) bool
		switch rule.Type {
		case FilterCreators:
			keep = func(t domain.TokenData) bool { return t.HasCreator(rule.Value) }
		case FilterSymbol:
			keep = func(t domain.TokenData) bool {
				return t.Metadata != nil && t.Metadata.Data != nil && t.Metadata.Data.Symbol == rule.Value
			}
		default:
			continue
		}

		narrowed := out[:0:0]
		for _, t := range out {
			if keep(t) {
				narrowed = append(narrowed, t)
			}
		}
		out = narrowed
	}
	return out
}
