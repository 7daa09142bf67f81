package match

import (
	"slices"

	"github.com/sells-group/athena/internal/config"
)

// OptionsFromConfig overlays the match config section onto DefaultOptions.
// Zero values keep the defaults.
func OptionsFromConfig(mc config.MatchConfig) Options {
	opts := DefaultOptions()
	if mc.MinDomainSimilarity > 0 {
		opts.MinDomainSimilarity = mc.MinDomainSimilarity
	}
	if mc.MinContainmentLen > 0 {
		opts.MinContainmentLen = mc.MinContainmentLen
	}
	if mc.MaxContainmentExtra > 0 {
		opts.MaxContainmentExtra = mc.MaxContainmentExtra
	}
	if mc.MaxNameWords > 0 {
		opts.MaxNameWords = mc.MaxNameWords
	}
	if len(mc.ExtraGenericDomains) > 0 {
		opts.GenericDomains = append(slices.Clone(opts.GenericDomains), mc.ExtraGenericDomains...)
	}
	return opts
}
