// Package classify infers a company's sector from free text and its
// geography from a website domain or a place name.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/config"
)

// DefaultSectorRules returns the built-in sector rules. Order matters: the
// first rule with a matching pattern wins.
func DefaultSectorRules() []config.SectorRule {
	return []config.SectorRule{
		{Sector: "AI / ML", Patterns: []string{
			`\bAI\b`, `\bML\b`, `machine learning`, `\bLLM\b`, `\bGPT\b`, `neural net`, `deep learning`,
		}},
		{Sector: "Fintech", Patterns: []string{
			`fintech`, `banking`, `payments?\b`, `neobank`, `insurance`, `lending`,
		}},
		{Sector: "Climate", Patterns: []string{
			`climate`, `carbon`, `\benergy\b`, `\bsolar\b`, `clean\s*tech`, `sustainability`,
		}},
		{Sector: "Health / Bio", Patterns: []string{
			`health`, `medical`, `biotech`, `pharma`, `genomic`, `diagnostic`, `therapeutics`,
		}},
		{Sector: "SaaS", Patterns: []string{
			`\bSaaS\b`, `\bB2B\b`, `\bplatform\b`, `developer`, `infrastructure`,
		}},
	}
}

type sectorRule struct {
	sector   string
	patterns []*regexp.Regexp
}

// Sectors assigns a sector to free text using ordered regex rules.
type Sectors struct {
	rules []sectorRule
	def   string
}

// NewSectors compiles cfg. Empty rules use DefaultSectorRules and an empty
// default sector uses company.SectorOther.
func NewSectors(cfg config.ClassifyConfig) (*Sectors, error) {
	rules := cfg.SectorRules
	if len(rules) == 0 {
		rules = DefaultSectorRules()
	}
	s := &Sectors{def: cfg.DefaultSector}
	if s.def == "" {
		s.def = company.SectorOther
	}

	var errs []string
	for _, r := range rules {
		if strings.TrimSpace(r.Sector) == "" {
			errs = append(errs, "sector rule without a sector")
			continue
		}
		sr := sectorRule{sector: r.Sector}
		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", r.Sector, err))
				continue
			}
			sr.patterns = append(sr.patterns, re)
		}
		s.rules = append(s.rules, sr)
	}
	if len(errs) > 0 {
		return nil, eris.Errorf("classify: invalid sector rules: %s", strings.Join(errs, "; "))
	}
	return s, nil
}

// Detect returns the sector of the first rule matching text, or the
// default sector.
func (s *Sectors) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return s.def
	}
	for _, r := range s.rules {
		for _, re := range r.patterns {
			if re.MatchString(text) {
				return r.sector
			}
		}
	}
	return s.def
}
