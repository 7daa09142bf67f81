// Package scorer computes company heat scores (1-10) from program pedigree,
// community buzz, cross-source appearances and recency.
package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/athena/internal/config"
)

// Component keys in a Breakdown.
const (
	ComponentProgram = "program"
	ComponentBuzz    = "buzz"
	ComponentSources = "sources"
	ComponentRecency = "recency"
)

// DefaultHeatConfig returns the production scoring tables.
// Tier A = 4pts, B = 3pts, C = 2pts, D = 1pt.
func DefaultHeatConfig() config.HeatConfig {
	return config.HeatConfig{
		ProgramTiers: map[string]string{
			// Highly selective accelerators.
			"Entrepreneur First": "A",
			"Seedcamp":           "A",
			"Y Combinator":       "A",
			"Techstars":          "A",

			// Strong programs.
			"Venture Kick":  "B",
			"ETH AI Center": "B",

			// University spinout offices.
			"Cambridge Enterprise":    "C",
			"Imperial Enterprise Lab": "C",
		},
		TierPoints:  map[string]int{"A": 4, "B": 3, "C": 2, "D": 1},
		DefaultTier: "D",
		TierUpgrades: []config.TierUpgrade{
			{Program: "Venture Kick", Cohorts: []string{"stage 2", "stage 3"}, Tier: "A"},
		},

		DiscussionSource: "HackerNews",
		LaunchSources:    []string{"ProductHunt"},
		PressSources:     []string{"Sifted", "Tech.eu", "TechCrunch", "EU-Startups"},

		ViralPoints:      300,
		ViralComments:    100,
		TractionPoints:   100,
		TractionComments: 50,

		RecencyDays: 7,

		ProgramMax: 4,
		BuzzMax:    3,
		SourcesMax: 2,
		RecencyMax: 1,
	}
}

// Resolve overlays the non-zero fields of override onto DefaultHeatConfig.
// Maps and slices replace the defaults wholesale.
func Resolve(override config.HeatConfig) config.HeatConfig {
	c := DefaultHeatConfig()
	if len(override.ProgramTiers) > 0 {
		c.ProgramTiers = override.ProgramTiers
	}
	if len(override.TierPoints) > 0 {
		c.TierPoints = override.TierPoints
	}
	if override.DefaultTier != "" {
		c.DefaultTier = override.DefaultTier
	}
	if override.TierUpgrades != nil {
		c.TierUpgrades = override.TierUpgrades
	}
	if override.DiscussionSource != "" {
		c.DiscussionSource = override.DiscussionSource
	}
	if override.LaunchSources != nil {
		c.LaunchSources = override.LaunchSources
	}
	if override.PressSources != nil {
		c.PressSources = override.PressSources
	}
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setInt(&c.ViralPoints, override.ViralPoints)
	setInt(&c.ViralComments, override.ViralComments)
	setInt(&c.TractionPoints, override.TractionPoints)
	setInt(&c.TractionComments, override.TractionComments)
	setInt(&c.RecencyDays, override.RecencyDays)
	setInt(&c.ProgramMax, override.ProgramMax)
	setInt(&c.BuzzMax, override.BuzzMax)
	setInt(&c.SourcesMax, override.SourcesMax)
	setInt(&c.RecencyMax, override.RecencyMax)
	return c
}

// ValidateConfig checks that a HeatConfig is internally consistent.
func ValidateConfig(c config.HeatConfig) error {
	var errs []string

	if len(c.TierPoints) == 0 {
		errs = append(errs, "tier_points must not be empty")
	}
	for tier, pts := range c.TierPoints {
		if pts < 0 {
			errs = append(errs, fmt.Sprintf("tier_points[%s] must be >= 0", tier))
		}
	}
	if _, ok := c.TierPoints[c.DefaultTier]; !ok {
		errs = append(errs, fmt.Sprintf("default_tier %q has no points", c.DefaultTier))
	}
	for name, tier := range c.ProgramTiers {
		if _, ok := c.TierPoints[tier]; !ok {
			errs = append(errs, fmt.Sprintf("program %q uses unknown tier %q", name, tier))
		}
	}
	for _, u := range c.TierUpgrades {
		if u.Program == "" || len(u.Cohorts) == 0 {
			errs = append(errs, "tier_upgrades entries need a program and cohorts")
		}
		if _, ok := c.TierPoints[u.Tier]; !ok {
			errs = append(errs, fmt.Sprintf("tier upgrade for %q uses unknown tier %q", u.Program, u.Tier))
		}
	}

	if c.TractionPoints > c.ViralPoints || c.TractionComments > c.ViralComments {
		errs = append(errs, "traction thresholds must not exceed viral thresholds")
	}
	if c.RecencyDays < 1 {
		errs = append(errs, "recency_days must be >= 1")
	}

	caps := map[string]int{
		"program_max": c.ProgramMax,
		"buzz_max":    c.BuzzMax,
		"sources_max": c.SourcesMax,
		"recency_max": c.RecencyMax,
	}
	for _, name := range slices.Sorted(maps.Keys(caps)) {
		if caps[name] < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigHash returns a SHA-256 hash of the scoring config for reproducibility.
func ConfigHash(cfg interface{}) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16]) // 32 hex chars
}

// compiled is the lookup-ready, private copy of a HeatConfig.
type compiled struct {
	raw          config.HeatConfig
	tiers        map[string]string // lower-cased program name -> tier
	points       map[string]int
	defaultTier  string
	upgrades     []upgrade
	discussion   string
	launch       map[string]struct{}
	press        map[string]struct{}
	recencyDays  int
	viralPts     int
	viralCmts    int
	tractionPts  int
	tractionCmts int
	max          map[string]int
}

type upgrade struct {
	program string
	cohorts map[string]struct{}
	tier    string
}

func compile(c config.HeatConfig) *compiled {
	out := &compiled{
		raw:          cloneConfig(c),
		tiers:        make(map[string]string, len(c.ProgramTiers)),
		points:       maps.Clone(c.TierPoints),
		defaultTier:  c.DefaultTier,
		discussion:   c.DiscussionSource,
		launch:       toSet(c.LaunchSources),
		press:        toSet(c.PressSources),
		recencyDays:  c.RecencyDays,
		viralPts:     c.ViralPoints,
		viralCmts:    c.ViralComments,
		tractionPts:  c.TractionPoints,
		tractionCmts: c.TractionComments,
		max: map[string]int{
			ComponentProgram: c.ProgramMax,
			ComponentBuzz:    c.BuzzMax,
			ComponentSources: c.SourcesMax,
			ComponentRecency: c.RecencyMax,
		},
	}
	for name, tier := range c.ProgramTiers {
		out.tiers[strings.ToLower(strings.TrimSpace(name))] = tier
	}
	for _, u := range c.TierUpgrades {
		up := upgrade{
			program: strings.ToLower(strings.TrimSpace(u.Program)),
			cohorts: make(map[string]struct{}, len(u.Cohorts)),
			tier:    u.Tier,
		}
		for _, co := range u.Cohorts {
			up.cohorts[strings.ToLower(strings.TrimSpace(co))] = struct{}{}
		}
		out.upgrades = append(out.upgrades, up)
	}
	return out
}

func cloneConfig(c config.HeatConfig) config.HeatConfig {
	out := c
	out.ProgramTiers = maps.Clone(c.ProgramTiers)
	out.TierPoints = maps.Clone(c.TierPoints)
	out.LaunchSources = slices.Clone(c.LaunchSources)
	out.PressSources = slices.Clone(c.PressSources)
	if c.TierUpgrades != nil {
		out.TierUpgrades = make([]config.TierUpgrade, len(c.TierUpgrades))
		for i, u := range c.TierUpgrades {
			u.Cohorts = slices.Clone(u.Cohorts)
			out.TierUpgrades[i] = u
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}
