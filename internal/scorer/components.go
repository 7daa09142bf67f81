package scorer

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sells-group/athena/internal/company"
)

// discussionStats extracts points and comment count from signal metadata.
// Malformed metadata, or a value that is not a whole number, yields 0, 0.
func discussionStats(meta string) (points, comments int) {
	if meta == "" || !gjson.Valid(meta) {
		return 0, 0
	}
	doc := gjson.Parse(meta)
	if !doc.IsObject() {
		return 0, 0
	}
	p, ok := metaInt(doc.Get("points"))
	if !ok {
		return 0, 0
	}
	c, ok := metaInt(doc.Get("num_comments"))
	if !ok {
		return 0, 0
	}
	return p, c
}

func metaInt(r gjson.Result) (int, bool) {
	switch r.Type {
	case gjson.Null:
		// A missing key is zero; an explicit null is malformed.
		return 0, !r.Exists()
	case gjson.Number:
		return int(r.Int()), true
	case gjson.True:
		return 1, true
	case gjson.False:
		return 0, true
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(r.Str))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

type result struct {
	score   int
	label   string
	reasons []string
}

// pedigree scores the best program tier, plus one for holding two or more
// distinct programs while below the cap.
func (c *compiled) pedigree(programs []company.Program) result {
	res := result{label: "No program"}
	if len(programs) == 0 {
		return res
	}

	bestTier := c.defaultTier
	bestLabel := ""
	for _, p := range programs {
		tier, upgraded := c.tierFor(p)
		if c.points[tier] > c.points[bestTier] {
			bestTier = tier
			bestLabel = p.ProgramName
			if upgraded {
				bestLabel = p.ProgramName + " " + p.Cohort
			}
		}
	}

	names := distinctProgramNames(programs)
	labelName, reasonName := bestLabel, bestLabel
	if bestLabel == "" {
		labelName = programs[0].ProgramName
		reasonName = names[0]
	}

	res.score = c.points[bestTier]
	res.label = fmt.Sprintf("Tier %s — %s", bestTier, labelName)
	res.reasons = append(res.reasons, fmt.Sprintf("Program: Tier %s — %s (+%d)", bestTier, reasonName, res.score))

	limit := c.max[ComponentProgram]
	if len(names) >= 2 && res.score < limit {
		res.score = min(res.score+1, limit)
		res.label += fmt.Sprintf(" + %d more", len(names)-1)
		res.reasons = append(res.reasons, fmt.Sprintf("Multi-program: %s (+1)", strings.Join(names, ", ")))
	}
	res.score = min(res.score, limit)
	return res
}

// tierFor returns the tier of p and whether an upgrade rule produced it.
func (c *compiled) tierFor(p company.Program) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(p.ProgramName))
	tier, ok := c.tiers[name]
	if !ok {
		tier = c.defaultTier
	}
	cohort := strings.ToLower(strings.TrimSpace(p.Cohort))
	for _, u := range c.upgrades {
		if u.program != name {
			continue
		}
		if _, hit := u.cohorts[cohort]; hit {
			return u.tier, true
		}
	}
	return tier, false
}

// buzz scores discussion engagement, launch listings and press mentions.
func (c *compiled) buzz(signals []company.Signal) result {
	var res result
	var parts []string

	bestPts, bestCmts := 0, 0
	launched := false
	press := make(map[string]struct{})
	for _, s := range signals {
		if s.SourceName == c.discussion {
			p, cm := discussionStats(s.Metadata)
			bestPts = max(bestPts, p)
			bestCmts = max(bestCmts, cm)
		}
		if _, ok := c.launch[s.SourceName]; ok {
			launched = true
		}
		if _, ok := c.press[s.SourceName]; ok {
			press[s.SourceName] = struct{}{}
		}
	}

	switch {
	case bestPts >= c.viralPts || bestCmts >= c.viralCmts:
		res.score += 3
		parts = append(parts, fmt.Sprintf("HN %dpts", bestPts))
		res.reasons = append(res.reasons, fmt.Sprintf("HN viral: %dpts, %d comments (+3)", bestPts, bestCmts))
	case bestPts >= c.tractionPts || bestCmts >= c.tractionCmts:
		res.score += 2
		parts = append(parts, fmt.Sprintf("HN %dpts", bestPts))
		res.reasons = append(res.reasons, fmt.Sprintf("HN traction: %dpts, %d comments (+2)", bestPts, bestCmts))
	case bestPts > 0:
		res.score++
		parts = append(parts, fmt.Sprintf("HN %dpts", bestPts))
		res.reasons = append(res.reasons, fmt.Sprintf("HN signal: %dpts (+1)", bestPts))
	}

	if launched {
		res.score++
		parts = append(parts, "ProductHunt")
		res.reasons = append(res.reasons, "ProductHunt launch (+1)")
	}

	for _, src := range sortedKeys(press) {
		res.score++
		parts = append(parts, src)
		res.reasons = append(res.reasons, fmt.Sprintf("Press: %s (+1)", src))
	}

	res.score = min(res.score, c.max[ComponentBuzz])
	res.label = "No buzz signals"
	if len(parts) > 0 {
		res.label = strings.Join(parts, ", ")
	}
	return res
}

// sources scores the number of distinct source names.
func (c *compiled) sources(signals []company.Signal) result {
	var res result
	distinct := make(map[string]struct{})
	for _, s := range signals {
		distinct[s.SourceName] = struct{}{}
	}
	n := len(distinct)

	switch {
	case n >= 3:
		res.score = 2
	case n == 2:
		res.score = 1
	}
	res.score = min(res.score, c.max[ComponentSources])
	if res.score > 0 {
		res.reasons = append(res.reasons, fmt.Sprintf("Cross-source: %d sources (+%d)", n, res.score))
	}

	res.label = fmt.Sprintf("%d source", n)
	if n != 1 {
		res.label += "s"
	}
	if n > 0 {
		res.label += fmt.Sprintf(" (%s)", strings.Join(sortedKeys(distinct), ", "))
	}
	return res
}

// recency scores the newest signal inside the window, falling back to the
// newest program only when no signal qualifies.
func (c *compiled) recency(now time.Time, signals []company.Signal, programs []company.Program) result {
	res := result{label: "No recent signals"}
	cutoff := now.Add(-time.Duration(c.recencyDays) * 24 * time.Hour)

	var best time.Time
	found := false
	consider := func(ts string) {
		t, ok := company.ParseTimestamp(ts)
		if !ok || t.Before(cutoff) {
			return
		}
		if !found || t.After(best) {
			best = t
			found = true
		}
	}

	for _, s := range signals {
		consider(s.DetectedAt)
	}
	if !found {
		for _, p := range programs {
			consider(p.DetectedAt)
		}
	}
	if !found || c.max[ComponentRecency] < 1 {
		return res
	}

	days := int(now.Sub(best) / (24 * time.Hour))
	switch {
	case days <= 0:
		res.label = "signal today"
	case days == 1:
		res.label = "signal 1 day ago"
	default:
		res.label = fmt.Sprintf("signal %d days ago", days)
	}
	res.score = 1
	res.reasons = append(res.reasons, fmt.Sprintf("Recent activity: %s (+1)", res.label))
	return res
}

func distinctProgramNames(programs []company.Program) []string {
	set := make(map[string]struct{}, len(programs))
	for _, p := range programs {
		set[p.ProgramName] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
