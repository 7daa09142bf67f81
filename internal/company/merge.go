package company

// Richness scores how complete a company record is. The richer record
// survives a merge.
//
//	description +2, website +2, city +1,
//	sector (not "Other") +1, geography (not "Unknown"/"Europe") +1,
//	stage (not "Unknown") +1
func Richness(c *Company) int {
	score := 0
	if c.Description != "" {
		score += 2
	}
	if c.Website != "" {
		score += 2
	}
	if c.City != "" {
		score++
	}
	if c.Sector != "" && c.Sector != SectorOther {
		score++
	}
	if c.Geography != "" && c.Geography != GeographyUnknown && c.Geography != GeographyEurope {
		score++
	}
	if c.Stage != "" && c.Stage != StageUnknown {
		score++
	}
	return score
}

// PickSurvivor returns (keep, remove) for a matched pair. Ties keep a.
func PickSurvivor(a, b *Company) (keep, remove *Company) {
	if Richness(a) >= Richness(b) {
		return a, b
	}
	return b, a
}

// MergeFields computes the gap-filling patch applied to keep when remove is
// absorbed. Description, website and city are copied only when keep has
// none. Sector and geography are copied when keep's value is absent or a
// placeholder and remove's is a real value.
func MergeFields(keep, remove *Company) Patch {
	var p Patch
	if keep.Description == "" && remove.Description != "" {
		p.Description = ptr(remove.Description)
	}
	if keep.Website == "" && remove.Website != "" {
		p.Website = ptr(remove.Website)
	}
	if keep.City == "" && remove.City != "" {
		p.City = ptr(remove.City)
	}
	if isPlaceholder(keep.Sector, SectorOther) && !isPlaceholder(remove.Sector, SectorOther) {
		p.Sector = ptr(remove.Sector)
	}
	if isPlaceholder(keep.Geography, GeographyUnknown) && !isPlaceholder(remove.Geography, GeographyUnknown) {
		p.Geography = ptr(remove.Geography)
	}
	return p
}

func isPlaceholder(v, placeholder string) bool {
	return v == "" || v == placeholder
}
