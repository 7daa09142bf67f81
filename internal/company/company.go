// Package company defines the company, signal and program records and the
// engine stages that reconcile them: duplicate consolidation and
// cross-layer detection.
package company

// Company is the identity record for a tracked company. Empty strings mean
// the value is absent.
type Company struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	Sector      string `json:"sector,omitempty" db:"sector"`
	Geography   string `json:"geography,omitempty" db:"geography"`
	City        string `json:"city,omitempty" db:"city"`
	Stage       string `json:"stage,omitempty" db:"stage"`
	Website     string `json:"website,omitempty" db:"website"`

	// HeatScore is always within [MinHeatScore, MaxHeatScore].
	HeatScore int `json:"heat_score" db:"heat_score"`
	// PreviousHeatScore is the snapshot taken before the last rescoring
	// pass; nil until the first snapshot.
	PreviousHeatScore *int `json:"previous_heat_score,omitempty" db:"previous_heat_score"`

	FirstDetected string `json:"first_detected,omitempty" db:"first_detected"`
	LastUpdated   string `json:"last_updated,omitempty" db:"last_updated"`
}

// Heat score bounds.
const (
	MinHeatScore = 1
	MaxHeatScore = 10
)

// Layer classifies where a signal comes from.
type Layer string

// Signal layers.
const (
	LayerCurated  Layer = "curated"
	LayerRealtime Layer = "realtime"
)

// Signal is an observed mention of a company.
type Signal struct {
	ID         int64  `json:"id" db:"id"`
	CompanyID  int64  `json:"company_id" db:"company_id"`
	SourceType string `json:"source_type,omitempty" db:"source_type"`
	SourceName string `json:"source_name" db:"source_name"`
	Layer      Layer  `json:"signal_layer" db:"signal_layer"`
	SourceURL  string `json:"source_url,omitempty" db:"source_url"`
	Title      string `json:"title,omitempty" db:"title"`
	// Metadata is an opaque JSON blob, commonly engagement stats.
	Metadata string `json:"metadata,omitempty" db:"metadata"`
	// DetectedAt is the timestamp text as stored.
	DetectedAt string `json:"detected_at,omitempty" db:"detected_at"`
}

// Program is an accelerator or grant affiliation.
type Program struct {
	ID             int64  `json:"id" db:"id"`
	CompanyID      int64  `json:"company_id" db:"company_id"`
	ProgramName    string `json:"program_name" db:"program_name"`
	ProgramType    string `json:"program_type,omitempty" db:"program_type"`
	ProgramCountry string `json:"program_country,omitempty" db:"program_country"`
	// Cohort is free text; it may encode a stage ("Stage 2") or a year.
	Cohort        string `json:"cohort,omitempty" db:"cohort"`
	FundingAmount string `json:"funding_amount,omitempty" db:"funding_amount"`
	DetectedAt    string `json:"detected_at,omitempty" db:"detected_at"`
}

// Placeholder values that count as "unknown" for record richness and merges.
const (
	SectorOther      = "Other"
	GeographyUnknown = "Unknown"
	GeographyEurope  = "Europe"
	StageUnknown     = "Unknown"
)

// Patch is a sparse update to a company. Nil fields are left untouched.
type Patch struct {
	Name        *string
	Description *string
	Sector      *string
	Geography   *string
	City        *string
	Stage       *string
	Website     *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Sector == nil &&
		p.Geography == nil && p.City == nil && p.Stage == nil && p.Website == nil
}

// Apply writes the patch onto c in memory.
func (p Patch) Apply(c *Company) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Name, p.Name)
	set(&c.Description, p.Description)
	set(&c.Sector, p.Sector)
	set(&c.Geography, p.Geography)
	set(&c.City, p.City)
	set(&c.Stage, p.Stage)
	set(&c.Website, p.Website)
}

// Columns returns the patch as column/value pairs in a fixed order.
func (p Patch) Columns() ([]string, []any) {
	var cols []string
	var vals []any
	add := func(col string, v *string) {
		if v != nil {
			cols = append(cols, col)
			vals = append(vals, *v)
		}
	}
	add("name", p.Name)
	add("description", p.Description)
	add("sector", p.Sector)
	add("geography", p.Geography)
	add("city", p.City)
	add("stage", p.Stage)
	add("website", p.Website)
	return cols, vals
}

func ptr(s string) *string { return &s }
