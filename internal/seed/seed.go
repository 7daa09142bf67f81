// Package seed imports companies with their signals and programs from a
// YAML file.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/athena/internal/classify"
	"github.com/sells-group/athena/internal/company"
)

// File is the top-level seed document.
type File struct {
	Companies []CompanyEntry `yaml:"companies"`
}

// CompanyEntry is one company with its evidence.
type CompanyEntry struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Sector        string         `yaml:"sector"`
	Geography     string         `yaml:"geography"`
	City          string         `yaml:"city"`
	Stage         string         `yaml:"stage"`
	Website       string         `yaml:"website"`
	FirstDetected string         `yaml:"first_detected"`
	Signals       []SignalEntry  `yaml:"signals"`
	Programs      []ProgramEntry `yaml:"programs"`
}

// SignalEntry is a mention of the enclosing company. Metadata may be a
// mapping, which is stored as JSON, or a string stored verbatim.
type SignalEntry struct {
	SourceName string `yaml:"source_name"`
	SourceType string `yaml:"source_type"`
	Layer      string `yaml:"layer"`
	URL        string `yaml:"url"`
	Title      string `yaml:"title"`
	Metadata   any    `yaml:"metadata"`
	DetectedAt string `yaml:"detected_at"`
}

// ProgramEntry is a program affiliation of the enclosing company.
type ProgramEntry struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	Country       string `yaml:"country"`
	Cohort        string `yaml:"cohort"`
	FundingAmount string `yaml:"funding_amount"`
	DetectedAt    string `yaml:"detected_at"`
}

// BulkIngester is implemented by stores that can load many signals and
// programs at once.
type BulkIngester interface {
	CopySignals(ctx context.Context, signals []company.Signal) (int64, error)
	CopyPrograms(ctx context.Context, programs []company.Program) (int64, error)
}

// Result counts what an import wrote.
type Result struct {
	Companies int `json:"companies"`
	Signals   int `json:"signals"`
	Programs  int `json:"programs"`
	// Classified counts companies whose sector or geography was inferred.
	// Placeholder defaults are not counted.
	Classified int `json:"classified"`
}

// Importer writes seed files through a company.Ingester.
type Importer struct {
	ing     company.Ingester
	sectors *classify.Sectors
}

// NewImporter creates an Importer. sectors fills in missing sectors; nil
// disables sector inference.
func NewImporter(ing company.Ingester, sectors *classify.Sectors) *Importer {
	return &Importer{ing: ing, sectors: sectors}
}

// ImportFile reads and imports the seed file at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	return im.Import(ctx, bytes.NewReader(data))
}

// Import decodes and validates a seed document, then inserts it. Nothing
// is written when validation fails. Insert errors stop the import and
// leave earlier rows in place.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "seed: parse")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	bulk, _ := im.ing.(BulkIngester)
	var signals []company.Signal
	var programs []company.Program

	for _, e := range f.Companies {
		c := im.toCompany(e)
		if inferred(e, c) {
			res.Classified++
		}
		if err := im.ing.InsertCompany(ctx, &c); err != nil {
			return res, eris.Wrapf(err, "seed: insert %q", e.Name)
		}
		res.Companies++

		for _, s := range e.Signals {
			sig, err := toSignal(c.ID, s)
			if err != nil {
				return res, eris.Wrapf(err, "seed: %q signal from %s", e.Name, s.SourceName)
			}
			if bulk != nil {
				signals = append(signals, sig)
				continue
			}
			if err := im.ing.InsertSignal(ctx, &sig); err != nil {
				return res, eris.Wrapf(err, "seed: insert signal for %q", e.Name)
			}
			res.Signals++
		}

		for _, p := range e.Programs {
			prog := company.Program{
				CompanyID:      c.ID,
				ProgramName:    p.Name,
				ProgramType:    p.Type,
				ProgramCountry: p.Country,
				Cohort:         p.Cohort,
				FundingAmount:  p.FundingAmount,
				DetectedAt:     p.DetectedAt,
			}
			if bulk != nil {
				programs = append(programs, prog)
				continue
			}
			if err := im.ing.InsertProgram(ctx, &prog); err != nil {
				return res, eris.Wrapf(err, "seed: insert program for %q", e.Name)
			}
			res.Programs++
		}
	}

	if bulk != nil && len(signals) > 0 {
		n, err := bulk.CopySignals(ctx, signals)
		if err != nil {
			return res, eris.Wrap(err, "seed: copy signals")
		}
		res.Signals = int(n)
	}
	if bulk != nil && len(programs) > 0 {
		n, err := bulk.CopyPrograms(ctx, programs)
		if err != nil {
			return res, eris.Wrap(err, "seed: copy programs")
		}
		res.Programs = int(n)
	}

	zap.L().Info("seed: import complete",
		zap.Int("companies", res.Companies),
		zap.Int("signals", res.Signals),
		zap.Int("programs", res.Programs),
		zap.Int("classified", res.Classified),
	)
	return res, nil
}

// Validate checks required fields and signal layers.
func (f *File) Validate() error {
	var errs []string
	for i, c := range f.Companies {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, fmt.Sprintf("companies[%d]: name is required", i))
		}
		for j, s := range c.Signals {
			if strings.TrimSpace(s.SourceName) == "" {
				errs = append(errs, fmt.Sprintf("companies[%d].signals[%d]: source_name is required", i, j))
			}
			switch company.Layer(s.Layer) {
			case "", company.LayerCurated, company.LayerRealtime:
			default:
				errs = append(errs, fmt.Sprintf("companies[%d].signals[%d]: unknown layer %q", i, j, s.Layer))
			}
		}
		for j, p := range c.Programs {
			if strings.TrimSpace(p.Name) == "" {
				errs = append(errs, fmt.Sprintf("companies[%d].programs[%d]: name is required", i, j))
			}
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("seed: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (im *Importer) toCompany(e CompanyEntry) company.Company {
	c := company.Company{
		Name:          strings.TrimSpace(e.Name),
		Description:   e.Description,
		Sector:        e.Sector,
		Geography:     e.Geography,
		City:          e.City,
		Stage:         e.Stage,
		Website:       e.Website,
		FirstDetected: e.FirstDetected,
	}
	if c.Sector == "" && im.sectors != nil {
		c.Sector = im.sectors.Detect(strings.TrimSpace(c.Name + " " + c.Description))
	}
	if c.Geography == "" {
		geo, city := classify.Locate(c.Website, c.Description)
		c.Geography = geo
		if c.City == "" {
			c.City = city
		}
	}
	return c
}

func toSignal(companyID int64, s SignalEntry) (company.Signal, error) {
	meta, err := metadataJSON(s.Metadata)
	if err != nil {
		return company.Signal{}, err
	}
	layer := company.Layer(s.Layer)
	if layer == "" {
		layer = company.LayerRealtime
	}
	return company.Signal{
		CompanyID:  companyID,
		SourceType: s.SourceType,
		SourceName: s.SourceName,
		Layer:      layer,
		SourceURL:  s.URL,
		Title:      s.Title,
		Metadata:   meta,
		DetectedAt: s.DetectedAt,
	}, nil
}

func metadataJSON(v any) (string, error) {
	switch m := v.(type) {
	case nil:
		return "", nil
	case string:
		return m, nil
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return "", eris.Wrap(err, "seed: encode metadata")
		}
		return string(b), nil
	}
}

// inferred reports whether classification filled in a real sector or
// geography. Falling back to the Other or Unknown placeholder does not count.
func inferred(e CompanyEntry, c company.Company) bool {
	sector := e.Sector == "" && c.Sector != "" && c.Sector != company.SectorOther
	geo := e.Geography == "" && c.Geography != "" && c.Geography != company.GeographyUnknown
	return sector || geo
}
