package company

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CrossLayerMatch is a company corroborated by signals from more than one
// layer.
type CrossLayerMatch struct {
	Company
	// Sources is the distinct source names, comma-joined in first-seen order.
	Sources     string   `json:"sources"`
	SourceCount int      `json:"source_count"`
	Layers      []Layer  `json:"layers"`
	Signals     []Signal `json:"signals"`
}

// IsCrossLayer reports whether signals span at least two distinct layers.
func IsCrossLayer(signals []Signal) bool {
	return len(distinctLayers(signals)) >= 2
}

// FindCrossLayer returns every company whose signals span two or more
// layers, ordered by distinct source count (descending) then name. It only
// reads from r.
func FindCrossLayer(ctx context.Context, r Reader) ([]CrossLayerMatch, error) {
	companies, err := r.ListCompanies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "company: cross-layer list")
	}

	matches := []CrossLayerMatch{}
	for _, c := range companies {
		signals, err := r.GetSignals(ctx, c.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "company: cross-layer signals for %d", c.ID)
		}
		if !IsCrossLayer(signals) {
			continue
		}
		layers := distinctLayers(signals)
		sources := distinctSources(signals)
		matches = append(matches, CrossLayerMatch{
			Company:     c,
			Sources:     strings.Join(sources, ","),
			SourceCount: len(sources),
			Layers:      layers,
			Signals:     signals,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].SourceCount != matches[j].SourceCount {
			return matches[i].SourceCount > matches[j].SourceCount
		}
		return matches[i].Name < matches[j].Name
	})

	zap.L().Info("crosslayer: detection complete",
		zap.Int("companies", len(companies)),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// SignalsByLayer returns up to limit signals of the given layer, in order.
func (m *CrossLayerMatch) SignalsByLayer(layer Layer, limit int) []Signal {
	var out []Signal
	for _, s := range m.Signals {
		if s.Layer != layer {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func distinctLayers(signals []Signal) []Layer {
	seen := make(map[Layer]struct{})
	var layers []Layer
	for _, s := range signals {
		if s.Layer == "" {
			continue
		}
		if _, ok := seen[s.Layer]; ok {
			continue
		}
		seen[s.Layer] = struct{}{}
		layers = append(layers, s.Layer)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i] < layers[j] })
	return layers
}

func distinctSources(signals []Signal) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, s := range signals {
		if _, ok := seen[s.SourceName]; ok {
			continue
		}
		seen[s.SourceName] = struct{}{}
		names = append(names, s.SourceName)
	}
	return names
}
