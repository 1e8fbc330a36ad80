package contracts

// EvidenceTier grades how strongly a datum is grounded.
type EvidenceTier string

const (
	TierAxiomatic  EvidenceTier = "AXIOMATIC"
	TierEmpirical  EvidenceTier = "EMPIRICAL"
	TierUnverified EvidenceTier = "UNVERIFIED"
)

// TierOrder is the order in which oracles are asked for a datum.
var TierOrder = []EvidenceTier{TierAxiomatic, TierEmpirical, TierUnverified}

// MinTriangulationSources is the number of independent sources an
// Empirical datum needs before it counts as triangulated.
const MinTriangulationSources = 3

// PlaceholderSource is the source of the zero-confidence datum returned
// when no oracle could answer.
const PlaceholderSource = "System"

// Datum is one confidence-tagged piece of evidence for a query.
type Datum struct {
	Query                string       `json:"query"`
	Content              string       `json:"content"`
	Tier                 EvidenceTier `json:"tier"`
	Source               string       `json:"source"`
	Confidence           float64      `json:"confidence"`
	TriangulationSources []string     `json:"triangulation_sources,omitempty"`
}

// IsTriangulated is trivially true for non-Empirical tiers.
func (d *Datum) IsTriangulated() bool {
	if d.Tier != TierEmpirical {
		return true
	}
	return len(uniqueStrings(d.TriangulationSources)) >= MinTriangulationSources
}

// IsPlaceholder reports whether d stands in for missing evidence.
func (d *Datum) IsPlaceholder() bool {
	return d.Source == PlaceholderSource && d.Confidence == 0
}

// AddTriangulationSource records an independent source once.
func (d *Datum) AddTriangulationSource(source string) {
	for _, s := range d.TriangulationSources {
		if s == source {
			return
		}
	}
	d.TriangulationSources = append(d.TriangulationSources, source)
}

// Clone returns a deep copy.
func (d *Datum) Clone() *Datum {
	if d == nil {
		return nil
	}
	c := *d
	c.TriangulationSources = append([]string(nil), d.TriangulationSources...)
	return &c
}

func uniqueStrings(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		out[s] = struct{}{}
	}
	return out
}
