package evidence

import (
	"context"
	"fmt"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// StaticOracle answers from a fixed fact table at a single tier. With a nil
// Facts table it answers every query with generated reference text.
type StaticOracle struct {
	Source       string
	Tier         contracts.EvidenceTier
	Confidence   float64
	Corroborates bool
	Facts        map[string]string
}

// NewReferenceOracle returns an Axiomatic oracle that answers everything.
func NewReferenceOracle(source string, confidence float64) *StaticOracle {
	return &StaticOracle{
		Source:       source,
		Tier:         contracts.TierAxiomatic,
		Confidence:   confidence,
		Corroborates: true,
	}
}

// Fetch implements Oracle.
func (o *StaticOracle) Fetch(ctx context.Context, query string, tier contracts.EvidenceTier) (*contracts.Datum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tier != o.Tier {
		return nil, ErrEvidenceUnavailable
	}
	content := fmt.Sprintf("Reference data for %q", query)
	if o.Facts != nil {
		fact, ok := o.Facts[query]
		if !ok {
			return nil, ErrEvidenceUnavailable
		}
		content = fact
	}
	return &contracts.Datum{
		Query:      query,
		Content:    content,
		Tier:       o.Tier,
		Source:     o.Source,
		Confidence: o.Confidence,
	}, nil
}

// Triangulate implements Oracle.
func (o *StaticOracle) Triangulate(_ context.Context, _ *contracts.Datum) bool {
	return o.Corroborates
}
