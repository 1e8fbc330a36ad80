package risk

import (
	"context"
	"fmt"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// BiasMeter measures the bias of a draft in [0,1].
type BiasMeter interface {
	Measure(ctx context.Context, rc *contracts.RequestContract, draft *contracts.Draft) (float64, error)
}

// StaticBias always reports the same metric.
type StaticBias float64

// Measure implements BiasMeter.
func (s StaticBias) Measure(context.Context, *contracts.RequestContract, *contracts.Draft) (float64, error) {
	if s < 0 || s > 1 {
		return 0, fmt.Errorf("bias %v outside [0,1]", float64(s))
	}
	return float64(s), nil
}

// EvidenceBias is the share of a contract's evidence that is either a
// placeholder or untriangulated Empirical data. A contract with no evidence
// at all measures 1.
type EvidenceBias struct{}

// Measure implements BiasMeter.
func (EvidenceBias) Measure(_ context.Context, rc *contracts.RequestContract, _ *contracts.Draft) (float64, error) {
	total, weak := 0, 0
	for _, d := range rc.Evidence {
		if d == nil {
			continue
		}
		total++
		if d.IsPlaceholder() || !d.IsTriangulated() {
			weak++
		}
	}
	if total == 0 {
		return 1, nil
	}
	return float64(weak) / float64(total), nil
}
