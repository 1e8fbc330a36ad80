package observability

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

var (
	AttrTransactionID = attribute.Key("seasa.transaction_id")
	AttrPhase         = attribute.Key("seasa.phase")
	AttrCriticality   = attribute.Key("seasa.criticality")
	AttrProfile       = attribute.Key("seasa.profile")
	AttrDomain        = attribute.Key("seasa.domain")
	AttrOutcome       = attribute.Key("seasa.outcome")
	AttrNotarization  = attribute.Key("seasa.notarization")
)

// PhaseAttributes labels a pipeline phase span.
func PhaseAttributes(phase contracts.Phase) []attribute.KeyValue {
	return []attribute.KeyValue{AttrPhase.String(phase.String())}
}

// DecisionAttributes labels a finished decision. The transaction id is
// left out to keep metric cardinality bounded.
func DecisionAttributes(rec *contracts.DecisionRecord) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCriticality.String(rec.Criticality.String()),
		AttrProfile.String(string(rec.Profile)),
		AttrDomain.String(string(rec.Domain)),
		AttrOutcome.String(rec.Status()),
		AttrNotarization.String(string(rec.NotarizationStatus)),
	}
}
