package contracts

// Domain is the root knowledge domain a request is classified into.
type Domain string

const (
	DomainEngineering     Domain = "ENGINEERING"
	DomainMathematics     Domain = "MATHEMATICS"
	DomainPhysics         Domain = "PHYSICS"
	DomainComputerScience Domain = "COMPUTER_SCIENCE"
	DomainLaw             Domain = "LAW"
	DomainMedicine        Domain = "MEDICINE"
	DomainEthics          Domain = "ETHICS"
	DomainArts            Domain = "ARTS"
	DomainPhilosophy      Domain = "PHILOSOPHY"
	DomainBusiness        Domain = "BUSINESS"
	DomainMilitary        Domain = "MILITARY"
	DomainUnknown         Domain = "UNKNOWN"
)

// KnownDomains lists every domain the pipeline recognises.
var KnownDomains = []Domain{
	DomainEngineering, DomainMathematics, DomainPhysics, DomainComputerScience,
	DomainLaw, DomainMedicine, DomainEthics, DomainArts, DomainPhilosophy,
	DomainBusiness, DomainMilitary, DomainUnknown,
}

// ParseDomain returns DomainUnknown for anything unrecognised.
func ParseDomain(s string) Domain {
	for _, d := range KnownDomains {
		if string(d) == s {
			return d
		}
	}
	return DomainUnknown
}
