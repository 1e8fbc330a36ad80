// Package policy loads the versioned policy table that drives the gating
// pipeline: trigger lists, scoring constants, profile thresholds and
// mission-priority rules. Tables are schema-validated, SemVer-versioned and
// content-addressed.
package policy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Trindade2023/trindade-protocol/pkg/canonicalize"
	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// ErrInvalidPolicy wraps every load or validation failure.
var ErrInvalidPolicy = errors.New("invalid policy")

// SupportedVersions is the range of table versions this engine accepts.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

const schemaURL = "https://seasa.schemas.local/policy.schema.json"

//go:embed default.yaml
var defaultTable []byte

//go:embed schema.json
var schemaJSON string

// ComplexityPolicy holds the criticality scoring weights.
type ComplexityPolicy struct {
	AxiomWeight           float64   `yaml:"axiom_weight" json:"axiom_weight"`
	WordsPerPoint         float64   `yaml:"words_per_point" json:"words_per_point"`
	MissingEvidenceWeight float64   `yaml:"missing_evidence_weight" json:"missing_evidence_weight"`
	Breakpoints           []float64 `yaml:"breakpoints" json:"breakpoints"`
}

// DomainPolicy is the contract template for one domain.
type DomainPolicy struct {
	Axioms          []string `yaml:"axioms" json:"axioms"`
	SuccessCriteria []string `yaml:"success_criteria" json:"success_criteria"`
	Keywords        []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// ProfilePolicy is the bias threshold and mission rules of one profile.
type ProfilePolicy struct {
	BiasThreshold float64  `yaml:"bias_threshold" json:"bias_threshold"`
	MissionRules  []string `yaml:"mission_rules,omitempty" json:"mission_rules,omitempty"`
}

// ContextSignal moves the operational profile when any keyword matches.
type ContextSignal struct {
	Profile  contracts.Profile `yaml:"profile" json:"profile"`
	Keywords []string          `yaml:"keywords" json:"keywords"`
}

// ALARPPolicy holds the risk scoring increments and mitigation texts.
type ALARPPolicy struct {
	ExistentialProbability   int     `yaml:"existential_probability" json:"existential_probability"`
	MissingEvidenceIncrement int     `yaml:"missing_evidence_increment" json:"missing_evidence_increment"`
	LowConfidenceIncrement   int     `yaml:"low_confidence_increment" json:"low_confidence_increment"`
	LowConfidenceFloor       float64 `yaml:"low_confidence_floor" json:"low_confidence_floor"`
	TolerableMitigation      string  `yaml:"tolerable_mitigation,omitempty" json:"tolerable_mitigation,omitempty"`
	UnacceptableMitigation   string  `yaml:"unacceptable_mitigation,omitempty" json:"unacceptable_mitigation,omitempty"`
}

// ShardingPolicy configures blind sharding of CI_5 work.
type ShardingPolicy struct {
	Partitions         []string `yaml:"partitions" json:"partitions"`
	CollusionThreshold float64  `yaml:"collusion_threshold" json:"collusion_threshold"`
}

// NotarizationPolicy says when a record must carry a notary receipt.
type NotarizationPolicy struct {
	Profiles       []contracts.Profile `yaml:"profiles" json:"profiles"`
	MinCriticality int                 `yaml:"min_criticality" json:"min_criticality"`
}

// FirewallPolicy configures the input sanity filter.
type FirewallPolicy struct {
	MinLength         int      `yaml:"min_length" json:"min_length"`
	MaxLength         int      `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	ForbiddenPatterns []string `yaml:"forbidden_patterns" json:"forbidden_patterns"`
}

// InterlockPolicy configures human-approval holds.
type InterlockPolicy struct {
	ContainmentQuorum int           `yaml:"containment_quorum" json:"containment_quorum"`
	VetoQuorum        int           `yaml:"veto_quorum" json:"veto_quorum"`
	HoldTimeout       time.Duration `yaml:"hold_timeout" json:"hold_timeout"`
}

// Policy is one loaded, validated policy table.
type Policy struct {
	Version             string                              `yaml:"version" json:"version"`
	Name                string                              `yaml:"name" json:"name"`
	ExistentialTriggers []string                            `yaml:"existential_triggers" json:"existential_triggers"`
	Complexity          ComplexityPolicy                    `yaml:"complexity" json:"complexity"`
	DomainFloors        map[contracts.Domain]int            `yaml:"domain_floors,omitempty" json:"domain_floors,omitempty"`
	DefaultDomain       contracts.Domain                    `yaml:"default_domain" json:"default_domain"`
	DetectionOrder      []contracts.Domain                  `yaml:"detection_order,omitempty" json:"detection_order,omitempty"`
	Domains             map[contracts.Domain]DomainPolicy   `yaml:"domains" json:"domains"`
	Profiles            map[contracts.Profile]ProfilePolicy `yaml:"profiles" json:"profiles"`
	ContextSignals      []ContextSignal                     `yaml:"context_signals,omitempty" json:"context_signals,omitempty"`
	ALARP               ALARPPolicy                         `yaml:"alarp" json:"alarp"`
	Sharding            ShardingPolicy                      `yaml:"sharding" json:"sharding"`
	Notarization        NotarizationPolicy                  `yaml:"notarization" json:"notarization"`
	Firewall            FirewallPolicy                      `yaml:"firewall" json:"firewall"`
	Interlock           InterlockPolicy                     `yaml:"interlock" json:"interlock"`
	TimeBudget          time.Duration                       `yaml:"time_budget" json:"time_budget"`

	hash   string
	semver *semver.Version
	rules  *MissionRules
}

// Default returns the embedded policy table.
func Default() (*Policy, error) {
	return Parse(defaultTable)
}

// DefaultYAML returns the raw embedded table.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultTable...)
}

// Load reads a table from disk. An empty path loads the embedded default.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidPolicy, path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return p, nil
}

// Parse validates raw YAML against the table schema, decodes it, checks the
// semantic constraints the schema cannot express, and computes its hash.
func Parse(data []byte) (*Policy, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Policy
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidPolicy, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	h, err := canonicalize.CanonicalHash(&p)
	if err != nil {
		return nil, fmt.Errorf("%w: hash: %v", ErrInvalidPolicy, err)
	}
	p.hash = h
	return &p, nil
}

func validateSchema(data []byte) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("policy schema load failed: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("policy schema compile failed: %w", err)
	}

	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("%w: yaml: %v", ErrInvalidPolicy, err)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("%w: yaml to json: %v", ErrInvalidPolicy, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: json: %v", ErrInvalidPolicy, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return nil
}

func (p *Policy) validate() error {
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrInvalidPolicy, p.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return fmt.Errorf("%w: constraint: %v", ErrInvalidPolicy, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: version %s outside %s", ErrInvalidPolicy, v, SupportedVersions)
	}
	p.semver = v

	bp := p.Complexity.Breakpoints
	for i := 1; i < len(bp); i++ {
		if bp[i] <= bp[i-1] {
			return fmt.Errorf("%w: complexity breakpoints must be strictly ascending", ErrInvalidPolicy)
		}
	}
	if _, ok := p.Domains[p.DefaultDomain]; !ok {
		return fmt.Errorf("%w: default domain %s has no template", ErrInvalidPolicy, p.DefaultDomain)
	}
	for _, d := range p.DetectionOrder {
		if _, ok := p.Domains[d]; !ok {
			return fmt.Errorf("%w: detection domain %s has no template", ErrInvalidPolicy, d)
		}
	}
	if p.TimeBudget <= 0 {
		return fmt.Errorf("%w: time budget must be positive", ErrInvalidPolicy)
	}

	rules, err := NewMissionRules(p.Profiles)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	p.rules = rules
	return nil
}

// Hash is the JCS SHA-256 of the decoded table.
func (p *Policy) Hash() string { return p.hash }

// SemVer is the parsed table version.
func (p *Policy) SemVer() *semver.Version { return p.semver }

// Rules returns the compiled mission-priority rules.
func (p *Policy) Rules() *MissionRules { return p.rules }

// Threshold is the bias threshold of profile. Unknown profiles get the
// Standard threshold.
func (p *Policy) Threshold(profile contracts.Profile) float64 {
	if pp, ok := p.Profiles[profile]; ok {
		return pp.BiasThreshold
	}
	return p.Profiles[contracts.ProfileStandard].BiasThreshold
}

// Domain returns the template for d, falling back to the default domain.
func (p *Policy) Domain(d contracts.Domain) (contracts.Domain, DomainPolicy) {
	if dp, ok := p.Domains[d]; ok {
		return d, dp
	}
	return p.DefaultDomain, p.Domains[p.DefaultDomain]
}

// Floor is the minimum criticality of domain d, zero if none.
func (p *Policy) Floor(d contracts.Domain) contracts.Criticality {
	return contracts.Criticality(p.DomainFloors[d])
}

// NotarizationRequired reports whether a record decided under profile at
// criticality ci must be notarized.
func (p *Policy) NotarizationRequired(profile contracts.Profile, ci contracts.Criticality) bool {
	if int(ci) < p.Notarization.MinCriticality {
		return false
	}
	for _, allowed := range p.Notarization.Profiles {
		if allowed == profile {
			return true
		}
	}
	return false
}

// Quorum is the number of distinct approvers a hold needs, never less
// than one.
func (ip InterlockPolicy) Quorum(containment bool) int {
	if containment {
		return max(ip.ContainmentQuorum, 1)
	}
	return max(ip.VetoQuorum, 1)
}
