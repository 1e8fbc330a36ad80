package policy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// RuleFacts is the activation a mission-priority rule is evaluated against.
type RuleFacts struct {
	Criticality contracts.Criticality
	Score       int
	Bias        float64
	Threshold   float64
	Domain      contracts.Domain
	Profile     contracts.Profile
}

func (f RuleFacts) activation() map[string]any {
	return map[string]any{
		"criticality": int64(f.Criticality),
		"score":       int64(f.Score),
		"bias":        f.Bias,
		"threshold":   f.Threshold,
		"domain":      string(f.Domain),
		"profile":     string(f.Profile),
	}
}

// MissionRules evaluates per-profile CEL rules that may supersede a
// candidate bias veto. Programs are compiled once and cached.
type MissionRules struct {
	env       *cel.Env
	mu        sync.RWMutex
	prgCache  map[string]cel.Program
	byProfile map[contracts.Profile][]string
}

// NewMissionRules compiles every rule up front so a bad table fails at load.
func NewMissionRules(profiles map[contracts.Profile]ProfilePolicy) (*MissionRules, error) {
	env, err := cel.NewEnv(
		cel.Variable("criticality", cel.IntType),
		cel.Variable("score", cel.IntType),
		cel.Variable("bias", cel.DoubleType),
		cel.Variable("threshold", cel.DoubleType),
		cel.Variable("domain", cel.StringType),
		cel.Variable("profile", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	r := &MissionRules{
		env:       env,
		prgCache:  make(map[string]cel.Program),
		byProfile: make(map[contracts.Profile][]string),
	}

	names := make([]string, 0, len(profiles))
	for p := range profiles {
		names = append(names, string(p))
	}
	sort.Strings(names)
	for _, name := range names {
		p := contracts.Profile(name)
		for i, expr := range profiles[p].MissionRules {
			if _, err := r.program(expr); err != nil {
				return nil, fmt.Errorf("profile %s rule %d: %w", p, i, err)
			}
		}
		r.byProfile[p] = append([]string(nil), profiles[p].MissionRules...)
	}
	return r, nil
}

// For returns the rule expressions of profile.
func (r *MissionRules) For(profile contracts.Profile) []string {
	return append([]string(nil), r.byProfile[profile]...)
}

// FirstMatch returns the first rule of facts.Profile that evaluates to true.
// An evaluation error stops the scan and is returned with no match, so the
// caller can fail closed.
func (r *MissionRules) FirstMatch(facts RuleFacts) (string, bool, error) {
	input := facts.activation()
	for _, expr := range r.byProfile[facts.Profile] {
		ok, err := r.eval(expr, input)
		if err != nil {
			return "", false, fmt.Errorf("mission rule %q: %w", expr, err)
		}
		if ok {
			return expr, true, nil
		}
	}
	return "", false, nil
}

func (r *MissionRules) program(expr string) (cel.Program, error) {
	r.mu.RLock()
	prg, hit := r.prgCache[expr]
	r.mu.RUnlock()
	if hit {
		return prg, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prg, hit = r.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := r.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule must be boolean, got %v", ast.OutputType())
	}
	p, err := r.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	r.prgCache[expr] = p
	return p, nil
}

func (r *MissionRules) eval(expr string, input map[string]any) (bool, error) {
	prg, err := r.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}
