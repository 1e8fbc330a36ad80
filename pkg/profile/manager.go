// Package profile holds the process-wide operational profile and its
// append-only transition log.
//
// Reads may run concurrently; a transition excludes both reads and other
// transitions. The log only records real movement: a signal that names the
// current profile, or no signal at all, leaves it untouched.
package profile

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
	"github.com/Trindade2023/trindade-protocol/pkg/textnorm"
)

type signal struct {
	profile  contracts.Profile
	keywords []string
}

// Manager owns the active profile.
type Manager struct {
	mu          sync.RWMutex
	current     contracts.Profile
	transitions []contracts.ProfileTransition

	signals    []signal
	thresholds map[contracts.Profile]float64
	clock      func() time.Time
	logger     *slog.Logger
}

// NewManager starts in the Standard profile.
func NewManager(p *policy.Policy) *Manager {
	m := &Manager{
		current:    contracts.ProfileStandard,
		thresholds: make(map[contracts.Profile]float64, len(contracts.Profiles)),
		clock:      time.Now,
		logger:     slog.Default().With("component", "profile"),
	}
	for _, prof := range contracts.Profiles {
		m.thresholds[prof] = p.Threshold(prof)
	}
	for _, s := range p.ContextSignals {
		m.signals = append(m.signals, signal{profile: s.Profile, keywords: textnorm.FoldAll(s.Keywords)})
	}
	return m
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// WithLogger sets the logger.
func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	m.logger = l
	return m
}

// Current returns the active profile.
func (m *Manager) Current() contracts.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Threshold is the bias threshold of the active profile.
func (m *Manager) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds[m.current]
}

// Snapshot returns the active profile and its threshold read atomically.
func (m *Manager) Snapshot() (contracts.Profile, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.thresholds[m.current]
}

// Detect returns the profile named by the first matching context signal.
// It does not change state.
func (m *Manager) Detect(text string) (contracts.Profile, string, bool) {
	folded := textnorm.Fold(text)
	for _, s := range m.signals {
		if kw, ok := textnorm.FirstMatch(folded, s.keywords); ok {
			return s.profile, kw, true
		}
	}
	return "", "", false
}

// DetectAndSetContext moves to the profile signalled by text, if any, and
// returns the profile in force afterwards.
func (m *Manager) DetectAndSetContext(text string) contracts.Profile {
	target, keyword, ok := m.Detect(text)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok {
		return m.current
	}
	m.transitionLocked(target, fmt.Sprintf("context signal %q", keyword))
	return m.current
}

// Override is an administrative transition. It reports whether the profile
// actually changed.
func (m *Manager) Override(to contracts.Profile, reason string) (bool, error) {
	if _, ok := m.thresholds[to]; !ok {
		return false, fmt.Errorf("profile: unknown profile %q", to)
	}
	if reason == "" {
		reason = "administrative override"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to, reason), nil
}

func (m *Manager) transitionLocked(to contracts.Profile, reason string) bool {
	if to == m.current {
		return false
	}
	t := contracts.ProfileTransition{
		Timestamp: m.clock().UTC(),
		From:      m.current,
		To:        to,
		Reason:    reason,
	}
	m.transitions = append(m.transitions, t)
	m.current = to
	m.logger.Info("profile transition", "from", t.From, "to", t.To, "reason", reason)
	return true
}

// Transitions returns a copy of the transition log.
func (m *Manager) Transitions() []contracts.ProfileTransition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contracts.ProfileTransition(nil), m.transitions...)
}
