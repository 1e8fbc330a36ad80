package pipeline

import (
	"time"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// Option adjusts a single Process call.
type Option func(*request)

type request struct {
	domain  contracts.Domain
	profile contracts.Profile
	budget  time.Duration
}

// WithDomainHint skips keyword detection and classifies the request under d.
func WithDomainHint(d contracts.Domain) Option {
	return func(r *request) { r.domain = d }
}

// WithProfile forces the operational profile before the request is
// classified. The change is an administrative override and is recorded in
// the profile transition log; context signals in the text are not applied.
func WithProfile(p contracts.Profile) Option {
	return func(r *request) { r.profile = p }
}

// WithTimeBudget bounds the evidence, engine, shard and notary calls of
// this request. Non-positive values keep the policy default.
func WithTimeBudget(d time.Duration) Option {
	return func(r *request) {
		if d > 0 {
			r.budget = d
		}
	}
}
