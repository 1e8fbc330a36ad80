package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/Trindade2023/trindade-protocol/pkg/audit"
	"github.com/Trindade2023/trindade-protocol/pkg/config"
	"github.com/Trindade2023/trindade-protocol/pkg/evidence"
	"github.com/Trindade2023/trindade-protocol/pkg/notary"
	"github.com/Trindade2023/trindade-protocol/pkg/observability"
	"github.com/Trindade2023/trindade-protocol/pkg/pipeline"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
	"github.com/Trindade2023/trindade-protocol/pkg/sharding"
)

const evidenceCacheTTL = 15 * time.Minute

func loadPolicy(cfg *config.Config) (*policy.Policy, error) {
	if cfg.PolicyPath == "" {
		return policy.Default()
	}
	return policy.Load(cfg.PolicyPath)
}

// subsystems holds everything a command opened and must close.
type subsystems struct {
	orchestrator *pipeline.Orchestrator
	ledger       audit.Ledger
	telemetry    *observability.Provider
	closers      []func() error
}

func (s *subsystems) Close(ctx context.Context) error {
	var errs []error
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openSubsystems wires the orchestrator from process configuration.
func openSubsystems(ctx context.Context, cfg *config.Config) (_ *subsystems, err error) {
	logger := slog.Default().With("component", "seasa")
	s := &subsystems{}
	defer func() {
		if err != nil {
			_ = s.Close(ctx)
		}
	}()

	p, err := loadPolicy(cfg)
	if err != nil {
		return nil, err
	}

	ledger, err := audit.Open(ctx, cfg.Ledger, cfg.LedgerDSN)
	if err != nil {
		return nil, err
	}
	s.ledger = ledger
	s.closers = append(s.closers, ledger.Close)

	var oracle evidence.Oracle = evidence.NewReferenceOracle("reference", pipeline.ReferenceConfidence)
	if cfg.RedisAddr != "" {
		rdb := evidence.NewRedisCache(cfg.RedisAddr, "", 0)
		s.closers = append(s.closers, rdb.Close)
		oracle = evidence.NewCachedOracle("reference", oracle, rdb, evidenceCacheTTL)
		logger.Info("evidence cache enabled", "addr", cfg.RedisAddr)
	}
	reg := evidence.NewRegistry()
	if err := reg.Register("reference", oracle); err != nil {
		return nil, err
	}
	resolver := evidence.NewResolver(reg,
		evidence.WithLimiter(rate.NewLimiter(rate.Limit(cfg.EvidenceRPS), max(1, int(cfg.EvidenceRPS)))),
		evidence.WithLogger(logger.With("stage", "evidence")),
	)

	seed, err := cfg.NotarySeedBytes()
	if err != nil {
		return nil, err
	}
	var n *notary.JWTNotary
	if seed != nil {
		n, err = notary.New(notary.DefaultName, seed)
	} else {
		logger.Warn("SEASA_NOTARY_SEED not set; receipts are signed with an ephemeral key")
		n, err = notary.NewEphemeral(notary.DefaultName)
	}
	if err != nil {
		return nil, err
	}

	key, err := cfg.CollusionKeyBytes()
	if err != nil {
		return nil, err
	}
	var corr sharding.Correlator
	if key != nil {
		corr, err = sharding.NewKeyedCorrelator(key)
	} else {
		corr, err = sharding.NewRandomCorrelator()
	}
	if err != nil {
		return nil, fmt.Errorf("collusion key: %w", err)
	}

	otelCfg := observability.DefaultConfig()
	otelCfg.Enabled = cfg.OTelEnabled
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	otelCfg.ServiceVersion = version
	tp, err := observability.New(ctx, otelCfg)
	if err != nil {
		return nil, err
	}
	s.telemetry = tp

	o, err := pipeline.New(p, pipeline.Components{
		Resolver:   resolver,
		Notary:     n,
		Correlator: corr,
		Ledger:     ledger,
		Telemetry:  tp,
		Logger:     logger.With("stage", "pipeline"),
	})
	if err != nil {
		return nil, err
	}
	s.orchestrator = o
	return s, nil
}
