package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	genesis "lendledger/config"
	"lendledger/core/events"
	"lendledger/gateway/middleware"
	"lendledger/gateway/routes"
	nativecommon "lendledger/native/common"
	"lendledger/observability"
	"lendledger/services/lending/engine"
	"lendledger/services/lending/server"
	"lendledger/services/lendingd/config"
	"lendledger/services/payoutd"
	"lendledger/storage"
)

// app bundles the wired components of the daemon.
type app struct {
	db        storage.Database
	adapter   *engine.LedgerAdapter
	outbox    *payoutd.Outbox
	processor *payoutd.Processor
	pauses    *nativecommon.Pauses
	handler   http.Handler
}

func newApp(ctx context.Context, cfg config.Config, gen *genesis.Genesis, logger *slog.Logger) (*app, error) {
	params, err := cfg.Lending.Params()
	if err != nil {
		return nil, fmt.Errorf("lending params: %w", err)
	}
	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Location())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	pauses := nativecommon.NewPauses(gen.PausedModules()...)
	outbox := payoutd.NewOutbox(db)
	procOpts := []payoutd.ProcessorOption{
		payoutd.WithLogger(logger.With(slog.String("component", "payoutd"))),
		payoutd.WithPollInterval(cfg.Payouts.PollInterval),
		payoutd.WithBatchSize(cfg.Payouts.BatchSize),
	}
	if cfg.Payouts.PoliciesPath != "" {
		policies, err := payoutd.LoadPolicies(cfg.Payouts.PoliciesPath)
		if err != nil {
			db.Close()
			return nil, err
		}
		enforcer, err := payoutd.NewPolicyEnforcer(policies)
		if err != nil {
			db.Close()
			return nil, err
		}
		procOpts = append(procOpts, payoutd.WithPolicies(enforcer))
	}
	processor := payoutd.NewProcessor(outbox, procOpts...)
	if pauses.IsPaused("payouts") {
		processor.Pause()
	}

	adapter := engine.NewLedgerAdapter(db, params,
		engine.WithDispatcher(outbox),
		engine.WithPauses(pauses),
		engine.WithLogger(logger.With(slog.String("component", "ledger"))),
		engine.WithEmitter(eventLogger(logger)),
	)
	if err := ensureInstantiated(ctx, adapter, gen, logger); err != nil {
		db.Close()
		return nil, err
	}

	if !cfg.Auth.IsEnabled() {
		logger.Warn("auth disabled: serving queries only, actions and payout admin are unavailable")
	}
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for name, limit := range cfg.RateLimits {
		limits[name] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	handler := routes.New(routes.Config{
		Service: server.New(adapter, logger.With(slog.String("component", "http")), middleware.SubjectFromRequest),
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.IsEnabled(),
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "lendingd",
			Enabled:     cfg.Observability.Metrics,
			LogRequests: cfg.Observability.LogRequests,
		}, logger),
		CORS:           middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		AdminScopes:    cfg.Auth.AdminScopes,
		Admin:          payoutd.NewAdminServer(processor),
		TraceTransport: cfg.Observability.Tracing,
	})

	return &app{
		db:        db,
		adapter:   adapter,
		outbox:    outbox,
		processor: processor,
		pauses:    pauses,
		handler:   handler,
	}, nil
}

// ensureInstantiated runs Instantiate from genesis on an empty ledger.
func ensureInstantiated(ctx context.Context, adapter *engine.LedgerAdapter, gen *genesis.Genesis, logger *slog.Logger) error {
	cfg, err := adapter.GetConfig(ctx)
	switch {
	case err == nil:
		if cfg.Owner != gen.Owner {
			logger.Warn("genesis owner differs from stored config; keeping stored owner",
				slog.String("account", cfg.Owner))
		}
		return nil
	case errors.Is(err, engine.ErrNotFound):
	default:
		return fmt.Errorf("load ledger config: %w", err)
	}
	if _, err := adapter.Instantiate(ctx, gen.Owner, gen.BaseInterestRate); err != nil {
		return fmt.Errorf("instantiate ledger: %w", err)
	}
	logger.Info("ledger instantiated", slog.String("account", gen.Owner))
	return nil
}

func eventLogger(logger *slog.Logger) events.Emitter {
	metrics := observability.Events()
	return events.EmitterFunc(func(evt events.Event) {
		built := evt.Event()
		if built == nil {
			return
		}
		metrics.RecordEvent(built.Type)
		logger.Info("ledger event",
			slog.String("type", built.Type),
			slog.Any("attributes", built.Attributes))
	})
}

func (a *app) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
