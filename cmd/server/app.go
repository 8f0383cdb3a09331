package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	authhandler "obconsent/internal/authorize/handler"
	"obconsent/internal/authorize/metrics"
	"obconsent/internal/authorize/steps"
	"obconsent/internal/confirm"
	consentservice "obconsent/internal/consent/service"
	consentstore "obconsent/internal/consent/store"
	"obconsent/internal/oauth2ext"
	"obconsent/internal/platform/config"
	platformmetrics "obconsent/internal/platform/metrics"
	"obconsent/internal/platform/postgres"
	platformredis "obconsent/internal/platform/redis"
	"obconsent/internal/session"
	audit "obconsent/pkg/platform/audit"
	"obconsent/pkg/platform/audit/publishers/compliance"
	auditmemory "obconsent/pkg/platform/audit/store/memory"
	auditpostgres "obconsent/pkg/platform/audit/store/postgres"
	"obconsent/pkg/platform/httputil"
	"obconsent/pkg/platform/middleware/auth"
	"obconsent/pkg/platform/middleware/metadata"
	"obconsent/pkg/platform/middleware/request"
	"obconsent/pkg/platform/middleware/requesttime"
	"obconsent/pkg/platform/secrets"
)

const requestTimeout = 30 * time.Second

// instruments are the Prometheus collectors. Zero value disables metrics.
type instruments struct {
	http       *platformmetrics.Metrics
	authorize  *metrics.Metrics
	compliance *compliance.Metrics
}

func newInstruments() instruments {
	return instruments{
		http:       platformmetrics.New(),
		authorize:  metrics.New(),
		compliance: compliance.NewMetrics(),
	}
}

// app holds the wired components behind the HTTP surface.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  instruments
	db       *sql.DB
	redis    *platformredis.Client
	outbox   *auditpostgres.Store
	auditLog audit.Store
	sessions session.Store
	builder  *steps.Builder
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, m instruments) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: m}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		a.close()
		return nil, err
	}
	a.redis = rdb

	stepsFile, source, err := loadSteps(cfg.StepsFile)
	if err != nil {
		a.close()
		return nil, err
	}

	consents, err := a.consentService(ctx, stepsFile.Consents)
	if err != nil {
		a.close()
		return nil, err
	}

	if a.redis != nil {
		a.sessions = session.NewRedis(a.redis.Client)
	} else {
		a.sessions = session.NewInMemory(session.DefaultTTL)
	}

	a.builder = steps.NewBuilder(steps.DefaultRegistry(), source, steps.Deps{
		Consents: consents,
		Accounts: steps.StaticAccounts(stepsFile.Accounts),
		Logger:   logger,
		Metrics:  m.authorize,
	})
	pipeline := a.builder.Current()
	logger.InfoContext(ctx, "authorize pipeline ready",
		"retrieve", pipeline.RetrievalSteps(),
		"persist", pipeline.PersistSteps(),
	)
	return a, nil
}

// consentService selects the Postgres or in-memory consent store and the
// matching audit sink, then seeds fixture consents.
func (a *app) consentService(ctx context.Context, fixtures []config.ConsentFixture) (*consentservice.Service, error) {
	opts := []consentservice.Option{
		consentservice.WithLogger(a.logger),
		consentservice.WithCacheTTL(a.cfg.Consent.CacheTTL),
	}

	var store interface {
		consentservice.Store
		consentstore.Creator
	}
	if a.db != nil {
		if err := postgres.Migrate(ctx, a.db); err != nil {
			return nil, err
		}
		pg := consentstore.NewPostgres(a.db)
		store = pg
		opts = append(opts, consentservice.WithTx(pg))
		a.outbox = auditpostgres.New(a.db)
		a.auditLog = a.outbox
	} else {
		store = consentstore.NewInMemory()
		a.auditLog = auditmemory.NewInMemoryStore()
	}

	publisher := compliance.New(a.auditLog,
		compliance.WithLogger(a.logger),
		compliance.WithMetrics(a.metrics.compliance),
	)
	opts = append(opts, consentservice.WithAuditor(publisher))

	if len(fixtures) > 0 {
		n, err := consentstore.SeedConsents(ctx, store, fixtures, time.Now())
		if err != nil {
			return nil, fmt.Errorf("seed consents: %w", err)
		}
		a.logger.InfoContext(ctx, "seeded consents", "created", n, "fixtures", len(fixtures))
	}
	return consentservice.New(store, opts...), nil
}

// loadSteps returns the steps file contents and the source the builder reads.
// With no file configured the built-in pipeline is used.
func loadSteps(path string) (*config.StepsFile, steps.Source, error) {
	if path == "" {
		return &config.StepsFile{}, config.DefaultSteps(), nil
	}
	source := config.FileSource{Path: path}
	doc, err := source.Load()
	if err != nil {
		return nil, nil, err
	}
	return doc, source, nil
}

func (a *app) router() (http.Handler, error) {
	resumeURL, err := url.Parse(a.cfg.Persistence.AuthorizeEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse authorize endpoint: %w", err)
	}
	passwordHash, err := secrets.Resolve(a.cfg.Persistence.Password, a.cfg.Persistence.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("consent API credential: %w", err)
	}
	requireAPIAuth := auth.RequireBasicAuth(auth.Credentials{
		Username:     a.cfg.Persistence.Username,
		PasswordHash: passwordHash,
	}, secrets.Verify, a.logger)

	authorize := authhandler.New(a.builder, a.sessions, resumeURL,
		authhandler.WithAuditLog(a.auditLog),
		authhandler.WithLogger(a.logger),
	)
	persistence := confirm.NewPersistenceClient(
		a.cfg.Persistence.BaseURL,
		a.cfg.Persistence.Username,
		a.cfg.Persistence.Password,
		a.cfg.Persistence.ClientTimeout,
	)
	confirmHandler := confirm.New(persistence, a.sessions, a.cfg.Persistence.RetryPath,
		confirm.WithLogger(a.logger),
		confirm.WithMetrics(a.metrics.authorize),
	)
	hooks := oauth2ext.NewHandler(
		oauth2ext.NewScopeInjector(a.sessions, a.cfg.OAuth2.ConsentIDClaimPrefix,
			oauth2ext.WithRegulatedClients(a.cfg.OAuth2.RegulatedClientIDs...),
			oauth2ext.WithLogger(a.logger),
			oauth2ext.WithMetrics(a.metrics.authorize),
			oauth2ext.WithAuditLog(a.auditLog),
		),
		oauth2ext.NewCodeGrantHandler(nil, a.cfg.OAuth2.RegulatedClientIDs, a.cfg.OAuth2.ConsentIDClaimPrefix, nil),
		a.logger,
	)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(a.logger))
	r.Use(request.Recovery(a.logger))
	r.Use(platformmetrics.LatencyMiddleware(a.metrics.http))
	r.Use(request.Timeout(requestTimeout))

	r.Get("/health", a.handleHealth)
	r.Route("/api/consent/authorize", func(r chi.Router) {
		r.Use(requireAPIAuth, request.ContentTypeJSON)
		authorize.Register(r)
	})
	r.Route("/oauth2/ext", func(r chi.Router) {
		r.Use(requireAPIAuth, request.ContentTypeJSON)
		hooks.Register(r)
	})
	r.Route("/authenticationendpoint", confirmHandler.Register)
	return r, nil
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := map[string]string{"status": "ok"}
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			a.logger.WarnContext(ctx, "postgres health check failed", "error", err)
			status["status"], status["postgres"] = "degraded", "down"
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			a.logger.WarnContext(ctx, "redis health check failed", "error", err)
			status["status"], status["redis"] = "degraded", "down"
		}
	}
	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, status)
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
