package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"approvals/internal/audit"
	"approvals/internal/dispatch"
	dispatchmetrics "approvals/internal/dispatch/metrics"
	"approvals/internal/document/handler"
	documentmetrics "approvals/internal/document/metrics"
	"approvals/internal/document/models"
	"approvals/internal/document/service"
	"approvals/internal/document/store"
	httpapi "approvals/internal/http"
	"approvals/internal/notify"
	"approvals/internal/platform/config"
	"approvals/internal/platform/database"
	"approvals/internal/platform/metrics"
	"approvals/internal/platform/redis"
	"approvals/internal/snapshot"
	"approvals/pkg/platform/circuit"
)

// documentStore is what the service and the dispatcher need together.
type documentStore interface {
	service.Store
	dispatch.Store
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// app holds the wired process. Components are built lazily by each command
// so `migrate` never dials SMTP and `dispatch` never opens a listener.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	db    *sql.DB
	store documentStore
	redis *redis.Client
	kafka *audit.KafkaStore
	audit *audit.Publisher

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return WrapExitError(ExitConfigError, "open database", err)
	}
	a.db = db

	switch a.cfg.Database.Driver {
	case config.DriverMemory:
		a.logger.WarnContext(ctx, "using in-memory document store; data is lost on exit")
		a.store = store.NewInMemory()
	case config.DriverPostgres, config.DriverPgx:
		a.store = store.NewPostgres(db)
	case config.DriverSQLite:
		a.store = store.NewSQLite(db)
	}
	if db != nil {
		a.closers = append(a.closers, func() { _ = db.Close() })
	}
	return nil
}

// Migrate applies the schema when the store has one.
func (a *app) Migrate(ctx context.Context) error {
	m, ok := a.store.(migrator)
	if !ok {
		a.logger.InfoContext(ctx, "store has no schema to migrate", "driver", a.cfg.Database.Driver)
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s store: %w", a.cfg.Database.Driver, err)
	}
	a.logger.InfoContext(ctx, "schema applied", "driver", a.cfg.Database.Driver)
	return nil
}

// Audit returns the process audit publisher, connecting to Kafka when
// brokers are configured and logging events otherwise.
func (a *app) Audit(ctx context.Context) (*audit.Publisher, error) {
	if a.audit != nil {
		return a.audit, nil
	}

	var sink audit.Store
	if len(a.cfg.Kafka.Brokers) > 0 {
		k, err := a.Kafka(ctx)
		if err != nil {
			return nil, err
		}
		sink = k
	} else {
		sink = audit.NewLogStore(a.logger)
	}

	a.audit = audit.NewPublisher(sink, audit.WithAsyncBuffer(1024), audit.WithLogger(a.logger))
	a.closers = append(a.closers, a.audit.Close)
	return a.audit, nil
}

// Kafka returns the audit topic producer.
func (a *app) Kafka(ctx context.Context) (*audit.KafkaStore, error) {
	if a.kafka != nil {
		return a.kafka, nil
	}
	k, err := audit.NewKafkaStore(a.cfg.Kafka.Brokers, a.cfg.Kafka.AuditTopic)
	if err != nil {
		return nil, WrapExitError(ExitConfigError, "connect kafka", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := k.Ping(pingCtx); err != nil {
		k.Close()
		return nil, WrapExitError(ExitConfigError, "ping kafka", err)
	}
	a.kafka = k
	a.closers = append(a.closers, k.Close)
	return k, nil
}

// Service builds the document service.
func (a *app) Service(ctx context.Context) (*service.Service, error) {
	publisher, err := a.Audit(ctx)
	if err != nil {
		return nil, err
	}
	return service.New(a.store,
		service.WithLogger(a.logger),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(documentmetrics.New(a.registry)),
	), nil
}

// Router builds the HTTP surface.
func (a *app) Router(ctx context.Context) (*httpapi.Deps, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	deps := &httpapi.Deps{
		Documents:      handler.New(svc, a.logger),
		Logger:         a.logger,
		Metrics:        metrics.New(a.registry),
		Gatherer:       a.registry,
		RequestTimeout: a.cfg.Dispatch.StoreTimeout * 2,
	}
	if a.db != nil {
		deps.HealthChecks = append(deps.HealthChecks, httpapi.HealthCheck{Name: "database", Check: a.db.PingContext})
	}
	if a.redis != nil {
		deps.HealthChecks = append(deps.HealthChecks, httpapi.HealthCheck{Name: "redis", Check: a.redis.Health})
	}
	return deps, nil
}

// Dispatcher builds the notification dispatcher with its lease, renderer
// and sender.
func (a *app) Dispatcher(ctx context.Context) (*dispatch.Dispatcher, error) {
	publisher, err := a.Audit(ctx)
	if err != nil {
		return nil, err
	}

	sender, err := a.sender()
	if err != nil {
		return nil, err
	}
	breaker := circuit.New("smtp",
		circuit.WithFailureThreshold(5),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
	)
	notifier := notify.New(sender, a.cfg.Dispatch.ActionBaseURL,
		notify.WithSubjects(subjects(a.cfg.Dispatch.Kinds)),
		notify.WithBreaker(breaker),
		notify.WithSendTimeout(a.cfg.Dispatch.SendTimeout),
		notify.WithLogger(a.logger),
	)

	lease, err := a.lease(ctx)
	if err != nil {
		return nil, err
	}

	return dispatch.New(a.store,
		snapshot.New(snapshot.WithLogger(a.logger)),
		notifier,
		a.cfg.Dispatch.Kinds,
		dispatch.SettingsFromConfig(a.cfg.Dispatch),
		dispatch.WithLease(lease),
		dispatch.WithAuditPublisher(publisher),
		dispatch.WithMetrics(dispatchmetrics.New(a.registry)),
		dispatch.WithLogger(a.logger),
	)
}

func (a *app) sender() (notify.Sender, error) {
	if a.cfg.SMTP.Host == "" {
		a.logger.Warn("SMTP_HOST not set; notifications are logged, not sent")
		return notify.NewLogSender(a.logger), nil
	}
	s, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     a.cfg.SMTP.Host,
		Port:     a.cfg.SMTP.Port,
		Username: a.cfg.SMTP.Username,
		Password: a.cfg.SMTP.Password,
		From:     a.cfg.SMTP.From,
		Timeout:  a.cfg.Dispatch.SendTimeout,
	})
	if err != nil {
		return nil, WrapExitError(ExitConfigError, "configure smtp", err)
	}
	return s, nil
}

func (a *app) lease(ctx context.Context) (dispatch.Lease, error) {
	if a.cfg.Redis.URL == "" {
		return dispatch.NoopLease{}, nil
	}
	client, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, WrapExitError(ExitConfigError, "connect redis", err)
	}
	a.redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	return dispatch.NewRedisLease(client.Client, dispatch.DefaultLeaseKey, a.cfg.Dispatch.LeaseTTL), nil
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func subjects(kinds []config.KindDescriptor) map[models.Kind]string {
	out := make(map[models.Kind]string, len(kinds))
	for _, k := range kinds {
		if k.Subject != "" {
			out[models.Kind(k.Kind)] = k.Subject
		}
	}
	return out
}
