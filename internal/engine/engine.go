package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/burnwatch/burnwatch/internal/config"
	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/domain/budget"
	"github.com/burnwatch/burnwatch/internal/domain/slo"
	"github.com/burnwatch/burnwatch/internal/pkg/logger"
	"github.com/burnwatch/burnwatch/internal/pkg/metrics"
	"github.com/burnwatch/burnwatch/internal/repository/sqlstore"
	"github.com/burnwatch/burnwatch/internal/services"
	"github.com/burnwatch/burnwatch/internal/worker"
)

// Engine bundles the SLO manager, cost tracker and alert dispatcher
// behind one constructed-once handle. Everything is wired here and
// passed down explicitly.
type Engine struct {
	SLO    slo.Service
	Costs  budget.Service
	Alerts alert.Dispatcher

	cfg       *config.Config
	logger    *logger.Logger
	scheduler *worker.Scheduler
	watcher   *worker.RulesWatcher
	opsServer *http.Server
	db        *sql.DB
}

// New wires the engine from configuration and applies the declarations
// file.
func New(cfg *config.Config, log *logger.Logger) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		logger: log,
	}

	var alertRepo alert.Repository
	var costRepo budget.Repository
	if cfg.Storage.Enabled {
		db, err := sqlstore.New(sqlstore.Config{
			Driver:          cfg.Storage.Driver,
			Path:            cfg.Storage.Path,
			Host:            cfg.Storage.Host,
			Port:            cfg.Storage.Port,
			User:            cfg.Storage.User,
			Password:        cfg.Storage.Password,
			Name:            cfg.Storage.Name,
			SSLMode:         cfg.Storage.SSLMode,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		e.db = db
		alertRepo = sqlstore.NewAlertRepository(db, cfg.Storage.Driver)
		costRepo = sqlstore.NewCostRepository(db, cfg.Storage.Driver)
	}

	var pruner worker.Pruner
	if cfg.Engine.AlertingEnabled {
		notifier := services.NewNotificationService(services.NotificationConfig{
			SlackWebhookURL:     cfg.Notifications.SlackWebhookURL,
			SendGridAPIKey:      cfg.Notifications.SendGridAPIKey,
			EmailFrom:           cfg.Notifications.EmailFrom,
			EmailTo:             cfg.Notifications.EmailTo,
			PagerDutyRoutingKey: cfg.Notifications.PagerDutyRoutingKey,
			WebhookURL:          cfg.Notifications.WebhookURL,
			WebhookSecret:       cfg.Notifications.WebhookSecret,
			DeliveriesPerMinute: cfg.Notifications.DeliveriesPerMinute,
		}, log)
		dispatcher := services.NewAlertDispatcher(notifier, alertRepo, log)
		if err := dispatcher.LoadHistory(context.Background()); err != nil {
			log.ErrorWithErr(err, "Failed to restore alert history")
		}
		e.Alerts = dispatcher
		pruner = dispatcher
	} else {
		e.Alerts = services.NewDisabledDispatcher()
	}

	e.SLO = services.NewSLOManager(e.Alerts, log)
	tracker := services.NewCostTracker(e.Alerts, costRepo, log)
	if err := tracker.LoadEvents(context.Background()); err != nil {
		log.ErrorWithErr(err, "Failed to restore cost events")
	}
	e.Costs = tracker
	e.scheduler = worker.NewScheduler(e.SLO, e.Costs, pruner, cfg.Engine.TickInterval, log)

	if err := e.ApplyDeclarations(); err != nil {
		return nil, err
	}
	return e, nil
}

// ApplyDeclarations loads the declarations file and applies its
// targets, budgets and rules. Safe to call again on hot reload;
// declarations replace by identity.
func (e *Engine) ApplyDeclarations() error {
	decls, err := config.LoadDeclarations(e.cfg.Engine.DeclarationsPath)
	if err != nil {
		return err
	}

	for _, target := range decls.SLOTargets {
		if err := e.SLO.AddTarget(target); err != nil {
			return fmt.Errorf("declaration %s/%s: %w", target.Service, target.Metric, err)
		}
	}
	for _, b := range decls.Budgets {
		if err := e.Costs.SetBudget(b); err != nil {
			return fmt.Errorf("budget declaration %s: %w", b.Service, err)
		}
	}
	for _, rule := range decls.AlertRules {
		if rule.ID != "" {
			ok, err := e.Alerts.UpdateRule(rule)
			if err != nil {
				return fmt.Errorf("rule declaration %s: %w", rule.Name, err)
			}
			if ok {
				continue
			}
		}
		if _, err := e.Alerts.AddRule(rule); err != nil {
			return fmt.Errorf("rule declaration %s: %w", rule.Name, err)
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"targets": len(decls.SLOTargets),
		"budgets": len(decls.Budgets),
		"rules":   len(decls.AlertRules),
	}).Info("Declarations applied")

	return nil
}

// Start starts the scheduler, the declarations watcher and the ops
// listener. Non-blocking.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.scheduler.Start(); err != nil {
		return err
	}

	if e.cfg.Engine.WatchDeclarations {
		watcher, err := worker.NewRulesWatcher(e.cfg.Engine.DeclarationsPath, e.logger)
		if err != nil {
			return err
		}
		e.watcher = watcher
		go func() {
			if err := watcher.Watch(ctx, e.ApplyDeclarations); err != nil {
				e.logger.ErrorWithErr(err, "Declarations watcher exited")
			}
		}()
	}

	e.opsServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", e.cfg.Ops.Host, e.cfg.Ops.Port),
		Handler:      e.opsRouter(),
		ReadTimeout:  e.cfg.Ops.ReadTimeout,
		WriteTimeout: e.cfg.Ops.WriteTimeout,
	}
	go func() {
		e.logger.Infof("Ops listener on %s", e.opsServer.Addr)
		if err := e.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.ErrorWithErr(err, "Ops listener failed")
		}
	}()

	return nil
}

// Shutdown stops the watcher and scheduler, drains the ops listener and
// closes the audit store.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.watcher != nil {
		if err := e.watcher.Stop(); err != nil {
			e.logger.ErrorWithErr(err, "Failed to stop declarations watcher")
		}
	}
	e.scheduler.Stop()

	if e.opsServer != nil {
		if err := e.opsServer.Shutdown(ctx); err != nil {
			e.logger.ErrorWithErr(err, "Failed to drain ops listener")
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			return fmt.Errorf("failed to close audit store: %w", err)
		}
	}

	e.logger.Info("Engine stopped")
	return nil
}

func (e *Engine) opsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}
