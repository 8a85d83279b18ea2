package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"laptop-lending/internal/audit"
	"laptop-lending/internal/auth"
	"laptop-lending/internal/config"
	"laptop-lending/internal/eventing"
	eventingmemory "laptop-lending/internal/eventing/infrastructure/memory"
	eventingrepo "laptop-lending/internal/eventing/infrastructure/postgres"
	lendingapp "laptop-lending/internal/lending/application"
	lending "laptop-lending/internal/lending/domain"
	lendingmemory "laptop-lending/internal/lending/infrastructure/memory"
	lendingrepo "laptop-lending/internal/lending/infrastructure/postgres"
	lendingevents "laptop-lending/internal/lending/interfaces/events"
	lendinghttp "laptop-lending/internal/lending/interfaces/http"
	"laptop-lending/internal/notify"
	"laptop-lending/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lending HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

// outboxStore is the union of what the publisher, dispatcher and metrics need.
type outboxStore interface {
	eventing.OutboxWriter
	eventing.OutboxStore
	CountPending(ctx context.Context) (int, error)
}

type deadLetterStore interface {
	eventing.DLQStore
	eventing.DLQReader
}

type backend struct {
	db     *sql.DB
	store  lending.Store
	outbox outboxStore
	dlq    deadLetterStore
	audit  lendinghttp.AuditStore
}

func openBackend(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*backend, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, state is kept in memory only")
		return &backend{
			store:  lendingmemory.NewStore(),
			outbox: eventingmemory.NewOutboxStore(cfg.Outbox.MaxAttempts),
			dlq:    eventingmemory.NewDLQStore(),
			audit:  audit.NewMemoryLogger(),
		}, nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &backend{
		db:     db,
		store:  lendingrepo.NewStore(db),
		outbox: eventingrepo.NewOutboxStore(db, eventingrepo.WithMaxAttempts(cfg.Outbox.MaxAttempts)),
		dlq:    eventingrepo.NewDLQStore(db),
		audit:  audit.NewRepository(db),
	}, nil
}

func (b *backend) Close() {
	if b.db != nil {
		_ = b.db.Close()
	}
}

// statsProxy lets metrics be built before the coordinator it reports on.
type statsProxy struct {
	coordinator *lendingapp.Coordinator
}

func (p *statsProxy) Stats() lendingapp.Stats {
	if p.coordinator == nil {
		return lendingapp.Stats{}
	}
	return p.coordinator.Stats()
}

func serve(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	stats := &statsProxy{}
	m := metrics.New(prometheus.DefaultRegisterer,
		metrics.WithStatsSource(stats),
		metrics.WithOutboxCounter(be.outbox.CountPending),
		metrics.WithLogger(logger),
	)

	notifier := lendingapp.NewNotifier(
		lendingapp.WithNotifierLogger(logger),
		lendingapp.WithFailureHook(m.SubscriberFailed),
	)
	coordinator, err := lendingapp.NewCoordinator(be.store,
		lendingapp.WithNotifier(notifier),
		lendingapp.WithLogger(logger),
		lendingapp.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	stats.coordinator = coordinator
	if err := coordinator.Load(ctx); err != nil {
		return fmt.Errorf("load lending state: %w", err)
	}
	if cfg.SeedFile != "" {
		if err := applySeed(ctx, coordinator, cfg.SeedFile, logger); err != nil {
			return err
		}
	}

	publisher, err := eventing.NewPublisher(be.outbox)
	if err != nil {
		return err
	}
	outboxObserver, err := lendingevents.NewOutboxObserver(publisher)
	if err != nil {
		return err
	}
	if _, err := outboxObserver.Attach(notifier); err != nil {
		return err
	}
	auditObserver, err := lendingevents.NewAuditObserver(be.audit)
	if err != nil {
		return err
	}
	if _, err := auditObserver.Attach(notifier); err != nil {
		return err
	}
	broker := lendinghttp.NewBroker(logger)
	if _, err := broker.Attach(notifier); err != nil {
		return err
	}

	sink, err := buildSink(cfg.Webhook, logger)
	if err != nil {
		return err
	}
	dispatcher, err := eventing.NewDispatcher(sink, be.outbox,
		eventing.WithDLQ(be.dlq),
		eventing.WithDispatchLogger(logger),
	)
	if err != nil {
		return err
	}
	go dispatcher.Run(ctx, cfg.Outbox.DispatchInterval, cfg.Outbox.BatchSize)
	if cfg.RetryInterval > 0 {
		go retryLoop(ctx, coordinator, cfg.RetryInterval, logger)
	}

	handlerOpts := []lendinghttp.HandlerOption{
		lendinghttp.WithAudit(be.audit),
		lendinghttp.WithHandlerLogger(logger),
		lendinghttp.WithDeadLetters(be.dlq),
		lendinghttp.WithStreams(
			lendinghttp.NewStreamHandler(broker, m),
			lendinghttp.NewWebSocketHandler(broker, m, logger, nil),
		),
	}
	if lister, ok := be.store.(lending.ReservationLister); ok && be.db != nil {
		handlerOpts = append(handlerOpts, lendinghttp.WithHistory(lister))
	}
	handler, err := lendinghttp.NewHandler(coordinator, handlerOpts...)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Use(lendinghttp.Instrument(m))
	handler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var root http.Handler = router
	if cfg.Auth.Disabled {
		logger.Warn("AUTH_DISABLED=true, API is unauthenticated")
	} else {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		root = auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy).Wrap(root)
	}
	root = lendinghttp.Logging(logger)(lendinghttp.RequestID(root))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	if err := coordinator.RetryPersistence(shutdownCtx); err != nil {
		logger.WithError(err).WithField("pending_writes", coordinator.PendingWrites()).Error("unsaved lending state at shutdown")
	}
	return nil
}

func buildSink(cfg config.WebhookConfig, logger logrus.FieldLogger) (eventing.Sink, error) {
	if cfg.URL == "" {
		return eventing.SinkFunc(func(_ context.Context, env eventing.Envelope) error {
			logger.WithFields(logrus.Fields{
				"event_type": env.EventType,
				"event_id":   env.EventID,
				"sequence":   env.Sequence,
			}).Debug("event dispatched")
			return nil
		}), nil
	}
	channel, err := notify.NewWebhookChannel(cfg.URL,
		notify.WithTimeout(cfg.Timeout),
		notify.WithSigningSecret(cfg.Secret),
	)
	if err != nil {
		return nil, err
	}
	tpl, err := notify.NewTemplate(cfg.Template)
	if err != nil {
		return nil, err
	}
	sink, err := notify.NewSink(channel, tpl,
		notify.WithDedupeWindow(cfg.DedupeWindow),
		notify.WithEventTypes(lendingapp.KindReservationCreated, lendingapp.KindReservationStatusChanged),
	)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

func retryLoop(ctx context.Context, coordinator *lendingapp.Coordinator, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if coordinator.PendingWrites() == 0 {
				continue
			}
			if err := coordinator.RetryPersistence(ctx); err != nil {
				logger.WithError(err).WithField("pending_writes", coordinator.PendingWrites()).Warn("persistence retry failed")
			}
		}
	}
}

func applySeed(ctx context.Context, coordinator *lendingapp.Coordinator, path string, logger logrus.FieldLogger) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	added := 0
	for _, device := range seed.Devices {
		_, err := coordinator.RegisterDevice(ctx, device)
		switch {
		case err == nil:
			added++
		case errors.Is(err, lending.ErrDuplicateDevice):
		default:
			return fmt.Errorf("seed device %q: %w", device.ID, err)
		}
	}
	for _, requester := range seed.Requesters {
		_, err := coordinator.RegisterRequester(ctx, requester)
		switch {
		case err == nil:
			added++
		case errors.Is(err, lending.ErrDuplicateRequester):
		default:
			return fmt.Errorf("seed requester %q: %w", requester.ID, err)
		}
	}
	logger.WithFields(logrus.Fields{"file": path, "added": added}).Info("seed applied")
	return nil
}
