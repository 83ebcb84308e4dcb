package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"telestrations/internal/config"
	"telestrations/internal/db"
	"telestrations/internal/events"
	"telestrations/internal/gateway"
	"telestrations/internal/metrics"
	"telestrations/internal/registry"
	"telestrations/internal/rooms"
	"telestrations/internal/wshub"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ConfigureLogging sets the global logrus formatter and level.
func ConfigureLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// Run serves until ctx is cancelled, then shuts down the HTTP server, the
// gateway loop and the journal in that order.
func Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ConfigureLogging(cfg.LogLevel)
	log := logrus.WithField("component", "server")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := rooms.NewStore(rooms.Config{MaxDrawingBytes: cfg.MaxDrawingBytes})
	hub := wshub.NewHub()
	opts := gateway.Options{
		SweepInterval: cfg.SweepInterval,
		Metrics:       metrics.New(reg),
	}

	// Optional database connection
	var database *db.DB
	var journal *db.Journal
	if cfg.DatabaseURL != "" {
		d, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Warn("Failed to connect to database, running without journal")
		} else if err := d.Migrate(); err != nil {
			log.WithError(err).Warn("Migration failed, running without journal")
			d.Close()
		} else {
			database = d
			journal = db.NewJournal(d)
			opts.Journal = journal
			metrics.WatchJournalDrops(reg, journal.Dropped)
		}
	} else {
		log.Info("DATABASE_URL not set, running without journal")
	}

	gw := gateway.New(store, registry.New(), hub, events.NewBus(0), opts)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go gw.Run(loopCtx)

	journalCtx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()
	journalDone := make(chan struct{})
	if journal != nil {
		go func() {
			journal.Run(journalCtx)
			close(journalDone)
		}()
	} else {
		close(journalDone)
	}

	srv := New(cfg, store, hub, gw, database, reg)
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       10 * time.Minute,
	}

	errs := make(chan error, 1)
	go func() {
		log.Infof("Listening on http://%s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case runErr = <-errs:
		log.WithError(runErr).Error("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}

	// Hijacked WebSocket connections are not tracked by Shutdown.
	hub.CloseAll()

	stopLoop()
	<-gw.Done()
	stopJournal()
	<-journalDone
	if database != nil {
		database.Close()
	}
	store.Clear()

	return runErr
}
