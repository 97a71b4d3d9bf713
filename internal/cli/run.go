package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillvault/syncwire/events"
	"github.com/quillvault/syncwire/internal/api"
	"github.com/quillvault/syncwire/internal/identity"
	"github.com/quillvault/syncwire/internal/logger"
	"github.com/quillvault/syncwire/internal/storage"
	"github.com/quillvault/syncwire/internal/utils"
	"github.com/quillvault/syncwire/stats"
	"github.com/quillvault/syncwire/synclib"
)

const (
	defaultPrometheusBindTo   = "127.0.0.1:9641"
	defaultPrometheusHTTPPath = "/metrics"
	defaultMetricPrefix       = "syncwire"
	defaultStatsdTagFormat    = "datadog"

	defaultIdentityTimeout = 10 * time.Second

	databasePingTimeout = 10 * time.Second
)

type Run struct {
	ConfigPath string `kong:"arg,required,type='existingfile',help='Path to config file.',name='config-path'"` //nolint: lll
}

func (r Run) Run(_ *CLI, version string) error { //nolint: funlen,cyclop
	conf, err := utils.ReadConfig(r.ConfigPath)
	if err != nil {
		return fmt.Errorf("cannot parse config: %w", err)
	}

	log := logger.New(os.Stderr, conf.Debug.Get(false))
	log.BindStr("version", version).Info("starting")
	log.Debug(conf.String())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	observerFactories := []events.ObserverFactory{}

	if conf.Stats.Prometheus.Enabled.Get(false) {
		factory := stats.NewPrometheus(
			conf.Stats.Prometheus.MetricPrefix.Get(defaultMetricPrefix),
			conf.Stats.Prometheus.HTTPPath.Get(defaultPrometheusHTTPPath),
			version)

		listener, err := utils.NewListener(conf.Stats.Prometheus.BindTo.Get(defaultPrometheusBindTo))
		if err != nil {
			return fmt.Errorf("cannot start prometheus listener: %w", err)
		}

		go factory.Serve(listener) //nolint: errcheck

		defer factory.Close()

		observerFactories = append(observerFactories, factory.Make)
	}

	if conf.Stats.StatsD.Enabled.Get(false) {
		factory, err := stats.NewStatsd(
			conf.Stats.StatsD.Address.Get(""),
			conf.Stats.StatsD.MetricPrefix.Get(defaultMetricPrefix),
			conf.Stats.StatsD.TagFormat.Get(defaultStatsdTagFormat))
		if err != nil {
			return fmt.Errorf("cannot start statsd client: %w", err)
		}

		defer factory.Close()

		observerFactories = append(observerFactories, factory.Make)
	}

	eventStream := events.NewEventStream(observerFactories)
	defer eventStream.Shutdown()

	verifier := identity.NewVerifier(
		conf.Identity.Endpoint.Get(""),
		conf.Identity.Timeout.Get(defaultIdentityTimeout))

	var notes synclib.NoteStore
	var folders synclib.FolderStore

	if conf.Database.Enabled.Get(false) {
		pg, err := storage.NewPostgres(conf.Database.DSN)
		if err != nil {
			return fmt.Errorf("cannot open database: %w", err)
		}

		defer pg.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, databasePingTimeout)
		err = pg.Ping(pingCtx)

		pingCancel()

		if err != nil {
			return fmt.Errorf("cannot reach database: %w", err)
		}

		notes, folders = pg.Notes(), pg.Folders()
	} else {
		log.Warning("database is disabled, using in-memory stores")

		notes, folders = storage.NewMemoryNoteStore(), storage.NewMemoryFolderStore()
	}

	acceptPerSecond := 0.0
	if conf.WebSocket.AcceptRateLimit.Enabled.Get(false) {
		acceptPerSecond = float64(conf.WebSocket.AcceptRateLimit.PerSecond.Get(0))
	}

	manager, err := synclib.NewManager(synclib.ManagerOpts{
		Logger:                log,
		EventStream:           eventStream,
		TokenVerifier:         verifier,
		Notes:                 notes,
		Folders:               folders,
		MaxConnectionsPerUser: conf.WebSocket.MaxConnectionsPerUser.Get(0),
		RateLimitMax:          conf.WebSocket.RateLimit.Max.Get(0),
		RateLimitWindow:       conf.WebSocket.RateLimit.Window.Get(0),
		AuthTimeout:           conf.WebSocket.AuthTimeout.Get(0),
		VerifyTimeout:         conf.Identity.Timeout.Get(0),
		MaxFrameSize:          conf.WebSocket.MaxFrameSize.Get(0),
		WriteTimeout:          conf.WebSocket.WriteTimeout.Get(0),
		Concurrency:           conf.WebSocket.Concurrency.Get(0),
		AcceptRatePerSecond:   acceptPerSecond,
		AcceptRateBurst:       int(conf.WebSocket.AcceptRateLimit.Burst.Get(0)),
		ReplayWindow:          conf.Replay.Window.Get(0),
		ReplayFutureSkew:      conf.Replay.FutureSkew.Get(0),
		ReplayMaxEntries:      int(conf.Replay.MaxEntries.Get(0)),
		ReplaySweepEach:       conf.Replay.SweepEach.Get(0),
	})
	if err != nil {
		return fmt.Errorf("cannot build a manager: %w", err)
	}

	listener, err := utils.NewListener(conf.BindTo.Get(""))
	if err != nil {
		return fmt.Errorf("cannot start listener: %w", err)
	}

	server := api.NewServer(manager, log)

	go server.Serve(listener) //nolint: errcheck

	log.BindStr("bind-to", conf.BindTo.Get("")).Info("engine is listening")

	<-ctx.Done()

	log.Info("shutting down")

	server.Close()
	manager.Shutdown()

	return nil
}
