package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pos_sync/internal/config"
	"pos_sync/internal/connectivity"
	"pos_sync/internal/localstore"
	"pos_sync/internal/logging"
	"pos_sync/internal/notify"
	"pos_sync/internal/redisqueue"
	"pos_sync/internal/remote/memstore"
	"pos_sync/internal/remote/pgstore"
	"pos_sync/internal/remote/rest"
	"pos_sync/internal/sales"
	"pos_sync/internal/syncer"
)

// app is the composition root shared by every command.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	store   *localstore.Store
	local   *sales.Local
	remote  sales.Remote
	pinger  connectivity.Pinger
	hub     *notify.Hub
	engine  *syncer.Engine
	monitor *connectivity.Monitor
	service *sales.Service

	closers []func() error
}

// newApp wires every component from the loaded configuration. forceOnline
// starts the monitor ONLINE regardless of the configured initial state, for
// one-shot commands the operator runs on purpose.
func newApp(ctx context.Context, opts *RootOptions, forceOnline bool) (_ *app, err error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("device_id", cfg.DeviceID))

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = localstore.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open local store", zap.String("path", cfg.Store.Path), zap.Error(err))
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	var queue sales.Queue = a.store.Queue()
	if cfg.Store.QueueBackend == config.QueueRedis {
		rq, err := redisqueue.New(ctx, cfg.Store.RedisURL, cfg.Store.RedisPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rq.Close)
		queue = rq
	}
	a.local = sales.NewLocal(a.store.Mirror(), queue)

	if err := a.openRemote(ctx); err != nil {
		return nil, err
	}
	if a.ephemeral() {
		// Sales synced into the in-memory remote vanish with the process, so
		// durable queued sales must never be drained into it.
		a.local = sales.NewLocal(sales.NewMemoryMirror(), sales.NewMemoryQueue())
	}

	a.hub = notify.NewHub(logger.Named("notify"))
	a.engine = syncer.New(a.local, a.remote, logger.Named("syncer"),
		syncer.WithNotifier(a.hub),
		syncer.WithBackoff(cfg.Sync.MinBackoff, cfg.Sync.MaxBackoff),
		syncer.WithRefreshAfterDrain(cfg.Sync.RefreshAfterDrain),
	)
	a.monitor = connectivity.NewMonitor(forceOnline || cfg.Connectivity.InitialOnline, a.engine, a.hub, logger.Named("connectivity"))
	a.engine.SetConnectivity(a.monitor)

	a.service = sales.NewService(a.local, a.remote, a.monitor, logger.Named("sales"),
		sales.WithDrainTrigger(a.engine),
		sales.WithDrawer(a.store.Drawer()),
		sales.WithNotifier(a.hub),
		sales.WithCashierID(cfg.CashierID),
		sales.WithLowStockThreshold(cfg.Sales.LowStockThreshold),
	)
	return a, nil
}

func (a *app) openRemote(ctx context.Context) error {
	switch a.cfg.Remote.Driver {
	case config.RemoteREST:
		c := rest.New(a.cfg.Remote.URL, a.cfg.Remote.APIKey, a.cfg.Remote.Timeout)
		a.closers = append(a.closers, c.Close)
		a.remote, a.pinger = c, c
	case config.RemotePostgres:
		s, err := pgstore.New(ctx, a.cfg.Remote.DatabaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		a.remote, a.pinger = s, s
	case config.RemoteMemory:
		// Demo mode: the remote store lives and dies with the process.
		a.logger.Warn("using in-memory remote store and queue, sales will not leave this process")
		a.remote = memstore.New()
	default:
		return fmt.Errorf("unknown remote driver %q", a.cfg.Remote.Driver)
	}
	return nil
}

// ephemeral reports demo mode: the remote store lives in this process.
func (a *app) ephemeral() bool {
	return a.cfg.Remote.Driver == config.RemoteMemory
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
