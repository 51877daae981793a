package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pos_sync/api"
	"pos_sync/internal/connectivity"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the register API, connectivity monitor and sync engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *RootOptions) error {
	a, err := newApp(ctx, opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.monitor.Online() {
		if err := a.engine.RefreshMirror(ctx); err != nil {
			a.logger.Warn("initial product refresh skipped", zap.Error(err))
		}
	}

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.InitRoutes(router, api.Deps{
		Service:          a.service,
		Local:            a.local,
		Engine:           a.engine,
		Monitor:          a.monitor,
		Drawer:           a.store.Drawer(),
		Hub:              a.hub,
		Logger:           a.logger.Named("api"),
		Currency:         a.cfg.Sales.Currency,
		CurrencyExponent: a.cfg.Sales.CurrencyExponent,
	})
	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: router}

	g, ctx := errgroup.WithContext(ctx)
	signals := make(chan bool)

	g.Go(func() error { return a.engine.Run(ctx) })
	g.Go(func() error { return a.monitor.Run(ctx, signals) })

	if a.pinger != nil && !a.cfg.Connectivity.DisableProbe {
		prober := connectivity.NewProber(a.pinger, a.cfg.Connectivity.ProbeInterval, a.cfg.Connectivity.ProbeTimeout, a.logger.Named("probe"))
		g.Go(func() error { return prober.Run(ctx, signals) })
	}

	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	a.logger.Info("register stopped", zap.Error(err))
	return err
}
