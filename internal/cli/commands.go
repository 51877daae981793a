package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pos_sync/internal/config"
	"pos_sync/internal/remote/pgstore"
	"pos_sync/internal/sales"
)

var errEphemeralRemote = errors.New("in-memory remote store")

// NewDrainCommand creates the drain command.
func NewDrainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Synchronize queued sales once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.ephemeral() {
				return fmt.Errorf("%w: drain needs a durable remote store, configured driver is %s", errEphemeralRemote, config.RemoteMemory)
			}

			report := a.engine.DrainOnce(cmd.Context())
			if err := writeJSON(cmd.OutOrStdout(), map[string]any{
				"report": report,
				"status": a.engine.Status(),
			}); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d sales failed to sync, %d still queued", report.Failed, report.Remaining)
			}
			return nil
		},
	}
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the offline transaction queue",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List pending sales in sync order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			txs, err := a.local.Queue.ListAll(cmd.Context())
			if err != nil && !errors.Is(err, sales.ErrInvalidRecord) {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), txs)
			}
			return writeQueueTable(cmd.OutOrStdout(), txs, a.cfg.Sales.Currency, a.cfg.Sales.CurrencyExponent)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	cmd.AddCommand(list)
	return cmd
}

// NewMigrateCommand creates the migrate command. It only applies to the
// postgres remote driver.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the remote sales tables on PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			pg, ok := a.remote.(*pgstore.Store)
			if !ok {
				return fmt.Errorf("migrate requires the %s remote driver, configured driver is %s", config.RemotePostgres, a.cfg.Remote.Driver)
			}
			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "remote schema up to date")
			return nil
		},
	}
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Replace the local product mirror with the remote product list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.RefreshMirror(cmd.Context()); err != nil {
				return err
			}
			products, err := a.local.Mirror.List(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d products\n", len(products))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeQueueTable(w io.Writer, txs []sales.OfflineTransaction, currency string, exponent int32) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tITEMS\tTOTAL")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", tx.ID, tx.Timestamp.Format("2006-01-02 15:04:05"), len(tx.Items), tx.Total.Format(currency, exponent))
	}
	return tw.Flush()
}
