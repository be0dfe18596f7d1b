package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hawkfin/hawkd/internal/config"
	"github.com/hawkfin/hawkd/internal/dashboard"
	"github.com/hawkfin/hawkd/internal/store"
)

func newDashboardCmd() *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the current dashboard KPI snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			filter := currency
			if filter == "" {
				filter = cfg.Dashboard.CurrencyFilter
			}

			rows, err := store.NewPositionStore(db).Snapshot(filter)
			if err != nil {
				return err
			}
			m := dashboard.NewAggregator(cfg.Dashboard.TopEntities, log).Compute(rows, filter)

			if filter != "" {
				fmt.Printf("Currency filter: %s\n", filter)
			}
			fmt.Printf("Positions: %d\n\n", m.Rows)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KPI\tVALUE\tCHANGE")
			fmt.Fprintf(w, "Total hedged\t%s\t%s\n", m.TotalHedged.Value, m.TotalHedged.Delta)
			fmt.Fprintf(w, "Active entities\t%d\t%+d\n", m.ActiveEntities.Value, m.ActiveEntities.Delta)
			fmt.Fprintf(w, "Risk alerts\t%d\t%+d\n", m.RiskAlerts.Value, m.RiskAlerts.Delta)
			fmt.Fprintf(w, "Hedge effectiveness\t%s%%\t%s\n",
				m.HedgeEffectiveness.Value, m.HedgeEffectiveness.Delta)
			if err := w.Flush(); err != nil {
				return err
			}

			if len(m.TopEntities) > 0 {
				fmt.Println("\nTop entity exposure:")
				for _, e := range m.TopEntities {
					fmt.Printf("  %-24s %s\n", e.Label, e.Amount)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "", "restrict aggregation to one currency code")
	return cmd
}
