package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hawkfin/hawkd/internal/config"
	"github.com/hawkfin/hawkd/internal/store"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect recorded agent sessions",
	}

	cmd.AddCommand(newSessionListCmd())
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			sessions, err := store.NewSessionStore(db).List()
			if err != nil {
				return err
			}
			if limit > 0 && len(sessions) > limit {
				sessions = sessions[:limit]
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MESSAGE_UID\tSTATUS\tCATEGORY\tIDX\tTOKENS\tCREATED")
			for _, s := range sessions {
				tokens := "-"
				if s.TokenUsage != nil {
					tokens = fmt.Sprintf("%d", s.TokenUsage.Total())
				}
				category := s.TemplateCategory
				if category == "" {
					category = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					s.MessageUID, s.Status, category, s.TemplateIndex,
					tokens, s.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum sessions to print (0 for all)")
	return cmd
}

// openStore opens the configured SQLite database read-write.
func openStore() (*store.DB, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = paths.DB
	}
	return store.Open(dbPath, log)
}
