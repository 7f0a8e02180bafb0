package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stupiduntilnot/tldrbot/internal/config"
	"github.com/stupiduntilnot/tldrbot/internal/db"
	"github.com/stupiduntilnot/tldrbot/internal/eventtree"
)

func newEventsCmd(v *viper.Viper) *cobra.Command {
	var (
		id       int64
		rootType string
		opts     eventtree.Options
		asJSON   bool
		list     bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the event tree of a summary run",
		Long: "Print the event tree rooted at --id, or at the latest root event of\n" +
			"--root-type when no id is given. With --list, print a table of recent\n" +
			"summary runs instead.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(v, config.SkipCommander())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if list {
				runs, err := eventtree.Runs(ctx, a.db, limit)
				if err != nil {
					return err
				}
				return eventtree.WriteRuns(cmd.OutOrStdout(), runs)
			}

			rootID := id
			if rootID == 0 {
				if rootID, err = eventtree.LatestRoot(ctx, a.db, rootType); err != nil {
					return err
				}
			}
			root, err := eventtree.Load(ctx, a.db, rootID)
			if err != nil {
				return err
			}
			if asJSON {
				return eventtree.WriteJSON(cmd.OutOrStdout(), root, opts)
			}
			eventtree.WriteTree(cmd.OutOrStdout(), root, opts)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "root event id (default: latest root of --root-type)")
	cmd.Flags().StringVar(&rootType, "root-type", db.EventSummaryStarted, "event type used to find the latest root")
	cmd.Flags().IntVarP(&opts.MaxDepth, "depth", "L", 0, "max display depth (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.NoPayload, "no-payload", false, "hide payloads")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&list, "list", false, "list recent summary runs")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs shown by --list")
	return cmd
}
