package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stupiduntilnot/tldrbot/internal/config"
)

func newModelsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the configured backend serves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(v, config.SkipCommander())
			if err != nil {
				return err
			}
			defer a.Close()

			provider, err := newModelProvider(cmd.Context(), &a.cfg)
			if err != nil {
				return err
			}
			ids, err := provider.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
