package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:          "tldrbot",
		Short:        "Telegram bot that DMs streaming TLDR summaries of recent chat history",
		SilenceUsage: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.String("db", "", "SQLite database path (TLDR_DB_PATH)")
	flags.String("log-level", "", "log level: debug, info, warn, error (TLDR_LOG_LEVEL)")
	flags.String("log-file", "", "JSON log file (TLDR_LOG_FILE)")
	_ = v.BindPFlag("TLDR_DB_PATH", flags.Lookup("db"))
	_ = v.BindPFlag("TLDR_LOG_LEVEL", flags.Lookup("log-level"))
	_ = v.BindPFlag("TLDR_LOG_FILE", flags.Lookup("log-file"))

	rootCmd.AddCommand(
		newServeCmd(v),
		newModelsCmd(v),
		newSummarizeCmd(v),
		newEventsCmd(v),
	)
	return rootCmd
}
