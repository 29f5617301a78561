package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	cctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "squeeze",
		Short:         "Batch re-encode large videos in a cloud-synced folder tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(cctx))
	rootCmd.AddCommand(newHistoryCommand(cctx))
	rootCmd.AddCommand(newEncodersCommand(cctx))
	rootCmd.AddCommand(newConfigCommand(cctx))

	return rootCmd
}
