package main

import (
	"github.com/spf13/cobra"

	"github.com/zeusync/intellitrack/internal/config"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "intellitrack",
		Short:         "Track detected objects across camera scenes",
		Version:       version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (.yaml, .yml or .toml; defaults apply when empty)")

	load := func() (*config.Config, error) {
		if cfgFile == "" {
			return config.Defaults(), nil
		}
		return config.Load(cfgFile)
	}
	root.AddCommand(newRunCmd(load), newInspectCmd(load))
	return root
}
