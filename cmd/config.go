// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/bmsbridge/internal/config"
)

var configDefaults bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after the file, environment and flags are applied,
as YAML. Passwords are masked.

With --default, print the built-in defaults instead; the output is a valid
config.yaml to start from.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configDefaults, "default", false, "Print the built-in defaults")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	c := cfg.Redacted()
	if configDefaults {
		c = config.Default()
	} else if cfg.Source != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", cfg.Source)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
