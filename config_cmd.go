package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/countrydata/rowsync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize the engine configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			var buf bytes.Buffer
			if err := toml.NewEncoder(&buf).Encode(cc.Cfg); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}

			fmt.Fprint(os.Stdout, buf.String())

			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to disk",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := flagConfigPath
			if path == "" {
				path = config.DefaultConfigPath()
			}

			if err := config.Write(config.DefaultConfig(), path); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			statusf(flagQuiet, "wrote default config to %s\n", path)

			return nil
		},
	}
}
