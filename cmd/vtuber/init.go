package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vtuber/internal/config"
	"vtuber/internal/persona"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file and persona directory",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Fprintln(out, warnStyle.Render(cfgPath+" already exists, leaving it unchanged"))
	} else {
		// Defaults only; keys from the environment stay out of the file.
		if err := config.DefaultConfig().Save(cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", cfgPath)
	}

	if _, err := persona.EnsureDefaults(cfg.Persona.Directory); err != nil {
		return err
	}
	fmt.Fprintf(out, "personas in %s\n", cfg.Persona.Directory)
	return nil
}
