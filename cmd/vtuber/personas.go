package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vtuber/internal/persona"
)

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "Manage persona profiles",
}

var personasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the personas in the configured directory",
	RunE:  runPersonasList,
}

var personasInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the built-in personas when the directory has none",
	RunE:  runPersonasInit,
}

func runPersonasList(cmd *cobra.Command, args []string) error {
	engine := persona.NewEngine(nil)
	n, err := engine.LoadProfilesFrom(persona.DirSource{Dir: cfg.Persona.Directory})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if n == 0 {
		fmt.Fprintln(out, mutedStyle.Render("no personas in "+cfg.Persona.Directory+" (run `vtuber personas init`)"))
		return nil
	}
	for _, p := range engine.List() {
		marker := "  "
		if strings.EqualFold(p.Name, cfg.Persona.Default) {
			marker = "* "
		}
		fmt.Fprintf(out, "%s%s v%s  temp=%.2f  %s\n",
			marker, personaStyle.Render(p.Name), p.Version, p.Temperature, mutedStyle.Render(p.Description))
	}
	return nil
}

func runPersonasInit(cmd *cobra.Command, args []string) error {
	wrote, err := persona.EnsureDefaults(cfg.Persona.Directory)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if wrote {
		fmt.Fprintf(out, "wrote %d default personas to %s\n", len(persona.DefaultProfiles()), cfg.Persona.Directory)
	} else {
		fmt.Fprintf(out, "%s already has personas\n", cfg.Persona.Directory)
	}
	return nil
}
