package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vtuber/internal/companion"
)

var memoryLimit int

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or clear stored conversation memory",
}

var memoryRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent memory entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(s *companion.Session) error {
			printTurns(cmd.OutOrStdout(), s.Memory.Recent(memoryLimit))
			return nil
		})
	},
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Case-insensitive substring search over memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(s *companion.Session) error {
			printTurns(cmd.OutOrStdout(), s.Memory.Search(strings.Join(args, " "), memoryLimit))
			return nil
		})
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase all stored memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(s *companion.Session) error {
			n := s.Memory.Len()
			s.Memory.Clear()
			if err := s.Memory.Persist(cmdContext(cmd)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
			return nil
		})
	},
}

// withMemory opens a session without the persona watcher and restores memory
// before calling fn.
func withMemory(cmd *cobra.Command, fn func(s *companion.Session) error) error {
	ctx := cmdContext(cmd)
	sessionCfg := *cfg
	sessionCfg.Persona.Watch = false

	s, err := companion.Open(ctx, &sessionCfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Memory.Load(ctx); err != nil {
		return fmt.Errorf("loading memory: %w", err)
	}
	return fn(s)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
