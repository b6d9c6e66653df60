package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vtuber/internal/config"
	"vtuber/internal/logging"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Loaded by PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vtuber",
	Short: "AI VTuber companion",
	Long: `vtuber is a conversational companion with a persona, long-term memory
and optional speech output.

Language models: OpenAI, Ollama or Gemini (llm.provider in config).
Personas are YAML/JSON profiles; edits are picked up while chatting.

Run without arguments to start chatting.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if err := logging.Initialize(cfg.LoggerConfig(verbose)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.Flags().StringVarP(&chatPersona, "persona", "p", "", "Persona to activate (default from config)")
	chatCmd.Flags().StringVarP(&chatPersona, "persona", "p", "", "Persona to activate (default from config)")

	personasCmd.AddCommand(personasListCmd)
	personasCmd.AddCommand(personasInitCmd)

	memoryRecentCmd.Flags().IntVarP(&memoryLimit, "limit", "n", 10, "Number of entries to show (-1 for all)")
	memorySearchCmd.Flags().IntVarP(&memoryLimit, "limit", "n", 5, "Maximum matches")
	memoryCmd.AddCommand(memoryRecentCmd)
	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryClearCmd)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(memoryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
