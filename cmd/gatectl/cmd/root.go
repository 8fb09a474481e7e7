// Package cmd implements the gatectl CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	config "github.com/avvvet/gate-services/configs"
	"github.com/avvvet/gate-services/internal/gatesvc/service"
	"github.com/avvvet/gate-services/internal/gatesvc/storage"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	outputFormat string
	storeDriver  string
	sqlitePath   string

	cfg     config.Config
	backend *store.Backend
)

// commands that never touch the store
var noStore = map[string]bool{"completion": true, "help": true, "scan": true, "__complete": true}

func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if noStore[c.Name()] {
			return false
		}
	}
	return true
}

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "Operator CLI for the RFID gate service",
	Long: `gatectl manages registered cards and reads attendance data straight
from the gate store. It can also simulate a reader scan over NATS.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetLevel(log.WarnLevel)
		config.LoadEnv("gatectl")

		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}

		if !needsStore(cmd) {
			return nil
		}

		if backend != nil {
			backend.Close()
		}
		backend, err = storage.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if backend != nil {
			backend.Close()
			backend = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "driver", "", "Store driver, overrides GATE_STORE_DRIVER (postgres, sqlite)")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "db", "", "SQLite path, overrides GATE_SQLITE_PATH")
}

// loadConfig reads the environment, then applies flag overrides.
func loadConfig() (config.Config, error) {
	if storeDriver != "" {
		if err := os.Setenv("GATE_STORE_DRIVER", storeDriver); err != nil {
			return config.Config{}, err
		}
	}
	if sqlitePath != "" {
		if err := os.Setenv("GATE_SQLITE_PATH", sqlitePath); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func cardService() *service.CardService {
	return service.NewCardService(backend.Cards, backend.Sessions)
}

func reportService() *service.ReportService {
	return service.NewReportService(backend.Cards, backend.Sessions,
		service.WithLocation(cfg.ReportLocation()))
}

// formatOutput handles output formatting based on the --output flag.
func formatOutput(w io.Writer, data interface{}) error {
	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		// Table format is handled by each command
		return nil
	}
}
