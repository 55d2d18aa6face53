package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/export"
	"github.com/joseph-ayodele/doctext/internal/repository"
	"github.com/joseph-ayodele/doctext/internal/server"
)

var (
	ledgerStatus string
	ledgerFormat string
	ledgerLimit  int
	ledgerOutput string
	ledgerSince  time.Duration
	ledgerOut    string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the extraction attempt ledger (DB_URL)",
}

var ledgerPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the ledger database is reachable and migrated",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		db, err := server.ConnectDB(cmd.Context(), a.cfg.Database, a.logger)
		if err != nil {
			color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "DB health: FAIL (%v)\n", err)
			return err
		}
		defer db.Close()
		if err := server.PingDB(cmd.Context(), db, a.logger, time.Second); err != nil {
			color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "DB health: FAIL (%v)\n", err)
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "DB health: OK (%s)\n", db.Dialect())
		return nil
	},
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if ledgerOutput != "yaml" && ledgerOutput != "json" {
			return fmt.Errorf("--output must be yaml or json, got %q", ledgerOutput)
		}
		return withLedger(cmd, func(attempts repository.AttemptRepository, _ *export.Service) error {
			rows, err := attempts.List(cmd.Context(), ledgerFilter())
			if err != nil {
				return err
			}
			rows = sinceFilter(rows)
			if ledgerOutput == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(rows)
		})
	},
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ledger as an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withLedger(cmd, func(_ repository.AttemptRepository, exports *export.Service) error {
			var since time.Time
			if ledgerSince > 0 {
				since = time.Now().Add(-ledgerSince)
			}
			data, err := exports.ExportAttemptsXLSX(cmd.Context(), ledgerFilter(), since)
			if err != nil {
				return err
			}
			if err := os.WriteFile(ledgerOut, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", ledgerOut)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{ledgerListCmd, ledgerExportCmd} {
		c.Flags().StringVar(&ledgerStatus, "status", "", "RUNNING, TEXT_OK, EMPTY or FAILED")
		c.Flags().StringVar(&ledgerFormat, "format", "", "PDF, WORD, SPREADSHEET or IMAGE")
		c.Flags().IntVar(&ledgerLimit, "limit", 100, "maximum rows")
		c.Flags().DurationVar(&ledgerSince, "since", 0, "only attempts started within this window")
	}
	ledgerListCmd.Flags().StringVarP(&ledgerOutput, "output", "o", "yaml", "yaml or json")
	ledgerExportCmd.Flags().StringVar(&ledgerOut, "out", "attempts.xlsx", "output path")

	ledgerCmd.AddCommand(ledgerPingCmd, ledgerListCmd, ledgerExportCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func ledgerFilter() repository.ListFilter {
	return repository.ListFilter{
		Status: constants.AttemptStatus(ledgerStatus),
		Format: constants.Format(ledgerFormat),
		Limit:  ledgerLimit,
	}
}

func sinceFilter(rows []repository.Attempt) []repository.Attempt {
	if ledgerSince <= 0 {
		return rows
	}
	cutoff := time.Now().Add(-ledgerSince)
	kept := rows[:0]
	for _, r := range rows {
		if !r.StartedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

func withLedger(cmd *cobra.Command, fn func(repository.AttemptRepository, *export.Service) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	db, err := server.ConnectDB(cmd.Context(), a.cfg.Database, a.logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()
	attempts := repository.NewAttemptRepository(db, a.logger)
	return fn(attempts, export.NewService(attempts, a.logger))
}
