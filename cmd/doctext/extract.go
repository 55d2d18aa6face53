package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/ingest"
)

var (
	extractDiagnostics bool
	extractFormat      string
	extractOut         string
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract the text of a single file",
	Long: `Prints the extracted text of one file. With --diagnostics the whole
outcome (text plus how it was obtained) is printed as YAML or JSON instead.
An empty result is not an error; the exit status is 0 either way.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractDiagnostics, "diagnostics", false, "print text and diagnostics")
	extractCmd.Flags().StringVarP(&extractFormat, "output", "o", "yaml", "diagnostics encoding: yaml or json")
	extractCmd.Flags().StringVar(&extractOut, "out", "", "write to this file instead of stdout")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	if extractFormat != "yaml" && extractFormat != "json" {
		return fmt.Errorf("--output must be yaml or json, got %q", extractFormat)
	}
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	lf, err := ingest.NewFSIngestor(a.cfg.Server.MaxUploadBytes, a.logger).LoadFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}
	svc := a.cfg.NewExtractService(a.logger)
	out := svc.Extract(ctx, lf.File)

	var w io.Writer = cmd.OutOrStdout()
	if extractOut != "" {
		f, err := os.Create(extractOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if extractDiagnostics {
		if err := encodeOutcome(w, extractFormat, out); err != nil {
			return err
		}
	} else if _, err := io.WriteString(w, out.Text); err != nil {
		return err
	}
	printSummary(cmd.ErrOrStderr(), lf.Path, out)
	return nil
}

func encodeOutcome(w io.Writer, format string, out extract.Outcome) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(out)
}

// printSummary writes one colored status line per document.
func printSummary(w io.Writer, path string, out extract.Outcome) {
	d := out.Diagnostics
	clr := color.New(color.FgGreen)
	if out.Text == "" {
		clr = color.New(color.FgYellow)
	}
	clr.Fprintf(w, "%-7s", out.Status())
	fmt.Fprintf(w, " %s ", path)
	color.New(color.FgHiBlack).Fprintf(w, "(%s, %s, %d chars, %d/%d units",
		d.Format, d.Method, d.Chars, d.Succeeded, d.Attempted)
	if d.Scanned {
		color.New(color.FgHiBlack).Fprint(w, ", scanned")
	}
	if d.OCRFallback {
		color.New(color.FgHiBlack).Fprint(w, ", ocr fallback")
	}
	if d.TimedOut {
		color.New(color.FgRed).Fprint(w, ", timed out")
	}
	color.New(color.FgHiBlack).Fprintf(w, ", %s)\n", d.Duration.Round(time.Millisecond))
}
