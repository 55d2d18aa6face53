package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/doctext/internal/common"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "doctext",
	Short: "Extract plain text from PDFs, office documents and images",
	Long: `doctext turns PDF, Word, spreadsheet and image files into plain text.

PDFs use their text layer when it yields enough text and fall back to
tesseract OCR otherwise. Every command is configured through environment
variables (DB_URL, OCR_*, PDF_*, EXTRACT_*, LOG_*), an optional config file,
and the flags below.`,
	SilenceUsage: true,
}

// Execute is the entry point called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	common.SetDefaults(v)
	v.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	pf.String("log-format", "", "text or json (LOG_FORMAT)")
	pf.String("renderer", "", "OCR page renderer: fitz or poppler (OCR_RENDERER)")
	pf.String("lang", "", "tesseract language (OCR_LANG)")
	pf.String("db", "", "attempt ledger DSN, sqlite or postgres:// (DB_URL)")

	for key, name := range map[string]string{
		"LOG_LEVEL":    "log-level",
		"LOG_FORMAT":   "log-format",
		"OCR_RENDERER": "renderer",
		"OCR_LANG":     "lang",
		"DB_URL":       "db",
	} {
		_ = v.BindPFlag(key, pf.Lookup(name))
	}
}

// app is what every command needs: validated config and a logger.
type app struct {
	cfg    *common.Config
	logger *slog.Logger
	closer io.Closer
}

func (r *app) Close() { _ = r.closer.Close() }

func loadApp() (*app, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("read config file %s", cfgFile), err)
		}
	}
	cfg := common.FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, closer, err := common.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}
