package common

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/ocr"
	"github.com/joseph-ayodele/doctext/internal/pdftext"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	PDF      PDFConfig
	Extract  ExtractConfig
	Log      LogConfig
}

// DatabaseConfig holds the attempt-ledger connection settings
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr       string
	HTTPAddr       string
	MaxUploadBytes int64
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract         string
	Lang              string
	HeicConverter     string
	TessdataDir       string
	ArtifactCacheDir  string
	Renderer          string // fitz | poppler
	Pdftoppm          string
	Scale             float64
	MaxPages          int
	MaxPixels         int
	RenderMemoryBytes int64
	ConfusionFixes    bool
}

// PDFConfig holds text-layer settings
type PDFConfig struct {
	LineTolerance     float64
	AltThreshold      int
	MaxPages          int
	ScanSizeThreshold int64
}

// ExtractConfig holds orchestration settings
type ExtractConfig struct {
	OCRThreshold    int
	DeadlineBase    time.Duration
	DeadlinePerPage time.Duration
	DeadlineMax     time.Duration
	Workers         int
}

// LogConfig holds logger settings; File enables rotation.
type LogConfig struct {
	Level      string
	Format     string // text | json
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"DB_URL":                "file:doctext.db?_pragma=busy_timeout(5000)",
		"DB_MAX_CONNS":          20,
		"DB_MIN_CONNS":          1,
		"DB_MAX_CONN_LIFETIME":  30 * time.Minute,
		"DB_MAX_CONN_IDLE_TIME": 5 * time.Minute,
		"DB_DIAL_TIMEOUT":       3 * time.Second,
		"DB_STATEMENT_TIMEOUT":  0,

		"GRPC_ADDR":        ":8080",
		"HTTP_ADDR":        ":8081",
		"MAX_UPLOAD_BYTES": int64(64 << 20),

		"OCR_TESSERACT":           "tesseract",
		"OCR_LANG":                "eng",
		"HEIC_CONVERTER":          "magick",
		"TESSDATA_PREFIX":         "",
		"ARTIFACT_CACHE_DIR":      "./tmp",
		"OCR_RENDERER":            "fitz",
		"OCR_PDFTOPPM":            "pdftoppm",
		"OCR_SCALE":               ocr.DefaultScale,
		"OCR_MAX_PAGES":           0,
		"OCR_MAX_PIXELS":          ocr.DefaultMaxPixels,
		"OCR_RENDER_MEMORY_BYTES": int64(0),
		"OCR_CONFUSION_FIXES":     true,

		"PDF_LINE_TOLERANCE":      pdftext.DefaultLineTolerance,
		"PDF_ALT_THRESHOLD":       pdftext.DefaultAltThreshold,
		"PDF_MAX_PAGES":           0,
		"PDF_SCAN_SIZE_THRESHOLD": pdftext.DefaultScanSizeThreshold,

		"EXTRACT_OCR_THRESHOLD":     extract.DefaultOCRThreshold,
		"EXTRACT_DEADLINE_BASE":     extract.DefaultDeadlineBase,
		"EXTRACT_DEADLINE_PER_PAGE": extract.DefaultDeadlinePerPage,
		"EXTRACT_DEADLINE_MAX":      extract.DefaultDeadlineMax,
		"EXTRACT_WORKERS":           2,

		"LOG_LEVEL":        "info",
		"LOG_FORMAT":       "text",
		"LOG_FILE":         "",
		"LOG_MAX_SIZE_MB":  100,
		"LOG_MAX_BACKUPS":  5,
		"LOG_MAX_AGE_DAYS": 30,
		"LOG_COMPRESS":     true,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// LoadConfig reads defaults, an optional config file (yaml, json, toml) and
// environment variables, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("read config file %s", path), err)
		}
	}
	return FromViper(v), nil
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              v.GetString("DB_URL"),
			MaxConns:         v.GetInt32("DB_MAX_CONNS"),
			MinConns:         v.GetInt32("DB_MIN_CONNS"),
			MaxConnLifetime:  v.GetDuration("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime:  v.GetDuration("DB_MAX_CONN_IDLE_TIME"),
			DialTimeout:      v.GetDuration("DB_DIAL_TIMEOUT"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
		},
		Server: ServerConfig{
			GRPCAddr:       v.GetString("GRPC_ADDR"),
			HTTPAddr:       v.GetString("HTTP_ADDR"),
			MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
		},
		OCR: OCRConfig{
			Tesseract:         v.GetString("OCR_TESSERACT"),
			Lang:              v.GetString("OCR_LANG"),
			HeicConverter:     v.GetString("HEIC_CONVERTER"),
			TessdataDir:       v.GetString("TESSDATA_PREFIX"),
			ArtifactCacheDir:  v.GetString("ARTIFACT_CACHE_DIR"),
			Renderer:          strings.ToLower(v.GetString("OCR_RENDERER")),
			Pdftoppm:          v.GetString("OCR_PDFTOPPM"),
			Scale:             v.GetFloat64("OCR_SCALE"),
			MaxPages:          v.GetInt("OCR_MAX_PAGES"),
			MaxPixels:         v.GetInt("OCR_MAX_PIXELS"),
			RenderMemoryBytes: v.GetInt64("OCR_RENDER_MEMORY_BYTES"),
			ConfusionFixes:    v.GetBool("OCR_CONFUSION_FIXES"),
		},
		PDF: PDFConfig{
			LineTolerance:     v.GetFloat64("PDF_LINE_TOLERANCE"),
			AltThreshold:      v.GetInt("PDF_ALT_THRESHOLD"),
			MaxPages:          v.GetInt("PDF_MAX_PAGES"),
			ScanSizeThreshold: v.GetInt64("PDF_SCAN_SIZE_THRESHOLD"),
		},
		Extract: ExtractConfig{
			OCRThreshold:    v.GetInt("EXTRACT_OCR_THRESHOLD"),
			DeadlineBase:    v.GetDuration("EXTRACT_DEADLINE_BASE"),
			DeadlinePerPage: v.GetDuration("EXTRACT_DEADLINE_PER_PAGE"),
			DeadlineMax:     v.GetDuration("EXTRACT_DEADLINE_MAX"),
			Workers:         v.GetInt("EXTRACT_WORKERS"),
		},
		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     strings.ToLower(v.GetString("LOG_FORMAT")),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
			Compress:   v.GetBool("LOG_COMPRESS"),
		},
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	_, levelErr := ParseLevel(c.Log.Level)
	v := NewValidator().
		Check(c.Server.GRPCAddr != "" || c.Server.HTTPAddr != "", "GRPC_ADDR", c.Server.GRPCAddr, "or HTTP_ADDR is required").
		Field("OCR_RENDERER", c.OCR.Renderer, OneOf("fitz", "poppler")).
		Field("LOG_FORMAT", c.Log.Format, OneOf("text", "json")).
		Check(levelErr == nil, "LOG_LEVEL", c.Log.Level, "must be debug, info, warn or error").
		Field("OCR_SCALE", c.OCR.Scale, Positive).
		Field("EXTRACT_WORKERS", c.Extract.Workers, AtLeast(1)).
		Check(c.Extract.DeadlineMax >= c.Extract.DeadlineBase, "EXTRACT_DEADLINE_MAX", c.Extract.DeadlineMax, "must not be below EXTRACT_DEADLINE_BASE")
	if err := v.Error(); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid configuration", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	return nil
}

// ExtractServiceConfig maps the flat settings onto extract.Config.
func (c *Config) ExtractServiceConfig() extract.Config {
	return extract.Config{
		ScanSizeThreshold: c.PDF.ScanSizeThreshold,
		OCRThreshold:      c.Extract.OCRThreshold,
		PDF: pdftext.Config{
			LineTolerance: c.PDF.LineTolerance,
			AltThreshold:  c.PDF.AltThreshold,
			MaxPages:      c.PDF.MaxPages,
		},
		OCR: ocr.Config{
			Tesseract:             c.OCR.Tesseract,
			TesseractLang:         c.OCR.Lang,
			TessdataDir:           c.OCR.TessdataDir,
			Scale:                 c.OCR.Scale,
			MaxPages:              c.OCR.MaxPages,
			MaxPixels:             c.OCR.MaxPixels,
			HeicConverter:         c.OCR.HeicConverter,
			ArtifactCacheDir:      c.OCR.ArtifactCacheDir,
			DisableConfusionFixes: !c.OCR.ConfusionFixes,
		},
		DeadlineBase:    c.Extract.DeadlineBase,
		DeadlinePerPage: c.Extract.DeadlinePerPage,
		DeadlineMax:     c.Extract.DeadlineMax,
	}
}

// NewExtractService builds the Service with the configured renderer and
// render-memory ceiling. The ceiling is shared by every call on the Service.
func (c *Config) NewExtractService(logger *slog.Logger) *extract.Service {
	sc := c.ExtractServiceConfig()
	opts := []ocr.Option{ocr.WithRenderLimit(ocr.NewRenderLimiter(c.OCR.RenderMemoryBytes))}
	if c.OCR.Renderer == "poppler" {
		opts = append(opts, ocr.WithRenderer(ocr.PopplerRenderer{Pdftoppm: c.OCR.Pdftoppm, Logger: logger}))
	}
	engine := ocr.NewEngine(sc.OCR, logger, opts...)
	return extract.NewService(sc, logger, extract.WithRecognizer(engine))
}
