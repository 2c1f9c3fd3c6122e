package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/inspectdiff/internal/imagediff"
	"github.com/zombor/inspectdiff/internal/inspection"
	"github.com/zombor/inspectdiff/internal/logging"
	"github.com/zombor/inspectdiff/internal/metrics"
	"github.com/zombor/inspectdiff/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const serviceName = "inspectdiff"

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine; flags and the environment still apply
	_ = godotenv.Load()

	fs := ff.NewFlagSet(serviceName)
	var (
		port                = fs.IntLong("port", 8080, "HTTP server port")
		dbPath              = fs.StringLong("db", "inspectdiff.db", "Database file path")
		storagePath         = fs.StringLong("storage", "./uploads", "Storage directory path for images, references and diffs")
		comparatorType      = fs.StringLong("comparator", "pixel", "Image comparator: 'pixel' or 'opencv' (requires the gocv build tag)")
		pixelThreshold      = fs.IntLong("pixel-threshold", 30, "Per-pixel difference intensity above which a pixel counts as changed (0-255)")
		acceptanceThreshold = fs.Float64Long("acceptance-threshold", 0.9, "Similarity score below which an image is labelled defective (0-1)")
		jpegQuality         = fs.IntLong("jpeg-quality", 90, "JPEG quality of generated diff images (1-100)")
		logLevel            = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat           = fs.StringLong("log-format", "json", "Log format: 'json' or 'text'")
		rateLimit           = fs.Float64Long("rate-limit", 0, "Sustained requests per second (0 disables rate limiting)")
		rateBurst           = fs.IntLong("rate-burst", 0, "Rate limit burst size (defaults to the rate)")
		authUser            = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass            = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion         = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INSPECTDIFF"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.SetDefault(logging.New(serviceName, *logLevel, *logFormat))

	opts, err := comparisonOptions(*pixelThreshold, *acceptanceThreshold, *jpegQuality)
	if err != nil {
		slog.Error("Invalid comparison options", "error", err)
		os.Exit(1)
	}

	// Initialize comparator based on type
	var comparator imagediff.Comparator
	switch *comparatorType {
	case "pixel":
		comparator = imagediff.NewPixel(opts)
	case "opencv":
		comparator, err = imagediff.NewOpenCV(opts)
		if err != nil {
			slog.Error("Failed to initialize OpenCV comparator", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid comparator type", "type", *comparatorType, "valid", "pixel or opencv")
		os.Exit(1)
	}
	slog.Info("Comparator ready",
		"type", *comparatorType,
		"pixel_threshold", opts.PixelThreshold,
		"acceptance_threshold", opts.AcceptanceThreshold,
	)

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := inspection.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := inspection.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	m := metrics.New(serviceName)

	// Initialize service
	inspectionService := inspection.NewService(db, db, store, comparator)
	inspectionService.SetRecorder(m)

	srv := server.NewServer(inspectionService, server.Options{
		BasicAuth: server.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		},
		RateLimit: *rateLimit,
		RateBurst: *rateBurst,
		Metrics:   m,
	})

	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if err := srv.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

// comparisonOptions validates the comparison flags
func comparisonOptions(pixelThreshold int, acceptanceThreshold float64, jpegQuality int) (imagediff.Options, error) {
	opts := imagediff.DefaultOptions()
	if pixelThreshold < 0 || pixelThreshold > 255 {
		return opts, fmt.Errorf("pixel threshold must be between 0 and 255, got %d", pixelThreshold)
	}
	if acceptanceThreshold < 0 || acceptanceThreshold > 1 {
		return opts, fmt.Errorf("acceptance threshold must be between 0 and 1, got %g", acceptanceThreshold)
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		return opts, fmt.Errorf("jpeg quality must be between 1 and 100, got %d", jpegQuality)
	}
	opts.PixelThreshold = uint8(pixelThreshold)
	opts.AcceptanceThreshold = acceptanceThreshold
	opts.JPEGQuality = jpegQuality
	return opts, nil
}
