package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"photo-shrinker-go/internal/codec"
	"photo-shrinker-go/internal/compressor"
	"photo-shrinker-go/internal/config"
	"photo-shrinker-go/internal/extractor"
	"photo-shrinker-go/internal/logger"
	"photo-shrinker-go/internal/organizer"
	"photo-shrinker-go/internal/source"
	"photo-shrinker-go/internal/statistics"
	"photo-shrinker-go/internal/strategy"
	"photo-shrinker-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	reportFile string
	verbose    bool
	quiet      bool
	port       int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "photo-shrinker",
	Short: "Shrink photos into budget-sized JPEG thumbnails",
	Long: `PhotoShrinker re-encodes images as JPEG thumbnails that fit a byte budget.

For every image it computes a target size and a budget from the image's
dimensions (the "gear" strategy), decodes it at a reduced scale, applies the
EXIF rotation and lowers the JPEG quality step by step until the output fits.

Features:
- Two sizing strategies: first gear and third gear
- Mirrors the source tree into a target directory
- Duplicate handling strategies
- Skips files it already produced
- Dry-run mode for safe testing
- Comprehensive logging and statistics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 && !cmd.Flags().Changed("source") {
			viper.Set("source_directory", args[0])
		}
		return runCompress()
	},
}

// scanCmd plans every file without writing anything.
var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Plan compression for a directory without writing files",
	Long: `Scan the specified directory (or the configured source) and print the plan
each image would get, without writing any output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			viper.Set("source_directory", args[0])
		}
		viper.Set("security.dry_run", true)
		return runCompress()
	},
}

// planCmd prints the plan and the downsample decision for one file.
var planCmd = &cobra.Command{
	Use:   "plan <file>",
	Short: "Show target size, budget and decode factor for an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(args[0])
	},
}

// fileCmd compresses a single image.
var fileCmd = &cobra.Command{
	Use:   "file <input> [output]",
	Short: "Compress a single image",
	Long: `Compresses one image and writes the JPEG to output
(default: <input name>_small.jpg next to the input).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := ""
		if len(args) == 2 {
			output = args[1]
		}
		return runFile(args[0], output)
	},
}

// testExifCmd tests orientation extraction on a specific file.
var testExifCmd = &cobra.Command{
	Use:   "test-exif <file>",
	Short: "Show EXIF orientation and shrinker mark of a file",
	Long: `Reads the EXIF Orientation tag of a file and shows the rotation that will be
applied, plus whether the file already carries the PhotoShrinker mark.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTestExif(args[0])
	},
}

// serveCmd starts the web API server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts a web server exposing the compressor over HTTP:
- Plan or compress uploaded images
- Run batch compressions on server-side directories
- Follow progress over a WebSocket feed

Listens on http://localhost:<port> (default: web.port from config, 8080)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	pf.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	pf.BoolVar(&quiet, "quiet", false, "suppress non-error output")
	pf.String("gear", "", "sizing strategy: first or third (default third)")
	pf.Int("min-quality", 0, "lowest JPEG quality to try")

	rootCmd.Flags().String("source", "", "source directory containing images")
	rootCmd.Flags().String("target", "", "target directory for compressed files (default: next to the sources)")
	rootCmd.Flags().Bool("dry-run", false, "plan compression without writing files")
	rootCmd.Flags().Bool("mark", false, "stamp outputs with the PhotoShrinker mark (needs exiftool)")
	rootCmd.Flags().StringVar(&reportFile, "report", "", "write a YAML run report to this file")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on")

	viper.BindPFlag("compression.gear", pf.Lookup("gear"))
	viper.BindPFlag("compression.min_quality", pf.Lookup("min-quality"))
	viper.BindPFlag("source_directory", rootCmd.Flags().Lookup("source"))
	viper.BindPFlag("target_directory", rootCmd.Flags().Lookup("target"))
	viper.BindPFlag("security.dry_run", rootCmd.Flags().Lookup("dry-run"))
	viper.BindPFlag("processing.mark_output", rootCmd.Flags().Lookup("mark"))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(testExifCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig sets defaults that only make sense for the CLI.
func initConfig() {
	viper.SetDefault("source_directory", ".")
	viper.SetDefault("compression.min_quality", codec.MinQuality)
}

// runCompress executes a compression run over the configured source tree.
func runCompress() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	angleExtractor := extractor.NewEXIFExtractor(log)
	engine := newEngine(cfg, log)

	org := organizer.NewOrganizer(cfg, log, stats, angleExtractor, engine)
	if cfg.Processing.MarkOutput && !cfg.Security.DryRun {
		marker, err := extractor.NewMarker()
		if err != nil {
			log.Warnf("Output marking disabled: %v", err)
		} else {
			defer marker.Close()
			org.SetMarker(marker)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := org.Run(ctx); err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	if reportFile != "" {
		if err := stats.WriteReport(reportFile); err != nil {
			return err
		}
	}

	if !quiet {
		if cfg.Security.DryRun {
			fmt.Println("\n==================================================")
			fmt.Println("SCAN RESULTS")
			fmt.Println("==================================================")
		}
		fmt.Println("\n" + stats.GetSummary())
		fmt.Println("\n" + stats.GetFileTypeBreakdown())
		fmt.Println(stats.GetGearBreakdown())
		fmt.Println(stats.GetErrorSummary())
	}

	if failed := stats.GetFilesWithErrors(); failed > 0 {
		log.Warnf("%d of %d files failed", failed, stats.GetTotalFilesProcessed())
	}

	return nil
}

// runPlan prints what the compressor would do with a single file.
func runPlan(filePath string) error {
	cfg := loadConfigOrDefault()
	log := setupLogger(cfg)

	src, err := openSource(filePath, log)
	if err != nil {
		return err
	}

	gear := cfg.GearValue()
	plan, ok := newEngine(cfg, log).Plan(src, gear)
	if !ok || !plan.Valid() {
		return fmt.Errorf("no plan for %dx%d in %s gear", src.Width(), src.Height(), gear)
	}
	decision, err := compressor.PlanDownsample(src.Width(), src.Height(), plan.Width, plan.Height)
	if err != nil {
		return err
	}

	fmt.Printf("File:     %s (%s, %d bytes)\n", filePath, src.MIME(), src.Size())
	fmt.Printf("Source:   %dx%d, rotate %d°\n", src.Width(), src.Height(), src.Angle())
	fmt.Printf("Gear:     %s\n", gear)
	fmt.Printf("Target:   %dx%d\n", plan.Width, plan.Height)
	fmt.Printf("Budget:   %d KB\n", plan.BudgetKB)
	fmt.Printf("Decode:   1/%d\n", decision.Factor)
	return nil
}

// runFile compresses a single image through the async request path.
func runFile(input, output string) error {
	cfg := loadConfigOrDefault()
	log := setupLogger(cfg)

	src, err := openSource(input, log)
	if err != nil {
		return err
	}
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + "_small.jpg"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := compressor.NewResultLoop(2)
	defer loop.Close()

	req := compressor.NewRequest(src, cfg.GearValue(), compressor.ListenerFuncs{
		Success: func(id string, res *compressor.Result) {
			logger.WithRequest(log, id, "compress").WithFields(logrus.Fields{
				"quality":  res.Quality,
				"attempts": res.Attempts,
			}).Debug("Compressed")
		},
	})

	outcome := <-newEngine(cfg, log).Launch(ctx, req, loop)
	if outcome.Err != nil {
		return fmt.Errorf("compress %s: %w", input, outcome.Err)
	}
	res := outcome.Result
	if err := saveResult(input, output, res, cfg.Processing.StrictBudget); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("%s -> %s\n", input, output)
		fmt.Printf("  %dx%d, quality %d after %d attempt(s), %d KB (budget %d KB, met: %t)\n",
			res.Width, res.Height, res.Quality, res.Attempts, res.SizeKB(), res.Plan.BudgetKB, res.BudgetMet)
	}
	return nil
}

// saveResult writes a single-file result. Empty results and, with
// strictBudget, results over budget leave output untouched.
func saveResult(input, output string, res *compressor.Result, strictBudget bool) error {
	if res.Empty() {
		return fmt.Errorf("compress %s: %w: no output produced", input, compressor.ErrInvalidInput)
	}
	if strictBudget {
		if err := res.Err(); err != nil {
			return fmt.Errorf("compress %s: %w", input, err)
		}
	}
	return compressor.SaveImage(output, res.Data)
}

// runTestExif prints the orientation and mark of a file.
func runTestExif(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	fmt.Printf("Testing EXIF extraction for: %s\n", filePath)

	log := logrus.New()
	angleExtractor := extractor.NewEXIFExtractor(log)

	orientation, err := angleExtractor.ReadOrientation(filePath)
	if err != nil {
		fmt.Printf("Error reading orientation: %v\n", err)
		return nil
	}

	if orientation == extractor.OrientationUnknown {
		fmt.Println("No orientation found in EXIF data")
	} else {
		fmt.Printf("Orientation: %d (%s)\n", int(orientation), orientation)
	}
	fmt.Printf("Rotation applied: %d°\n", orientation.Angle())
	fmt.Printf("PhotoShrinker mark: %t\n", extractor.HasShrinkerMark(filePath))

	if marker, err := extractor.NewMarker(); err == nil {
		defer marker.Close()
		if marked, err := marker.IsMarked(filePath); err == nil {
			fmt.Printf("PhotoShrinker mark (exiftool): %t\n", marked)
		}
	}

	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	cfg := loadConfigOrDefault()
	log := setupLogger(cfg)

	if port == 0 {
		port = cfg.Web.Port
	}
	server := web.NewServer(cfg, log, newEngine(cfg, log))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("PhotoShrinker API started on http://localhost:%d\n", port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// loadConfig loads configuration with CLI flags applied through viper.
func loadConfig() (*config.Config, error) {
	return config.LoadConfigWith(viper.GetViper(), cfgFile)
}

// loadConfigOrDefault is used by commands that do not need a source tree.
func loadConfigOrDefault() *config.Config {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error, using defaults: %v\n", err)
		cfg = config.DefaultConfig()
		cfg.SourceDirectory = "."
		if gear := viper.GetString("compression.gear"); gear != "" {
			cfg.Compression.Gear = gear
		}
		if err := cfg.Validate(); err != nil {
			cfg.Compression.Gear = strategy.DefaultGear.String()
		}
	}
	return cfg
}

func newEngine(cfg *config.Config, log *logrus.Logger) *compressor.Engine {
	opts := compressor.DefaultOptions()
	if cfg.Compression.MinQuality > 0 {
		opts.MinQuality = cfg.Compression.MinQuality
	}
	if cfg.Compression.QualityStep > 0 {
		opts.QualityStep = cfg.Compression.QualityStep
	}
	return compressor.NewEngine(codec.NewImagingCodec(), opts, log)
}

func openSource(filePath string, log *logrus.Logger) (*source.FileSource, error) {
	if !fileExists(filePath) {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}
	angle, err := extractor.NewEXIFExtractor(log).ExtractAngle(filePath)
	if err != nil {
		log.Debugf("No orientation for %s: %v", filePath, err)
		angle = 0
	}
	return source.NewFileSource(filePath, angle)
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	verbosity := logger.VerbosityDefault
	switch {
	case quiet:
		verbosity = logger.VerbosityQuiet
	case verbose:
		verbosity = logger.VerbosityVerbose
	}

	log, err := logger.Setup(cfg.Logging, verbosity)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
		log.Warnf("Logger setup failed, using defaults: %v", err)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
