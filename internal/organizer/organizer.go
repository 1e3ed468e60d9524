package organizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"photo-shrinker-go/internal/compressor"
	"photo-shrinker-go/internal/config"
	"photo-shrinker-go/internal/extractor"
	"photo-shrinker-go/internal/logger"
	"photo-shrinker-go/internal/source"
	"photo-shrinker-go/internal/statistics"
	"photo-shrinker-go/internal/strategy"
)

// Actions reported in CompressionResult.
const (
	ActionCompressed = "compressed"
	ActionOriginal   = "original"
	ActionSkipped    = "skipped"
	ActionPlanned    = "planned"
	ActionError      = "error"
)

// LogHookFunc receives user-facing progress messages, e.g. for a WebSocket feed.
type LogHookFunc func(level, message string)

// ResultHookFunc receives the outcome of every processed file.
type ResultHookFunc func(result CompressionResult)

// Marker stamps produced files so later runs can skip them.
type Marker interface {
	Mark(path string) error
}

// Organizer walks a source tree and writes a compressed JPEG for every
// supported image into the mirrored location under the target directory.
type Organizer struct {
	config     *config.Config
	logger     *logrus.Logger
	stats      *statistics.Statistics
	extractor  extractor.AngleExtractor
	compressor compressor.Compressor
	marker     Marker
	gear       strategy.Gear
	workers    int

	logHook    LogHookFunc
	resultHook ResultHookFunc

	// target paths handed out during this run, so two workers never write
	// the same output
	claimMu sync.Mutex
	claimed map[string]bool
}

// FileInfo contains information about a discovered source image.
type FileInfo struct {
	Path      string
	RelPath   string
	Size      int64
	ModTime   time.Time
	Extension string
}

// CompressionResult describes what happened to one source file.
type CompressionResult struct {
	SourcePath string        `json:"source_path"`
	TargetPath string        `json:"target_path,omitempty"`
	Action     string        `json:"action"`
	Plan       strategy.Plan `json:"plan"`
	Quality    int           `json:"quality,omitempty"`
	BytesIn    int64         `json:"bytes_in"`
	BytesOut   int64         `json:"bytes_out,omitempty"`
	BudgetMet  bool          `json:"budget_met"`
	Error      string        `json:"error,omitempty"`
}

// NewOrganizer returns a new Organizer.
func NewOrganizer(
	cfg *config.Config,
	logger *logrus.Logger,
	stats *statistics.Statistics,
	angleExtractor extractor.AngleExtractor,
	comp compressor.Compressor,
) *Organizer {
	return NewOrganizerWithLogHook(cfg, logger, stats, angleExtractor, comp, nil)
}

// NewOrganizerWithLogHook returns an Organizer that also forwards progress
// messages to logHook.
func NewOrganizerWithLogHook(
	cfg *config.Config,
	logger *logrus.Logger,
	stats *statistics.Statistics,
	angleExtractor extractor.AngleExtractor,
	comp compressor.Compressor,
	logHook LogHookFunc,
) *Organizer {
	workers := cfg.Performance.WorkerThreads
	if workers <= 0 {
		workers = 4
	}
	return &Organizer{
		config:     cfg,
		logger:     logger,
		stats:      stats,
		extractor:  angleExtractor,
		compressor: comp,
		gear:       cfg.GearValue(),
		workers:    workers,
		logHook:    logHook,
		claimed:    make(map[string]bool),
	}
}

// SetMarker enables stamping of written outputs.
func (o *Organizer) SetMarker(m Marker) {
	o.marker = m
}

// SetResultHook registers a callback invoked once per processed file.
// It is called from worker goroutines and must be safe for concurrent use.
func (o *Organizer) SetResultHook(hook ResultHookFunc) {
	o.resultHook = hook
}

// Run compresses every supported image under the source directory.
func (o *Organizer) Run(ctx context.Context) error {
	o.logger.Info("Starting compression run")
	o.stats.StartTime = time.Now()
	defer o.finalize()

	// cache hits and misses are reported per run
	if cached, ok := o.extractor.(extractor.CachedAngleExtractor); ok {
		cached.ClearCache()
	}

	files, err := o.discoverFiles()
	if err != nil {
		return fmt.Errorf("failed to discover files: %w", err)
	}

	if len(files) == 0 {
		o.logger.Info("No images found to compress")
		return nil
	}

	o.logger.Infof("Found %d images to process", len(files))

	if o.config.Security.DryRun {
		o.logger.Info("Running in dry-run mode - no files will be written")
		return o.runWorkers(ctx, files, o.processDryRunFile)
	}

	return o.runWorkers(ctx, files, o.processFile)
}

func (o *Organizer) finalize() {
	if cached, ok := o.extractor.(extractor.CachedAngleExtractor); ok {
		cs := cached.GetCacheStats()
		o.stats.SetCacheStats(cs.Hits, cs.Misses)
	}
	o.stats.Finalize()
}

// discoverFiles finds all supported images in the source directory.
func (o *Organizer) discoverFiles() ([]FileInfo, error) {
	var files []FileInfo

	root := o.config.SourceDirectory
	target := filepath.Clean(o.config.GetTargetDirectory())
	inPlace := o.config.IsInPlace()

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			o.logger.Warnf("Error accessing path %s: %v", path, err)
			return nil
		}

		if info.IsDir() {
			// outputs nested inside the source tree are not sources
			if !inPlace && filepath.Clean(path) == target {
				o.logger.Debugf("Skipping target directory: %s", path)
				return filepath.SkipDir
			}
			o.stats.IncrementDirectoriesScanned()
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !o.config.IsImageExtension(ext) {
			return nil
		}

		if o.config.Processing.SkipMarked && extractor.HasShrinkerMark(path) {
			o.logger.Debugf("Skipping already compressed file: %s", path)
			o.stats.IncrementFilesAlreadyMarked()
			o.stats.IncrementFilesSkipped()
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = filepath.Base(path)
		}

		files = append(files, FileInfo{
			Path:      path,
			RelPath:   rel,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Extension: ext,
		})
		o.stats.IncrementFilesFound()
		o.stats.IncrementFileType(strings.ToUpper(strings.TrimPrefix(ext, ".")))

		if o.config.Security.MaxFilesPerRun > 0 && len(files) >= o.config.Security.MaxFilesPerRun {
			o.logger.Infof("Reached maximum files limit (%d), stopping discovery", o.config.Security.MaxFilesPerRun)
			return filepath.SkipAll
		}

		return nil
	})

	return files, err
}

// runWorkers feeds files to a pool of workers running process.
func (o *Organizer) runWorkers(ctx context.Context, files []FileInfo, process func(context.Context, FileInfo) CompressionResult) error {
	var wg sync.WaitGroup
	fileChan := make(chan FileInfo, o.config.Performance.BatchSize)

	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range fileChan {
				if ctx.Err() != nil {
					continue
				}
				result := process(ctx, file)
				if o.resultHook != nil {
					o.resultHook(result)
				}
			}
		}()
	}

	go func() {
		defer close(fileChan)
		for _, file := range files {
			select {
			case fileChan <- file:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		o.logger.Warn("Compression run cancelled")
		return err
	}
	o.logger.Info("Compression run completed")
	return nil
}

// processFile compresses a single file and writes the output.
func (o *Organizer) processFile(ctx context.Context, file FileInfo) CompressionResult {
	log := logger.WithGear(o.logger, file.Path, o.gear.String())
	log.Debug("Processing file")
	o.stats.IncrementFilesProcessed()

	result := CompressionResult{SourcePath: file.Path, BytesIn: file.Size}

	src, err := o.openSource(file)
	if err != nil {
		return o.fail(result, "open", err)
	}

	targetPath, skip, err := o.resolveTarget(file)
	if err != nil {
		return o.fail(result, "duplicate_handling", err)
	}
	if skip {
		result.Action = ActionSkipped
		return result
	}
	result.TargetPath = targetPath

	res, err := o.compressor.Compress(ctx, src, o.gear)
	if err != nil {
		return o.fail(result, "compress", err)
	}
	if res.Empty() {
		log.Warn("No strategy for gear, skipping")
		o.stats.IncrementFilesSkipped()
		result.Action = ActionSkipped
		return result
	}

	o.stats.IncrementGear(o.gear.String())
	o.stats.AddQualityAttempts(res.Attempts)
	result.Plan = res.Plan
	result.Quality = res.Quality
	result.BudgetMet = res.BudgetMet

	if !res.BudgetMet {
		o.stats.IncrementBudgetUnreachable()
		if o.config.Processing.StrictBudget {
			return o.fail(result, "compress", fmt.Errorf("%w: %d KB over %d KB budget at quality %d",
				res.Err(), res.SizeKB(), res.Plan.BudgetKB, res.Quality))
		}
		log.Warnf("Budget of %d KB not met, keeping %d KB output", res.Plan.BudgetKB, res.SizeKB())
	}

	if err := o.createDirectory(filepath.Dir(targetPath)); err != nil {
		return o.fail(result, "directory_creation", err)
	}

	if o.keepOriginal(src, res) {
		if err := o.copyFile(file.Path, targetPath); err != nil {
			return o.fail(result, "copy_file", err)
		}
		o.stats.IncrementFilesKeptOriginal()
		o.stats.AddBytes(file.Size, file.Size)
		result.Action = ActionOriginal
		result.BytesOut = file.Size
		o.emit("info", fmt.Sprintf("Kept original %s -> %s", file.Path, targetPath))
		return result
	}

	if err := compressor.SaveImage(targetPath, res.Data); err != nil {
		return o.fail(result, "save", err)
	}
	if o.marker != nil && o.config.Processing.MarkOutput {
		if err := o.marker.Mark(targetPath); err != nil {
			log.Warnf("Could not mark output %s: %v", targetPath, err)
		}
	}

	o.stats.IncrementFilesCompressed()
	o.stats.AddBytes(file.Size, int64(len(res.Data)))
	result.Action = ActionCompressed
	result.BytesOut = int64(len(res.Data))

	o.emit("info", fmt.Sprintf("Compressed %s -> %s (%d KB, quality %d)",
		file.Path, targetPath, res.SizeKB(), res.Quality))
	return result
}

// processDryRunFile plans a single file without writing anything.
func (o *Organizer) processDryRunFile(_ context.Context, file FileInfo) CompressionResult {
	o.stats.IncrementFilesProcessed()
	result := CompressionResult{SourcePath: file.Path, BytesIn: file.Size}

	src, err := o.openSource(file)
	if err != nil {
		return o.fail(result, "open", err)
	}

	plan, ok := o.compressor.Plan(src, o.gear)
	if !ok || !plan.Valid() {
		o.emit("info", fmt.Sprintf("DRY-RUN: Would skip %s (no plan for %s gear)", file.Path, o.gear))
		o.stats.IncrementFilesSkipped()
		result.Action = ActionSkipped
		return result
	}
	result.Plan = plan

	targetPath := o.targetPath(file)
	result.TargetPath = targetPath
	if o.fileExistsAtTarget(targetPath) {
		o.stats.IncrementDuplicatesFound()
		o.emit("info", fmt.Sprintf("DRY-RUN: Would handle duplicate (%s) for %s -> %s",
			o.config.Processing.DuplicateHandling, file.Path, targetPath))
	}

	msg := fmt.Sprintf("DRY-RUN: Would compress %s -> %s (%s)", file.Path, targetPath, plan)
	if d, err := compressor.PlanDownsample(src.Width(), src.Height(), plan.Width, plan.Height); err == nil {
		msg += fmt.Sprintf(" decode 1/%d", d.Factor)
	}
	o.emit("info", msg)

	o.stats.IncrementFilesPlanned()
	result.Action = ActionPlanned
	return result
}

// openSource reads the orientation and bounds of a source file.
func (o *Organizer) openSource(file FileInfo) (*source.FileSource, error) {
	angle := 0
	if o.extractor != nil && o.extractor.SupportsFile(file.Path) {
		a, err := o.extractor.ExtractAngle(file.Path)
		if err != nil {
			o.logger.Warnf("Could not read orientation of %s: %v", file.Path, err)
		} else {
			angle = a
		}
	}

	src, err := source.NewFileSource(file.Path, angle)
	if err != nil {
		if errors.Is(err, source.ErrNotImage) {
			return nil, fmt.Errorf("%w: %w", compressor.ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("%w: %w", compressor.ErrCodecFailure, err)
	}
	return src, nil
}

// keepOriginal reports whether the source should be copied instead of the
// compressed output. Only JPEG sources can be copied under a .jpg name.
func (o *Organizer) keepOriginal(src *source.FileSource, res *compressor.Result) bool {
	return o.config.Compression.KeepOriginalIfLarger &&
		src.MIME() == "image/jpeg" &&
		int64(len(res.Data)) >= src.Size()
}

func (o *Organizer) fail(result CompressionResult, operation string, err error) CompressionResult {
	kind := compressor.Kind(err)
	logger.WithFailure(o.logger, result.SourcePath, operation, kind).Errorf("Could not process file: %v", err)
	o.stats.IncrementFilesWithErrors()
	o.stats.AddError(result.SourcePath, operation, kind, err.Error())
	if o.logHook != nil {
		o.logHook("error", fmt.Sprintf("%s: %v", result.SourcePath, err))
	}

	result.Action = ActionError
	result.Error = err.Error()
	return result
}

func (o *Organizer) emit(level, msg string) {
	o.logger.Info(msg)
	if o.logHook != nil {
		o.logHook(level, msg)
	}
}

// targetPath mirrors the source's relative path under the target directory
// and swaps the extension for .jpg.
func (o *Organizer) targetPath(file FileInfo) string {
	rel := strings.TrimSuffix(file.RelPath, filepath.Ext(file.RelPath))
	return filepath.Join(o.config.GetTargetDirectory(), rel+o.config.Processing.OutputSuffix+".jpg")
}

// resolveTarget applies the duplicate strategy. skip is true when the file
// must not be processed.
func (o *Organizer) resolveTarget(file FileInfo) (path string, skip bool, err error) {
	o.claimMu.Lock()
	defer o.claimMu.Unlock()

	path, skip, err = o.pickTarget(file)
	if err == nil && !skip {
		o.claimed[path] = true
	}
	return path, skip, err
}

func (o *Organizer) pickTarget(file FileInfo) (string, bool, error) {
	targetPath := o.targetPath(file)
	if !o.taken(targetPath) {
		return targetPath, false, nil
	}

	o.stats.IncrementDuplicatesFound()

	switch o.config.Processing.DuplicateHandling {
	case "skip":
		o.logger.Infof("Skipping duplicate file: %s", file.Path)
		o.stats.IncrementDuplicatesSkipped()
		o.stats.IncrementFilesSkipped()
		return "", true, nil

	case "overwrite":
		if targetPath == file.Path {
			return "", false, fmt.Errorf("refusing to overwrite source %s", file.Path)
		}
		o.logger.Infof("Overwriting existing file: %s", targetPath)
		o.stats.IncrementDuplicatesReplaced()
		return targetPath, false, nil

	case "rename":
		newTargetPath := o.generateUniqueFilename(targetPath)
		o.logger.Infof("Renaming duplicate output: %s -> %s", targetPath, newTargetPath)
		o.stats.IncrementDuplicatesRenamed()
		return newTargetPath, false, nil

	default:
		return "", false, fmt.Errorf("unknown duplicate handling strategy: %s", o.config.Processing.DuplicateHandling)
	}
}

// taken reports whether path exists on disk or was already handed to a worker.
// Callers hold claimMu.
func (o *Organizer) taken(path string) bool {
	return o.claimed[path] || o.fileExistsAtTarget(path)
}

// fileExistsAtTarget returns true if a file already exists at the target location.
func (o *Organizer) fileExistsAtTarget(targetPath string) bool {
	_, err := os.Stat(targetPath)
	return err == nil
}

// generateUniqueFilename returns a unique filename by adding a counter.
// Callers hold claimMu.
func (o *Organizer) generateUniqueFilename(basePath string) string {
	dir := filepath.Dir(basePath)
	name := filepath.Base(basePath)
	ext := filepath.Ext(name)
	nameWithoutExt := strings.TrimSuffix(name, ext)

	counter := 1
	for {
		newName := fmt.Sprintf("%s_%d%s", nameWithoutExt, counter, ext)
		newPath := filepath.Join(dir, newName)
		if !o.taken(newPath) {
			return newPath
		}
		counter++
	}
}

// createDirectory creates a directory and its parents if they do not exist.
func (o *Organizer) createDirectory(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return err
		}
		o.stats.IncrementDirectoriesCreated()
		o.logger.Debugf("Created directory: %s", dirPath)
	}
	return nil
}

// copyFile copies a file from source to destination.
func (o *Organizer) copyFile(sourcePath, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		return err
	}

	return os.Chmod(destPath, sourceInfo.Mode())
}
