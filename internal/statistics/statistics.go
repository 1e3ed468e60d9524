package statistics

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Statistics contains all statistics for a compression run.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	FilesCompressed     int64
	FilesKeptOriginal   int64
	FilesPlanned        int64
	FilesSkipped        int64
	FilesAlreadyMarked  int64
	FilesWithErrors     int64
	BudgetUnreachable   int64

	DuplicatesFound    int64
	DuplicatesRenamed  int64
	DuplicatesSkipped  int64
	DuplicatesReplaced int64

	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	FilesPerSecond   float64
	BytesIn          int64
	BytesOut         int64
	CompressionRatio float64
	QualityAttempts  int64
	AverageAttempts  float64

	CacheHits    int64
	CacheMisses  int64
	CacheHitRate float64

	DirectoriesCreated int64
	DirectoriesScanned int64

	Errors []StatError

	mutex sync.RWMutex

	FileTypeStats map[string]int64
	GearStats     map[string]int64
	ErrorKinds    map[string]int64
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string    `json:"file_path" yaml:"file_path"`
	Operation string    `json:"operation" yaml:"operation"`
	Error     string    `json:"error" yaml:"error"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		FileTypeStats: make(map[string]int64),
		GearStats:     make(map[string]int64),
		ErrorKinds:    make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// IncrementFilesFound increases the count of found files by 1.
func (s *Statistics) IncrementFilesFound() {
	atomic.AddInt64(&s.TotalFilesFound, 1)
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
}

// IncrementFilesCompressed increases the count of files written as compressed JPEG by 1.
func (s *Statistics) IncrementFilesCompressed() {
	atomic.AddInt64(&s.FilesCompressed, 1)
}

// IncrementFilesKeptOriginal increases the count of files copied unchanged
// because the compressed output was not smaller.
func (s *Statistics) IncrementFilesKeptOriginal() {
	atomic.AddInt64(&s.FilesKeptOriginal, 1)
}

// IncrementFilesPlanned increases the count of files planned in dry-run mode by 1.
func (s *Statistics) IncrementFilesPlanned() {
	atomic.AddInt64(&s.FilesPlanned, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// IncrementFilesAlreadyMarked increases the count of sources that already
// carry the shrinker mark.
func (s *Statistics) IncrementFilesAlreadyMarked() {
	atomic.AddInt64(&s.FilesAlreadyMarked, 1)
}

// IncrementFilesWithErrors increases the count of files with errors by 1.
func (s *Statistics) IncrementFilesWithErrors() {
	atomic.AddInt64(&s.FilesWithErrors, 1)
}

// IncrementBudgetUnreachable increases the count of outputs that hit the
// quality floor above their budget.
func (s *Statistics) IncrementBudgetUnreachable() {
	atomic.AddInt64(&s.BudgetUnreachable, 1)
}

// IncrementDuplicatesFound increases the count of found duplicates by 1.
func (s *Statistics) IncrementDuplicatesFound() {
	atomic.AddInt64(&s.DuplicatesFound, 1)
}

// IncrementDuplicatesRenamed increases the count of renamed duplicates by 1.
func (s *Statistics) IncrementDuplicatesRenamed() {
	atomic.AddInt64(&s.DuplicatesRenamed, 1)
}

// IncrementDuplicatesSkipped increases the count of skipped duplicates by 1.
func (s *Statistics) IncrementDuplicatesSkipped() {
	atomic.AddInt64(&s.DuplicatesSkipped, 1)
}

// IncrementDuplicatesReplaced increases the count of replaced duplicates by 1.
func (s *Statistics) IncrementDuplicatesReplaced() {
	atomic.AddInt64(&s.DuplicatesReplaced, 1)
}

// IncrementDirectoriesCreated increases the count of created directories by 1.
func (s *Statistics) IncrementDirectoriesCreated() {
	atomic.AddInt64(&s.DirectoriesCreated, 1)
}

// IncrementDirectoriesScanned increases the count of scanned directories by 1.
func (s *Statistics) IncrementDirectoriesScanned() {
	atomic.AddInt64(&s.DirectoriesScanned, 1)
}

// AddBytes records the size of one source and of what was written for it.
func (s *Statistics) AddBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
}

// AddQualityAttempts adds the number of encodes one compression needed.
func (s *Statistics) AddQualityAttempts(n int) {
	atomic.AddInt64(&s.QualityAttempts, int64(n))
}

// SetCacheStats copies the orientation cache counters into the run statistics.
func (s *Statistics) SetCacheStats(hits, misses int64) {
	atomic.StoreInt64(&s.CacheHits, hits)
	atomic.StoreInt64(&s.CacheMisses, misses)
}

// IncrementFileType increases the count for a specific file type by 1.
func (s *Statistics) IncrementFileType(fileType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FileTypeStats[fileType]++
}

// IncrementGear increases the count of compressions run with gear by 1.
func (s *Statistics) IncrementGear(gear string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.GearStats[gear]++
}

// Finalize calculates final statistics such as duration, throughput and ratios.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	totalProcessed := atomic.LoadInt64(&s.TotalFilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(totalProcessed) / s.Duration.Seconds()
	}

	if in := atomic.LoadInt64(&s.BytesIn); in > 0 {
		s.CompressionRatio = float64(atomic.LoadInt64(&s.BytesOut)) / float64(in)
	}

	if compressed := atomic.LoadInt64(&s.FilesCompressed) + atomic.LoadInt64(&s.FilesKeptOriginal); compressed > 0 {
		s.AverageAttempts = float64(atomic.LoadInt64(&s.QualityAttempts)) / float64(compressed)
	}

	hits := atomic.LoadInt64(&s.CacheHits)
	misses := atomic.LoadInt64(&s.CacheMisses)
	if total := hits + misses; total > 0 {
		s.CacheHitRate = float64(hits) / float64(total)
	}
}

// AddError records an error that occurred during processing. kind is the
// error class, as reported by compressor.Kind.
func (s *Statistics) AddError(filePath, operation, kind, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
	if kind != "" {
		s.ErrorKinds[kind]++
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Photo Shrinker Statistics Summary:

Files:
		Total Found: %d
		Total Processed: %d
		Compressed: %d
		Kept Original: %d
		Planned (dry-run): %d
		Skipped: %d
		Already Marked: %d
		Errors: %d
		Budget Unreachable: %d

Duplicates:
		Found: %d
		Renamed: %d
		Skipped: %d
		Replaced: %d

Performance:
		Duration: %v
		Files/Second: %.2f
		Bytes In: %s
		Bytes Out: %s
		Output/Input: %.2f%%
		Average Encodes: %.2f

Orientation Cache:
		Hits: %d
		Misses: %d
		Hit Rate: %.2f%%

Directories:
		Created: %d
		Scanned: %d`,
		atomic.LoadInt64(&s.TotalFilesFound),
		atomic.LoadInt64(&s.TotalFilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesKeptOriginal),
		atomic.LoadInt64(&s.FilesPlanned),
		atomic.LoadInt64(&s.FilesSkipped),
		atomic.LoadInt64(&s.FilesAlreadyMarked),
		atomic.LoadInt64(&s.FilesWithErrors),
		atomic.LoadInt64(&s.BudgetUnreachable),
		atomic.LoadInt64(&s.DuplicatesFound),
		atomic.LoadInt64(&s.DuplicatesRenamed),
		atomic.LoadInt64(&s.DuplicatesSkipped),
		atomic.LoadInt64(&s.DuplicatesReplaced),
		s.Duration,
		s.FilesPerSecond,
		formatBytes(atomic.LoadInt64(&s.BytesIn)),
		formatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.CompressionRatio*100,
		s.AverageAttempts,
		atomic.LoadInt64(&s.CacheHits),
		atomic.LoadInt64(&s.CacheMisses),
		s.CacheHitRate*100,
		atomic.LoadInt64(&s.DirectoriesCreated),
		atomic.LoadInt64(&s.DirectoriesScanned))
}

// GetFileTypeBreakdown returns a formatted breakdown of file types processed.
func (s *Statistics) GetFileTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FileTypeStats) == 0 {
		return "No file type statistics available"
	}
	return "File Type Breakdown:\n" + formatCounts(s.FileTypeStats)
}

// GetGearBreakdown returns a formatted breakdown of compressions per gear.
func (s *Statistics) GetGearBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.GearStats) == 0 {
		return "No compressions recorded"
	}
	return "Gear Breakdown:\n" + formatCounts(s.GearStats)
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			fmt.Fprintf(&b, "  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		fmt.Fprintf(&b, "  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return b.String()
}

func formatCounts(counts map[string]int64) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %d\n", k, counts[k])
	}
	return b.String()
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Report is a point-in-time copy of the statistics, suitable for JSON
// responses and YAML report files.
type Report struct {
	Files struct {
		Found             int64 `json:"found" yaml:"found"`
		Processed         int64 `json:"processed" yaml:"processed"`
		Compressed        int64 `json:"compressed" yaml:"compressed"`
		KeptOriginal      int64 `json:"kept_original" yaml:"kept_original"`
		Planned           int64 `json:"planned" yaml:"planned"`
		Skipped           int64 `json:"skipped" yaml:"skipped"`
		AlreadyMarked     int64 `json:"already_marked" yaml:"already_marked"`
		Errors            int64 `json:"errors" yaml:"errors"`
		BudgetUnreachable int64 `json:"budget_unreachable" yaml:"budget_unreachable"`
	} `json:"files" yaml:"files"`
	Duplicates struct {
		Found    int64 `json:"found" yaml:"found"`
		Renamed  int64 `json:"renamed" yaml:"renamed"`
		Skipped  int64 `json:"skipped" yaml:"skipped"`
		Replaced int64 `json:"replaced" yaml:"replaced"`
	} `json:"duplicates" yaml:"duplicates"`
	StartTime        time.Time        `json:"start_time" yaml:"start_time"`
	EndTime          time.Time        `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Duration         string           `json:"duration" yaml:"duration"`
	FilesPerSecond   float64          `json:"files_per_second" yaml:"files_per_second"`
	BytesIn          int64            `json:"bytes_in" yaml:"bytes_in"`
	BytesOut         int64            `json:"bytes_out" yaml:"bytes_out"`
	CompressionRatio float64          `json:"compression_ratio" yaml:"compression_ratio"`
	AverageAttempts  float64          `json:"average_attempts" yaml:"average_attempts"`
	CacheHitRate     float64          `json:"cache_hit_rate" yaml:"cache_hit_rate"`
	Gears            map[string]int64 `json:"gears" yaml:"gears"`
	FileTypes        map[string]int64 `json:"file_types" yaml:"file_types"`
	ErrorKinds       map[string]int64 `json:"error_kinds,omitempty" yaml:"error_kinds,omitempty"`
	Errors           []StatError      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Snapshot returns a consistent copy of the current statistics.
func (s *Statistics) Snapshot() Report {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var r Report
	r.Files.Found = atomic.LoadInt64(&s.TotalFilesFound)
	r.Files.Processed = atomic.LoadInt64(&s.TotalFilesProcessed)
	r.Files.Compressed = atomic.LoadInt64(&s.FilesCompressed)
	r.Files.KeptOriginal = atomic.LoadInt64(&s.FilesKeptOriginal)
	r.Files.Planned = atomic.LoadInt64(&s.FilesPlanned)
	r.Files.Skipped = atomic.LoadInt64(&s.FilesSkipped)
	r.Files.AlreadyMarked = atomic.LoadInt64(&s.FilesAlreadyMarked)
	r.Files.Errors = atomic.LoadInt64(&s.FilesWithErrors)
	r.Files.BudgetUnreachable = atomic.LoadInt64(&s.BudgetUnreachable)
	r.Duplicates.Found = atomic.LoadInt64(&s.DuplicatesFound)
	r.Duplicates.Renamed = atomic.LoadInt64(&s.DuplicatesRenamed)
	r.Duplicates.Skipped = atomic.LoadInt64(&s.DuplicatesSkipped)
	r.Duplicates.Replaced = atomic.LoadInt64(&s.DuplicatesReplaced)

	r.StartTime = s.StartTime
	r.EndTime = s.EndTime
	r.Duration = s.Duration.String()
	r.FilesPerSecond = s.FilesPerSecond
	r.BytesIn = atomic.LoadInt64(&s.BytesIn)
	r.BytesOut = atomic.LoadInt64(&s.BytesOut)
	r.CompressionRatio = s.CompressionRatio
	r.AverageAttempts = s.AverageAttempts
	r.CacheHitRate = s.CacheHitRate

	r.Gears = copyCounts(s.GearStats)
	r.FileTypes = copyCounts(s.FileTypeStats)
	r.ErrorKinds = copyCounts(s.ErrorKinds)
	r.Errors = append([]StatError(nil), s.Errors...)
	return r
}

// WriteReport writes the current snapshot as YAML to path.
func (s *Statistics) WriteReport(path string) error {
	data, err := yaml.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GetTotalFilesProcessed returns the total number of files processed.
func (s *Statistics) GetTotalFilesProcessed() int64 {
	return atomic.LoadInt64(&s.TotalFilesProcessed)
}

// GetFilesCompressed returns the number of files written as compressed JPEG.
func (s *Statistics) GetFilesCompressed() int64 {
	return atomic.LoadInt64(&s.FilesCompressed)
}

// GetFilesWithErrors returns the total number of recorded errors.
func (s *Statistics) GetFilesWithErrors() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return int64(len(s.Errors))
}

// GetDuration returns the total duration of the operation.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}
