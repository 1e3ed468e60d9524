package extractor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFExtractor extracts orientation angles from image files using EXIF metadata.
type EXIFExtractor struct {
	logger *logrus.Logger
	cache  *sync.Map
	stats  CacheStats
	mutex  sync.RWMutex
}

// NewEXIFExtractor returns a new EXIFExtractor.
func NewEXIFExtractor(logger *logrus.Logger) *EXIFExtractor {
	return &EXIFExtractor{
		logger: logger,
		cache:  &sync.Map{},
		stats:  CacheStats{},
	}
}

// ExtractAngle returns the clockwise display rotation of an image file.
// Files without EXIF or without an Orientation tag report 0.
func (e *EXIFExtractor) ExtractAngle(filePath string) (int, error) {
	if !e.SupportsFile(filePath) {
		return 0, fmt.Errorf("file type not supported by extractor: %s", filePath)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}

	if angle, ok := e.getCachedAngle(filePath, fileInfo); ok {
		e.incrementCacheHits()
		return angle, nil
	}

	e.incrementCacheMisses()

	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	orientation := e.readOrientation(file)
	e.logger.Debugf("Orientation %s for file %s", orientation, filePath)

	angle := orientation.Angle()
	e.cache.Store(e.getCacheKey(filePath, fileInfo), angle)
	return angle, nil
}

// AngleFromBytes returns the display rotation of an encoded image held in memory.
func (e *EXIFExtractor) AngleFromBytes(data []byte) int {
	return e.readOrientation(bytes.NewReader(data)).Angle()
}

// ReadOrientation returns the raw EXIF orientation of an image file.
func (e *EXIFExtractor) ReadOrientation(filePath string) (Orientation, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return OrientationUnknown, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return e.readOrientation(file), nil
}

// SupportsFile reports whether the file is supported by this extractor.
func (e *EXIFExtractor) SupportsFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	supportedExts := []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".webp", ".bmp", ".gif"}

	return slices.Contains(supportedExts, ext)
}

// ClearCache removes all entries from the internal cache and resets statistics.
func (e *EXIFExtractor) ClearCache() {
	e.cache.Range(func(key, _ interface{}) bool {
		e.cache.Delete(key)
		return true
	})
	e.mutex.Lock()
	e.stats = CacheStats{}
	e.mutex.Unlock()
}

// GetCacheStats returns cache statistics for this extractor.
func (e *EXIFExtractor) GetCacheStats() CacheStats {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	stats := e.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	return stats
}

// readOrientation decodes the Orientation tag with rwcarlsen/goexif.
// Missing or malformed EXIF yields OrientationUnknown.
func (e *EXIFExtractor) readOrientation(r io.Reader) Orientation {
	x, err := exif.Decode(r)
	if err != nil {
		return OrientationUnknown
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationUnknown
	}

	value, err := tag.Int(0)
	if err != nil || value < 1 || value > 8 {
		return OrientationUnknown
	}
	return Orientation(value)
}

// getCacheKey returns a cache key for the given file path and file info.
func (e *EXIFExtractor) getCacheKey(filePath string, fileInfo os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().UnixNano())
}

func (e *EXIFExtractor) getCachedAngle(filePath string, fileInfo os.FileInfo) (int, bool) {
	value, ok := e.cache.Load(e.getCacheKey(filePath, fileInfo))
	if !ok {
		return 0, false
	}
	angle, ok := value.(int)
	return angle, ok
}

func (e *EXIFExtractor) incrementCacheHits() {
	e.mutex.Lock()
	e.stats.Hits++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}

func (e *EXIFExtractor) incrementCacheMisses() {
	e.mutex.Lock()
	e.stats.Misses++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}
