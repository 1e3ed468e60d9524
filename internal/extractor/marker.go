package extractor

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
)

// MarkValue is written to the EXIF Software tag of every produced file.
const MarkValue = "PhotoShrinker Compressed"

// HasShrinkerMark returns true if the EXIF Software tag says the file was
// already produced by PhotoShrinker.
func HasShrinkerMark(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	x, err := exif.Decode(f)
	if err != nil {
		return false
	}
	tag, err := x.Get(exif.Software)
	if err != nil {
		return false
	}
	val, err := tag.StringVal()
	if err != nil {
		return false
	}
	return strings.Contains(val, "PhotoShrinker")
}

// Marker stamps output files through a long-running exiftool process.
// The process is shared, so calls are serialised.
type Marker struct {
	mu sync.Mutex
	et *exiftool.Exiftool
}

// NewMarker starts exiftool. It fails when the exiftool binary is missing.
func NewMarker() (*Marker, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &Marker{et: et}, nil
}

// Mark sets Software=MarkValue on path, overwriting the file in place.
func (m *Marker) Mark(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := []exiftool.FileMetadata{{
		File:   path,
		Fields: map[string]interface{}{"Software": MarkValue},
	}}
	m.et.WriteMetadata(files)
	if files[0].Err != nil {
		return fmt.Errorf("write metadata of %s: %w", path, files[0].Err)
	}
	return nil
}

// IsMarked checks the Software tag through exiftool.
func (m *Marker) IsMarked(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := m.et.ExtractMetadata(path)
	if len(files) == 0 {
		return false, fmt.Errorf("exiftool returned no metadata for %s", path)
	}
	if files[0].Err != nil {
		return false, files[0].Err
	}
	sw, ok := files[0].Fields["Software"].(string)
	return ok && strings.Contains(sw, MarkValue), nil
}

// Close stops the exiftool process.
func (m *Marker) Close() error {
	return m.et.Close()
}
