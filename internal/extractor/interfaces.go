package extractor

// AngleExtractor is the interface for reading the display rotation of a file.
type AngleExtractor interface {
	ExtractAngle(filePath string) (int, error)
	SupportsFile(filePath string) bool
}

// CachedAngleExtractor extends AngleExtractor with caching capabilities.
type CachedAngleExtractor interface {
	AngleExtractor
	ClearCache()
	GetCacheStats() CacheStats
}

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64
	Misses       int64
	HitRate      float64
	TotalQueries int64
}

// Orientation is the raw EXIF Orientation tag value (1..8).
type Orientation int

const (
	OrientationUnknown    Orientation = 0
	OrientationNormal     Orientation = 1
	OrientationMirrored   Orientation = 2
	OrientationRotate180  Orientation = 3
	OrientationFlipped    Orientation = 4
	OrientationTranspose  Orientation = 5
	OrientationRotate90   Orientation = 6
	OrientationTransverse Orientation = 7
	OrientationRotate270  Orientation = 8
)

// Angle returns the clockwise rotation in degrees that displays the image
// upright. Mirrored orientations are not corrected and map to 0.
func (o Orientation) Angle() int {
	switch o {
	case OrientationRotate90:
		return 90
	case OrientationRotate180:
		return 180
	case OrientationRotate270:
		return 270
	default:
		return 0
	}
}

// String returns a human-readable description of the orientation.
func (o Orientation) String() string {
	switch o {
	case OrientationNormal:
		return "Normal"
	case OrientationMirrored:
		return "Mirrored"
	case OrientationRotate180:
		return "Rotate 180"
	case OrientationFlipped:
		return "Flipped"
	case OrientationTranspose:
		return "Transpose"
	case OrientationRotate90:
		return "Rotate 90 CW"
	case OrientationTransverse:
		return "Transverse"
	case OrientationRotate270:
		return "Rotate 270 CW"
	default:
		return "Unknown"
	}
}
