package source

import (
	"fmt"
	"image"
	"io"
	"os"
)

// FileSource is an encoded image on disk. Pixel data is read from the file
// on every Decode; nothing is cached between calls.
type FileSource struct {
	path   string
	mime   string
	size   int64
	width  int
	height int
	angle  int
}

// NewFileSource validates the file as an image and reads its bounds.
func NewFileSource(path string, angle int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat source %s: %w", path, err)
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	mime, err := Sniff(header[:n])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", path, err)
	}
	w, h, err := probe(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &FileSource{
		path:   path,
		mime:   mime,
		size:   info.Size(),
		width:  w,
		height: h,
		angle:  angle,
	}, nil
}

func (s *FileSource) Width() int   { return s.width }
func (s *FileSource) Height() int  { return s.height }
func (s *FileSource) Size() int64  { return s.size }
func (s *FileSource) Angle() int   { return s.angle }
func (s *FileSource) Path() string { return s.path }
func (s *FileSource) MIME() string { return s.mime }

// Probe implements Source.
func (s *FileSource) Probe() (int, int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, 0, fmt.Errorf("open source %s: %w", s.path, err)
	}
	defer f.Close()
	return probe(f)
}

// Decode implements Source.
func (s *FileSource) Decode(factor int) (image.Image, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", s.path, err)
	}
	defer f.Close()
	return decode(f, factor)
}
