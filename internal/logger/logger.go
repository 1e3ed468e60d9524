package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"photo-shrinker-go/internal/config"
)

// Verbosity adjusts the configured level from the command line.
type Verbosity int

const (
	VerbosityDefault Verbosity = iota
	VerbosityVerbose           // debug level
	VerbosityQuiet             // errors only, nothing on stdout
)

// Setup builds the process logger from the logging section of the config.
// Entries are JSON. With a file path they go to a rotating file, and to
// stdout as well unless the run is quiet.
func Setup(cfg config.LoggingConfig, v Verbosity) (*logrus.Logger, error) {
	level, err := resolveLevel(cfg.Level, v)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(newFormatter())

	out, err := outputs(cfg, v != VerbosityQuiet)
	if err != nil {
		return nil, err
	}
	log.SetOutput(out)
	return log, nil
}

func resolveLevel(configured string, v Verbosity) (logrus.Level, error) {
	switch v {
	case VerbosityVerbose:
		return logrus.DebugLevel, nil
	case VerbosityQuiet:
		return logrus.ErrorLevel, nil
	}
	if configured == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(strings.ToLower(configured))
}

func newFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

func outputs(cfg config.LoggingConfig, console bool) (io.Writer, error) {
	if cfg.FilePath == "" {
		if !console {
			return io.Discard, nil
		}
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, err
	}
	file := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if !console {
		return file, nil
	}
	return io.MultiWriter(file, os.Stdout), nil
}

// WithGear returns a logger entry tagged with the compression gear of a request.
func WithGear(logger *logrus.Logger, filePath, gear string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"file": filePath,
		"gear": gear,
	})
}

// WithRequest returns a logger entry for one web or async compression request.
func WithRequest(logger *logrus.Logger, requestID, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"operation":  operation,
	})
}

// WithFailure tags a failed stage of a file with its error kind.
func WithFailure(logger *logrus.Logger, filePath, operation, kind string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"file":      filePath,
		"operation": operation,
		"kind":      kind,
	})
}
