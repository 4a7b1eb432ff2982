package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions controls the rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Prefix     string
	// Mirror, when set, also receives every line (e.g. os.Stderr under DEV_MODE).
	Mirror io.Writer
}

// NewFileLogger opens a size-rotated log file and returns a logger writing to it
// along with a closer for the underlying file.
func NewFileLogger(opts FileOptions) (*log.Logger, io.Closer, error) {
	if opts.Path == "" {
		return nil, nil, fmt.Errorf("log path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   false,
	}
	var out io.Writer = rotator
	if opts.Mirror != nil {
		out = io.MultiWriter(rotator, opts.Mirror)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "aira "
	}
	return log.New(out, prefix, log.LstdFlags|log.Lmicroseconds), rotator, nil
}
