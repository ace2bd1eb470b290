// Package logsource reads host log files as a lazy, one-pass line stream.
// The hostname attributed to each line is the file name minus its
// extension.
package logsource

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Line is a single raw log line with its originating host.
type Line struct {
	Raw      string
	Hostname string
}

// DirConfig configures a directory-backed source.
type DirConfig struct {
	// Dir is the directory scanned for *.log files.
	Dir string `yaml:"dir"`

	// MaxLineBytes bounds the scanner buffer per line.
	MaxLineBytes int `yaml:"max_line_bytes"`
}

// DefaultDirConfig returns the default source configuration.
func DefaultDirConfig() DirConfig {
	return DirConfig{
		Dir:          "logs",
		MaxLineBytes: 1 << 20,
	}
}

// DirSource iterates the *.log files of a directory. Each pass re-reads
// from the start of the available files; an unreadable file is logged and
// skipped without aborting the pass.
type DirSource struct {
	config DirConfig
	logger *slog.Logger
}

// NewDirSource creates a source over cfg.Dir.
func NewDirSource(cfg DirConfig, logger *slog.Logger) *DirSource {
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultDirConfig().MaxLineBytes
	}
	return &DirSource{config: cfg, logger: logger}
}

// Files returns the log files of the source directory in name order.
func (s *DirSource) Files() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.config.Dir, "*.log"))
	if err != nil {
		return nil, fmt.Errorf("logsource: glob %s: %w", s.config.Dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Each applies fn to every line of every log file, in file-name order.
// The context is checked at each line boundary. A file open or read error
// is logged and the remaining files are still processed; an error from fn
// aborts the pass.
func (s *DirSource) Each(ctx context.Context, fn func(Line) error) error {
	files, err := s.Files()
	if err != nil {
		return err
	}

	for _, path := range files {
		hostname := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := s.eachInFile(ctx, path, hostname, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *DirSource) eachInFile(ctx context.Context, path, hostname string, fn func(Line) error) error {
	f, err := os.Open(path)
	if err != nil {
		s.logger.Warn("skipping unreadable log file", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), s.config.MaxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(Line{Raw: scanner.Text(), Hostname: hostname}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("stopping read of log file", "path", path, "error", err)
	}
	return nil
}
