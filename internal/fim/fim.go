// Package fim maintains a file integrity baseline over watched
// directories and appends change records to a log file in the watched log
// directory, so integrity changes flow through the same detection
// pipeline as host logs.
package fim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Config configures the integrity agent.
type Config struct {
	// WatchedDirs are the directory trees included in the baseline.
	WatchedDirs []string `yaml:"watched_dirs"`

	// BaselineFile stores the last scan state as JSON.
	BaselineFile string `yaml:"baseline_file"`

	// ChangeLog receives one JSON line per detected change.
	ChangeLog string `yaml:"change_log"`
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() Config {
	return Config{
		WatchedDirs:  []string{"/etc", "/var/www", "/home"},
		BaselineFile: "fim_baseline.json",
		ChangeLog:    "logs/fim.log",
	}
}

// Metadata is the recorded state of one file.
type Metadata struct {
	Hash  string `json:"hash"`
	Size  int64  `json:"size"`
	Mtime string `json:"mtime"`
	Mode  string `json:"mode"`
	Owner string `json:"owner"`
}

// Baseline maps file path to its recorded state.
type Baseline map[string]Metadata

// Change is one detected difference between baselines.
type Change struct {
	Timestamp time.Time `json:"timestamp_utc"`
	Hostname  string    `json:"hostname"`
	Path      string    `json:"path"`
	Change    string    `json:"change"`
	Old       *Metadata `json:"old"`
	New       *Metadata `json:"new"`
}

// Agent scans watched directories and diffs against the stored baseline.
type Agent struct {
	config   Config
	logger   *slog.Logger
	hostname string
	now      func() time.Time
}

// NewAgent creates an agent; the hostname stamped into change records is
// taken from the OS.
func NewAgent(cfg Config, logger *slog.Logger) *Agent {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Agent{config: cfg, logger: logger, hostname: hostname, now: time.Now}
}

// Scan walks every watched directory and returns the current state.
// Unreadable files and directories are skipped.
func (a *Agent) Scan(ctx context.Context) (Baseline, error) {
	state := make(Baseline)
	for _, dir := range a.config.WatchedDirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			meta, metaErr := fileMetadata(path)
			if metaErr != nil {
				return nil
			}
			state[path] = meta
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return state, nil
}

func fileMetadata(path string) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Metadata{}, err
	}

	owner := ""
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		owner = fmt.Sprintf("%d:%d", st.Uid, st.Gid)
	}

	return Metadata{
		Hash:  hex.EncodeToString(h.Sum(nil)),
		Size:  info.Size(),
		Mtime: info.ModTime().UTC().Format(time.RFC3339),
		Mode:  fmt.Sprintf("%#o", info.Mode().Perm()),
		Owner: owner,
	}, nil
}

// LoadBaseline reads the stored baseline; a missing file yields an empty
// one.
func (a *Agent) LoadBaseline() (Baseline, error) {
	data, err := os.ReadFile(a.config.BaselineFile)
	if os.IsNotExist(err) {
		return make(Baseline), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fim: load baseline: %w", err)
	}
	var baseline Baseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		return nil, fmt.Errorf("fim: load baseline: %w", err)
	}
	return baseline, nil
}

// SaveBaseline persists the baseline.
func (a *Agent) SaveBaseline(baseline Baseline) error {
	data, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		return fmt.Errorf("fim: save baseline: %w", err)
	}
	if err := os.WriteFile(a.config.BaselineFile, data, 0o644); err != nil {
		return fmt.Errorf("fim: save baseline: %w", err)
	}
	return nil
}

// Diff compares two baselines and returns deleted, created and modified
// changes, in that order.
func (a *Agent) Diff(old, current Baseline) []Change {
	var changes []Change
	stamp := a.now().UTC()

	for path, meta := range old {
		if _, ok := current[path]; !ok {
			prev := meta
			changes = append(changes, Change{
				Timestamp: stamp, Hostname: a.hostname,
				Path: path, Change: "deleted", Old: &prev,
			})
		}
	}
	for path, meta := range current {
		if _, ok := old[path]; !ok {
			next := meta
			changes = append(changes, Change{
				Timestamp: stamp, Hostname: a.hostname,
				Path: path, Change: "created", New: &next,
			})
		}
	}
	for path, prevMeta := range old {
		nextMeta, ok := current[path]
		if !ok || prevMeta == nextMeta {
			continue
		}
		prev, next := prevMeta, nextMeta
		changes = append(changes, Change{
			Timestamp: stamp, Hostname: a.hostname,
			Path: path, Change: "modified", Old: &prev, New: &next,
		})
	}
	return changes
}

// Run performs one full integrity pass: scan, diff, append changes to the
// change log, persist the new baseline. It returns the number of changes
// written.
func (a *Agent) Run(ctx context.Context) (int, error) {
	old, err := a.LoadBaseline()
	if err != nil {
		return 0, err
	}
	current, err := a.Scan(ctx)
	if err != nil {
		return 0, err
	}

	changes := a.Diff(old, current)
	if err := a.appendChanges(changes); err != nil {
		return 0, err
	}
	if err := a.SaveBaseline(current); err != nil {
		return len(changes), err
	}

	a.logger.Info("integrity pass complete",
		"files", len(current), "changes", len(changes))
	return len(changes), nil
}

func (a *Agent) appendChanges(changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.config.ChangeLog), 0o755); err != nil {
		return fmt.Errorf("fim: change log: %w", err)
	}
	f, err := os.OpenFile(a.config.ChangeLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("fim: change log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, change := range changes {
		if err := enc.Encode(change); err != nil {
			return fmt.Errorf("fim: change log: %w", err)
		}
	}
	return nil
}
