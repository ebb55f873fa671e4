package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/simon020286/go-calibration/extern"
)

const (
	DefaultSignalFile   = "/tmp/pin1_pressed"
	DefaultWatchCommand = "./wait_pins.sh D pin1"
	DefaultSentinel     = "pressed"
)

// FileSource signals through a file: a background job blocks on the watch
// command and then writes the sentinel into Path.
type FileSource struct {
	Path         string
	Sentinel     string
	WatchCommand string

	exec extern.Executor
	job  extern.Job
}

// NewFileSource creates a file-backed source. Empty fields take the defaults.
func NewFileSource(exec extern.Executor, path, watchCommand, sentinel string) *FileSource {
	if path == "" {
		path = DefaultSignalFile
	}
	if watchCommand == "" {
		watchCommand = DefaultWatchCommand
	}
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	return &FileSource{Path: path, Sentinel: sentinel, WatchCommand: watchCommand, exec: exec}
}

// Command is the background job spawned by Arm
func (s *FileSource) Command() string {
	return fmt.Sprintf("%s; echo %s > %s", s.WatchCommand, shellQuote(s.Sentinel), shellQuote(s.Path))
}

// shellQuote wraps v in single quotes for sh, escaping embedded quotes
func shellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

func (s *FileSource) Arm(ctx context.Context) error {
	if err := removeIfExists(s.Path); err != nil {
		return fmt.Errorf("clear signal file: %w", err)
	}
	job, err := s.exec.Start(ctx, s.Command())
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	s.job = job
	return nil
}

func (s *FileSource) Poll(ctx context.Context) (bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read signal file: %w", err)
	}
	return strings.TrimSpace(string(data)) == s.Sentinel, nil
}

func (s *FileSource) Disarm(ctx context.Context) error {
	var errs []error
	if s.job != nil {
		errs = append(errs, s.job.Stop())
		s.job = nil
	}
	if err := removeIfExists(s.Path); err != nil {
		errs = append(errs, fmt.Errorf("remove signal file: %w", err))
	}
	return errors.Join(errs...)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
