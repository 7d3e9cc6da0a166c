package feed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileDebounce coalesces bursts of writes to the transcript.
const FileDebounce = 100 * time.Millisecond

// File watches a JSONL transcript, one message per line, and publishes its
// non-empty line count whenever the file changes.
type File struct {
	path   string
	hub    *Hub
	logger *slog.Logger
}

func NewFile(path string, hub *Hub, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, hub: hub, logger: logger}
}

// CountLines returns the number of non-blank lines in path. A missing file
// counts as empty.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}

// Run publishes the initial count and then one count per debounced change
// until ctx ends.
func (f *File) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("feed file: create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen.
	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("feed file: watch %s: %w", dir, err)
	}

	f.publish()
	name := filepath.Clean(f.path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(FileDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			f.publish()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("feed file: watcher error", "error", err)
		}
	}
}

func (f *File) publish() {
	n, err := CountLines(f.path)
	if err != nil {
		f.logger.Warn("feed file: count failed", "path", f.path, "error", err)
		return
	}
	f.logger.Debug("feed file: length", "path", f.path, "length", n)
	f.hub.Publish(n)
}
