// Package watcher supplies the pipeline's input: an up-to-date set of
// FileRecords maintained from filesystem events. It owns the file
// registry; the engine only ever reads snapshots. Debouncing and cycle
// scheduling policy live with the caller, not here.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/assetforge/assetforge/internal/logging"
	"github.com/assetforge/assetforge/internal/registry"
	"github.com/assetforge/assetforge/internal/types"
)

// ChangeHandler is invoked after the registry has been updated for a
// filesystem event.
type ChangeHandler func(path string, removed bool)

// FileWatcher keeps a FileRegistry consistent with the filesystem.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	registry *registry.FileRegistry
	ignore   []string
	handler  ChangeHandler
	log      logging.Logger
}

// New creates a watcher feeding the given registry.
func New(reg *registry.FileRegistry, ignore []string, log logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		watcher:  w,
		registry: reg,
		ignore:   ignore,
		log:      log.WithComponent("watcher"),
	}, nil
}

// SetHandler registers the change handler. Must be called before Run.
func (fw *FileWatcher) SetHandler(handler ChangeHandler) {
	fw.handler = handler
}

// AddRecursive watches root and every subdirectory beneath it.
func (fw *FileWatcher) AddRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if fw.ignored(path) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// Run consumes filesystem events until ctx is cancelled, keeping the
// registry current and notifying the handler per change.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.log.Warn(ctx, err, "watch error")
		}
	}
}

func (fw *FileWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := filepath.ToSlash(event.Name)
	if fw.ignored(path) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if fw.registry.Remove(path) {
			fw.log.Debug(ctx, "file removed", "path", path)
			fw.notify(path, true)
		}
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Op&fsnotify.Create != 0 {
				_ = fw.AddRecursive(event.Name)
			}
			return
		}
		if record, ok := readRecord(path, info.ModTime()); ok {
			fw.registry.Set(record)
			fw.log.Debug(ctx, "file refreshed", "path", path, "type", record.Type.String())
			fw.notify(path, false)
		}
	}
}

func (fw *FileWatcher) notify(path string, removed bool) {
	if fw.handler != nil {
		fw.handler(path, removed)
	}
}

func (fw *FileWatcher) ignored(path string) bool {
	for _, pattern := range fw.ignore {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return strings.HasPrefix(filepath.Base(path), ".")
}

// Scan walks the given roots once and fills the registry, used to seed the
// initial file set before any events arrive.
func Scan(reg *registry.FileRegistry, roots, ignore []string) error {
	for _, root := range roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			slashed := filepath.ToSlash(path)
			if info.IsDir() {
				for _, pattern := range ignore {
					if strings.Contains(slashed, pattern) {
						return filepath.SkipDir
					}
				}
				return nil
			}
			if strings.HasPrefix(info.Name(), ".") {
				return nil
			}
			if record, ok := readRecord(slashed, info.ModTime()); ok {
				reg.Set(record)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// readRecord builds a FileRecord for a recognized source file.
func readRecord(path string, modTime time.Time) (*types.FileRecord, bool) {
	t := ClassifyPath(path)
	if t == types.FileTypeOther {
		return nil, false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return &types.FileRecord{
		Path:    path,
		Type:    t,
		Content: string(content),
		ModTime: modTime,
	}, true
}

// ClassifyPath maps a file extension to its pipeline type.
func ClassifyPath(path string) types.FileType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs":
		return types.FileTypeScript
	case ".css":
		return types.FileTypeStylesheet
	default:
		return types.FileTypeOther
	}
}
