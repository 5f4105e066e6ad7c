// Package notify fans committed merge events out to downstream consumers.
// The coordinator's file sink drops one .event file per merge record into a
// shared directory; the watcher here picks them up cross-process and the
// hub pushes them to connected WebSocket clients.
package notify

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/coalesce/pkg/types"
)

// MergeWatcher watches the events directory and dispatches merge records.
type MergeWatcher struct {
	dir      string
	callback func(types.MergeRecord)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewMergeWatcher creates a watcher over the given events directory.
func NewMergeWatcher(dir string, callback func(types.MergeRecord)) *MergeWatcher {
	return &MergeWatcher{
		dir:      dir,
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching. It drains any event files already present, then
// watches for new ones. Call Stop() to clean up.
func (w *MergeWatcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return err
	}

	w.drainExisting()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return err
	}
	w.watcher = fsw

	go w.loop()
	log.Printf("notify: watching %s for merge events", w.dir)
	return nil
}

// Stop shuts down the watcher.
func (w *MergeWatcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *MergeWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// The sink renames finished records into place, so both the
			// create and rename ops signal a complete file.
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && strings.HasSuffix(evt.Name, ".event") {
				w.processFile(evt.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (w *MergeWatcher) drainExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".event") {
			w.processFile(filepath.Join(w.dir, entry.Name()))
		}
	}
}

func (w *MergeWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file already consumed by another process
	}
	_ = os.Remove(path)

	var record types.MergeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		log.Printf("notify: invalid event file %s: %v", filepath.Base(path), err)
		return
	}

	if record.ID != "" && w.callback != nil {
		w.callback(record)
	}
}
