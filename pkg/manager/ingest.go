package manager

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gridsync/gridsync/pkg/events"
	"github.com/gridsync/gridsync/pkg/log"
	"github.com/gridsync/gridsync/pkg/types"
)

// SourceConfig binds a sheet to a CSV file on disk. The file is the
// authoritative edit surface: every change to it is diffed by business
// key and recorded through the normal edit path.
type SourceConfig struct {
	Sheet     string `yaml:"sheet"`
	Path      string `yaml:"path"`
	KeyColumn string `yaml:"keyColumn"`
}

type source struct {
	cfg     SourceConfig
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// BindSource loads the CSV into the sheet and starts watching the file
// for edits. Each detected change re-reads the file and applies one
// edit per added or modified row.
func (m *Manager) BindSource(cfg SourceConfig) error {
	if cfg.KeyColumn == "" {
		cfg.KeyColumn = m.keyCol
	}

	if err := m.reloadSource(cfg); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory, not the file: editors and atomic writers
	// replace the file, which drops a direct watch.
	if err := watcher.Add(filepath.Dir(cfg.Path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", cfg.Path, err)
	}

	src := &source{
		cfg:     cfg,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}

	m.sourceMu.Lock()
	m.sources[cfg.Sheet] = src
	m.sourceMu.Unlock()

	go m.watchSource(src)
	return nil
}

// StopSources stops all source watchers
func (m *Manager) StopSources() {
	m.sourceMu.Lock()
	defer m.sourceMu.Unlock()
	for name, src := range m.sources {
		close(src.stopCh)
		src.watcher.Close()
		delete(m.sources, name)
	}
}

func (m *Manager) watchSource(src *source) {
	logger := log.WithSheet(src.cfg.Sheet).With().Str("path", src.cfg.Path).Logger()

	// Small settle delay so a burst of write events becomes one reload.
	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-src.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(src.cfg.Path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(250*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := m.reloadSource(src.cfg); err != nil {
				logger.Error().Err(err).Msg("source reload failed")
			}
		case err, ok := <-src.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("source watcher error")
		case <-src.stopCh:
			return
		}
	}
}

// reloadSource reads the CSV, updates the sheet schema, and applies
// the per-row differences through ApplyEdit. Rows that vanished from
// the file are removed from the snapshot without spending a version;
// clients pick deletions up on their next full resync.
func (m *Manager) reloadSource(cfg SourceConfig) error {
	headers, rows, err := readCSV(cfg.Path)
	if err != nil {
		return err
	}

	if err := m.CreateSheet(cfg.Sheet, cfg.KeyColumn, headers); err != nil {
		return err
	}
	meta := &types.SheetMeta{Name: cfg.Sheet, KeyColumn: cfg.KeyColumn, Headers: headers}
	keyIdx := meta.KeyIndex()
	if keyIdx < 0 {
		return fmt.Errorf("%w: %q not in %v", types.ErrSchema, cfg.KeyColumn, headers)
	}

	seen := make(map[string]bool, len(rows))
	applied := 0
	for i, values := range rows {
		rowIndex := i + 2 // data starts under the header row
		var key string
		if keyIdx < len(values) {
			key = strings.TrimSpace(values[keyIdx])
		}
		if key == "" {
			continue
		}
		seen[key] = true
		id, err := m.ApplyEdit(cfg.Sheet, rowIndex, key, values)
		if err != nil {
			return err
		}
		if id > 0 {
			applied++
		}
	}

	// Remove rows no longer present in the file.
	stored, err := m.store.ListRows(cfg.Sheet)
	if err != nil {
		return err
	}
	for _, r := range stored {
		if !seen[r.Key] {
			if err := m.store.DeleteRow(cfg.Sheet, r.Key); err != nil {
				return err
			}
		}
	}

	version, err := m.ledger.CurrentVersion(cfg.Sheet)
	if err != nil {
		return err
	}
	m.broker.Publish(&events.Event{
		Type:    events.EventSheetLoaded,
		Sheet:   cfg.Sheet,
		Version: version,
		Metadata: map[string]string{
			"rows":    fmt.Sprintf("%d", len(seen)),
			"applied": fmt.Sprintf("%d", applied),
		},
	})
	m.logger.Info().
		Str("sheet", cfg.Sheet).
		Int("rows", len(seen)).
		Int("edits", applied).
		Msg("source loaded")
	return nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are padded against headers later
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: source file is empty", types.ErrNotFound)
	}
	return records[0], records[1:], nil
}
