package officehours

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"aegis/internal/suspicious/models"
)

// fileFormat is the TOML layout:
//
//	[[office]]
//	code = "HQ"
//	timezone = "Europe/Berlin"
//
//	[office.weekly.monday]
//	start = "08:00"
//	end = "17:00"
//
//	[[office.exception]]
//	date = "2024-12-25"
//	working = false
type fileFormat struct {
	Office []officeEntry `toml:"office"`
}

type officeEntry struct {
	Code      string                 `toml:"code"`
	Timezone  string                 `toml:"timezone"`
	Weekly    map[string]windowEntry `toml:"weekly"`
	Exception []exceptionEntry       `toml:"exception"`
}

type windowEntry struct {
	Start string `toml:"start"`
	End   string `toml:"end"`
}

type exceptionEntry struct {
	Date    string `toml:"date"`
	Working bool   `toml:"working"`
	Start   string `toml:"start"`
	End     string `toml:"end"`
}

// FileStore serves schedules from a TOML file. Watch reloads on change and
// keeps the last good copy when a reload fails to parse.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	memory *MemoryStore
}

func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fs := &FileStore{path: path, logger: logger}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) Get(ctx context.Context, office string) (*models.Schedule, error) {
	fs.mu.RLock()
	mem := fs.memory
	fs.mu.RUnlock()
	return mem.Get(ctx, office)
}

// Reload parses the file and swaps the schedules in at once.
func (fs *FileStore) Reload() error {
	schedules, err := LoadFile(fs.path)
	if err != nil {
		return err
	}
	mem := NewMemoryStore(schedules...)
	fs.mu.Lock()
	fs.memory = mem
	fs.mu.Unlock()
	return nil
}

// Watch blocks until ctx is done. The parent directory is watched so editors
// that replace the file by rename are picked up.
func (fs *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(fs.path)); err != nil {
		return fmt.Errorf("watch %s: %w", fs.path, err)
	}
	target := filepath.Clean(fs.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if err := fs.Reload(); err != nil {
				fs.logger.WarnContext(ctx, "office hours reload failed", "path", fs.path, "error", err)
				continue
			}
			fs.logger.InfoContext(ctx, "office hours reloaded", "path", fs.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fs.logger.WarnContext(ctx, "office hours watcher error", "error", err)
		}
	}
}

// LoadFile parses a schedule file. An office without a weekly table gets the
// default hours. An empty file is rejected so a truncate-then-write does not
// briefly clear every schedule.
func LoadFile(path string) ([]*models.Schedule, error) {
	var f fileFormat
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decode office hours %s: %w", path, err)
	}
	if len(f.Office) == 0 {
		return nil, fmt.Errorf("office hours %s: no offices defined", path)
	}
	out := make([]*models.Schedule, 0, len(f.Office))
	for _, entry := range f.Office {
		sched, err := entry.schedule()
		if err != nil {
			return nil, fmt.Errorf("office %q: %w", entry.Code, err)
		}
		out = append(out, sched)
	}
	return out, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (e officeEntry) schedule() (*models.Schedule, error) {
	if e.Code == "" {
		return nil, errors.New("code is required")
	}
	loc := time.UTC
	if e.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(e.Timezone); err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
	}

	var weekly [7]models.Window
	if len(e.Weekly) == 0 {
		weekly = weeklyOf(models.DefaultSchedule(e.Code, loc))
	}
	for name, w := range e.Weekly {
		day, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		window, err := models.NewWindow(w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		weekly[day] = window
	}

	exceptions := make(map[string]models.Window, len(e.Exception))
	for _, ex := range e.Exception {
		if _, err := time.Parse("2006-01-02", ex.Date); err != nil {
			return nil, fmt.Errorf("exception date %q: %w", ex.Date, err)
		}
		if !ex.Working {
			exceptions[ex.Date] = models.Window{}
			continue
		}
		window, err := models.NewWindow(ex.Start, ex.End)
		if err != nil {
			return nil, fmt.Errorf("exception %s: %w", ex.Date, err)
		}
		exceptions[ex.Date] = window
	}
	return models.NewSchedule(e.Code, loc, weekly, exceptions), nil
}

func weeklyOf(s *models.Schedule) [7]models.Window {
	var out [7]models.Window
	for d := time.Sunday; d <= time.Saturday; d++ {
		out[d] = s.Weekday(d)
	}
	return out
}
