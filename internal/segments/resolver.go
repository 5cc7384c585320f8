package segments

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync/atomic"

	lev "github.com/agnivade/levenshtein"
	"github.com/fsnotify/fsnotify"

	"github.com/albapepper/burrito-league/internal/sheet"
)

// maxSuggestDistance bounds how far a city may be from a curated key before
// it stops counting as a likely typo.
const maxSuggestDistance = 3

// Resolver serves lookups against the current tables. Tables can be swapped
// at runtime; readers never see a partial update.
type Resolver struct {
	tables atomic.Pointer[Tables]
	path   string
	logger *slog.Logger
}

// NewResolver loads tables from path (or the embedded defaults when empty).
func NewResolver(path string, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t, err := LoadTables(path)
	if err != nil {
		return nil, err
	}
	r := &Resolver{path: path, logger: logger}
	r.tables.Store(t)
	return r, nil
}

// NewStaticResolver wraps fixed tables. Used by tests and one-shot commands.
func NewStaticResolver(t *Tables) *Resolver {
	r := &Resolver{logger: slog.Default()}
	r.tables.Store(t)
	return r
}

// Tables returns the tables currently in effect.
func (r *Resolver) Tables() *Tables { return r.tables.Load() }

// Resolve returns the verified segment id for a row, or 0 when unresolved.
func (r *Resolver) Resolve(segmentName, city string) int64 {
	return r.tables.Load().Lookup(segmentName, city)
}

// BuildChapters resolves sheet records into chapters.
func (r *Resolver) BuildChapters(records []sheet.Record) []Chapter {
	return r.tables.Load().Build(records)
}

// Suggestion is a near-miss curated key for an unresolved chapter.
type Suggestion struct {
	City      string `json:"city"`
	Candidate string `json:"candidate"`
	SegmentID int64  `json:"segmentId"`
	Distance  int    `json:"distance"`
}

// Suggest returns the closest curated city for each unresolved chapter,
// when one is within a few edits.
func (r *Resolver) Suggest(chapters []Chapter) []Suggestion {
	t := r.tables.Load()
	keys := make([]string, 0, len(t.Cities))
	for k := range t.Cities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Suggestion
	for _, ch := range chapters {
		if ch.Valid() {
			continue
		}
		city := normalize(ch.City)
		best, bestDist := "", maxSuggestDistance+1
		for _, k := range keys {
			if d := lev.ComputeDistance(city, k); d < bestDist {
				best, bestDist = k, d
			}
		}
		if best == "" {
			continue
		}
		out = append(out, Suggestion{
			City:      ch.City,
			Candidate: best,
			SegmentID: t.Cities[best],
			Distance:  bestDist,
		})
	}
	return out
}

// Reload re-reads the tables file. On error the current tables stay.
func (r *Resolver) Reload() error {
	t, err := LoadTables(r.path)
	if err != nil {
		return err
	}
	r.tables.Store(t)
	r.logger.Info("Segment tables reloaded",
		"path", r.path, "cities", len(t.Cities), "names", len(t.Names))
	return nil
}

// Watch reloads the tables whenever the override file changes. It watches
// the parent directory so editors that replace the file are picked up.
// Returns immediately when no override file is configured; otherwise blocks
// until ctx is cancelled. Intended to be called with `go`.
func (r *Resolver) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(r.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", target, err)
	}
	r.logger.Info("Watching segment tables", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Warn("Segment tables reload failed, keeping previous tables",
					"path", target, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Segment tables watcher error", "error", err)
		}
	}
}
