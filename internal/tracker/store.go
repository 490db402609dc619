// Package tracker holds the set of windows currently moved onto temporary
// desktops.
package tracker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/1broseidon/maxdesk/internal/persist"
	"github.com/1broseidon/maxdesk/internal/platform"
)

// ErrAlreadyTracked is returned by Track for a window that has a record.
var ErrAlreadyTracked = errors.New("window already tracked")

// Record is the bookkeeping for one migrated window.
type Record struct {
	Window          platform.WindowID
	OriginalDesktop platform.DesktopID
	TempDesktop     platform.DesktopID
	Desktop         *SharedDesktop
	Label           string
	Placement       platform.Placement
	MovedAt         time.Time
	// Armed is set once the window has been seen maximized while tracked.
	Armed bool
}

// Shadow receives the full set of live temporary desktops after every
// mutation.
type Shadow interface {
	Write(entries []persist.Entry) error
}

// Store is the single source of truth for tracked windows. It is safe for
// concurrent use; the shadow is written synchronously before each mutating
// call returns.
type Store struct {
	mu       sync.Mutex
	records  map[platform.WindowID]*Record
	shadow   Shadow
	isWindow func(platform.WindowID) bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates an empty store. shadow may be nil. isWindow is used by
// StaleHandles.
func NewStore(shadow Shadow, isWindow func(platform.WindowID) bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		records:  make(map[platform.WindowID]*Record),
		shadow:   shadow,
		isWindow: isWindow,
		logger:   logger,
		now:      time.Now,
	}
}

// IsTracked reports whether w has a record.
func (s *Store) IsTracked(w platform.WindowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[w]
	return ok
}

// Get returns a copy of w's record.
func (s *Store) Get(w platform.WindowID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[w]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Track records w as living on desktop. The store takes its own reference
// on desktop.
func (s *Store) Track(w platform.WindowID, original platform.DesktopID, desktop *SharedDesktop, label string, placement platform.Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[w]; ok {
		return fmt.Errorf("track window %d: %w", w, ErrAlreadyTracked)
	}
	s.records[w] = &Record{
		Window:          w,
		OriginalDesktop: original,
		TempDesktop:     desktop.ID(),
		Desktop:         desktop.Acquire(),
		Label:           label,
		Placement:       placement,
		MovedAt:         s.now(),
	}
	s.syncLocked()
	return nil
}

// Arm marks w as observed maximized. It reports whether w is tracked.
func (s *Store) Arm(w platform.WindowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[w]
	if ok {
		rec.Armed = true
	}
	return ok
}

// Untrack removes w's record and hands its desktop reference to the caller,
// who must Release it after any teardown.
func (s *Store) Untrack(w platform.WindowID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[w]
	if !ok {
		return Record{}, false
	}
	delete(s.records, w)
	s.syncLocked()
	return *rec, true
}

// UntrackDesktop removes every record on the temporary desktop id, ordered
// by window. Desktop references pass to the caller as with Untrack.
func (s *Store) UntrackDesktop(id platform.DesktopID) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for w, rec := range s.records {
		if rec.TempDesktop == id {
			out = append(out, *rec)
			delete(s.records, w)
		}
	}
	if len(out) > 0 {
		s.syncLocked()
	}
	sortRecords(out)
	return out
}

// Sharing returns how many records live on the temporary desktop id.
func (s *Store) Sharing(id platform.DesktopID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.TempDesktop == id {
			n++
		}
	}
	return n
}

// GetAll returns a snapshot of every record ordered by window.
func (s *Store) GetAll() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sortRecords(out)
	return out
}

// StaleHandles returns tracked windows that no longer exist.
func (s *Store) StaleHandles() []platform.WindowID {
	s.mu.Lock()
	ids := make([]platform.WindowID, 0, len(s.records))
	for w := range s.records {
		ids = append(ids, w)
	}
	s.mu.Unlock()

	var stale []platform.WindowID
	for _, w := range ids {
		if s.isWindow != nil && !s.isWindow(w) {
			stale = append(stale, w)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	return stale
}

// Clear drops every record without releasing desktop references. Used after
// a shell restart, when the handles are no longer valid.
func (s *Store) Clear() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		// A shadow left by a previous run may still be waiting for recovery.
		return nil
	}
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	s.records = make(map[platform.WindowID]*Record)
	s.syncLocked()
	sortRecords(out)
	return out
}

// Count returns the number of tracked windows.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// syncLocked writes one shadow entry per live temporary desktop. Failures
// are logged; the in-memory state stays authoritative.
func (s *Store) syncLocked() {
	if s.shadow == nil {
		return
	}
	seen := make(map[platform.DesktopID]int)
	var entries []persist.Entry
	for _, rec := range s.sortedLocked() {
		if i, ok := seen[rec.TempDesktop]; ok {
			if rec.MovedAt.Before(entries[i].Timestamp) {
				entries[i].Timestamp = rec.MovedAt
			}
			continue
		}
		seen[rec.TempDesktop] = len(entries)
		entries = append(entries, persist.Entry{
			Desktop:   rec.TempDesktop,
			Label:     rec.Label,
			Timestamp: rec.MovedAt,
		})
	}
	if err := s.shadow.Write(entries); err != nil {
		s.logger.Warn("failed to write persistence shadow", "error", err)
	}
}

func (s *Store) sortedLocked() []*Record {
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window < out[j].Window })
	return out
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Window < recs[j].Window })
}
