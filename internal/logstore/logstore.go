// Package logstore keeps the console's bounded log buffers.
//
// The store holds two windows over the same stream: a long history used by
// the full log viewer and a short live tail shown next to the charts.
package logstore

import (
	"strings"
	"sync"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/duke-git/lancet/v2/strutil"

	"github.com/yzsind/dbbench/internal/ringbuffer"
	"github.com/yzsind/dbbench/pkg/types"
)

const (
	DefaultHistoryCapacity = 1000
	DefaultTailCapacity    = 100
)

// AppendListener is called for every entry added to the live tail.
type AppendListener func(entry types.LogEntry)

// ReplaceListener is called when the history is replaced or cleared.
type ReplaceListener func(entries []types.LogEntry)

// Store is safe for concurrent use. Listeners run outside the lock.
type Store struct {
	mu        sync.Mutex
	history   *ringbuffer.Buffer[types.LogEntry]
	tail      *ringbuffer.Buffer[types.LogEntry]
	onAppend  []AppendListener
	onReplace []ReplaceListener
}

// New creates a Store. Capacities below 1 fall back to the defaults.
func New(historyCap, tailCap int) *Store {
	if historyCap < 1 {
		historyCap = DefaultHistoryCapacity
	}
	if tailCap < 1 {
		tailCap = DefaultTailCapacity
	}
	return &Store{
		history: ringbuffer.New[types.LogEntry](historyCap),
		tail:    ringbuffer.New[types.LogEntry](tailCap),
	}
}

// OnAppend registers an append listener.
func (s *Store) OnAppend(l AppendListener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.onAppend = append(s.onAppend, l)
	s.mu.Unlock()
}

// OnReplace registers a history replacement listener.
func (s *Store) OnReplace(l ReplaceListener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.onReplace = append(s.onReplace, l)
	s.mu.Unlock()
}

// Append adds an entry to both the history and the live tail.
func (s *Store) Append(entry types.LogEntry) {
	s.mu.Lock()
	s.history.Append(entry)
	s.tail.Append(entry)
	listeners := s.onAppend
	s.mu.Unlock()

	for _, l := range listeners {
		l(entry)
	}
}

// AppendTail adds an entry to the live tail only.
func (s *Store) AppendTail(entry types.LogEntry) {
	s.mu.Lock()
	s.tail.Append(entry)
	listeners := s.onAppend
	s.mu.Unlock()

	for _, l := range listeners {
		l(entry)
	}
}

// SeedTail appends history entries to the live tail only. Entries that
// would be evicted immediately are skipped.
func (s *Store) SeedTail(entries []types.LogEntry) {
	s.mu.Lock()
	if n := s.tail.Cap(); len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	seeded := copyEntries(entries)
	for _, e := range seeded {
		s.tail.Append(e)
	}
	listeners := s.onAppend
	s.mu.Unlock()

	for _, e := range seeded {
		for _, l := range listeners {
			l(e)
		}
	}
}

// ReplaceHistory swaps the history for entries. The live tail is untouched.
func (s *Store) ReplaceHistory(entries []types.LogEntry) {
	s.mu.Lock()
	s.history.Replace(entries)
	current := s.history.Items()
	listeners := s.onReplace
	s.mu.Unlock()

	for _, l := range listeners {
		l(copyEntries(current))
	}
}

// Clear empties both buffers.
func (s *Store) Clear() {
	s.mu.Lock()
	s.history.Clear()
	s.tail.Clear()
	listeners := s.onReplace
	s.mu.Unlock()

	for _, l := range listeners {
		l([]types.LogEntry{})
	}
}

// Query returns history entries matching level and containing text,
// case-insensitively. An empty text or the "all" level match everything.
func (s *Store) Query(text string, level types.LogLevel) []types.LogEntry {
	entries := s.History()

	needle := strings.ToLower(text)
	blank := strutil.IsBlank(text)
	return slice.Filter(entries, func(_ int, e types.LogEntry) bool {
		if level != types.LevelAll && level != "" && e.Level != level {
			return false
		}
		return blank || strings.Contains(strings.ToLower(e.Message), needle)
	})
}

// History returns the full history, oldest first.
func (s *Store) History() []types.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Items()
}

// Tail returns the live tail, oldest first.
func (s *Store) Tail() []types.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tail.Items()
}

// Last returns up to n of the newest history entries.
func (s *Store) Last(n int) []types.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Last(n)
}

func copyEntries(in []types.LogEntry) []types.LogEntry {
	out := make([]types.LogEntry, len(in))
	copy(out, in)
	return out
}
