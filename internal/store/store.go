package store

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sahilm/fuzzy"
)

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	timeNow     = func() time.Time { return time.Now().UTC() }
)

const idPrefix = "tsk_"

// MatchConflictError provides details when a selector matches multiple tasks.
// It still satisfies errors.Is(err, ErrConflict).
type MatchConflictError struct {
	Reason  string
	Matches []Task
}

func (e *MatchConflictError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "conflict"
	}
	return "conflict: " + e.Reason
}

func (e *MatchConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Task is one to-do record. Text never changes after creation; Completed is
// the only mutable field.
type Task struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"completed"`
}

type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// Filters lists the filters in display order.
var Filters = []Filter{FilterAll, FilterActive, FilterCompleted}

// ParseFilter normalizes a filter name. Unknown names fall back to FilterAll.
func ParseFilter(s string) Filter {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterActive:
		return FilterActive
	case FilterCompleted:
		return FilterCompleted
	default:
		return FilterAll
	}
}

func (f Filter) match(t Task) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

type Counts struct {
	All       int `json:"all"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

// Store owns the ordered task sequence and mirrors it to a Slot after every
// mutation. Persistence is best effort: failures are logged, never returned.
// A Store is not safe for concurrent use.
type Store struct {
	slot  Slot
	log   *slog.Logger
	newID func() string
	tasks []Task
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIDGenerator replaces the ULID generator, mostly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New returns an empty store backed by slot. Call Load to read the snapshot.
func New(slot Slot, opts ...Option) *Store {
	s := &Store{
		slot:  slot,
		log:   slog.Default(),
		newID: func() string { return idPrefix + newULID() },
		tasks: []Task{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory sequence with the persisted snapshot. A missing,
// unreadable or malformed snapshot leaves the store empty.
func (s *Store) Load() {
	s.tasks = []Task{}
	if s.slot == nil {
		return
	}
	b, err := s.slot.Get()
	if err != nil {
		if errors.Is(err, ErrSlotEmpty) {
			s.log.Debug("no task snapshot stored")
		} else {
			s.log.Error("failed to read tasks from storage", "error", err)
		}
		return
	}
	tasks, err := decodeTasks(b)
	if err != nil {
		s.log.Error("failed to parse tasks from storage", "error", err)
		return
	}
	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		t.ID = strings.TrimSpace(t.ID)
		t.Text = strings.TrimSpace(t.Text)
		if t.ID == "" || t.Text == "" {
			s.log.Warn("skipping stored task without id or text", "index", i)
			continue
		}
		if seen[t.ID] {
			s.log.Warn("skipping stored task with duplicate id", "index", i, "id", t.ID)
			continue
		}
		seen[t.ID] = true
		s.tasks = append(s.tasks, t)
	}
	s.log.Debug("loaded tasks", "count", len(s.tasks))
}

func (s *Store) save() {
	if s.slot == nil {
		return
	}
	b, err := json.Marshal(s.tasks)
	if err != nil {
		s.log.Error("failed to encode tasks", "error", err)
		return
	}
	if err := s.slot.Put(b); err != nil {
		s.log.Error("failed to save tasks to storage", "error", err)
	}
}

// Add appends a new active task. Blank text is rejected without a write.
func (s *Store) Add(text string) (Task, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Task{}, false
	}
	t := Task{ID: s.newID(), Text: text}
	s.tasks = append(s.tasks, t)
	s.save()
	return t, true
}

// Toggle flips the completion flag of the task with the given id.
func (s *Store) Toggle(id string) (Task, bool) {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].Completed = !s.tasks[i].Completed
			s.save()
			return s.tasks[i], true
		}
	}
	return Task{}, false
}

// Delete removes the task with the given id. Nothing is written when no task
// matched.
func (s *Store) Delete(id string) bool {
	before := len(s.tasks)
	kept := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
	if len(s.tasks) == before {
		return false
	}
	s.save()
	return true
}

// FilteredView returns a copy of the tasks matching f, in insertion order.
func (s *Store) FilteredView(f Filter) []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) Len() int { return len(s.tasks) }

func (s *Store) Get(id string) (Task, bool) {
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

func (s *Store) Counts() Counts {
	c := Counts{All: len(s.tasks)}
	for _, t := range s.tasks {
		if t.Completed {
			c.Completed++
		} else {
			c.Active++
		}
	}
	return c
}

// Resolve finds a single task by id, id prefix or text. Id-like selectors try
// the prefix first; everything else tries the text first and falls back to a
// fuzzy match.
func (s *Store) Resolve(selector string) (Task, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return Task{}, fmt.Errorf("%w: empty selector", ErrInvalid)
	}
	if t, ok := s.Get(selector); ok {
		return t, nil
	}
	if isLikelyIDSelector(selector) {
		if t, err := pickOne("prefix", s.byIDPrefix(selector)); !errors.Is(err, ErrNotFound) {
			return t, err
		}
		return s.resolveText(selector)
	}
	t, err := s.resolveText(selector)
	if errors.Is(err, ErrNotFound) {
		return pickOne("prefix", s.byIDPrefix(selector))
	}
	return t, err
}

func (s *Store) resolveText(selector string) (Task, error) {
	lower := strings.ToLower(selector)
	var exact []Task
	for _, t := range s.tasks {
		if strings.ToLower(t.Text) == lower {
			exact = append(exact, t)
		}
	}
	if len(exact) > 0 {
		return pickOne("text", exact)
	}

	texts := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		texts[i] = t.Text
	}
	matches := fuzzy.Find(selector, texts)
	if len(matches) == 0 {
		return Task{}, ErrNotFound
	}
	if len(matches) == 1 || matches[0].Score > matches[1].Score {
		return s.tasks[matches[0].Index], nil
	}
	var tied []Task
	for _, m := range matches {
		if m.Score == matches[0].Score {
			tied = append(tied, s.tasks[m.Index])
		}
	}
	return Task{}, &MatchConflictError{Reason: "text", Matches: tied}
}

func (s *Store) byIDPrefix(prefix string) []Task {
	norm := normalizeID(prefix)
	if norm == "" {
		return nil
	}
	var out []Task
	for _, t := range s.tasks {
		if strings.HasPrefix(normalizeID(t.ID), norm) {
			out = append(out, t)
		}
	}
	return out
}

func pickOne(reason string, matches []Task) (Task, error) {
	switch len(matches) {
	case 0:
		return Task{}, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return Task{}, &MatchConflictError{Reason: reason, Matches: matches}
	}
}

func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) >= len(idPrefix) && strings.EqualFold(id[:len(idPrefix)], idPrefix) {
		id = id[len(idPrefix):]
	}
	return strings.ToUpper(id)
}

func isLikelyIDSelector(selector string) bool {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(selector), idPrefix) {
		return true
	}
	if len(selector) < 8 {
		return false
	}
	allowed := "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	hasDigit := false
	for _, r := range strings.ToUpper(selector) {
		if r >= '0' && r <= '9' {
			hasDigit = true
		}
		if !strings.ContainsRune(allowed, r) {
			return false
		}
	}
	return hasDigit
}

// decodeTasks accepts only a JSON array of objects.
func decodeTasks(b []byte) ([]Task, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	out := make([]Task, 0, len(raw))
	for i, r := range raw {
		trimmed := bytes.TrimSpace(r)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not a record", ErrInvalid, i)
		}
		var t Task
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrInvalid, i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func newULID() string {
	t := ulid.Timestamp(timeNow())
	entropy := ulid.Monotonic(randReader{}, 0)
	id, err := ulid.New(t, entropy)
	if err != nil {
		// fallback
		return fmt.Sprintf("%d", timeNow().UnixNano())
	}
	return strings.ToUpper(id.String())
}
