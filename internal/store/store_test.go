package store

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tsk_%d", n)
	}
}

func newTestStore(slot Slot) (*Store, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(slot, WithLogger(logger), WithIDGenerator(sequentialIDs())), &logs
}

func TestAddRejectsBlankText(t *testing.T) {
	slot := NewMemSlot(nil)
	s, _ := newTestStore(slot)

	if _, ok := s.Add("   "); ok {
		t.Fatalf("expected blank text to be rejected")
	}
	if s.Len() != 0 || slot.Writes != 0 {
		t.Fatalf("expected no change, got len=%d writes=%d", s.Len(), slot.Writes)
	}

	task, ok := s.Add("  buy milk ")
	if !ok {
		t.Fatalf("expected add to succeed")
	}
	if s.Len() != 1 || slot.Writes != 1 {
		t.Fatalf("expected one task and one write, got len=%d writes=%d", s.Len(), slot.Writes)
	}
	want := Task{ID: "tsk_1", Text: "buy milk", Completed: false}
	if diff := cmp.Diff(want, task); diff != "" {
		t.Fatalf("task mismatch (-want +got):\n%s", diff)
	}
}

func TestFilteredViewAfterToggle(t *testing.T) {
	s, _ := newTestStore(NewMemSlot(nil))
	first, _ := s.Add("first")
	second, _ := s.Add("second")
	if _, ok := s.Toggle(first.ID); !ok {
		t.Fatalf("expected toggle to find %s", first.ID)
	}

	if diff := cmp.Diff([]Task{second}, s.FilteredView(FilterActive)); diff != "" {
		t.Fatalf("active view (-want +got):\n%s", diff)
	}
	done := first
	done.Completed = true
	if diff := cmp.Diff([]Task{done}, s.FilteredView(FilterCompleted)); diff != "" {
		t.Fatalf("completed view (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Task{done, second}, s.FilteredView(FilterAll)); diff != "" {
		t.Fatalf("all view (-want +got):\n%s", diff)
	}
	if got := s.Counts(); got != (Counts{All: 2, Active: 1, Completed: 1}) {
		t.Fatalf("unexpected counts %+v", got)
	}
}

func TestFilteredViewIsACopy(t *testing.T) {
	s, _ := newTestStore(NewMemSlot(nil))
	task, _ := s.Add("keep me")
	view := s.FilteredView(FilterAll)
	view[0].Completed = true
	view[0].Text = "changed"
	got, _ := s.Get(task.ID)
	if diff := cmp.Diff(task, got); diff != "" {
		t.Fatalf("store mutated through view (-want +got):\n%s", diff)
	}
}

func TestToggleAndDeleteMissingDoNotWrite(t *testing.T) {
	slot := NewMemSlot(nil)
	s, _ := newTestStore(slot)
	task, _ := s.Add("a")
	writes := slot.Writes

	if _, ok := s.Toggle("tsk_missing"); ok {
		t.Fatalf("expected toggle of missing id to report false")
	}
	if s.Delete("tsk_missing") {
		t.Fatalf("expected delete of missing id to report false")
	}
	if slot.Writes != writes {
		t.Fatalf("expected no writes, got %d new", slot.Writes-writes)
	}

	if !s.Delete(task.ID) {
		t.Fatalf("expected delete to succeed")
	}
	if slot.Writes != writes+1 || s.Len() != 0 {
		t.Fatalf("expected one write and empty store, got writes=%d len=%d", slot.Writes-writes, s.Len())
	}
}

func TestSaveFailureIsLoggedNotReturned(t *testing.T) {
	slot := NewMemSlot(nil)
	slot.FailWith = errors.New("quota exceeded")
	s, logs := newTestStore(slot)

	task, ok := s.Add("still here")
	if !ok {
		t.Fatalf("expected add to succeed in memory")
	}
	if _, found := s.Get(task.ID); !found {
		t.Fatalf("expected task in memory after failed save")
	}
	if !strings.Contains(logs.String(), "failed to save tasks to storage") ||
		!strings.Contains(logs.String(), "quota exceeded") {
		t.Fatalf("expected save failure to be logged, got %q", logs.String())
	}
}

func TestLoadRoundTrip(t *testing.T) {
	slot := NewMemSlot(nil)
	s, _ := newTestStore(slot)
	a, _ := s.Add("a")
	b, _ := s.Add("b")
	s.Toggle(b.ID)

	reloaded, _ := newTestStore(slot)
	reloaded.Load()
	b.Completed = true
	if diff := cmp.Diff([]Task{a, b}, reloaded.FilteredView(FilterAll)); diff != "" {
		t.Fatalf("reloaded tasks (-want +got):\n%s", diff)
	}
}

func TestLoadTreatsBadSnapshotsAsEmpty(t *testing.T) {
	cases := map[string][]byte{
		"missing":        nil,
		"not json":       []byte("{oops"),
		"object":         []byte(`{"id":"1","text":"x","completed":false}`),
		"string element": []byte(`["x"]`),
		"wrong type":     []byte(`[{"id":"1","text":"x","completed":"yes"}]`),
		"nested array":   []byte(`[[1,2]]`),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			s, _ := newTestStore(NewMemSlot(payload))
			s.Load()
			if s.Len() != 0 {
				t.Fatalf("expected empty store, got %d tasks", s.Len())
			}
		})
	}
}

func TestLoadSkipsUnusableRecords(t *testing.T) {
	payload := []byte(`[
		{"id":"1712000000000abcde","text":"legacy","completed":true},
		{"id":"","text":"no id"},
		{"id":"2","text":"   "},
		{"id":"1712000000000abcde","text":"duplicate"},
		{"id":"3","text":" spaced "}
	]`)
	s, logs := newTestStore(NewMemSlot(payload))
	s.Load()
	want := []Task{
		{ID: "1712000000000abcde", Text: "legacy", Completed: true},
		{ID: "3", Text: "spaced"},
	}
	if diff := cmp.Diff(want, s.FilteredView(FilterAll)); diff != "" {
		t.Fatalf("loaded tasks (-want +got):\n%s", diff)
	}
	if !strings.Contains(logs.String(), "duplicate id") {
		t.Fatalf("expected duplicate warning, got %q", logs.String())
	}
}

func TestParseFilter(t *testing.T) {
	cases := map[string]Filter{
		"active":     FilterActive,
		" Completed": FilterCompleted,
		"all":        FilterAll,
		"":           FilterAll,
		"bogus":      FilterAll,
	}
	for in, want := range cases {
		if got := ParseFilter(in); got != want {
			t.Fatalf("ParseFilter(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	s := New(NewMemSlot(nil))
	ids := []string{
		"tsk_01HZX0000000000000000000A1",
		"tsk_01HZX0000000000000000000B2",
		"tsk_01J000000000000000000000C3",
	}
	next := 0
	s.newID = func() string { id := ids[next]; next++; return id }
	milk, _ := s.Add("Buy milk")
	mail, _ := s.Add("Answer mail")
	report, _ := s.Add("Write quarterly report")

	cases := []struct {
		selector string
		want     Task
		err      error
	}{
		{selector: milk.ID, want: milk},
		{selector: "01J", want: report},
		{selector: "tsk_01hzx0000000000000000000b", want: mail},
		{selector: "buy MILK", want: milk},
		{selector: "qrtrly", want: report},
		{selector: "tsk_01HZX", err: ErrConflict},
		{selector: "zzzz", err: ErrNotFound},
		{selector: "  ", err: ErrInvalid},
	}
	for _, tc := range cases {
		got, err := s.Resolve(tc.selector)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tc.selector, err, tc.err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.selector, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("Resolve(%q) mismatch (-want +got):\n%s", tc.selector, diff)
		}
	}

	_, err := s.Resolve("tsk_01HZX")
	var conflict *MatchConflictError
	if !errors.As(err, &conflict) || len(conflict.Matches) != 2 {
		t.Fatalf("expected conflict with 2 matches, got %v", err)
	}
}

func TestNewULIDIsUniqueAndParses(t *testing.T) {
	s := New(NewMemSlot(nil))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		task, _ := s.Add(fmt.Sprintf("task %d", i))
		if seen[task.ID] {
			t.Fatalf("duplicate id %s", task.ID)
		}
		seen[task.ID] = true
		if !strings.HasPrefix(task.ID, "tsk_") {
			t.Fatalf("expected tsk_ prefix, got %s", task.ID)
		}
		if _, ok := task.CreatedAt(); !ok {
			t.Fatalf("expected %s to carry a timestamp", task.ID)
		}
	}
}
