package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jung-kurt/gofpdf"
	"github.com/oklog/ulid/v2"
)

// CreatedAt reads the creation time out of a ULID-based id. Ids written by
// other tools report false.
func (t Task) CreatedAt() (time.Time, bool) {
	id, err := ulid.ParseStrict(normalizeID(t.ID))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()).UTC(), true
}

// Age renders the creation time relative to now, or "" when unknown.
func (t Task) Age(now time.Time) string {
	created, ok := t.CreatedAt()
	if !ok {
		return ""
	}
	return humanize.RelTime(created, now, "ago", "from now")
}

func (t Task) IDShort(n int) string {
	s := t.ID
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (t Task) StatusMark(ascii bool) string {
	if t.Completed {
		if ascii {
			return "[x]"
		}
		return "✓"
	}
	if ascii {
		return "[ ]"
	}
	return "○"
}

func (t Task) StatusLabel() string {
	if t.Completed {
		return "completed"
	}
	return "active"
}

// RenderList renders tasks one per line for terminal output.
func RenderList(tasks []Task, now time.Time, ascii bool) string {
	if len(tasks) == 0 {
		return "(no tasks)\n"
	}
	var b strings.Builder
	for _, t := range tasks {
		line := fmt.Sprintf("%s %s  %s", t.StatusMark(ascii), truncate(t.Text, 80, ascii), t.IDShort(12))
		if age := t.Age(now); age != "" {
			line += "  (" + age + ")"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

const (
	ExportJSON   = "json"
	ExportNDJSON = "ndjson"
	ExportPDF    = "pdf"
)

// Export renders tasks in the given format.
func Export(tasks []Task, format string, title string, now time.Time) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case ExportJSON, "":
		return json.MarshalIndent(map[string]any{"tasks": tasks}, "", "  ")
	case ExportNDJSON:
		var buf bytes.Buffer
		for _, t := range tasks {
			line, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	case ExportPDF:
		return renderPDF(tasks, title, now)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", ErrInvalid, format)
	}
}

func renderPDF(tasks []Task, title string, now time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(40, 10, tr(title))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(40, 6, now.UTC().Format("2006-01-02 15:04 MST"))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 11)
	if len(tasks) == 0 {
		pdf.MultiCell(0, 6, "(no tasks)", "0", "L", false)
	}
	for _, t := range tasks {
		line := fmt.Sprintf("%s %s", t.StatusMark(true), t.Text)
		pdf.MultiCell(0, 6, tr(line), "0", "L", false)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int, ascii bool) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	if ascii {
		return string(r[:n-2]) + ".."
	}
	// unicode ellipsis
	return string(r[:n-1]) + "…"
}
