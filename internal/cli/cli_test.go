package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amirbrooks/deskkit/internal/store"
	"github.com/amirbrooks/deskkit/internal/tui"
)

func run(t *testing.T, root string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr := stdout, stderr
	stdout, stderr = &out, &errOut
	defer func() { stdout, stderr = prevOut, prevErr }()
	code := Run(append([]string{"--root", root}, args...))
	return code, out.String(), errOut.String()
}

func TestRunUsageErrors(t *testing.T) {
	root := t.TempDir()
	cases := [][]string{
		{},
		{"bogus"},
		{"--json", "--ndjson", "todo", "ls"},
		{"--stdout-json", "todo", "ls"},
		{"--log-level", "loud", "todo", "ls"},
		{"todo"},
		{"todo", "add", "   "},
		{"calc", "eval"},
		{"calc", "bogus"},
		{"config"},
	}
	for _, args := range cases {
		if code, _, _ := run(t, root, args...); code != ExitUsage {
			t.Fatalf("%v: expected exit %d, got %d", args, ExitUsage, code)
		}
	}
	if code, out, _ := run(t, root, "help"); code != ExitOK || !strings.Contains(out, "todo export") {
		t.Fatalf("expected help on stdout, got %d %q", code, out)
	}
}

func TestTodoLifecycle(t *testing.T) {
	root := t.TempDir()
	if code, _, errOut := run(t, root, "init"); code != ExitOK {
		t.Fatalf("init: %d %s", code, errOut)
	}
	if code, out, _ := run(t, root, "todo", "add", "buy", "milk"); code != ExitOK || !strings.Contains(out, "Added tsk_") {
		t.Fatalf("add: %d %q", code, out)
	}
	run(t, root, "todo", "add", "call mom")

	code, out, _ := run(t, root, "todo", "toggle", "milk")
	if code != ExitOK || !strings.HasPrefix(out, "Completed ") {
		t.Fatalf("toggle: %d %q", code, out)
	}

	code, out, _ = run(t, root, "--plain", "todo", "ls", "completed")
	if code != ExitOK || !strings.Contains(out, "buy milk") || strings.Contains(out, "call mom") {
		t.Fatalf("ls completed: %d %q", code, out)
	}

	code, out, _ = run(t, root, "--json", "--stdout-json", "todo", "ls")
	if code != ExitOK {
		t.Fatalf("ls json: %d", code)
	}
	var payload struct {
		Tasks  []store.Task `json:"tasks"`
		Counts store.Counts `json:"counts"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(payload.Tasks) != 2 || payload.Counts != (store.Counts{All: 2, Active: 1, Completed: 1}) {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if code, _, _ := run(t, root, "todo", "rm", "call", "mom"); code != ExitOK {
		t.Fatalf("rm: %d", code)
	}
	if code, _, _ := run(t, root, "todo", "toggle", "zzz"); code != ExitNotFound {
		t.Fatalf("expected not found, got %d", code)
	}

	run(t, root, "todo", "add", "walk dog")
	run(t, root, "todo", "add", "walk dog")
	code, _, errOut := run(t, root, "todo", "toggle", "walk dog")
	if code != ExitConflict || strings.Count(errOut, "tsk_") != 2 {
		t.Fatalf("expected conflict listing both matches, got %d %q", code, errOut)
	}

	code, out, _ = run(t, root, "--ascii", "todo", "ls")
	if code != ExitOK || !strings.Contains(out, "[x] buy milk") || strings.Count(out, "walk dog") != 2 {
		t.Fatalf("ls: %d %q", code, out)
	}
}

func TestTodoJSONExportGoesToExportDir(t *testing.T) {
	root := t.TempDir()
	code, out, _ := run(t, root, "--json", "todo", "add", "file me")
	if code != ExitOK || !strings.HasPrefix(out, "Wrote JSON to: ") {
		t.Fatalf("add: %d %q", code, out)
	}
	path := strings.TrimSpace(strings.TrimPrefix(out, "Wrote JSON to: "))
	if filepath.Dir(path) != filepath.Join(root, "exports") {
		t.Fatalf("expected export under root, got %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil || !bytes.Contains(b, []byte(`"file me"`)) {
		t.Fatalf("unexpected export %q: %v", b, err)
	}
}

func TestTodoExport(t *testing.T) {
	root := t.TempDir()
	run(t, root, "todo", "add", "one")
	run(t, root, "todo", "add", "two")

	target := filepath.Join(root, "out", "tasks.ndjson")
	if code, _, errOut := run(t, root, "todo", "export", "--format", "ndjson", "--out", target); code != ExitOK {
		t.Fatalf("ndjson export: %d %s", code, errOut)
	}
	b, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(b)), "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", b)
	}

	if code, _, errOut := run(t, root, "todo", "export", "--format", "pdf"); code != ExitOK {
		t.Fatalf("pdf export: %d %s", code, errOut)
	}
	matches, _ := filepath.Glob(filepath.Join(root, "exports", "tasks-all-*.pdf"))
	if len(matches) != 1 {
		t.Fatalf("expected one pdf export, got %v", matches)
	}
	pdf, _ := os.ReadFile(matches[0])
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("expected a PDF document")
	}

	exportDir := filepath.Join(root, "blank-format")
	if code, _, errOut := run(t, root, "--export-dir", exportDir, "todo", "export", "--format", ""); code != ExitOK {
		t.Fatalf("blank format export: %d %s", code, errOut)
	}
	if matches, _ := filepath.Glob(filepath.Join(exportDir, "tasks-all-*.json")); len(matches) != 1 {
		t.Fatalf("expected blank format to write a .json file, got %v", matches)
	}

	code, out, _ := run(t, root, "todo", "export", "--out", "-", "--filter", "completed")
	if code != ExitOK || !strings.Contains(out, `"tasks": []`) {
		t.Fatalf("stdout export: %d %q", code, out)
	}
	if code, _, _ := run(t, root, "todo", "export", "--format", "xlsx"); code != ExitUsage {
		t.Fatalf("expected usage error for unknown format, got %d", code)
	}
}

func TestCalcEval(t *testing.T) {
	root := t.TempDir()
	cases := []struct {
		keys []string
		want string
	}{
		{[]string{"12+3="}, "15"},
		{[]string{"1/0", "enter"}, "Cannot divide by zero"},
		{[]string{"1,5", "*", "2", "equals"}, "3"},
		{[]string{"123", "bs"}, "12"},
	}
	for _, tc := range cases {
		code, out, _ := run(t, root, append([]string{"calc", "eval"}, tc.keys...)...)
		if code != ExitOK || strings.TrimSpace(out) != tc.want {
			t.Fatalf("calc eval %v = %d %q, want %q", tc.keys, code, out, tc.want)
		}
	}

	code, out, _ := run(t, root, "calc", "eval", "--trace", "1+2=")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if code != ExitOK || lines[0] != "0" || lines[len(lines)-1] != "3" {
		t.Fatalf("trace: %d %q", code, out)
	}

	code, out, _ = run(t, root, "calc", "eval", "1+2=", "--trace")
	lines = strings.Split(strings.TrimSpace(out), "\n")
	if code != ExitOK || len(lines) < 2 || lines[len(lines)-1] != "3" {
		t.Fatalf("trailing trace: %d %q", code, out)
	}
	if code, out, _ = run(t, root, "calc", "eval", "9", "-", "4", "="); code != ExitOK || strings.TrimSpace(out) != "5" {
		t.Fatalf("minus key: %d %q", code, out)
	}

	code, out, _ = run(t, root, "--json", "--stdout-json", "calc", "eval", "2*3=")
	var payload map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil || code != ExitOK {
		t.Fatalf("json eval: %d %q %v", code, out, err)
	}
	if payload["display"] != "6" {
		t.Fatalf("expected display 6, got %v", payload["display"])
	}
}

func TestConfigSetAndShow(t *testing.T) {
	root := t.TempDir()
	if code, _, _ := run(t, root, "config", "set", "storage.backend", "floppy"); code != ExitUsage {
		t.Fatalf("expected invalid backend to be rejected, got %d", code)
	}
	if code, _, _ := run(t, root, "config", "set", "storage.backend", "mysql"); code != ExitUsage {
		t.Fatalf("expected mysql without dsn to be rejected, got %d", code)
	}
	if code, _, _ := run(t, root, "config", "set", "nope", "x"); code != ExitUsage {
		t.Fatalf("expected unknown key to be rejected, got %d", code)
	}
	if code, _, _ := run(t, root, "config", "set", "todo.default_filter", "Active"); code != ExitOK {
		t.Fatalf("set default filter: %d", code)
	}

	code, out, _ := run(t, root, "--plain", "config", "show")
	if code != ExitOK || !strings.Contains(out, "todo.default_filter") || !strings.Contains(out, "active") {
		t.Fatalf("config show: %d %q", code, out)
	}

	run(t, root, "todo", "add", "open task")
	run(t, root, "todo", "add", "finished task")
	run(t, root, "todo", "toggle", "finished task")
	_, out, _ = run(t, root, "--plain", "todo", "ls")
	if !strings.Contains(out, "open task") || strings.Contains(out, "finished task") {
		t.Fatalf("expected default filter to hide completed tasks, got %q", out)
	}
}

func TestConfigShowRedactsDSN(t *testing.T) {
	root := t.TempDir()
	if code, _, _ := run(t, root, "config", "set", "storage.dsn", "app:hunter2@tcp(db:3306)/tasks"); code != ExitOK {
		t.Fatalf("set dsn: %d", code)
	}
	for _, args := range [][]string{
		{"--plain", "config", "show"},
		{"config", "show"},
		{"--json", "--stdout-json", "config", "show"},
		{"--ndjson", "--stdout-ndjson", "config", "show"},
	} {
		code, out, _ := run(t, root, args...)
		if code != ExitOK || strings.Contains(out, "hunter2") || !strings.Contains(out, "app:***@tcp(db:3306)/tasks") {
			t.Fatalf("%v: expected redacted dsn, got %d %q", args, code, out)
		}
	}

	exportDir := filepath.Join(root, "cfg-exports")
	if code, _, _ := run(t, root, "--json", "--export-dir", exportDir, "config", "show"); code != ExitOK {
		t.Fatalf("json export: %d", code)
	}
	matches, _ := filepath.Glob(filepath.Join(exportDir, "config-*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected one config export, got %v", matches)
	}
	b, _ := os.ReadFile(matches[0])
	if bytes.Contains(b, []byte("hunter2")) {
		t.Fatalf("export leaked the dsn password: %s", b)
	}

	b, _ = os.ReadFile(filepath.Join(root, "config.yaml"))
	if !bytes.Contains(b, []byte("hunter2")) {
		t.Fatalf("expected the stored config to keep the real dsn, got %s", b)
	}
}

func TestMemoryBackendWarnsItDoesNotPersist(t *testing.T) {
	root := t.TempDir()
	if code, _, _ := run(t, root, "init", "--backend", "memory"); code != ExitOK {
		t.Fatalf("init: %d", code)
	}
	code, _, errOut := run(t, root, "todo", "add", "ephemeral")
	if code != ExitOK || !strings.Contains(errOut, "not persisted") {
		t.Fatalf("expected a persistence notice, got %d %q", code, errOut)
	}
	if _, _, errOut := run(t, t.TempDir(), "todo", "add", "kept"); strings.Contains(errOut, "not persisted") {
		t.Fatalf("file backend should not warn: %q", errOut)
	}
}

func TestSQLiteBackendFromInit(t *testing.T) {
	root := t.TempDir()
	if code, _, errOut := run(t, root, "init", "--backend", "sqlite"); code != ExitOK {
		t.Fatalf("init: %d %s", code, errOut)
	}
	run(t, root, "todo", "add", "stored in sqlite")
	if _, err := os.Stat(filepath.Join(root, "deskkit.db")); err != nil {
		t.Fatalf("expected sqlite database: %v", err)
	}
	_, out, _ := run(t, root, "--plain", "todo", "ls")
	if !strings.Contains(out, "stored in sqlite") {
		t.Fatalf("expected task from sqlite, got %q", out)
	}
}

func TestDebugLogsGoToWorkspaceFile(t *testing.T) {
	root := t.TempDir()
	if code, _, _ := run(t, root, "--log-level", "debug", "todo", "add", "logged"); code != ExitOK {
		t.Fatalf("add: %d", code)
	}
	b, err := os.ReadFile(filepath.Join(root, "logs", "deskkit.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !bytes.Contains(b, []byte(`"msg":"command"`)) {
		t.Fatalf("expected command record, got %q", b)
	}
}

func TestInteractiveCommandsStartPrograms(t *testing.T) {
	var started []tea.Model
	prev := runProgram
	runProgram = func(m tea.Model) error {
		started = append(started, m)
		return nil
	}
	defer func() { runProgram = prev }()

	root := t.TempDir()
	if code, _, _ := run(t, root, "calc"); code != ExitOK {
		t.Fatalf("calc: %d", code)
	}
	if code, _, _ := run(t, root, "todo", "ui", "--filter", "completed"); code != ExitOK {
		t.Fatalf("todo ui: %d", code)
	}
	if len(started) != 2 {
		t.Fatalf("expected two programs, got %d", len(started))
	}
	if _, ok := started[0].(tui.CalcModel); !ok {
		t.Fatalf("expected calculator model, got %T", started[0])
	}
	todo, ok := started[1].(tui.TodoModel)
	if !ok || todo.Filter() != store.FilterCompleted {
		t.Fatalf("expected task model on completed filter, got %T", started[1])
	}
}

func TestInteractiveCommandsNeedATerminal(t *testing.T) {
	code, _, errOut := run(t, t.TempDir(), "calc")
	if code != ExitUsage || !strings.Contains(errOut, "interactive terminal") {
		t.Fatalf("expected terminal requirement, got %d %q", code, errOut)
	}
}

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"user:secret@tcp(localhost:3306)/desk": "user:***@tcp(localhost:3306)/desk",
		"deskkit.db":                           "deskkit.db",
		"user@tcp(db)/desk":                    "user@tcp(db)/desk",
	}
	for in, want := range cases {
		if got := redactDSN(in); got != want {
			t.Fatalf("redactDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
