package cli

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"

	"github.com/amirbrooks/deskkit/internal/store"
	"github.com/amirbrooks/deskkit/internal/tui"
)

func cmdTodo(ws *store.Workspace, gf GlobalFlags, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: deskkit todo <add|ls|toggle|rm|export|ui> ...")
		return ExitUsage
	}
	s, closer, err := ws.OpenStore()
	if err != nil {
		return fail("todo", err)
	}
	defer closer.Close()
	if ws.Config().Storage.Backend == store.BackendMemory {
		fmt.Fprintln(stderr, "deskkit: storage.backend is memory; changes are not persisted")
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		return cmdTodoAdd(ws, s, gf, rest)
	case "ls", "list":
		return cmdTodoList(ws, s, gf, rest)
	case "toggle", "done":
		return cmdTodoToggle(ws, s, gf, rest)
	case "rm", "delete":
		return cmdTodoRemove(ws, s, gf, rest)
	case "export":
		return cmdTodoExport(ws, s, gf, rest)
	case "ui":
		return cmdTodoUI(ws, s, gf, rest)
	default:
		fmt.Fprintf(stderr, "Unknown todo command: %s\n", sub)
		return ExitUsage
	}
}

func cmdTodoAdd(ws *store.Workspace, s *store.Store, gf GlobalFlags, args []string) int {
	text := strings.TrimSpace(strings.Join(args, " "))
	task, ok := s.Add(text)
	if !ok {
		fmt.Fprintln(stderr, "Usage: deskkit todo add \"<text>\"")
		return ExitUsage
	}
	payload := map[string]any{"task": task}
	if handled, code := emitStructured(ws, gf, "add", "task", payload, []any{task}); handled {
		return code
	}
	if !gf.Quiet {
		fmt.Fprintf(stdout, "Added %s %s\n", task.ID, task.Text)
	}
	return ExitOK
}

func filterFlag(fs *flag.FlagSet, ws *store.Workspace) *string {
	return fs.String("filter", ws.Config().Todo.DefaultFilter, "Filter (all|active|completed)")
}

func cmdTodoList(ws *store.Workspace, s *store.Store, gf GlobalFlags, args []string) int {
	args = reorderFlags(args, map[string]bool{"--filter": true})
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.SetOutput(stderr)
	filter := filterFlag(fs, ws)
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if rest := fs.Args(); len(rest) > 0 {
		*filter = rest[0]
	}

	f := store.ParseFilter(*filter)
	tasks := s.FilteredView(f)
	items := make([]any, 0, len(tasks))
	for i := range tasks {
		items = append(items, tasks[i])
	}
	payload := map[string]any{"filter": f, "tasks": tasks, "counts": s.Counts()}
	if handled, code := emitStructured(ws, gf, "ls", "tasks", payload, items); handled {
		return code
	}

	if gf.Plain {
		w := tabwriter.NewWriter(stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTEXT")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.StatusLabel(), t.Text)
		}
		_ = w.Flush()
		return ExitOK
	}

	fmt.Fprint(stdout, store.RenderList(tasks, timeNow(), gf.ASCII))
	if !gf.Quiet {
		c := s.Counts()
		fmt.Fprintf(stdout, "\n%s: %d shown, %d active, %d completed\n", f, len(tasks), c.Active, c.Completed)
	}
	return ExitOK
}

func cmdTodoToggle(ws *store.Workspace, s *store.Store, gf GlobalFlags, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: deskkit todo toggle <id-prefix-or-text>")
		return ExitUsage
	}
	found, err := s.Resolve(strings.Join(args, " "))
	if err != nil {
		return fail("toggle", err)
	}
	task, _ := s.Toggle(found.ID)
	if handled, code := emitStructured(ws, gf, "toggle", "task", map[string]any{"task": task}, []any{task}); handled {
		return code
	}
	if !gf.Quiet {
		verb := "Reopened"
		if task.Completed {
			verb = "Completed"
		}
		fmt.Fprintf(stdout, "%s %s %s\n", verb, task.ID, task.Text)
	}
	return ExitOK
}

func cmdTodoRemove(ws *store.Workspace, s *store.Store, gf GlobalFlags, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: deskkit todo rm <id-prefix-or-text>")
		return ExitUsage
	}
	task, err := s.Resolve(strings.Join(args, " "))
	if err != nil {
		return fail("rm", err)
	}
	s.Delete(task.ID)
	payload := map[string]any{"deleted": task}
	if handled, code := emitStructured(ws, gf, "rm", "deleted", payload, []any{task}); handled {
		return code
	}
	if !gf.Quiet {
		fmt.Fprintf(stdout, "Deleted %s %s\n", task.ID, task.Text)
	}
	return ExitOK
}

func cmdTodoExport(ws *store.Workspace, s *store.Store, gf GlobalFlags, args []string) int {
	args = reorderFlags(args, map[string]bool{"--filter": true, "--format": true, "--out": true, "--title": true})
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	filter := filterFlag(fs, ws)
	format := fs.String("format", store.ExportJSON, "Export format (json|ndjson|pdf)")
	out := fs.String("out", "", "Output path, or - for stdout (default: export dir)")
	title := fs.String("title", "Tasks", "Document title (pdf)")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}

	f := store.ParseFilter(*filter)
	ext := strings.ToLower(strings.TrimSpace(*format))
	if ext == "" {
		ext = store.ExportJSON
	}
	data, err := store.Export(s.FilteredView(f), ext, *title, timeNow())
	if err != nil {
		return fail("export", err)
	}

	switch strings.TrimSpace(*out) {
	case "-":
		if _, err := stdout.Write(data); err != nil {
			return fail("export", err)
		}
		return ExitOK
	case "":
		path, err := writeExportFile(ws.Fs(), gf.ExportDir, "tasks-"+string(f), ext, data)
		if err != nil {
			return fail("export", err)
		}
		reportExport(stdout, gf, ext, path)
		return ExitOK
	default:
		path := *out
		if err := ws.Fs().MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fail("export", err)
		}
		if err := afero.WriteFile(ws.Fs(), path, data, 0o644); err != nil {
			return fail("export", err)
		}
		reportExport(stdout, gf, ext, path)
		return ExitOK
	}
}

func reportExport(w io.Writer, gf GlobalFlags, ext, path string) {
	if !gf.Quiet {
		fmt.Fprintf(w, "Wrote %s to: %s\n", strings.ToUpper(ext), path)
	}
}

func cmdTodoUI(ws *store.Workspace, s *store.Store, gf GlobalFlags, args []string) int {
	args = reorderFlags(args, map[string]bool{"--filter": true})
	fs := flag.NewFlagSet("ui", flag.ContinueOnError)
	fs.SetOutput(stderr)
	filter := filterFlag(fs, ws)
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	m := tui.NewTodo(s, tui.TodoOptions{Filter: store.ParseFilter(*filter), ASCII: gf.ASCII})
	if err := runProgram(m); err != nil {
		return fail("ui", err)
	}
	return ExitOK
}
