package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/amirbrooks/deskkit/internal/logging"
	"github.com/amirbrooks/deskkit/internal/store"
)

// Exit codes
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitNotFound = 3
	ExitConflict = 4
	ExitInternal = 10
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	newFs            = afero.NewOsFs
	timeNow          = time.Now
)

type GlobalFlags struct {
	Root         string
	JSON         bool
	NDJSON       bool
	Plain        bool
	ASCII        bool
	Quiet        bool
	Verbose      bool
	StdoutJSON   bool
	StdoutNDJSON bool
	ExportDir    string
	LogLevel     string
}

func reorderFlags(args []string, takesValue map[string]bool) []string {
	if len(args) == 0 {
		return args
	}
	var flags []string
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			if i+1 < len(args) {
				rest = append(rest, args[i+1:]...)
			}
			break
		}
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			flags = append(flags, a)
			if takesValue[a] && !strings.Contains(a, "=") {
				if i+1 < len(args) {
					flags = append(flags, args[i+1])
					i++
				}
			}
			continue
		}
		rest = append(rest, a)
	}
	return append(flags, rest...)
}

func Run(args []string) int {
	gf, rest, err := extractGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return ExitUsage
	}

	if len(rest) == 0 {
		printHelp(stderr)
		return ExitUsage
	}

	cmd := rest[0]
	cmdArgs := rest[1:]
	switch cmd {
	case "help", "--help", "-h":
		printHelp(stdout)
		return ExitOK
	}

	ws, err := store.Open(gf.Root, newFs())
	if err != nil {
		fmt.Fprintln(stderr, "deskkit:", err)
		return ExitInternal
	}
	closer := setupLogging(ws, gf)
	defer closer.Close()
	slog.Debug("command", "name", cmd, "root", ws.Root)

	switch cmd {
	case "init":
		return cmdInit(ws, gf, cmdArgs)
	case "config", "cfg":
		return cmdConfig(ws, gf, cmdArgs)
	case "calc":
		return cmdCalc(ws, gf, cmdArgs)
	case "todo", "tasks":
		return cmdTodo(ws, gf, cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		printHelp(stderr)
		return ExitUsage
	}
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `deskkit - desk calculator and to-do list

Usage:
  deskkit [global flags] <command> [args]

Global flags:
  --root <path>       Workspace root (default: ~/.deskkit or DESKKIT_ROOT)
  --json              Write JSON output to <root>/exports (no stdout JSON)
  --ndjson            Write NDJSON output to <root>/exports (no stdout NDJSON)
  --stdout-json       Allow JSON to stdout (debug only)
  --stdout-ndjson     Allow NDJSON to stdout (debug only)
  --export-dir        Override export directory (default: <root>/exports)
  --log-level <lvl>   debug|info|warn|error (default: DESKKIT_LOG_LEVEL or config)
  --plain             Table output without decoration
  --ascii             ASCII status marks
  --quiet
  --verbose           Also log to stderr

Commands:
  init [--backend file|sqlite|mysql|memory] [--dsn <dsn>]
  config show
  config set <key> <value>
  calc                          Interactive calculator
  calc eval [--trace] <keys...> Feed keys to the calculator and print the display
  todo add "<text>"
  todo ls [--filter all|active|completed]
  todo toggle <id-prefix-or-text>
  todo rm <id-prefix-or-text>
  todo export [--filter f] [--format json|ndjson|pdf] [--out path|-] [--title t]
  todo ui [--filter f]          Interactive task list
`)
}

func extractGlobalFlags(args []string) (GlobalFlags, []string, error) {
	// Allow flags anywhere by scanning and stripping known globals.
	gf := GlobalFlags{}

	if env := os.Getenv("DESKKIT_ROOT"); env != "" {
		gf.Root = env
	} else {
		home, _ := os.UserHomeDir()
		if home != "" {
			gf.Root = filepath.Join(home, ".deskkit")
		} else {
			gf.Root = ".deskkit"
		}
	}

	out := make([]string, 0, len(args))
	skip := 0

	for i := 0; i < len(args); i++ {
		if skip > 0 {
			skip--
			continue
		}
		a := args[i]
		switch a {
		case "--root":
			if i+1 >= len(args) {
				return gf, nil, errors.New("--root requires a value")
			}
			gf.Root = args[i+1]
			skip = 1
		case "--json":
			gf.JSON = true
		case "--ndjson":
			gf.NDJSON = true
		case "--stdout-json":
			gf.StdoutJSON = true
		case "--stdout-ndjson":
			gf.StdoutNDJSON = true
		case "--export-dir":
			if i+1 >= len(args) {
				return gf, nil, errors.New("--export-dir requires a value")
			}
			gf.ExportDir = args[i+1]
			skip = 1
		case "--log-level":
			if i+1 >= len(args) {
				return gf, nil, errors.New("--log-level requires a value")
			}
			if _, err := logging.ParseLevel(args[i+1]); err != nil {
				return gf, nil, fmt.Errorf("--log-level %w", err)
			}
			gf.LogLevel = strings.ToLower(args[i+1])
			skip = 1
		case "--plain":
			gf.Plain = true
		case "--ascii":
			gf.ASCII = true
		case "--quiet":
			gf.Quiet = true
		case "--verbose":
			gf.Verbose = true
		default:
			out = append(out, a)
		}
	}

	if gf.JSON && gf.NDJSON {
		return gf, nil, errors.New("--json and --ndjson are mutually exclusive")
	}
	if gf.StdoutJSON && !gf.JSON {
		return gf, nil, errors.New("--stdout-json requires --json")
	}
	if gf.StdoutNDJSON && !gf.NDJSON {
		return gf, nil, errors.New("--stdout-ndjson requires --ndjson")
	}
	if gf.ExportDir == "" {
		gf.ExportDir = filepath.Join(gf.Root, "exports")
	}
	return gf, out, nil
}

// setupLogging installs the default logger. The level comes from --log-level,
// then DESKKIT_LOG_LEVEL, then the workspace config.
func setupLogging(ws *store.Workspace, gf GlobalFlags) io.Closer {
	cfg := ws.Config().Log
	level := cfg.Level
	if env, ok := logging.LevelFromEnv(); ok {
		level = env
	}
	if gf.LogLevel != "" {
		level = gf.LogLevel
	}
	opts := logging.Options{
		Level:      level,
		File:       ws.Resolve(cfg.File),
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	}
	if gf.Verbose {
		opts.Console = stderr
	}
	return logging.Setup(opts)
}

// exitCode maps store errors to process exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, store.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, store.ErrConflict):
		return ExitConflict
	case errors.Is(err, store.ErrInvalid), errors.Is(err, errNoTerminal):
		return ExitUsage
	default:
		return ExitInternal
	}
}

func fail(cmd string, err error) int {
	fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
	var conflict *store.MatchConflictError
	if errors.As(err, &conflict) {
		for _, t := range conflict.Matches {
			fmt.Fprintf(stderr, "  %s  %s\n", t.ID, t.Text)
		}
	}
	return exitCode(err)
}

// emitStructured handles --json and --ndjson output. It reports false when
// neither was requested and the caller should render for humans.
func emitStructured(ws *store.Workspace, gf GlobalFlags, cmd, base string, payload any, items []any) (bool, int) {
	switch {
	case gf.NDJSON:
		if gf.StdoutNDJSON {
			for _, item := range items {
				b, _ := json.Marshal(item)
				fmt.Fprintln(stdout, string(b))
			}
			return true, ExitOK
		}
		path, err := writeNDJSONExport(ws, gf, base, items)
		if err != nil {
			return true, fail(cmd, err)
		}
		if !gf.Quiet {
			fmt.Fprintln(stdout, "Wrote NDJSON to:", path)
		}
		return true, ExitOK
	case gf.JSON:
		if gf.StdoutJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(payload)
			return true, ExitOK
		}
		path, err := writeJSONExport(ws, gf, base, payload)
		if err != nil {
			return true, fail(cmd, err)
		}
		if !gf.Quiet {
			fmt.Fprintln(stdout, "Wrote JSON to:", path)
		}
		return true, ExitOK
	}
	return false, ExitOK
}

func writeJSONExport(ws *store.Workspace, gf GlobalFlags, base string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return writeExportFile(ws.Fs(), gf.ExportDir, base, "json", data)
}

func writeNDJSONExport(ws *store.Workspace, gf GlobalFlags, base string, items []any) (string, error) {
	var b strings.Builder
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return "", err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return writeExportFile(ws.Fs(), gf.ExportDir, base, "ndjson", []byte(b.String()))
}

// writeExportFile writes data to a fresh timestamped file in dir and returns
// its path.
func writeExportFile(fsys afero.Fs, dir, base, ext string, data []byte) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("export directory is empty")
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ts := timeNow().UTC().Format("20060102-150405")
	name := fmt.Sprintf("%s-%s.%s", base, ts, ext)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if ok, _ := afero.Exists(fsys, path); !ok {
			break
		}
		name = fmt.Sprintf("%s-%s-%d.%s", base, ts, i, ext)
		path = filepath.Join(dir, name)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp-%d", time.Now().UTC().UnixNano()))
	if err := afero.WriteFile(fsys, tmp, data, 0o644); err != nil {
		_ = fsys.Remove(tmp)
		return "", err
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return "", err
	}
	return path, nil
}
