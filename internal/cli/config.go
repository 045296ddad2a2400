package cli

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/amirbrooks/deskkit/internal/logging"
	"github.com/amirbrooks/deskkit/internal/store"
)

var configKeys = []string{
	"storage.backend", "storage.slot", "storage.path", "storage.dsn",
	"log.level", "log.file", "log.max_size_mb", "log.max_backups", "log.max_age_days",
	"todo.default_filter",
}

func cmdInit(ws *store.Workspace, gf GlobalFlags, args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	backend := fs.String("backend", "", "Storage backend (file|sqlite|mysql|memory)")
	dsn := fs.String("dsn", "", "Storage DSN for sqlite or mysql")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if err := ws.Init(); err != nil {
		return fail("init", err)
	}
	if *backend != "" || *dsn != "" {
		cfg := ws.Config()
		if *backend != "" {
			cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(*backend))
		}
		if *dsn != "" {
			cfg.Storage.DSN = strings.TrimSpace(*dsn)
		}
		if err := ws.SaveConfig(cfg); err != nil {
			return fail("init", err)
		}
	}
	if !gf.Quiet {
		fmt.Fprintln(stdout, "Initialized deskkit workspace at:", ws.Root)
	}
	return ExitOK
}

func cmdConfig(ws *store.Workspace, gf GlobalFlags, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: deskkit config <show|set> ...")
		return ExitUsage
	}
	switch args[0] {
	case "show":
		// handled below
	case "set":
		return cmdConfigSet(ws, gf, args[1:])
	default:
		fmt.Fprintln(stderr, "Usage: deskkit config <show|set> ...")
		return ExitUsage
	}

	cfg := ws.Config()
	exists := ws.ConfigExists()
	shown := cfg
	shown.Storage.DSN = redactDSN(cfg.Storage.DSN)
	payload := map[string]any{
		"root":        ws.Root,
		"config_path": ws.ConfigPath(),
		"exists":      exists,
		"config":      shown,
	}
	if handled, code := emitStructured(ws, gf, "config show", "config", payload, []any{payload}); handled {
		return code
	}

	rows := configRows(cfg)
	if gf.Plain {
		w := tabwriter.NewWriter(stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE")
		fmt.Fprintf(w, "root\t%s\n", ws.Root)
		fmt.Fprintf(w, "config_path\t%s\n", ws.ConfigPath())
		fmt.Fprintf(w, "exists\t%t\n", exists)
		for _, k := range configKeys {
			fmt.Fprintf(w, "%s\t%s\n", k, rows[k])
		}
		_ = w.Flush()
		return ExitOK
	}

	fmt.Fprintln(stdout, "Config")
	fmt.Fprintln(stdout, "  Root:", ws.Root)
	if exists {
		fmt.Fprintln(stdout, "  Config file:", ws.ConfigPath())
	} else {
		fmt.Fprintln(stdout, "  Config file:", ws.ConfigPath(), "(not found; defaults shown)")
	}
	fmt.Fprintln(stdout)
	for _, k := range configKeys {
		v := rows[k]
		if v == "" {
			v = "(default)"
		}
		fmt.Fprintf(stdout, "  %s: %s\n", k, v)
	}
	return ExitOK
}

func configRows(cfg store.Config) map[string]string {
	return map[string]string{
		"storage.backend":     cfg.Storage.Backend,
		"storage.slot":        cfg.Storage.Slot,
		"storage.path":        cfg.Storage.Path,
		"storage.dsn":         redactDSN(cfg.Storage.DSN),
		"log.level":           cfg.Log.Level,
		"log.file":            cfg.Log.File,
		"log.max_size_mb":     strconv.Itoa(cfg.Log.MaxSizeMB),
		"log.max_backups":     strconv.Itoa(cfg.Log.MaxBackups),
		"log.max_age_days":    strconv.Itoa(cfg.Log.MaxAgeDays),
		"todo.default_filter": cfg.Todo.DefaultFilter,
	}
}

// redactDSN hides the password of a user:pass@... DSN.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	creds := dsn[:at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return dsn
	}
	return creds[:colon] + ":***" + dsn[at:]
}

func cmdConfigSet(ws *store.Workspace, gf GlobalFlags, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "Usage: deskkit config set <key> <value>")
		return ExitUsage
	}
	key := strings.ToLower(strings.TrimSpace(args[0]))
	value := strings.TrimSpace(strings.Join(args[1:], " "))
	cfg := ws.Config()

	switch key {
	case "storage.backend":
		switch strings.ToLower(value) {
		case store.BackendFile, store.BackendSQLite, store.BackendMySQL, store.BackendMemory:
			cfg.Storage.Backend = strings.ToLower(value)
		default:
			return configSetInvalid(key, value)
		}
	case "storage.slot":
		if value == "" {
			return configSetInvalid(key, value)
		}
		cfg.Storage.Slot = value
	case "storage.path":
		cfg.Storage.Path = clearable(value)
	case "storage.dsn":
		cfg.Storage.DSN = clearable(value)
	case "log.level":
		if _, err := logging.ParseLevel(value); err != nil || value == "" {
			return configSetInvalid(key, value)
		}
		cfg.Log.Level = strings.ToLower(value)
	case "log.file":
		cfg.Log.File = clearable(value)
	case "log.max_size_mb", "log.max_backups", "log.max_age_days":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || (key == "log.max_size_mb" && n < 1) {
			return configSetInvalid(key, value)
		}
		switch key {
		case "log.max_size_mb":
			cfg.Log.MaxSizeMB = n
		case "log.max_backups":
			cfg.Log.MaxBackups = n
		default:
			cfg.Log.MaxAgeDays = n
		}
	case "todo.default_filter":
		f := strings.ToLower(value)
		if f != string(store.ParseFilter(f)) {
			return configSetInvalid(key, value)
		}
		cfg.Todo.DefaultFilter = f
	default:
		fmt.Fprintln(stderr, "Unknown config key:", key)
		fmt.Fprintln(stderr, "Allowed keys:", strings.Join(configKeys, ", "))
		return ExitUsage
	}

	if err := ws.SaveConfig(cfg); err != nil {
		return fail("config set", err)
	}
	if !gf.Quiet {
		fmt.Fprintf(stdout, "Updated %s\n", key)
	}
	return ExitOK
}

func clearable(value string) string {
	switch strings.ToLower(value) {
	case "", "none", "null":
		return ""
	}
	return value
}

func configSetInvalid(key, value string) int {
	fmt.Fprintf(stderr, "Invalid value for %s: %q\n", key, value)
	return ExitUsage
}
