package cli

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/amirbrooks/deskkit/internal/calc"
	"github.com/amirbrooks/deskkit/internal/store"
	"github.com/amirbrooks/deskkit/internal/tui"
)

var errNoTerminal = errors.New("an interactive terminal is required")

// runProgram starts an interactive model. Tests replace it.
var runProgram = func(m tea.Model) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errNoTerminal
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func cmdCalc(ws *store.Workspace, gf GlobalFlags, args []string) int {
	if len(args) == 0 || args[0] == "ui" {
		if err := runProgram(tui.NewCalc()); err != nil {
			return fail("calc", err)
		}
		return ExitOK
	}
	switch args[0] {
	case "eval", "keys":
		return cmdCalcEval(ws, gf, args[1:])
	default:
		fmt.Fprintln(stderr, "Usage: deskkit calc [eval <keys...>]")
		return ExitUsage
	}
}

func cmdCalcEval(ws *store.Workspace, gf GlobalFlags, args []string) int {
	fs := flag.NewFlagSet("calc eval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	trace := fs.Bool("trace", false, "Print every display update")
	flags, keys := liftBoolFlags(args, "trace")
	if err := fs.Parse(flags); err != nil {
		return ExitUsage
	}
	actions := calc.ParseKeys(append(fs.Args(), keys...)...)
	if len(actions) == 0 {
		fmt.Fprintln(stderr, "Usage: deskkit calc eval [--trace] <keys...>")
		return ExitUsage
	}

	var shown []string
	engine := calc.New(calc.DisplayFunc(func(text string) {
		shown = append(shown, text)
	}))
	for _, a := range actions {
		if err := engine.Apply(a); err != nil {
			slog.Debug("calculator reset", "action", a.Kind.String(), "error", err)
		}
	}

	st := engine.State()
	payload := map[string]any{
		"display":  engine.Display(),
		"buffer":   st.Buffer,
		"operator": st.Operator.String(),
		"pending":  st.Pending,
		"updates":  shown,
	}
	if handled, code := emitStructured(ws, gf, "calc eval", "calc", payload, []any{payload}); handled {
		return code
	}
	if *trace {
		for _, s := range shown {
			fmt.Fprintln(stdout, s)
		}
		return ExitOK
	}
	fmt.Fprintln(stdout, engine.Display())
	return ExitOK
}

// liftBoolFlags separates the named boolean flags from key tokens wherever
// they appear. Unlike reorderFlags it leaves "-" and "--" alone, since both
// are valid calculator keys.
func liftBoolFlags(args []string, names ...string) (flags, rest []string) {
	for _, a := range args {
		name := strings.TrimLeft(a, "-")
		if i := strings.Index(name, "="); i >= 0 {
			name = name[:i]
		}
		if strings.HasPrefix(a, "-") && name != "" && slices.Contains(names, name) {
			flags = append(flags, a)
			continue
		}
		rest = append(rest, a)
	}
	return flags, rest
}
