package calc

import "strings"

type ActionKind int

const (
	ActionDigit ActionKind = iota + 1
	ActionDecimal
	ActionOperator
	ActionEquals
	ActionClear
	ActionBackspace
)

func (k ActionKind) String() string {
	switch k {
	case ActionDigit:
		return "digit"
	case ActionDecimal:
		return "decimal"
	case ActionOperator:
		return "operator"
	case ActionEquals:
		return "equals"
	case ActionClear:
		return "clear"
	case ActionBackspace:
		return "backspace"
	default:
		return "unknown"
	}
}

// Action is one discrete input event. Digit is set for ActionDigit and
// Operator for ActionOperator.
type Action struct {
	Kind     ActionKind
	Digit    byte
	Operator Operator
}

func Digit(d byte) Action        { return Action{Kind: ActionDigit, Digit: d} }
func Op(op Operator) Action      { return Action{Kind: ActionOperator, Operator: op} }
func Simple(k ActionKind) Action { return Action{Kind: k} }

// KeyAction maps a key name to an action. Both DOM-style names ("Enter",
// "Backspace", "Escape") and terminal names ("enter", "backspace", "esc") are
// understood. Unknown keys report false.
func KeyAction(key string) (Action, bool) {
	if len(key) == 1 {
		c := key[0]
		switch {
		case c >= '0' && c <= '9':
			return Digit(c), true
		case c == '.' || c == ',':
			return Simple(ActionDecimal), true
		case c == '=':
			return Simple(ActionEquals), true
		case c == 'c' || c == 'C':
			return Simple(ActionClear), true
		}
		if op, ok := ParseOperator(key); ok && c != 'x' {
			return Op(op), true
		}
		return Action{}, false
	}
	switch key {
	case "Enter", "enter":
		return Simple(ActionEquals), true
	case "Backspace", "backspace":
		return Simple(ActionBackspace), true
	case "Escape", "escape", "esc":
		return Simple(ActionClear), true
	}
	return Action{}, false
}

// Button is a labelled control on the keypad.
type Button struct {
	Label  string
	Action string
	Value  string
}

// Keypad is the button layout, row by row.
var Keypad = [][]Button{
	{{"C", "clear", ""}, {"⌫", "backspace", ""}, {"÷", "operator", "/"}, {"×", "operator", "*"}},
	{{"7", "digit", "7"}, {"8", "digit", "8"}, {"9", "digit", "9"}, {"−", "operator", "-"}},
	{{"4", "digit", "4"}, {"5", "digit", "5"}, {"6", "digit", "6"}, {"+", "operator", "+"}},
	{{"1", "digit", "1"}, {"2", "digit", "2"}, {"3", "digit", "3"}, {"=", "equals", ""}},
	{{"0", "digit", "0"}, {".", "decimal", ""}},
}

// ButtonAction maps a labelled control (action tag plus value) to an action.
func ButtonAction(action, value string) (Action, bool) {
	switch action {
	case "digit":
		if len(value) == 1 && value[0] >= '0' && value[0] <= '9' {
			return Digit(value[0]), true
		}
	case "decimal":
		return Simple(ActionDecimal), true
	case "operator":
		if op, ok := ParseOperator(value); ok {
			return Op(op), true
		}
	case "equals":
		return Simple(ActionEquals), true
	case "clear":
		return Simple(ActionClear), true
	case "backspace":
		return Simple(ActionBackspace), true
	}
	return Action{}, false
}

// ParseKeys turns command-line tokens into actions. A token that names a key
// ("enter", "backspace", "escape", ...) is one key; any other token is read one
// rune at a time. Unknown keys and whitespace are dropped.
func ParseKeys(tokens ...string) []Action {
	var out []Action
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if a, ok := namedKey(tok); ok {
			out = append(out, a)
			continue
		}
		for _, r := range tok {
			if a, ok := KeyAction(string(r)); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

func namedKey(tok string) (Action, bool) {
	switch strings.ToLower(tok) {
	case "enter", "equals":
		return Simple(ActionEquals), true
	case "backspace", "bs":
		return Simple(ActionBackspace), true
	case "escape", "esc", "clear":
		return Simple(ActionClear), true
	}
	return Action{}, false
}
