package calc

import (
	"fmt"
	"strings"
)

// Display receives the text to show after every operation.
type Display interface {
	Show(text string)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(text string)

func (f DisplayFunc) Show(text string) { f(text) }

// State is a read-only snapshot of an Engine.
type State struct {
	Buffer           string
	Pending          *float64
	Operator         Operator
	ResetOnNextDigit bool
	Display          string
}

// Engine is the calculator input/operator state machine. The zero value is not
// usable; construct one with New. An Engine is not safe for concurrent use.
type Engine struct {
	sink Display

	buffer           string
	operand          float64
	op               Operator
	resetOnNextDigit bool
	display          string
}

// New returns a cleared engine. sink may be nil.
func New(sink Display) *Engine {
	e := &Engine{sink: sink}
	e.Clear()
	return e
}

func (e *Engine) Display() string { return e.display }

func (e *Engine) State() State {
	s := State{
		Buffer:           e.buffer,
		Operator:         e.op,
		ResetOnNextDigit: e.resetOnNextDigit,
		Display:          e.display,
	}
	if e.op != OpNone {
		v := e.operand
		s.Pending = &v
	}
	return s
}

// Apply dispatches a single input action.
func (e *Engine) Apply(a Action) error {
	switch a.Kind {
	case ActionDigit:
		e.AppendDigit(a.Digit)
	case ActionDecimal:
		e.AppendDigit('.')
	case ActionOperator:
		return e.SetOperator(a.Operator)
	case ActionEquals:
		return e.Evaluate()
	case ActionClear:
		e.Clear()
	case ActionBackspace:
		e.Backspace()
	default:
		return fmt.Errorf("%w: %d", ErrUnknownAction, a.Kind)
	}
	return nil
}

// AppendDigit adds a digit or the decimal point to the buffer.
func (e *Engine) AppendDigit(ch byte) {
	if ch != '.' && (ch < '0' || ch > '9') {
		return
	}
	if ch == '.' && e.hasDecimal() {
		return
	}
	if e.resetOnNextDigit {
		e.buffer = ""
		e.resetOnNextDigit = false
	}
	if ch != '.' && e.buffer == "0" {
		e.buffer = string(ch)
	} else {
		e.buffer += string(ch)
	}
	e.refresh()
}

// SetOperator stores op as the pending operator, folding any operation that
// was already pending into the left operand.
func (e *Engine) SetOperator(op Operator) error {
	if !op.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownOperator, op)
	}
	if e.op != OpNone && !e.hasFreshInput() {
		e.op = op
		return nil
	}
	if e.op == OpNone {
		if e.buffer == "" {
			return nil
		}
		e.operand = parseOperand(e.buffer)
	} else {
		result, err := Compute(e.operand, parseOperand(e.buffer), e.op)
		if err != nil {
			e.fail()
			return err
		}
		e.operand = result
		e.buffer = FormatNumber(result)
		e.show(e.buffer)
	}
	e.op = op
	e.resetOnNextDigit = true
	return nil
}

// Evaluate applies the pending operator. Without new input the pending operand
// is reused as the right operand.
func (e *Engine) Evaluate() error {
	if e.op == OpNone {
		return nil
	}
	rhs := e.operand
	if e.hasFreshInput() {
		rhs = parseOperand(e.buffer)
	}
	result, err := Compute(e.operand, rhs, e.op)
	if err != nil {
		e.fail()
		return err
	}
	e.buffer = FormatNumber(result)
	e.show(e.buffer)
	e.operand = 0
	e.op = OpNone
	e.resetOnNextDigit = true
	return nil
}

func (e *Engine) Clear() {
	e.buffer = ""
	e.operand = 0
	e.op = OpNone
	e.resetOnNextDigit = false
	e.refresh()
}

// Backspace drops the last buffer character. On a finished result it clears
// instead.
func (e *Engine) Backspace() {
	if e.resetOnNextDigit {
		e.Clear()
		return
	}
	if n := len(e.buffer); n > 0 {
		e.buffer = e.buffer[:n-1]
	}
	e.refresh()
}

// hasFreshInput reports whether the buffer holds digits typed since the last
// operator or result.
func (e *Engine) hasFreshInput() bool {
	return e.buffer != "" && !e.resetOnNextDigit
}

// hasDecimal looks at the buffer as is, even when it still holds a result.
func (e *Engine) hasDecimal() bool {
	return strings.IndexByte(e.buffer, '.') >= 0
}

// fail discards the in-flight calculation and shows the error message.
func (e *Engine) fail() {
	e.buffer = ""
	e.operand = 0
	e.op = OpNone
	e.resetOnNextDigit = true
	e.show(DivideByZeroMessage)
}

func (e *Engine) refresh() {
	if e.buffer == "" {
		e.show("0")
		return
	}
	e.show(e.buffer)
}

func (e *Engine) show(text string) {
	e.display = text
	if e.sink != nil {
		e.sink.Show(text)
	}
}
