package reactdown

import (
	"errors"
	"fmt"
	"strings"

	"github.com/livetemplate/reactdown/internal/dialect"
	"github.com/livetemplate/reactdown/internal/engine"
	"github.com/livetemplate/reactdown/internal/gateway"
)

// BlockError describes a block that failed to attach, with enough context to
// point the author at the offending line.
type BlockError struct {
	File    string          // Document path, empty for in-memory documents
	Line    int             // Document line (1-indexed) of the failure
	Fence   int             // Document line of the opening fence
	Dialect dialect.Dialect // Declared block dialect
	Message string          // Error message
	Source  string          // Block source
	Hint    string          // Helpful suggestion
	Err     error           // Underlying error
}

// NewBlockError builds a BlockError for a block whose opening fence sits at
// document line fence.
func NewBlockError(file string, fence int, d dialect.Dialect, source string, err error) *BlockError {
	e := &BlockError{
		File:    file,
		Line:    fence + 1,
		Fence:   fence,
		Dialect: d,
		Message: err.Error(),
		Source:  source,
		Err:     err,
	}

	var cerr *engine.CompileError
	if errors.As(err, &cerr) && cerr.Line() > 0 {
		e.Line = fence + cerr.Line()
	}
	e.Hint = hintFor(err, d)
	return e
}

// Error implements the error interface.
func (e *BlockError) Error() string {
	return e.Format()
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// Format returns the message with the surrounding block lines.
func (e *BlockError) Format() string {
	var b strings.Builder

	where := e.File
	if where == "" {
		where = fmt.Sprintf("%s block", e.Dialect.Keyword())
	}
	fmt.Fprintf(&b, "❌ Error in %s\n\n", where)
	fmt.Fprintf(&b, "Line %d: %s\n", e.Line, e.Message)
	b.WriteString(e.codeContext())

	if e.Hint != "" {
		fmt.Fprintf(&b, "\n💡 Tip: %s\n", e.Hint)
	}
	return b.String()
}

// codeContext shows up to two block lines either side of the failing line.
func (e *BlockError) codeContext() string {
	if e.Source == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(e.Source, "\n"), "\n")
	at := e.Line - e.Fence
	if at < 1 || at > len(lines) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	for i := max(1, at-2); i <= min(len(lines), at+2); i++ {
		marker := " "
		if i == at {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %3d | %s\n", marker, e.Fence+i, lines[i-1])
	}
	return b.String()
}

func hintFor(err error, d dialect.Dialect) string {
	var lerr *gateway.LookupError
	if errors.As(err, &lerr) {
		return fmt.Sprintf("Only whitelisted modules can be imported. %q is not one of them.", lerr.Name)
	}

	var eerr *engine.Error
	if !errors.As(err, &eerr) {
		return ""
	}
	plan := dialect.Resolve(d)
	switch eerr.Kind {
	case engine.KindCompile:
		switch {
		case !plan.Has(dialect.MarkupLowering) && !plan.Has(dialect.TypeErasure):
			return "Plain blocks accept neither markup nor type annotations. Use reactjsx, reactts or reacttsx."
		case !plan.Has(dialect.MarkupLowering):
			return "Markup needs a reactjsx or reacttsx block."
		case !plan.Has(dialect.TypeErasure):
			return "Type annotations need a reactts or reacttsx block."
		}
	case engine.KindExecution:
		return "The block threw while running. Only the language built-ins, require, exports and React are in scope."
	case engine.KindRender:
		return "Markup blocks must default-export a component function or element."
	}
	return ""
}
