package engine

import (
	"fmt"

	"github.com/livetemplate/reactdown/internal/dialect"
)

// Kind classifies a block failure.
type Kind int

const (
	KindCompile   Kind = iota // the compiler rejected the source
	KindModule                // the source required a module outside the whitelist
	KindExecution             // the compiled code threw
	KindRender                // the default export could not be rendered
)

func (k Kind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindModule:
		return "module"
	case KindExecution:
		return "execution"
	case KindRender:
		return "render"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified block failure. Err is the original error.
type Error struct {
	Kind    Kind
	Dialect dialect.Dialect
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error in %s block: %v", e.Kind, e.Dialect, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
