package reactdown

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/livetemplate/reactdown/internal/dialect"
	"github.com/livetemplate/reactdown/internal/engine"
	"github.com/livetemplate/reactdown/internal/react"
)

// State is the lifecycle state of a Manager.
type State int

const (
	Unattached State = iota
	Attached
	Mounted
	Unmounted
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attached:
		return "attached"
	case Mounted:
		return "mounted"
	case Unmounted:
		return "unmounted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrAlreadyAttached is returned by a second OnAttach.
	ErrAlreadyAttached = errors.New("block already attached")
	// ErrDetached is returned by OnAttach after OnDetach; a detached
	// Manager never mounts again.
	ErrDetached = errors.New("block was detached")
)

// Manager drives one block occurrence: it runs the block when the host
// attaches it and tears the mounted component down when the host detaches it.
type Manager struct {
	source    string
	container *html.Node
	dialect   dialect.Dialect
	runner    Runner

	state  State
	record *engine.ExportRecord
	mount  *html.Node
	root   *react.Root
}

var _ Child = (*Manager)(nil)

// NewManager captures a block occurrence. Nothing runs until OnAttach.
func NewManager(runner Runner, source string, container *html.Node, d dialect.Dialect) *Manager {
	return &Manager{
		source:    source,
		container: container,
		dialect:   d,
		runner:    runner,
	}
}

// OnAttach compiles and runs the block. For markup dialects it mounts the
// default export into a new child element of the container. Errors are
// returned as-is; nothing is retried.
func (m *Manager) OnAttach() error {
	switch m.state {
	case Unattached:
	case Unmounted:
		return ErrDetached
	default:
		return ErrAlreadyAttached
	}
	m.state = Attached

	plan := dialect.Resolve(m.dialect)
	record, err := m.runner.CompileAndRun(m.source, m.dialect)
	if err != nil {
		return err
	}
	m.record = record

	if !plan.ProducesVisualComponent {
		return nil
	}

	m.mount = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	m.container.AppendChild(m.mount)

	renderer := record.Renderer()
	el := record.Default()
	if !react.IsElement(el) {
		el = renderer.CreateElement(el)
	}
	m.root = renderer.CreateRoot(m.mount)
	if err := m.root.Render(el); err != nil {
		return &engine.Error{Kind: engine.KindRender, Dialect: m.dialect, Err: err}
	}
	m.state = Mounted
	return nil
}

// OnDetach unmounts the component tree, if any. Calling it again is a no-op.
func (m *Manager) OnDetach() {
	if m.root != nil {
		if err := m.root.Unmount(); err != nil {
			Logger().Warn("[Block] effect cleanup failed during unmount",
				zap.Stringer("dialect", m.dialect), zap.Error(err))
		}
		m.root = nil
	}
	if m.record != nil {
		if err := m.record.Release(); err != nil {
			Logger().Warn("[Block] releasing imports failed",
				zap.Stringer("dialect", m.dialect), zap.Error(err))
		}
		m.record = nil
	}
	m.state = Unmounted
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// Dialect returns the block's declared dialect.
func (m *Manager) Dialect() dialect.Dialect {
	return m.dialect
}

// Source returns the block source as captured.
func (m *Manager) Source() string {
	return m.source
}

// Container returns the element the block renders into.
func (m *Manager) Container() *html.Node {
	return m.container
}

// Root returns the mounted component root, nil when none is mounted.
func (m *Manager) Root() *react.Root {
	return m.root
}

// Record returns the export record of the current attachment.
func (m *Manager) Record() *engine.ExportRecord {
	return m.record
}
