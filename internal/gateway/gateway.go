// Package gateway is the fixed module whitelist that stands in for a module
// loader inside the block sandbox.
package gateway

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/dop251/goja"

	"github.com/livetemplate/reactdown/internal/react"
)

var (
	// ErrModuleNotFound matches every lookup of a name outside the whitelist.
	ErrModuleNotFound = errors.New("module not found")
	// ErrInvalidName is returned for empty or malformed module names.
	ErrInvalidName = errors.New("invalid module name")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9@_$][A-Za-z0-9@_$./-]*$`)

// LookupError reports a name that is not on the whitelist.
type LookupError struct {
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("module %s not found", e.Name)
}

// Is makes errors.Is(err, ErrModuleNotFound) hold.
func (e *LookupError) Is(target error) bool {
	return target == ErrModuleNotFound
}

// Env is the per-execution state a module loads into.
type Env struct {
	VM    *goja.Runtime
	React *react.Runtime

	loaded   map[string]goja.Value
	releases []func() error
	released bool
}

// NewEnv creates the module environment for one sandbox runtime.
func NewEnv(vm *goja.Runtime, rt *react.Runtime) *Env {
	return &Env{VM: vm, React: rt, loaded: make(map[string]goja.Value)}
}

// OnRelease registers fn to run when the sandbox is released. Modules use it
// to free per-sandbox resources.
func (e *Env) OnRelease(fn func() error) {
	e.releases = append(e.releases, fn)
}

// Release runs the registered functions in reverse order. Only the first
// call does any work.
func (e *Env) Release() error {
	if e.released {
		return nil
	}
	e.released = true
	var errs []error
	for i := len(e.releases) - 1; i >= 0; i-- {
		if err := e.releases[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.releases = nil
	return errors.Join(errs...)
}

// Module produces a module object inside one sandbox runtime.
type Module interface {
	Load(env *Env) (goja.Value, error)
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(env *Env) (goja.Value, error)

// Load implements Module.
func (f ModuleFunc) Load(env *Env) (goja.Value, error) {
	return f(env)
}

// Entry is one whitelisted module.
type Entry struct {
	Name   string
	Module Module
}

// Gateway maps whitelisted names to modules. It is immutable after
// construction, so concurrent lookups need no locking.
type Gateway struct {
	modules map[string]Module
}

// New builds a gateway from entries. Duplicate or malformed names are rejected.
func New(entries ...Entry) (*Gateway, error) {
	g := &Gateway{modules: make(map[string]Module, len(entries))}
	for _, e := range entries {
		if !namePattern.MatchString(e.Name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, e.Name)
		}
		if e.Module == nil {
			return nil, fmt.Errorf("module %s has no loader", e.Name)
		}
		if _, dup := g.modules[e.Name]; dup {
			return nil, fmt.Errorf("module %s registered twice", e.Name)
		}
		g.modules[e.Name] = e.Module
	}
	return g, nil
}

// ReactEntries returns the rendering library and its DOM-binding companion.
func ReactEntries() []Entry {
	return []Entry{
		{Name: "react", Module: ModuleFunc(func(env *Env) (goja.Value, error) {
			return env.React.Module(), nil
		})},
		{Name: "react-dom", Module: ModuleFunc(func(env *Env) (goja.Value, error) {
			return env.React.DOMModule(), nil
		})},
	}
}

// Default builds the standard whitelist plus any extra entries.
func Default(extra ...Entry) (*Gateway, error) {
	return New(append(ReactEntries(), extra...)...)
}

// Lookup resolves name without raising anything.
func (g *Gateway) Lookup(name string) (Module, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	m, ok := g.modules[name]
	if !ok {
		return nil, &LookupError{Name: name}
	}
	return m, nil
}

// Names lists the whitelist in sorted order.
func (g *Gateway) Names() []string {
	names := make([]string, 0, len(g.modules))
	for name := range g.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Require returns the sandbox's require function for env. A failed lookup
// is thrown into the script; each module loads at most once per env.
func (g *Gateway) Require(env *Env) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if v, ok := env.loaded[name]; ok {
			return v
		}
		m, err := g.Lookup(name)
		if err != nil {
			panic(env.VM.NewGoError(err))
		}
		v, err := m.Load(env)
		if err != nil {
			panic(env.VM.NewGoError(fmt.Errorf("load module %s: %w", name, err)))
		}
		env.loaded[name] = v
		return v
	}
}
