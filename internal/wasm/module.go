// Package wasm loads WebAssembly modules from a folder and exposes them to
// blocks as whitelisted imports.
//
// Every exported function whose parameters and results are numeric (i32,
// i64, f32, f64) becomes a script function on the module object:
//
//	import math from 'math';   // math.wasm
//	export const sum = math.add(2, 3);
//
// Modules are reactors: their start function is never run. Each sandbox
// that imports a module gets its own instance, so linear memory and globals
// are never shared between blocks.
package wasm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/livetemplate/reactdown/internal/gateway"
)

// Ext is the file extension LoadDir picks up.
const Ext = ".wasm"

// Set is the group of modules compiled from one folder. They share a
// runtime and are released together by Close.
type Set struct {
	runtime   wazero.Runtime
	modules   []*Module
	instances atomic.Uint64
}

// Module is one compiled WebAssembly module.
type Module struct {
	set      *Set
	name     string
	wasmPath string
	compiled wazero.CompiledModule
	exports  []string
}

// LoadDir compiles every .wasm file directly inside dir. Each module is
// instantiated once up front so missing imports fail here rather than in a
// block. The module name is the file name without its extension.
func LoadDir(ctx context.Context, dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read module folder %s: %w", dir, err)
	}

	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	s := &Set{runtime: r}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		m, err := s.load(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			r.Close(ctx)
			return nil, err
		}
		s.modules = append(s.modules, m)
	}
	return s, nil
}

func (s *Set) load(ctx context.Context, wasmPath string) (*Module, error) {
	name := strings.TrimSuffix(filepath.Base(wasmPath), Ext)

	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM file %s: %w", wasmPath, err)
	}

	compiled, err := s.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WASM module %s: %w", wasmPath, err)
	}

	var exports []string
	for fn, def := range compiled.ExportedFunctions() {
		if numeric(def.ParamTypes()) && numeric(def.ResultTypes()) {
			exports = append(exports, fn)
		}
	}
	sort.Strings(exports)

	m := &Module{set: s, name: name, wasmPath: wasmPath, compiled: compiled, exports: exports}
	mod, err := m.instantiate(ctx)
	if err != nil {
		return nil, err
	}
	if err := mod.Close(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// instantiate creates a fresh instance under a unique name.
func (m *Module) instantiate(ctx context.Context) (api.Module, error) {
	n := m.set.instances.Add(1)

	// WithStartFunctions() keeps _start from running, so the instance stays
	// alive for function calls.
	cfg := wazero.NewModuleConfig().
		WithName(fmt.Sprintf("%s#%d", m.name, n)).
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithArgs(m.name).
		WithStartFunctions()

	mod, err := m.set.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate WASM module %s: %w", m.wasmPath, err)
	}
	return mod, nil
}

func numeric(types []api.ValueType) bool {
	for _, t := range types {
		switch t {
		case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
		default:
			return false
		}
	}
	return true
}

// Entries returns one whitelist entry per module.
func (s *Set) Entries() []gateway.Entry {
	out := make([]gateway.Entry, len(s.modules))
	for i, m := range s.modules {
		out[i] = gateway.Entry{Name: m.name, Module: m}
	}
	return out
}

// Modules returns the loaded modules in file name order.
func (s *Set) Modules() []*Module {
	return s.modules
}

// Close releases all resources held by the WASM runtime.
func (s *Set) Close() error {
	return s.runtime.Close(context.Background())
}

// Name returns the import name.
func (m *Module) Name() string {
	return m.name
}

// Exports lists the functions exposed to scripts.
func (m *Module) Exports() []string {
	return m.exports
}

// Load implements gateway.Module. The instance lives until env is released.
func (m *Module) Load(env *gateway.Env) (goja.Value, error) {
	ctx := context.Background()
	mod, err := m.instantiate(ctx)
	if err != nil {
		return nil, err
	}
	env.OnRelease(func() error { return mod.Close(ctx) })

	obj := env.VM.NewObject()
	for _, name := range m.exports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return nil, fmt.Errorf("WASM module %s lost export %q", m.name, name)
		}
		if err := obj.Set(name, m.wrap(env.VM, name, fn)); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// wrap adapts fn to a script function. Calls need no lock: the instance
// belongs to one single-threaded script runtime.
func (m *Module) wrap(vm *goja.Runtime, name string, fn api.Function) func(goja.FunctionCall) goja.Value {
	def := fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()

	return func(call goja.FunctionCall) goja.Value {
		args := make([]uint64, len(params))
		for i, t := range params {
			args[i] = encode(t, call.Argument(i))
		}

		out, err := fn.Call(context.Background(), args...)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("WASM call %s.%s failed [%s]: %w", m.name, name, m.wasmPath, err)))
		}

		switch len(results) {
		case 0:
			return goja.Undefined()
		case 1:
			return vm.ToValue(decode(results[0], out[0]))
		}
		items := make([]interface{}, len(results))
		for i, t := range results {
			items[i] = decode(t, out[i])
		}
		return vm.NewArray(items...)
	}
}

func encode(t api.ValueType, v goja.Value) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(v.ToInteger()))
	case api.ValueTypeI64:
		return api.EncodeI64(v.ToInteger())
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v.ToFloat()))
	}
	return api.EncodeF64(v.ToFloat())
}

func decode(t api.ValueType, r uint64) interface{} {
	switch t {
	case api.ValueTypeI32:
		return api.DecodeI32(r)
	case api.ValueTypeI64:
		return int64(r)
	case api.ValueTypeF32:
		return api.DecodeF32(r)
	}
	return api.DecodeF64(r)
}
