package wasm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/reactdown/internal/dialect"
	"github.com/livetemplate/reactdown/internal/engine"
	"github.com/livetemplate/reactdown/internal/gateway"
	"github.com/livetemplate/reactdown/internal/react"
)

// (module (func (export "add") (param i32 i32) (result i32)
//
//	local.get 0 local.get 1 i32.add))
var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

// (module (func (export "half") (param f64) (result f64)
//
//	local.get 0 f64.const 0.5 f64.mul))
var halfWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x06, 0x01, 0x60, 0x01, 0x7c, 0x01, 0x7c,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x08, 0x01, 0x04, 0x68, 0x61, 0x6c, 0x66, 0x00, 0x00,
	0x0a, 0x10, 0x01, 0x0e, 0x00, 0x20, 0x00,
	0x44, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xe0, 0x3f,
	0xa2, 0x0b,
}

// (module (global $n (mut i32) (i32.const 0))
//
//	(func (export "next") (result i32)
//	  global.get 0 i32.const 1 i32.add global.set 0 global.get 0))
var counterWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x06, 0x06, 0x01, 0x7f, 0x01, 0x41, 0x00, 0x0b,
	0x07, 0x08, 0x01, 0x04, 0x6e, 0x65, 0x78, 0x74, 0x00, 0x00,
	0x0a, 0x0d, 0x01, 0x0b, 0x00, 0x23, 0x00, 0x41, 0x01, 0x6a, 0x24, 0x00, 0x23, 0x00, 0x0b,
}

func writeModules(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	return dir
}

func loadSet(t *testing.T, dir string) *Set {
	t.Helper()
	s, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadDir(t *testing.T) {
	dir := writeModules(t, map[string][]byte{
		"math.wasm":  addWasm,
		"half.wasm":  halfWasm,
		"README.md":  []byte("not a module"),
		"math.wasm~": []byte("backup"),
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.wasm"), 0755))

	s := loadSet(t, dir)

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "half", entries[0].Name)
	assert.Equal(t, "math", entries[1].Name)
	assert.Equal(t, []string{"add"}, s.Modules()[1].Exports())
}

func TestLoadExposesFunctions(t *testing.T) {
	s := loadSet(t, writeModules(t, map[string][]byte{"math.wasm": addWasm, "half.wasm": halfWasm}))

	vm := goja.New()
	env := gateway.NewEnv(vm, react.Bind(vm))
	for _, m := range s.Modules() {
		v, err := m.Load(env)
		require.NoError(t, err)
		require.NoError(t, vm.Set(m.Name(), v))
	}

	v, err := vm.RunString("math.add(2, 40)")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.ToInteger())

	v, err = vm.RunString("math.add(-5, 2)")
	require.NoError(t, err)
	assert.Equal(t, int64(-3), v.ToInteger())

	v, err = vm.RunString("half.half(5)")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v.ToFloat())
}

func TestModulesAreImportable(t *testing.T) {
	s := loadSet(t, writeModules(t, map[string][]byte{"math.wasm": addWasm}))

	gw, err := gateway.Default(s.Entries()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"math", "react", "react-dom"}, gw.Names())

	e := engine.New(gw)
	rec, err := e.CompileAndRun("import math from 'math';\nexport const sum: number = math.add(2, 3);\n", dialect.Typed)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Get("sum").ToInteger())
}

func TestLoadDirErrors(t *testing.T) {
	t.Run("missing folder", func(t *testing.T) {
		_, err := LoadDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})

	t.Run("invalid module", func(t *testing.T) {
		dir := writeModules(t, map[string][]byte{"broken.wasm": []byte("\x00asm garbage")})
		_, err := LoadDir(context.Background(), dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to compile WASM module")
	})

	t.Run("empty folder", func(t *testing.T) {
		s := loadSet(t, t.TempDir())
		assert.Empty(t, s.Entries())
	})
}

func TestEachSandboxGetsItsOwnInstance(t *testing.T) {
	s := loadSet(t, writeModules(t, map[string][]byte{"counter.wasm": counterWasm}))
	m := s.Modules()[0]
	assert.Equal(t, []string{"next"}, m.Exports())

	sandbox := func() (*goja.Runtime, *gateway.Env) {
		vm := goja.New()
		env := gateway.NewEnv(vm, react.Bind(vm))
		v, err := m.Load(env)
		require.NoError(t, err)
		require.NoError(t, vm.Set("counter", v))
		return vm, env
	}
	vm1, env1 := sandbox()
	vm2, env2 := sandbox()
	defer env2.Release()

	for want := int64(1); want <= 3; want++ {
		v, err := vm1.RunString("counter.next()")
		require.NoError(t, err)
		assert.Equal(t, want, v.ToInteger())
	}
	v, err := vm2.RunString("counter.next()")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.ToInteger(), "globals are not shared between sandboxes")

	require.NoError(t, env1.Release())
	require.NoError(t, env1.Release())
	_, err = vm1.RunString("counter.next()")
	assert.Error(t, err, "released instance is closed")
}

func TestBlocksDoNotShareModuleState(t *testing.T) {
	s := loadSet(t, writeModules(t, map[string][]byte{"counter.wasm": counterWasm}))
	gw, err := gateway.Default(s.Entries()...)
	require.NoError(t, err)
	e := engine.New(gw)

	src := "import counter from 'counter';\ncounter.next();\nexport const n = counter.next();\n"
	for i := 0; i < 2; i++ {
		rec, err := e.CompileAndRun(src, dialect.Plain)
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Get("n").ToInteger())
		require.NoError(t, rec.Release())
	}
}
