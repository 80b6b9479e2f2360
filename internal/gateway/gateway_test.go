package gateway

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/reactdown/internal/react"
)

func TestLookup(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name    string
		wantErr error
	}{
		{"react", nil},
		{"react-dom", nil},
		{"lodash", ErrModuleNotFound},
		{"", ErrInvalidName},
		{"../etc/passwd", ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := g.Lookup(tt.name)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotNil(t, m)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, m)
		})
	}
}

func TestLookupErrorMessage(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)

	_, err = g.Lookup("not-whitelisted")
	var lerr *LookupError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "not-whitelisted", lerr.Name)
	assert.Equal(t, "module not-whitelisted not found", err.Error())
}

func TestNewRejectsBadEntries(t *testing.T) {
	mod := ModuleFunc(func(env *Env) (goja.Value, error) { return goja.Undefined(), nil })

	_, err := New(Entry{Name: "a", Module: mod}, Entry{Name: "a", Module: mod})
	assert.Error(t, err)

	_, err = New(Entry{Name: "", Module: mod})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = New(Entry{Name: "b"})
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	mod := ModuleFunc(func(env *Env) (goja.Value, error) { return goja.Undefined(), nil })
	g, err := Default(Entry{Name: "math-extra", Module: mod})
	require.NoError(t, err)
	assert.Equal(t, []string{"math-extra", "react", "react-dom"}, g.Names())
}

func TestRequire(t *testing.T) {
	loads := 0
	g, err := Default(Entry{Name: "answer", Module: ModuleFunc(func(env *Env) (goja.Value, error) {
		loads++
		obj := env.VM.NewObject()
		_ = obj.Set("answer", 42)
		return obj, nil
	})})
	require.NoError(t, err)

	vm := goja.New()
	rt := react.Bind(vm)
	env := NewEnv(vm, rt)
	require.NoError(t, vm.Set("require", g.Require(env)))

	v, err := vm.RunString(`require("answer").answer + (require("answer") === require("answer") ? 1 : 0)`)
	require.NoError(t, err)
	assert.Equal(t, int64(43), v.ToInteger())
	assert.Equal(t, 1, loads)

	v, err = vm.RunString(`require("react") === require("react") && require("react").createElement !== undefined`)
	require.NoError(t, err)
	assert.True(t, v.ToBoolean())

	_, err = vm.RunString(`require("fs")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module fs not found")
	assert.ErrorIs(t, err, ErrModuleNotFound)
	var lerr *LookupError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "fs", lerr.Name)

	v, err = vm.RunString(`var caught; try { require("net") } catch (e) { caught = e.message } caught`)
	require.NoError(t, err)
	assert.Contains(t, v.String(), "module net not found")
}

func TestEnvReleaseRunsOnceInReverse(t *testing.T) {
	vm := goja.New()
	env := NewEnv(vm, react.Bind(vm))

	var order []string
	env.OnRelease(func() error { order = append(order, "first"); return nil })
	env.OnRelease(func() error { order = append(order, "second"); return errors.New("close failed") })

	err := env.Release()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close failed")
	assert.Equal(t, []string{"second", "first"}, order)

	require.NoError(t, env.Release())
	assert.Len(t, order, 2)
}
