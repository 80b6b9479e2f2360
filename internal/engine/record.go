package engine

import (
	"github.com/dop251/goja"

	"github.com/livetemplate/reactdown/internal/gateway"
	"github.com/livetemplate/reactdown/internal/react"
)

// ExportRecord is what one execution of a block exported. It stays tied to
// the script runtime that produced it.
type ExportRecord struct {
	vm      *goja.Runtime
	react   *react.Runtime
	env     *gateway.Env
	exports *goja.Object
}

// Keys lists the record's enumerable keys.
func (r *ExportRecord) Keys() []string {
	return r.exports.Keys()
}

// Get returns the value under key, undefined if absent.
func (r *ExportRecord) Get(key string) goja.Value {
	v := r.exports.Get(key)
	if v == nil {
		return goja.Undefined()
	}
	return v
}

// Default returns the "default" entry.
func (r *ExportRecord) Default() goja.Value {
	return r.Get("default")
}

// Renderer returns the component library bound to the record's runtime.
func (r *ExportRecord) Renderer() *react.Runtime {
	return r.react
}

// Runtime returns the script runtime that produced the record.
func (r *ExportRecord) Runtime() *goja.Runtime {
	return r.vm
}

// Release frees what the record's imports hold, such as WASM instances.
// The record must not be used afterwards.
func (r *ExportRecord) Release() error {
	return r.env.Release()
}
