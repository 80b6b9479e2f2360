// Package engine compiles embedded block source and executes it in a
// sandboxed script runtime.
package engine

import (
	"errors"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/livetemplate/reactdown/internal/cache"
	"github.com/livetemplate/reactdown/internal/dialect"
	"github.com/livetemplate/reactdown/internal/gateway"
	"github.com/livetemplate/reactdown/internal/react"
)

// Engine runs blocks. It holds no per-block state; every CompileAndRun
// gets its own script runtime.
type Engine struct {
	gateway  *gateway.Gateway
	compiler Compiler
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCompiler replaces the esbuild compiler.
func WithCompiler(c Compiler) Option {
	return func(e *Engine) { e.compiler = c }
}

// WithCache keeps compiled output in c for ttl.
func WithCache(c *cache.MemoryCache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.compiler = &cachedCompiler{inner: e.compiler, cache: c, ttl: ttl}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine resolving modules through gw. WithCache wraps
// whichever compiler is configured before it.
func New(gw *gateway.Gateway, opts ...Option) *Engine {
	e := &Engine{gateway: gw, compiler: ESBuild{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CompileAndRun compiles source for d and runs it to completion. On any
// failure the record is nil and the error is an *Error.
func (e *Engine) CompileAndRun(source string, d dialect.Dialect) (*ExportRecord, error) {
	plan := dialect.Resolve(d)

	code, err := e.compiler.Compile(source, d, plan)
	if err != nil {
		e.logger.Debug("[Engine] compile failed", zap.Stringer("dialect", d), zap.Error(err))
		return nil, &Error{Kind: KindCompile, Dialect: d, Err: err}
	}

	rec, err := e.run(code, d)
	if err != nil {
		e.logger.Debug("[Engine] run failed", zap.Stringer("dialect", d), zap.Error(err))
		return nil, err
	}
	e.logger.Debug("[Engine] block executed",
		zap.Stringer("dialect", d),
		zap.Strings("exports", rec.Keys()))
	return rec, nil
}

func (e *Engine) run(code string, d dialect.Dialect) (*ExportRecord, error) {
	vm := goja.New()
	rt := react.Bind(vm)
	env := gateway.NewEnv(vm, rt)

	// The compiled body becomes a function body; its parameters are the
	// only names the block can see besides the language built-ins.
	src := "(function (require, exports, module, React) {\n" + code + "\n})"
	prog, err := goja.Compile("block"+d.Ext(), src, false)
	if err != nil {
		return nil, &Error{Kind: KindCompile, Dialect: d, Err: err}
	}
	fnVal, err := vm.RunProgram(prog)
	if err != nil {
		return nil, &Error{Kind: KindExecution, Dialect: d, Err: err}
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, &Error{Kind: KindCompile, Dialect: d, Err: errors.New("compiled block is not a function")}
	}

	exports := vm.NewObject()
	module := vm.NewObject()
	_ = module.Set("exports", exports)

	if _, err := fn(goja.Undefined(), vm.ToValue(e.gateway.Require(env)), exports, module, rt.Module()); err != nil {
		if rerr := env.Release(); rerr != nil {
			e.logger.Warn("[Engine] release after failed run", zap.Error(rerr))
		}
		return nil, classify(err, d)
	}

	out := module.Get("exports")
	record := exports
	if out != nil && !goja.IsUndefined(out) && !goja.IsNull(out) {
		record = out.ToObject(vm)
	}
	return &ExportRecord{vm: vm, react: rt, env: env, exports: record}, nil
}

// classify separates whitelist misses from other script failures. A miss
// is recognised only by the lookup error itself travelling with the thrown
// value, so a later unrelated throw is never mistaken for one.
func classify(err error, d dialect.Dialect) error {
	var lerr *gateway.LookupError
	if errors.As(err, &lerr) {
		return &Error{Kind: KindModule, Dialect: d, Err: lerr}
	}
	return &Error{Kind: KindExecution, Dialect: d, Err: err}
}
