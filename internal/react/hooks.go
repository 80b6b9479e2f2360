package react

import (
	"github.com/dop251/goja"
)

// instance holds the hook state of one mounted component.
type instance struct {
	path   string
	typ    goja.Value
	root   *Root
	hooks  []any
	cursor int
	dead   bool

	class *classState
}

type stateHook struct {
	value   goja.Value
	setter  goja.Value
	reducer goja.Callable // nil for useState
}

type effectHook struct {
	deps    []goja.Value
	hasDeps bool
	pending goja.Callable
	cleanup goja.Callable
}

type refHook struct {
	ref *goja.Object
}

type memoHook struct {
	deps  []goja.Value
	value goja.Value
}

// hook returns the rendering instance and the slot index of the next hook.
func (rt *Runtime) hook(name string) (*instance, int) {
	inst := rt.current
	if inst == nil {
		rt.typeError("invalid hook call: %s can only be called while rendering a component", name)
	}
	i := inst.cursor
	inst.cursor++
	return inst, i
}

func (rt *Runtime) useState(call goja.FunctionCall) goja.Value {
	inst, i := rt.hook("useState")
	if i == len(inst.hooks) {
		init := call.Argument(0)
		if fn, ok := goja.AssertFunction(init); ok {
			v, err := fn(goja.Undefined())
			if err != nil {
				rt.throw(err)
			}
			init = v
		}
		h := &stateHook{value: init}
		h.setter = rt.vm.ToValue(func(c goja.FunctionCall) goja.Value {
			if err := inst.root.setState(inst, h, c.Argument(0)); err != nil {
				rt.throw(err)
			}
			return goja.Undefined()
		})
		inst.hooks = append(inst.hooks, h)
	}
	h, ok := inst.hooks[i].(*stateHook)
	if !ok {
		rt.typeError("hook order changed between renders of %s", inst.path)
	}
	return rt.vm.NewArray(h.value, h.setter)
}

func (rt *Runtime) useEffect(call goja.FunctionCall) goja.Value {
	inst, i := rt.hook("useEffect")
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		rt.typeError("useEffect expects a function")
	}
	deps, hasDeps := rt.deps(call.Argument(1))
	if i == len(inst.hooks) {
		inst.hooks = append(inst.hooks, &effectHook{deps: deps, hasDeps: hasDeps, pending: fn})
		return goja.Undefined()
	}
	h, ok := inst.hooks[i].(*effectHook)
	if !ok {
		rt.typeError("hook order changed between renders of %s", inst.path)
	}
	if !hasDeps || !h.hasDeps || depsChanged(h.deps, deps) {
		h.pending = fn
	}
	h.deps, h.hasDeps = deps, hasDeps
	return goja.Undefined()
}

func (rt *Runtime) useRef(call goja.FunctionCall) goja.Value {
	inst, i := rt.hook("useRef")
	if i == len(inst.hooks) {
		ref := rt.vm.NewObject()
		_ = ref.Set("current", call.Argument(0))
		inst.hooks = append(inst.hooks, &refHook{ref: ref})
	}
	h, ok := inst.hooks[i].(*refHook)
	if !ok {
		rt.typeError("hook order changed between renders of %s", inst.path)
	}
	return h.ref
}

func (rt *Runtime) useReducer(call goja.FunctionCall) goja.Value {
	inst, i := rt.hook("useReducer")
	reducer, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		rt.typeError("useReducer expects a reducer function")
	}
	if i == len(inst.hooks) {
		init := call.Argument(1)
		if fn, ok := goja.AssertFunction(call.Argument(2)); ok {
			v, err := fn(goja.Undefined(), init)
			if err != nil {
				rt.throw(err)
			}
			init = v
		}
		h := &stateHook{value: init}
		h.setter = rt.vm.ToValue(func(c goja.FunctionCall) goja.Value {
			next, err := h.reducer(goja.Undefined(), h.value, c.Argument(0))
			if err != nil {
				rt.throw(err)
			}
			if err := inst.root.commitState(inst, h, next); err != nil {
				rt.throw(err)
			}
			return goja.Undefined()
		})
		inst.hooks = append(inst.hooks, h)
	}
	h, ok := inst.hooks[i].(*stateHook)
	if !ok {
		rt.typeError("hook order changed between renders of %s", inst.path)
	}
	// dispatch always reduces with the latest render's reducer
	h.reducer = reducer
	return rt.vm.NewArray(h.value, h.setter)
}

func (rt *Runtime) useMemo(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		rt.typeError("useMemo expects a function")
	}
	return rt.memoized("useMemo", call.Argument(1), func() goja.Value {
		v, err := fn(goja.Undefined())
		if err != nil {
			rt.throw(err)
		}
		return v
	})
}

func (rt *Runtime) useCallback(call goja.FunctionCall) goja.Value {
	fn := call.Argument(0)
	if _, ok := goja.AssertFunction(fn); !ok {
		rt.typeError("useCallback expects a function")
	}
	return rt.memoized("useCallback", call.Argument(1), func() goja.Value { return fn })
}

// memoized keeps compute's result until depsArg changes.
func (rt *Runtime) memoized(name string, depsArg goja.Value, compute func() goja.Value) goja.Value {
	inst, i := rt.hook(name)
	deps, hasDeps := rt.deps(depsArg)
	if i == len(inst.hooks) {
		h := &memoHook{deps: deps, value: compute()}
		inst.hooks = append(inst.hooks, h)
		return h.value
	}
	h, ok := inst.hooks[i].(*memoHook)
	if !ok {
		rt.typeError("hook order changed between renders of %s", inst.path)
	}
	if !hasDeps || depsChanged(h.deps, deps) {
		h.value = compute()
		h.deps = deps
	}
	return h.value
}

// useContext reads the nearest provided value. It takes no hook slot.
func (rt *Runtime) useContext(call goja.FunctionCall) goja.Value {
	if rt.current == nil {
		rt.typeError("invalid hook call: useContext can only be called while rendering a component")
	}
	c := rt.contextOf(call.Argument(0))
	if c == nil {
		rt.typeError("useContext expects a context object created by createContext")
	}
	return c.value()
}

func (rt *Runtime) deps(v goja.Value) ([]goja.Value, bool) {
	if isNullish(v) {
		return nil, false
	}
	return values(v.ToObject(rt.vm)), true
}

func depsChanged(prev, next []goja.Value) bool {
	if len(prev) != len(next) {
		return true
	}
	for i := range prev {
		if !prev[i].SameAs(next[i]) {
			return true
		}
	}
	return false
}

// runEffects runs pending effects, cleaning up the previous run first.
// Class components run their lifecycle methods instead.
func (inst *instance) runEffects() error {
	if inst.class != nil {
		return inst.class.lifecycle()
	}
	for _, h := range inst.hooks {
		e, ok := h.(*effectHook)
		if !ok || e.pending == nil {
			continue
		}
		if e.cleanup != nil {
			cleanup := e.cleanup
			e.cleanup = nil
			if _, err := cleanup(goja.Undefined()); err != nil {
				return err
			}
		}
		fn := e.pending
		e.pending = nil
		out, err := fn(goja.Undefined())
		if err != nil {
			return err
		}
		if c, ok := goja.AssertFunction(out); ok {
			e.cleanup = c
		}
	}
	return nil
}

// dispose runs every outstanding effect cleanup. The instance never renders again.
func (inst *instance) dispose() error {
	if inst.dead {
		return nil
	}
	inst.dead = true
	if inst.class != nil {
		return inst.class.unmount()
	}
	var first error
	for _, h := range inst.hooks {
		e, ok := h.(*effectHook)
		if !ok || e.cleanup == nil {
			continue
		}
		cleanup := e.cleanup
		e.cleanup = nil
		if _, err := cleanup(goja.Undefined()); err != nil && first == nil {
			first = err
		}
	}
	return first
}
