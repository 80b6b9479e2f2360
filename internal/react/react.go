// Package react is the visual-component runtime that embedded blocks render
// through. It exposes a createElement/hooks surface to scripts running in a
// goja runtime and renders the resulting element trees into html.Node
// containers.
package react

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// Version is reported as React.version and ReactDOM.version.
const Version = "18.3.1-reactdown"

// maxRerenders bounds synchronous re-render loops caused by state updates.
const maxRerenders = 50

var (
	// ErrInvalidType is returned when an element type is neither a tag name,
	// a component function, nor Fragment.
	ErrInvalidType = errors.New("element type is invalid")
	// ErrInvalidChild is returned for values that cannot be rendered as children.
	ErrInvalidChild = errors.New("invalid child")
	// ErrTooManyRerenders is returned when state updates keep scheduling renders.
	ErrTooManyRerenders = errors.New("too many re-renders")
	// ErrUnmounted is returned when rendering into a root after Unmount.
	ErrUnmounted = errors.New("root is unmounted")
	// ErrNoHandler is returned by Dispatch when the node has no handler for the event.
	ErrNoHandler = errors.New("no event handler")
)

// Element is what createElement returns.
type Element struct {
	Type  goja.Value
	Props *goja.Object
	Key   string
}

// Runtime binds the component library to one script runtime. It is not safe
// for concurrent use; a script runtime is single-threaded anyway.
type Runtime struct {
	vm       *goja.Runtime
	module   *goja.Object
	dom      *goja.Object
	fragment *goja.Object
	current  *instance
}

// Bind creates the component library for vm.
func Bind(vm *goja.Runtime) *Runtime {
	return &Runtime{vm: vm, fragment: vm.NewObject()}
}

// VM returns the script runtime the library is bound to.
func (rt *Runtime) VM() *goja.Runtime {
	return rt.vm
}

// Module returns the React object. The same object is returned on every
// call so the injected handle and require("react") agree.
func (rt *Runtime) Module() *goja.Object {
	if rt.module != nil {
		return rt.module
	}
	m := rt.vm.NewObject()
	_ = m.Set("createElement", rt.createElement)
	_ = m.Set("cloneElement", rt.cloneElement)
	_ = m.Set("isValidElement", func(call goja.FunctionCall) goja.Value {
		return rt.vm.ToValue(IsElement(call.Argument(0)))
	})
	_ = m.Set("Fragment", rt.fragment)
	_ = m.Set("StrictMode", rt.fragment)
	_ = m.Set("Children", rt.childrenModule())
	_ = m.Set("createContext", rt.createContext)
	_ = m.Set("createRef", func(call goja.FunctionCall) goja.Value {
		ref := rt.vm.NewObject()
		_ = ref.Set("current", goja.Null())
		return ref
	})
	_ = m.Set("memo", rt.memo)
	_ = m.Set("forwardRef", rt.forwardRef)

	_ = m.Set("useState", rt.useState)
	_ = m.Set("useReducer", rt.useReducer)
	_ = m.Set("useEffect", rt.useEffect)
	_ = m.Set("useLayoutEffect", rt.useEffect)
	_ = m.Set("useRef", rt.useRef)
	_ = m.Set("useMemo", rt.useMemo)
	_ = m.Set("useCallback", rt.useCallback)
	_ = m.Set("useContext", rt.useContext)

	classes := rt.baseClasses()
	_ = m.Set("Component", classes.Get("Component"))
	_ = m.Set("PureComponent", classes.Get("PureComponent"))

	_ = m.Set("version", Version)
	rt.module = m
	return m
}

// DOMModule returns the ReactDOM companion object.
func (rt *Runtime) DOMModule() *goja.Object {
	if rt.dom != nil {
		return rt.dom
	}
	m := rt.vm.NewObject()
	_ = m.Set("flushSync", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		v, err := fn(goja.Undefined())
		if err != nil {
			rt.throw(err)
		}
		return v
	})
	_ = m.Set("version", Version)
	rt.dom = m
	return m
}

// CreateElement is the Go-side createElement(typ, null).
func (rt *Runtime) CreateElement(typ goja.Value) goja.Value {
	return rt.vm.ToValue(rt.newElement(typ, goja.Null(), nil))
}

// IsElement reports whether v was produced by createElement.
func IsElement(v goja.Value) bool {
	if v == nil {
		return false
	}
	_, ok := v.Export().(*Element)
	return ok
}

func (rt *Runtime) createElement(call goja.FunctionCall) goja.Value {
	var children []goja.Value
	if len(call.Arguments) > 2 {
		children = call.Arguments[2:]
	}
	return rt.vm.ToValue(rt.newElement(call.Argument(0), call.Argument(1), children))
}

func (rt *Runtime) newElement(typ, config goja.Value, children []goja.Value) *Element {
	el := &Element{Type: typ, Props: rt.vm.NewObject()}
	rt.assign(el, config, children)
	return el
}

// assign copies config into el's props, lifting key out and dropping ref,
// then sets children when any are given.
func (rt *Runtime) assign(el *Element, config goja.Value, children []goja.Value) {
	if !isNullish(config) {
		src := config.ToObject(rt.vm)
		for _, k := range src.Keys() {
			v := src.Get(k)
			switch k {
			case "key":
				if !isNullish(v) {
					el.Key = v.String()
				}
			case "ref":
			default:
				_ = el.Props.Set(k, v)
			}
		}
	}
	switch len(children) {
	case 0:
	case 1:
		_ = el.Props.Set("children", children[0])
	default:
		items := make([]interface{}, len(children))
		for i, c := range children {
			items[i] = c
		}
		_ = el.Props.Set("children", rt.vm.NewArray(items...))
	}
}

// throw raises err inside the script runtime. Must only be called from a
// native function invoked by script code.
func (rt *Runtime) throw(err error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex.Value())
	}
	panic(rt.vm.NewGoError(err))
}

func (rt *Runtime) typeError(format string, args ...interface{}) {
	panic(rt.vm.NewTypeError(fmt.Sprintf(format, args...)))
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func isArray(o *goja.Object) bool {
	return o.ClassName() == "Array"
}

// values returns the elements of an array-like object.
func values(o *goja.Object) []goja.Value {
	n := int(o.Get("length").ToInteger())
	out := make([]goja.Value, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, o.Get(fmt.Sprint(i)))
	}
	return out
}
