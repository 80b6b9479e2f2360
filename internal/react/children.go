package react

import (
	"github.com/dop251/goja"
)

// childrenModule returns React.Children.
func (rt *Runtime) childrenModule() *goja.Object {
	m := rt.vm.NewObject()
	_ = m.Set("map", func(call goja.FunctionCall) goja.Value {
		children := call.Argument(0)
		if isNullish(children) {
			return children
		}
		fn := rt.callback("Children.map", call.Argument(1))
		var out []interface{}
		for i, c := range rt.flatten(children) {
			v, err := fn(call.Argument(2), c, rt.vm.ToValue(i))
			if err != nil {
				rt.throw(err)
			}
			for _, item := range rt.flatten(v) {
				if !isNullish(item) {
					out = append(out, item)
				}
			}
		}
		return rt.vm.NewArray(out...)
	})
	_ = m.Set("forEach", func(call goja.FunctionCall) goja.Value {
		if isNullish(call.Argument(0)) {
			return goja.Undefined()
		}
		fn := rt.callback("Children.forEach", call.Argument(1))
		for i, c := range rt.flatten(call.Argument(0)) {
			if _, err := fn(call.Argument(2), c, rt.vm.ToValue(i)); err != nil {
				rt.throw(err)
			}
		}
		return goja.Undefined()
	})
	_ = m.Set("count", func(call goja.FunctionCall) goja.Value {
		if isNullish(call.Argument(0)) {
			return rt.vm.ToValue(0)
		}
		return rt.vm.ToValue(len(rt.flatten(call.Argument(0))))
	})
	_ = m.Set("toArray", func(call goja.FunctionCall) goja.Value {
		var out []interface{}
		if !isNullish(call.Argument(0)) {
			for _, c := range rt.flatten(call.Argument(0)) {
				if !isNullish(c) {
					out = append(out, c)
				}
			}
		}
		return rt.vm.NewArray(out...)
	})
	_ = m.Set("only", func(call goja.FunctionCall) goja.Value {
		if !IsElement(call.Argument(0)) {
			rt.typeError("React.Children.only expected to receive a single React element child")
		}
		return call.Argument(0)
	})
	return m
}

// flatten lists the leaves of a children value. Nested arrays are opened
// and empty values (undefined, booleans) become null.
func (rt *Runtime) flatten(v goja.Value) []goja.Value {
	if isNullish(v) {
		return []goja.Value{goja.Null()}
	}
	if _, ok := v.Export().(bool); ok {
		return []goja.Value{goja.Null()}
	}
	o, ok := v.(*goja.Object)
	if !ok || !isArray(o) {
		return []goja.Value{v}
	}
	var out []goja.Value
	for _, item := range values(o) {
		out = append(out, rt.flatten(item)...)
	}
	return out
}

func (rt *Runtime) callback(name string, v goja.Value) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		rt.typeError("%s expects a function", name)
	}
	return fn
}

// cloneElement copies an element, overriding props, key and children.
func (rt *Runtime) cloneElement(call goja.FunctionCall) goja.Value {
	src, ok := call.Argument(0).Export().(*Element)
	if !ok {
		rt.typeError("React.cloneElement expects an element")
	}
	el := &Element{Type: src.Type, Props: rt.vm.NewObject(), Key: src.Key}
	for _, k := range src.Props.Keys() {
		_ = el.Props.Set(k, src.Props.Get(k))
	}
	var children []goja.Value
	if len(call.Arguments) > 2 {
		children = call.Arguments[2:]
	}
	rt.assign(el, call.Argument(1), children)
	return rt.vm.ToValue(el)
}

// memo returns the component unchanged. Every commit re-renders the whole
// tree, so there is no render to skip.
func (rt *Runtime) memo(call goja.FunctionCall) goja.Value {
	typ := call.Argument(0)
	if _, ok := goja.AssertFunction(typ); !ok {
		rt.typeError("memo expects a component")
	}
	return typ
}

// forwardRef adapts render(props, ref) into a component. Refs are not
// attached to rendered nodes, so ref is always null.
func (rt *Runtime) forwardRef(call goja.FunctionCall) goja.Value {
	render := rt.callback("forwardRef", call.Argument(0))
	return rt.vm.ToValue(func(c goja.FunctionCall) goja.Value {
		v, err := render(goja.Undefined(), c.Argument(0), goja.Null())
		if err != nil {
			rt.throw(err)
		}
		return v
	})
}
