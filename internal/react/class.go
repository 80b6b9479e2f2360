package react

import (
	"fmt"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// classProgram defines Component and PureComponent. State changes go through
// this.updater, which the renderer installs on each mounted instance.
var classProgram = goja.MustCompile("react-classes.js", `(function () {
	var unmounted = {
		enqueueSetState: function () {},
		enqueueForceUpdate: function () {}
	};
	function Component(props, context, updater) {
		this.props = props;
		this.context = context;
		this.refs = {};
		this.updater = updater || unmounted;
	}
	Component.prototype.isReactComponent = {};
	Component.prototype.setState = function (partial, callback) {
		if (partial != null && typeof partial !== "object" && typeof partial !== "function") {
			throw new TypeError("setState takes an object of state variables to update or a function which returns an object of state variables");
		}
		this.updater.enqueueSetState(this, partial, callback);
	};
	Component.prototype.forceUpdate = function (callback) {
		this.updater.enqueueForceUpdate(this, callback);
	};
	function PureComponent(props, context, updater) {
		Component.call(this, props, context, updater);
	}
	PureComponent.prototype = Object.create(Component.prototype);
	PureComponent.prototype.constructor = PureComponent;
	PureComponent.prototype.isPureReactComponent = true;
	return { Component: Component, PureComponent: PureComponent };
})()`, false)

func (rt *Runtime) baseClasses() *goja.Object {
	v, err := rt.vm.RunProgram(classProgram)
	if err != nil {
		panic(fmt.Sprintf("react: defining component classes: %v", err))
	}
	return v.ToObject(rt.vm)
}

// classOf returns typ as a constructor when its prototype is marked as a
// class component.
func (rt *Runtime) classOf(typ goja.Value) *goja.Object {
	ctor, ok := typ.(*goja.Object)
	if !ok {
		return nil
	}
	proto, ok := ctor.Get("prototype").(*goja.Object)
	if !ok || proto == nil {
		return nil
	}
	if isNullish(proto.Get("isReactComponent")) {
		return nil
	}
	return ctor
}

// classState is the instance slot of a class component.
type classState struct {
	self      *goja.Object
	queue     []goja.Value
	callbacks []goja.Callable
	mounted   bool
	updated   bool
	prevProps goja.Value
	prevState goja.Value
}

func (b *builder) class(ctor *goja.Object, el *Element, path string) ([]*html.Node, error) {
	rt := b.root.rt
	inst := b.instance(path, el.Type)

	// hooks are not available to class components
	prev := rt.current
	rt.current = nil
	defer func() { rt.current = prev }()

	context := rt.classContext(ctor)
	cs := inst.class
	if cs == nil {
		self, err := rt.vm.New(ctor, el.Props, context)
		if err != nil {
			return nil, err
		}
		cs = &classState{self: self}
		_ = self.Set("updater", rt.updater(inst))
		inst.class = cs
	} else {
		cs.prevProps = cs.self.Get("props")
		cs.prevState = cs.self.Get("state")
		cs.updated = true
	}

	state := cs.self.Get("state")
	queue := cs.queue
	cs.queue = nil
	for _, partial := range queue {
		if fn, ok := goja.AssertFunction(partial); ok {
			v, err := fn(cs.self, state, el.Props)
			if err != nil {
				return nil, err
			}
			partial = v
		}
		state = rt.mergeState(state, partial)
	}
	if derive, ok := goja.AssertFunction(ctor.Get("getDerivedStateFromProps")); ok {
		partial, err := derive(goja.Undefined(), el.Props, state)
		if err != nil {
			return nil, err
		}
		state = rt.mergeState(state, partial)
	}
	_ = cs.self.Set("state", state)
	_ = cs.self.Set("props", el.Props)
	_ = cs.self.Set("context", context)

	render, ok := goja.AssertFunction(cs.self.Get("render"))
	if !ok {
		return nil, fmt.Errorf("%w: class component at %s has no render method", ErrInvalidType, path)
	}
	out, err := render(cs.self)
	if err != nil {
		return nil, err
	}

	nodes, err := b.build(out, path+">")
	if err != nil {
		return nil, err
	}
	b.order = append(b.order, inst)
	return nodes, nil
}

// updater receives setState and forceUpdate calls for inst.
func (rt *Runtime) updater(inst *instance) *goja.Object {
	u := rt.vm.NewObject()
	enqueue := func(partial, callback goja.Value) {
		cs := inst.class
		if partial != nil {
			cs.queue = append(cs.queue, partial)
		}
		if cb, ok := goja.AssertFunction(callback); ok {
			cs.callbacks = append(cs.callbacks, cb)
		}
		if err := inst.root.schedule(inst); err != nil {
			rt.throw(err)
		}
	}
	_ = u.Set("enqueueSetState", func(call goja.FunctionCall) goja.Value {
		enqueue(call.Argument(1), call.Argument(2))
		return goja.Undefined()
	})
	_ = u.Set("enqueueForceUpdate", func(call goja.FunctionCall) goja.Value {
		enqueue(nil, call.Argument(1))
		return goja.Undefined()
	})
	return u
}

// classContext is the value of ctor.contextType, if it names a context.
func (rt *Runtime) classContext(ctor *goja.Object) goja.Value {
	if c := rt.contextOf(ctor.Get("contextType")); c != nil {
		return c.value()
	}
	return goja.Undefined()
}

// mergeState shallow-merges partial over state into a new object.
func (rt *Runtime) mergeState(state, partial goja.Value) goja.Value {
	if isNullish(partial) {
		return state
	}
	out := rt.vm.NewObject()
	for _, src := range []goja.Value{state, partial} {
		o, ok := src.(*goja.Object)
		if !ok || o == nil {
			continue
		}
		for _, k := range o.Keys() {
			_ = out.Set(k, o.Get(k))
		}
	}
	return out
}

// lifecycle runs componentDidMount or componentDidUpdate after a commit,
// then any setState callbacks.
func (cs *classState) lifecycle() error {
	self := cs.self
	switch {
	case !cs.mounted:
		cs.mounted = true
		cs.updated = false
		if fn, ok := goja.AssertFunction(self.Get("componentDidMount")); ok {
			if _, err := fn(self); err != nil {
				return err
			}
		}
	case cs.updated:
		cs.updated = false
		if fn, ok := goja.AssertFunction(self.Get("componentDidUpdate")); ok {
			if _, err := fn(self, cs.prevProps, cs.prevState); err != nil {
				return err
			}
		}
	}
	callbacks := cs.callbacks
	cs.callbacks = nil
	for _, cb := range callbacks {
		if _, err := cb(self); err != nil {
			return err
		}
	}
	return nil
}

func (cs *classState) unmount() error {
	if !cs.mounted {
		return nil
	}
	if fn, ok := goja.AssertFunction(cs.self.Get("componentWillUnmount")); ok {
		_, err := fn(cs.self)
		return err
	}
	return nil
}
