package react

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Root is one mounted component tree bound to a container element.
type Root struct {
	rt        *Runtime
	container *html.Node
	element   goja.Value

	nodes     []*html.Node
	instances map[string]*instance
	order     []*instance
	handlers  map[*html.Node]map[string]goja.Callable

	mounted   bool
	unmounted bool
	busy      bool
	dirty     bool
}

// CreateRoot returns a root that renders into container.
func (rt *Runtime) CreateRoot(container *html.Node) *Root {
	return &Root{
		rt:        rt,
		container: container,
		instances: make(map[string]*instance),
		handlers:  make(map[*html.Node]map[string]goja.Callable),
	}
}

// Container returns the element the root renders into.
func (r *Root) Container() *html.Node {
	return r.container
}

// Unmounted reports whether Unmount has run.
func (r *Root) Unmounted() bool {
	return r.unmounted
}

// Render replaces the root's content with el. Effects run before Render
// returns, and any state updates they make are rendered synchronously.
func (r *Root) Render(el goja.Value) error {
	if r.unmounted {
		return ErrUnmounted
	}
	r.element = el
	r.mounted = true
	r.dirty = true
	return r.flush()
}

// Unmount runs every effect cleanup and removes the rendered nodes. Only the
// first call does any work.
func (r *Root) Unmount() error {
	if r.unmounted {
		return nil
	}
	r.unmounted = true
	if !r.mounted {
		return nil
	}

	var first error
	for _, inst := range r.order {
		if err := inst.dispose(); err != nil && first == nil {
			first = err
		}
	}
	for _, n := range r.nodes {
		r.container.RemoveChild(n)
	}
	r.nodes = nil
	r.order = nil
	r.instances = make(map[string]*instance)
	r.handlers = make(map[*html.Node]map[string]goja.Callable)
	r.element = nil
	return first
}

// Dispatch invokes node's on<event> handler and renders any resulting state change.
func (r *Root) Dispatch(node *html.Node, event string) error {
	if r.unmounted {
		return ErrUnmounted
	}
	event = strings.ToLower(event)
	fn := r.handlers[node][event]
	if fn == nil {
		return fmt.Errorf("%w: %s on <%s>", ErrNoHandler, event, node.Data)
	}

	evt := r.rt.vm.NewObject()
	_ = evt.Set("type", event)

	r.busy = true
	_, err := fn(goja.Undefined(), evt)
	r.busy = false
	if err != nil {
		return err
	}
	if r.dirty {
		return r.flush()
	}
	return nil
}

func (r *Root) setState(inst *instance, h *stateHook, next goja.Value) error {
	if fn, ok := goja.AssertFunction(next); ok {
		v, err := fn(goja.Undefined(), h.value)
		if err != nil {
			return err
		}
		next = v
	}
	return r.commitState(inst, h, next)
}

// commitState stores next and schedules a render when it differs.
func (r *Root) commitState(inst *instance, h *stateHook, next goja.Value) error {
	if h.value.SameAs(next) {
		return nil
	}
	h.value = next
	return r.schedule(inst)
}

// schedule marks the tree dirty on behalf of inst. Outside a render or
// event the update is flushed right away.
func (r *Root) schedule(inst *instance) error {
	if inst.dead || r.unmounted {
		return nil
	}
	r.dirty = true
	if r.busy {
		return nil
	}
	return r.flush()
}

func (r *Root) flush() error {
	r.busy = true
	defer func() { r.busy = false }()

	for n := 0; r.dirty; n++ {
		if n >= maxRerenders {
			return ErrTooManyRerenders
		}
		r.dirty = false
		if err := r.commit(); err != nil {
			return err
		}
		for _, inst := range r.order {
			if err := inst.runEffects(); err != nil {
				return err
			}
		}
	}
	return nil
}

// commit renders the element tree and swaps it into the container.
func (r *Root) commit() error {
	b := &builder{
		root:     r,
		seen:     make(map[string]*instance),
		handlers: make(map[*html.Node]map[string]goja.Callable),
	}
	nodes, err := b.build(r.element, "0")
	if err != nil {
		return err
	}

	var first error
	for _, inst := range b.replaced {
		if err := inst.dispose(); err != nil && first == nil {
			first = err
		}
	}
	for path, inst := range r.instances {
		if _, ok := b.seen[path]; !ok {
			if err := inst.dispose(); err != nil && first == nil {
				first = err
			}
		}
	}

	for _, n := range r.nodes {
		r.container.RemoveChild(n)
	}
	for _, n := range nodes {
		r.container.AppendChild(n)
	}
	r.nodes = nodes
	r.instances = b.seen
	r.order = b.order
	r.handlers = b.handlers
	return first
}

// builder turns one element tree into detached html nodes.
type builder struct {
	root     *Root
	seen     map[string]*instance
	order    []*instance
	replaced []*instance
	handlers map[*html.Node]map[string]goja.Callable
}

func (b *builder) build(v goja.Value, path string) ([]*html.Node, error) {
	if isNullish(v) {
		return nil, nil
	}
	switch x := v.Export().(type) {
	case bool:
		return nil, nil
	case string:
		return []*html.Node{{Type: html.TextNode, Data: x}}, nil
	case int64, float64:
		return []*html.Node{{Type: html.TextNode, Data: v.String()}}, nil
	case *Element:
		return b.element(x, path)
	}

	if o, ok := v.(*goja.Object); ok && isArray(o) {
		var out []*html.Node
		for i, item := range values(o) {
			key := fmt.Sprint(i)
			if el, ok := item.Export().(*Element); ok && el.Key != "" {
				key = "k:" + el.Key
			}
			nodes, err := b.build(item, path+"."+key)
			if err != nil {
				return nil, err
			}
			out = append(out, nodes...)
		}
		return out, nil
	}

	if _, ok := goja.AssertFunction(v); ok {
		return nil, fmt.Errorf("%w: functions are not valid as a child, return an element instead", ErrInvalidChild)
	}
	return nil, fmt.Errorf("%w: objects are not valid as a child (found %s)", ErrInvalidChild, v.String())
}

func (b *builder) element(el *Element, path string) ([]*html.Node, error) {
	typ := el.Type
	if isNullish(typ) {
		return nil, fmt.Errorf("%w: expected a string (for built-in elements) or a function (for components) but got: %s", ErrInvalidType, describe(typ))
	}
	switch x := typ.Export().(type) {
	case string:
		return b.host(x, el, path)
	case *provider:
		return b.provide(x.ctx, el, path)
	case *consumer:
		return b.consume(x.ctx, el, path)
	}
	if typ.SameAs(b.root.rt.fragment) {
		return b.build(el.Props.Get("children"), path+"/f")
	}
	if fn, ok := goja.AssertFunction(typ); ok {
		if ctor := b.root.rt.classOf(typ); ctor != nil {
			return b.class(ctor, el, path)
		}
		return b.component(fn, el, path)
	}
	return nil, fmt.Errorf("%w: expected a string (for built-in elements) or a function (for components) but got: %s", ErrInvalidType, describe(typ))
}

func (b *builder) host(tag string, el *Element, path string) ([]*html.Node, error) {
	node := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for _, k := range el.Props.Keys() {
		if k == "children" {
			continue
		}
		v := el.Props.Get(k)
		if len(k) > 2 && strings.HasPrefix(k, "on") {
			if fn, ok := goja.AssertFunction(v); ok {
				b.on(node, strings.ToLower(k[2:]), fn)
				continue
			}
		}
		if attr, ok := b.root.rt.attribute(k, v); ok {
			node.Attr = append(node.Attr, attr)
		}
	}

	children, err := b.build(el.Props.Get("children"), path+"/"+tag)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		node.AppendChild(c)
	}
	return []*html.Node{node}, nil
}

func (b *builder) component(fn goja.Callable, el *Element, path string) ([]*html.Node, error) {
	rt := b.root.rt
	inst := b.instance(path, el.Type)

	prev := rt.current
	rt.current = inst
	inst.cursor = 0
	out, err := fn(goja.Undefined(), el.Props)
	rt.current = prev
	if err != nil {
		return nil, err
	}

	nodes, err := b.build(out, path+">")
	if err != nil {
		return nil, err
	}
	// children first, so child effects run before their parent's
	b.order = append(b.order, inst)
	return nodes, nil
}

// instance returns the instance kept at path, or a fresh one when the
// component type there changed.
func (b *builder) instance(path string, typ goja.Value) *instance {
	inst := b.root.instances[path]
	if inst != nil && !inst.typ.SameAs(typ) {
		b.replaced = append(b.replaced, inst)
		inst = nil
	}
	if inst == nil {
		inst = &instance{path: path, typ: typ, root: b.root}
	}
	b.seen[path] = inst
	return inst
}

func (b *builder) on(node *html.Node, event string, fn goja.Callable) {
	m := b.handlers[node]
	if m == nil {
		m = make(map[string]goja.Callable)
		b.handlers[node] = m
	}
	m[event] = fn
}

// attribute converts one prop into an html attribute.
func (rt *Runtime) attribute(name string, v goja.Value) (html.Attribute, bool) {
	if isNullish(v) {
		return html.Attribute{}, false
	}
	if _, ok := goja.AssertFunction(v); ok {
		return html.Attribute{}, false
	}
	switch name {
	case "className":
		name = "class"
	case "htmlFor":
		name = "for"
	case "key", "ref":
		return html.Attribute{}, false
	}
	if b, ok := v.Export().(bool); ok {
		if !b {
			return html.Attribute{}, false
		}
		return html.Attribute{Key: strings.ToLower(name), Val: ""}, true
	}
	if name == "style" {
		if o, ok := v.(*goja.Object); ok {
			return html.Attribute{Key: "style", Val: rt.styleText(o)}, true
		}
	}
	return html.Attribute{Key: name, Val: v.String()}, true
}

func (rt *Runtime) styleText(o *goja.Object) string {
	var parts []string
	for _, k := range o.Keys() {
		v := o.Get(k)
		if isNullish(v) {
			continue
		}
		parts = append(parts, kebab(k)+": "+v.String())
	}
	return strings.Join(parts, "; ")
}

func kebab(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('-')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func describe(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if o, ok := v.(*goja.Object); ok && o.ClassName() == "Object" {
		return "object"
	}
	return v.String()
}
