package react

import (
	"fmt"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// contextKey holds the Go side of a context object. It is not enumerable.
const contextKey = "__reactdownContext"

// reactContext is one createContext result. Providers push their value
// while their subtree is built, so lookups see the nearest enclosing one.
type reactContext struct {
	defaultValue goja.Value
	stack        []goja.Value
}

func (c *reactContext) value() goja.Value {
	if n := len(c.stack); n > 0 {
		return c.stack[n-1]
	}
	return c.defaultValue
}

type provider struct{ ctx *reactContext }

type consumer struct{ ctx *reactContext }

func (rt *Runtime) createContext(call goja.FunctionCall) goja.Value {
	c := &reactContext{defaultValue: call.Argument(0)}
	obj := rt.vm.NewObject()
	_ = obj.DefineDataProperty(contextKey, rt.vm.ToValue(c), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	_ = obj.Set("Provider", rt.vm.ToValue(&provider{ctx: c}))
	_ = obj.Set("Consumer", rt.vm.ToValue(&consumer{ctx: c}))
	return obj
}

// contextOf returns the context behind v, or nil if v is not one.
func (rt *Runtime) contextOf(v goja.Value) *reactContext {
	o, ok := v.(*goja.Object)
	if !ok || o == nil {
		return nil
	}
	inner := o.Get(contextKey)
	if inner == nil {
		return nil
	}
	c, _ := inner.Export().(*reactContext)
	return c
}

func (b *builder) provide(c *reactContext, el *Element, path string) ([]*html.Node, error) {
	v := el.Props.Get("value")
	if v == nil {
		v = goja.Undefined()
	}
	c.stack = append(c.stack, v)
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()
	return b.build(el.Props.Get("children"), path+"/p")
}

func (b *builder) consume(c *reactContext, el *Element, path string) ([]*html.Node, error) {
	fn, ok := goja.AssertFunction(el.Props.Get("children"))
	if !ok {
		return nil, fmt.Errorf("%w: a context consumer expects a function as its child", ErrInvalidChild)
	}
	out, err := fn(goja.Undefined(), c.value())
	if err != nil {
		return nil, err
	}
	return b.build(out, path+"/c")
}
