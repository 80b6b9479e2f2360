// Package dialect maps the four embedded block dialects onto the syntax
// transforms the compiler has to apply.
package dialect

import "fmt"

// Dialect is the declared syntax of an embedded block.
type Dialect int

const (
	Plain       Dialect = iota // plain script
	Typed                      // typed script
	Markup                     // component-markup script
	TypedMarkup                // typed component-markup script
)

// All lists every dialect, in keyword order.
var All = []Dialect{Plain, Typed, Markup, TypedMarkup}

// Transform is a single syntax pass requested from the compiler.
type Transform int

const (
	MarkupLowering Transform = iota // markup expressions -> createElement calls
	TypeErasure                     // strip type annotations
	ModuleLowering                  // import/export -> require/exports
)

func (t Transform) String() string {
	switch t {
	case MarkupLowering:
		return "jsx"
	case TypeErasure:
		return "typescript"
	case ModuleLowering:
		return "imports"
	}
	return fmt.Sprintf("Transform(%d)", int(t))
}

// Plan is what the compiler needs to know about a dialect.
type Plan struct {
	Transforms              []Transform
	ProducesVisualComponent bool
}

// Has reports whether the plan includes t.
func (p Plan) Has(t Transform) bool {
	for _, x := range p.Transforms {
		if x == t {
			return true
		}
	}
	return false
}

// Resolve returns the ordered transform list for d. The dialect set is
// closed, so an unknown value is a programming error and panics.
func Resolve(d Dialect) Plan {
	switch d {
	case Plain:
		return Plan{Transforms: []Transform{ModuleLowering}}
	case Typed:
		return Plan{Transforms: []Transform{TypeErasure, ModuleLowering}}
	case Markup:
		return Plan{
			Transforms:              []Transform{MarkupLowering, ModuleLowering},
			ProducesVisualComponent: true,
		}
	case TypedMarkup:
		return Plan{
			Transforms:              []Transform{MarkupLowering, TypeErasure, ModuleLowering},
			ProducesVisualComponent: true,
		}
	}
	panic(fmt.Sprintf("dialect: unmapped dialect %d", int(d)))
}

// Keyword returns the fence language that selects d.
func (d Dialect) Keyword() string {
	switch d {
	case Plain:
		return "reactjs"
	case Typed:
		return "reactts"
	case Markup:
		return "reactjsx"
	case TypedMarkup:
		return "reacttsx"
	}
	panic(fmt.Sprintf("dialect: unmapped dialect %d", int(d)))
}

// Ext is the file extension the compiler sees for d.
func (d Dialect) Ext() string {
	switch d {
	case Plain:
		return ".js"
	case Typed:
		return ".ts"
	case Markup:
		return ".jsx"
	case TypedMarkup:
		return ".tsx"
	}
	panic(fmt.Sprintf("dialect: unmapped dialect %d", int(d)))
}

func (d Dialect) String() string {
	switch d {
	case Plain:
		return "plain"
	case Typed:
		return "typed"
	case Markup:
		return "markup"
	case TypedMarkup:
		return "typed-markup"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

// FromKeyword maps a fence language to its dialect. ok is false for any
// language that is not one of the four block keywords.
func FromKeyword(keyword string) (Dialect, bool) {
	for _, d := range All {
		if d.Keyword() == keyword {
			return d, true
		}
	}
	return 0, false
}
