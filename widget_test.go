package reactdown

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/livetemplate/reactdown/internal/dialect"
	"github.com/livetemplate/reactdown/internal/engine"
	"github.com/livetemplate/reactdown/internal/gateway"
)

func newTestEngine(t *testing.T, extra ...gateway.Entry) *engine.Engine {
	t.Helper()
	gw, err := gateway.Default(extra...)
	require.NoError(t, err)
	return engine.New(gw)
}

func newContainer() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func outer(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, html.Render(&buf, n))
	return buf.String()
}

// tracker counts component mounts and unmounts from inside the sandbox.
type tracker struct {
	mounts   int
	unmounts int
}

func (tr *tracker) entry() gateway.Entry {
	return gateway.Entry{Name: "tracker", Module: gateway.ModuleFunc(func(env *gateway.Env) (goja.Value, error) {
		o := env.VM.NewObject()
		_ = o.Set("mounted", func() { tr.mounts++ })
		_ = o.Set("unmounted", func() { tr.unmounts++ })
		return o, nil
	})}
}

const trackerSource = `import { useEffect } from 'react';
import tracker from 'tracker';

export default function Tracked() {
	useEffect(() => {
		tracker.mounted();
		return () => tracker.unmounted();
	}, []);
	return <div>hi</div>;
}
`

func TestMarkupDialectsMount(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		dialect dialect.Dialect
		src     string
	}{
		{dialect.Markup, "export default () => <div>hi</div>\n"},
		{dialect.TypedMarkup, "const App = (): JSX.Element => <div>hi</div>;\nexport default App;\n"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			container := newContainer()
			m := NewManager(e, tt.src, container, tt.dialect)
			assert.Equal(t, Unattached, m.State())

			require.NoError(t, m.OnAttach())
			assert.Equal(t, Mounted, m.State())
			require.NotNil(t, m.Root())

			kids := children(container)
			require.Len(t, kids, 1)
			assert.Equal(t, "<div><div>hi</div></div>", outer(t, kids[0]))
			assert.Same(t, kids[0], m.Root().Container())
		})
	}
}

func TestNonMarkupDialectsStayAttached(t *testing.T) {
	e := newTestEngine(t)
	for _, d := range []dialect.Dialect{dialect.Plain, dialect.Typed} {
		t.Run(d.String(), func(t *testing.T) {
			container := newContainer()
			m := NewManager(e, "export const n = 1;\nexport default function f() { return null; }\n", container, d)

			require.NoError(t, m.OnAttach())
			assert.Equal(t, Attached, m.State())
			assert.Nil(t, m.Root())
			assert.Nil(t, container.FirstChild)
			assert.Equal(t, int64(1), m.Record().Get("n").ToInteger())

			m.OnDetach()
			assert.Equal(t, Unmounted, m.State())
		})
	}
}

func TestDetachTwiceUnmountsOnce(t *testing.T) {
	p := &tracker{}
	e := newTestEngine(t, p.entry())
	container := newContainer()
	m := NewManager(e, trackerSource, container, dialect.Markup)

	require.NoError(t, m.OnAttach())
	assert.Equal(t, 1, p.mounts)
	assert.Equal(t, 0, p.unmounts)

	m.OnDetach()
	assert.Equal(t, Unmounted, m.State())
	assert.Nil(t, m.Root())
	assert.Equal(t, 1, p.unmounts)

	assert.NotPanics(t, m.OnDetach)
	assert.Equal(t, 1, p.unmounts)
	assert.Equal(t, Unmounted, m.State())
}

func TestDetachBeforeAttach(t *testing.T) {
	m := NewManager(newTestEngine(t), "export default () => <div/>", newContainer(), dialect.Markup)
	m.OnDetach()
	assert.Equal(t, Unmounted, m.State())
	assert.ErrorIs(t, m.OnAttach(), ErrDetached)
}

func TestManagerNeverRemounts(t *testing.T) {
	e := newTestEngine(t)
	container := newContainer()
	m := NewManager(e, "export default () => <p>x</p>\n", container, dialect.Markup)

	require.NoError(t, m.OnAttach())
	assert.ErrorIs(t, m.OnAttach(), ErrAlreadyAttached)
	assert.Len(t, children(container), 1)

	m.OnDetach()
	assert.ErrorIs(t, m.OnAttach(), ErrDetached)
	assert.Nil(t, m.Root())
}

func TestIndependentManagers(t *testing.T) {
	p := &tracker{}
	e := newTestEngine(t, p.entry())
	c1, c2 := newContainer(), newContainer()
	m1 := NewManager(e, trackerSource, c1, dialect.Markup)
	m2 := NewManager(e, trackerSource, c2, dialect.Markup)

	require.NoError(t, m1.OnAttach())
	require.NoError(t, m2.OnAttach())
	assert.Equal(t, 2, p.mounts)
	assert.NotSame(t, m1.Root(), m2.Root())
	assert.NotSame(t, m1.Record().Runtime(), m2.Record().Runtime())

	m1.OnDetach()
	assert.Equal(t, 1, p.unmounts)
	assert.Equal(t, Mounted, m2.State())
	assert.False(t, m2.Root().Unmounted())
	assert.Equal(t, "<div><div>hi</div></div>", outer(t, c2.FirstChild))
}

func TestAttachErrorsPropagate(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name    string
		dialect dialect.Dialect
		src     string
		kind    engine.Kind
	}{
		{"compile", dialect.Plain, "export default () => <div/>;\n", engine.KindCompile},
		{"module", dialect.Markup, "import lib from 'not-whitelisted';\nexport default lib;\n", engine.KindModule},
		{"execution", dialect.Plain, "throw new Error('boom');\n", engine.KindExecution},
		{"render", dialect.Markup, "export default { not: 'a component' };\n", engine.KindRender},
		{"missing default", dialect.TypedMarkup, "export const x: number = 1;\n", engine.KindRender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(e, tt.src, newContainer(), tt.dialect)
			err := m.OnAttach()
			require.Error(t, err)

			var eerr *engine.Error
			require.True(t, errors.As(err, &eerr))
			assert.Equal(t, tt.kind, eerr.Kind)
			assert.NotEqual(t, Mounted, m.State())

			assert.NotPanics(t, m.OnDetach)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unattached", Unattached.String())
	assert.Equal(t, "attached", Attached.String())
	assert.Equal(t, "mounted", Mounted.String())
	assert.Equal(t, "unmounted", Unmounted.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestElementDefaultExportMounts(t *testing.T) {
	container := newContainer()
	m := NewManager(newTestEngine(t), "export default <ul><li>a</li></ul>;\n", container, dialect.Markup)

	require.NoError(t, m.OnAttach())
	assert.Equal(t, Mounted, m.State())
	assert.Equal(t, "<div><ul><li>a</li></ul></div>", outer(t, container.FirstChild))
}

func TestMarkupBlocksUseLibrarySurface(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name    string
		dialect dialect.Dialect
		src     string
		want    string
	}{
		{"useReducer and useCallback", dialect.Markup, `import { useReducer, useCallback } from 'react';
export default function Tally() {
	const [n, add] = useReducer((s, a) => s + a, 1);
	const bump = useCallback(() => add(1), []);
	return <button onClick={bump}>{n}</button>;
}
`, "<div><button>1</button></div>"},
		{"context", dialect.TypedMarkup, `import { createContext, useContext } from 'react';
const Theme = createContext<string>('light');
const Label = (): JSX.Element => <i>{useContext(Theme)}</i>;
export default () => <Theme.Provider value="dark"><Label /></Theme.Provider>;
`, "<div><i>dark</i></div>"},
		{"class component", dialect.Markup, `import { Component } from 'react';
export default class Hello extends Component {
	state = { who: 'world' };
	render() { return <p>hello {this.state.who}</p>; }
}
`, "<div><p>hello world</p></div>"},
		{"memo and Children", dialect.Markup, `import { memo, Children } from 'react';
const Count = memo(({ children }) => <b>{Children.count(children)}</b>);
export default () => <Count><i /><i /></Count>;
`, "<div><b>2</b></div>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container := newContainer()
			m := NewManager(e, tt.src, container, tt.dialect)
			require.NoError(t, m.OnAttach())
			assert.Equal(t, Mounted, m.State())
			assert.Equal(t, tt.want, outer(t, container.FirstChild))
		})
	}
}
