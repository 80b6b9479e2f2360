package reactdown

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/yaml.v3"

	"github.com/livetemplate/reactdown/internal/dialect"
)

// ErrClosed is returned when attaching a closed document.
var ErrClosed = errors.New("document closed")

// Frontmatter is the optional YAML header of a document.
type Frontmatter struct {
	Title string `yaml:"title"`
}

// Block is one embedded block occurrence in a document.
type Block struct {
	Index     int
	Dialect   dialect.Dialect
	Line      int // line of the opening fence
	Source    string
	Container *html.Node
	Manager   *Manager
}

// Document is a rendered markdown page that owns the lifecycle of every
// block it contains.
type Document struct {
	file        string
	frontmatter *Frontmatter
	root        *html.Node
	blocks      []*Block
	errs        []error

	attached bool
	closed   bool
}

// Parse renders content and creates one Manager per block occurrence. The
// blocks are not run until Attach.
func Parse(file string, content []byte, runner Runner) (*Document, error) {
	fm, body, offset, err := extractFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
	doc := md.Parser().Parse(text.NewReader(body))

	var blocks []*Block
	index := make(map[ast.Node]int)
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		d, ok := dialect.FromKeyword(infoKeyword(fenced, body))
		if !ok {
			return ast.WalkContinue, nil
		}
		index[n] = len(blocks)
		blocks = append(blocks, &Block{
			Index:   len(blocks),
			Dialect: d,
			Line:    offset + fenceLine(fenced, body),
			Source:  blockSource(fenced, body),
		})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk AST: %w", err)
	}

	var buf bytes.Buffer
	md.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&blockRenderer{index: index, blocks: blocks}, 100),
	))
	if err := md.Renderer().Render(&buf, body, doc); err != nil {
		return nil, fmt.Errorf("failed to render HTML: %w", err)
	}

	root := &html.Node{Type: html.ElementNode, Data: "article", DataAtom: atom.Article}
	nodes, err := html.ParseFragment(&buf, root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered HTML: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || !hasClass(n, "reactdown-block") {
			return
		}
		i, err := strconv.Atoi(attr(n, "data-block"))
		if err != nil || i < 0 || i >= len(blocks) {
			return
		}
		blocks[i].Container = n
	})

	for _, b := range blocks {
		if b.Container == nil {
			return nil, fmt.Errorf("block %d at line %d has no container", b.Index, b.Line)
		}
		b.Manager = NewManager(runner, b.Source, b.Container, b.Dialect)
	}

	return &Document{file: file, frontmatter: fm, root: root, blocks: blocks}, nil
}

// Attach runs every block in document order. A failing block is replaced by
// an inline error and the remaining blocks still attach. The returned error
// joins every block failure.
func (d *Document) Attach() error {
	if d.closed {
		return ErrClosed
	}
	if d.attached {
		return ErrAlreadyAttached
	}
	d.attached = true

	for _, b := range d.blocks {
		err := b.Manager.OnAttach()
		if err == nil {
			continue
		}
		berr := NewBlockError(d.file, b.Line, b.Dialect, b.Source, err)
		d.errs = append(d.errs, berr)
		Logger().Warn("[Block] attach failed",
			zap.String("file", d.file),
			zap.Int("line", berr.Line),
			zap.Stringer("dialect", b.Dialect),
			zap.Error(err))
		renderError(b.Container, berr)
	}
	return errors.Join(d.errs...)
}

// Close detaches every block. Only the first call does any work.
func (d *Document) Close() {
	if d.closed {
		return
	}
	d.closed = true
	for _, b := range d.blocks {
		b.Manager.OnDetach()
	}
}

// Errors returns the block failures collected by Attach.
func (d *Document) Errors() []error {
	return d.errs
}

// Blocks returns the document's block occurrences in order.
func (d *Document) Blocks() []*Block {
	return d.blocks
}

// Title returns the frontmatter title, or the first heading's text.
func (d *Document) Title() string {
	if d.frontmatter != nil && d.frontmatter.Title != "" {
		return d.frontmatter.Title
	}
	var title string
	walk(d.root, func(n *html.Node) {
		if title == "" && n.Type == html.ElementNode && n.DataAtom == atom.H1 {
			title = strings.TrimSpace(textContent(n))
		}
	})
	return title
}

// Root returns the document's element tree.
func (d *Document) Root() *html.Node {
	return d.root
}

// HTML serialises the current element tree.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func renderError(container *html.Node, err *BlockError) {
	pre := &html.Node{
		Type:     html.ElementNode,
		Data:     "pre",
		DataAtom: atom.Pre,
		Attr:     []html.Attribute{{Key: "class", Val: "reactdown-error"}},
	}
	pre.AppendChild(&html.Node{Type: html.TextNode, Data: err.Format()})
	container.AppendChild(pre)
}

// blockRenderer replaces block occurrences with their containers.
type blockRenderer struct {
	index  map[ast.Node]int
	blocks []*Block
}

func (r *blockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *blockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	fenced := node.(*ast.FencedCodeBlock)

	if i, ok := r.index[node]; ok {
		b := r.blocks[i]
		fmt.Fprintf(w, `<div class="reactdown-block" data-block="%d" data-dialect="%s" data-line="%d"></div>`+"\n",
			b.Index, b.Dialect.Keyword(), b.Line)
		return ast.WalkSkipChildren, nil
	}

	_, _ = w.WriteString("<pre><code")
	if lang := fenced.Language(source); lang != nil {
		_, _ = w.WriteString(` class="language-`)
		_, _ = w.Write(util.EscapeHTML(lang))
		_, _ = w.WriteString(`"`)
	}
	_, _ = w.WriteString(">")
	for i := 0; i < fenced.Lines().Len(); i++ {
		line := fenced.Lines().At(i)
		_, _ = w.Write(util.EscapeHTML(line.Value(source)))
	}
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkSkipChildren, nil
}

func infoKeyword(fenced *ast.FencedCodeBlock, source []byte) string {
	if fenced.Info == nil {
		return ""
	}
	fields := strings.Fields(string(fenced.Info.Segment.Value(source)))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// fenceLine returns the 1-indexed line of the opening fence within source.
func fenceLine(fenced *ast.FencedCodeBlock, source []byte) int {
	return bytes.Count(source[:fenced.Info.Segment.Start], []byte("\n")) + 1
}

func blockSource(fenced *ast.FencedCodeBlock, source []byte) string {
	var b strings.Builder
	for i := 0; i < fenced.Lines().Len(); i++ {
		line := fenced.Lines().At(i)
		b.Write(line.Value(source))
	}
	return b.String()
}

// extractFrontmatter splits an optional YAML header from content and returns
// the number of lines it occupied.
func extractFrontmatter(content []byte) (*Frontmatter, []byte, int, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, 0, nil
	}

	end := bytes.Index(content[4:], []byte("\n---\n"))
	if end == -1 {
		return nil, nil, 0, fmt.Errorf("unclosed frontmatter")
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(content[4:4+end], &fm); err != nil {
		return nil, nil, 0, fmt.Errorf("failed to parse YAML: %w", err)
	}
	consumed := content[:4+end+5]
	return &fm, content[len(consumed):], bytes.Count(consumed, []byte("\n")), nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}
