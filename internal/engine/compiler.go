package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/livetemplate/reactdown/internal/cache"
	"github.com/livetemplate/reactdown/internal/dialect"
)

// Compiler turns block source into plain CommonJS-style script.
type Compiler interface {
	Compile(source string, d dialect.Dialect, plan dialect.Plan) (string, error)
}

// CompileError carries the compiler's diagnostics for a rejected block.
type CompileError struct {
	Messages []api.Message
}

func (e *CompileError) Error() string {
	if len(e.Messages) == 0 {
		return "compile failed"
	}
	msg := formatMessage(e.Messages[0])
	if n := len(e.Messages) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

// Line returns the 1-based block line of the first diagnostic, or 0.
func (e *CompileError) Line() int {
	if len(e.Messages) == 0 || e.Messages[0].Location == nil {
		return 0
	}
	return e.Messages[0].Location.Line
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column+1, m.Text)
}

// ESBuild compiles blocks with the esbuild transform API.
type ESBuild struct{}

// Compile implements Compiler. Module lowering is always applied because
// the sandbox has no module loader of its own.
func (ESBuild) Compile(source string, d dialect.Dialect, plan dialect.Plan) (string, error) {
	opts := api.TransformOptions{
		Loader:     loaderFor(plan),
		Format:     api.FormatCommonJS,
		Target:     api.ES2017,
		Sourcefile: "block" + d.Ext(),
		LogLevel:   api.LogLevelSilent,
	}
	if plan.Has(dialect.MarkupLowering) {
		opts.JSX = api.JSXTransform
		opts.JSXFactory = "React.createElement"
		opts.JSXFragment = "React.Fragment"
	}

	result := api.Transform(source, opts)
	if len(result.Errors) > 0 {
		return "", &CompileError{Messages: result.Errors}
	}
	return string(result.Code), nil
}

func loaderFor(plan dialect.Plan) api.Loader {
	markup := plan.Has(dialect.MarkupLowering)
	typed := plan.Has(dialect.TypeErasure)
	switch {
	case markup && typed:
		return api.LoaderTSX
	case markup:
		return api.LoaderJSX
	case typed:
		return api.LoaderTS
	}
	return api.LoaderJS
}

// cachedCompiler skips compilation for source it has already compiled.
// Failures are never cached.
type cachedCompiler struct {
	inner Compiler
	cache *cache.MemoryCache
	ttl   time.Duration
}

func (c *cachedCompiler) Compile(source string, d dialect.Dialect, plan dialect.Plan) (string, error) {
	key := cacheKey(source, plan)
	if code, ok := c.cache.Get(key); ok {
		return code, nil
	}
	code, err := c.inner.Compile(source, d, plan)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, code, c.ttl)
	return code, nil
}

func cacheKey(source string, plan dialect.Plan) string {
	names := make([]string, len(plan.Transforms))
	for i, t := range plan.Transforms {
		names[i] = t.String()
	}
	sum := sha256.Sum256([]byte(source))
	return strings.Join(names, "+") + ":" + hex.EncodeToString(sum[:])
}
