package reactdown

import (
	"errors"
	"strings"
	"testing"

	"github.com/livetemplate/reactdown/internal/dialect"
	"github.com/livetemplate/reactdown/internal/engine"
	"github.com/livetemplate/reactdown/internal/gateway"
)

func TestBlockErrorFormatting(t *testing.T) {
	e := newTestEngine(t)
	src := "const a = 1;\nconst b: number = 2;\nexports.v = a + b;\n"

	_, runErr := e.CompileAndRun(src, dialect.Plain)
	if runErr == nil {
		t.Fatal("Expected error, got nil")
	}

	err := NewBlockError("notes/demo.md", 10, dialect.Plain, src, runErr)
	errMsg := err.Error()
	t.Logf("Error message:\n%s", errMsg)

	if !strings.HasPrefix(errMsg, "❌ Error in notes/demo.md") {
		t.Errorf("Error should start with the file")
	}
	if err.Line != 12 {
		t.Errorf("Line = %d, want 12", err.Line)
	}
	if !strings.Contains(errMsg, ">  12 | const b: number = 2;") {
		t.Errorf("Error should point at the failing line")
	}
	if !strings.Contains(errMsg, "   11 | const a = 1;") {
		t.Errorf("Error should show the preceding line")
	}
	if !strings.Contains(errMsg, "💡 Tip: Plain blocks accept neither markup nor type annotations") {
		t.Errorf("Error should include a dialect hint")
	}
	if !errors.Is(err, runErr) {
		t.Errorf("BlockError should unwrap to the engine error")
	}
}

func TestBlockErrorHints(t *testing.T) {
	tests := []struct {
		name    string
		dialect dialect.Dialect
		err     error
		want    string
	}{
		{
			name:    "missing module",
			dialect: dialect.Markup,
			err:     &engine.Error{Kind: engine.KindModule, Dialect: dialect.Markup, Err: &gateway.LookupError{Name: "lodash"}},
			want:    `"lodash" is not one of them`,
		},
		{
			name:    "markup in typed block",
			dialect: dialect.Typed,
			err:     &engine.Error{Kind: engine.KindCompile, Dialect: dialect.Typed, Err: errors.New("bad")},
			want:    "Markup needs a reactjsx or reacttsx block.",
		},
		{
			name:    "types in markup block",
			dialect: dialect.Markup,
			err:     &engine.Error{Kind: engine.KindCompile, Dialect: dialect.Markup, Err: errors.New("bad")},
			want:    "Type annotations need",
		},
		{
			name:    "thrown",
			dialect: dialect.Plain,
			err:     &engine.Error{Kind: engine.KindExecution, Dialect: dialect.Plain, Err: errors.New("boom")},
			want:    "threw while running",
		},
		{
			name:    "render",
			dialect: dialect.TypedMarkup,
			err:     &engine.Error{Kind: engine.KindRender, Dialect: dialect.TypedMarkup, Err: errors.New("boom")},
			want:    "default-export a component",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewBlockError("", 1, tt.dialect, "", tt.err)
			if !strings.Contains(err.Hint, tt.want) {
				t.Errorf("Hint = %q, want it to contain %q", err.Hint, tt.want)
			}
			if !strings.Contains(err.Error(), "❌ Error in "+tt.dialect.Keyword()+" block") {
				t.Errorf("in-memory errors should name the block keyword, got:\n%s", err.Error())
			}
		})
	}
}

func TestBlockErrorWithoutContext(t *testing.T) {
	err := NewBlockError("a.md", 3, dialect.Plain, "", errors.New("plain failure"))
	errMsg := err.Error()

	if !strings.Contains(errMsg, "Line 4: plain failure") {
		t.Errorf("Error should default to the first block line, got:\n%s", errMsg)
	}
	if strings.Contains(errMsg, "💡") {
		t.Errorf("unclassified errors carry no hint")
	}
}
