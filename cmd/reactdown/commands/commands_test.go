package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/livetemplate/reactdown/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestParseFlags(t *testing.T) {
	valued := map[string]bool{"port": true, "config": true}
	aliases := map[string]string{"p": "port", "w": "watch"}

	fs, err := parseFlags([]string{"docs", "-w", "--port", "3000", "--config=x.yaml", "--debug"}, valued, aliases)
	require.NoError(t, err)

	assert.Equal(t, []string{"docs"}, fs.positional)
	assert.True(t, fs.bools["watch"])
	assert.True(t, fs.bools["debug"])
	assert.Equal(t, "x.yaml", fs.values["config"])

	port, ok, err := fs.port()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3000, port)

	_, err = parseFlags([]string{"--port"}, valued, aliases)
	assert.Error(t, err)

	fs, err = parseFlags([]string{"-p", "http"}, valued, aliases)
	require.NoError(t, err)
	_, _, err = fs.port()
	assert.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "demo.md")
	writeFile(t, file, "# Demo\n\n```reactjsx\nexport default () => <em>live</em>;\n```\n")

	var out bytes.Buffer
	require.NoError(t, RenderCommand([]string{file}, &out))
	assert.Contains(t, out.String(), `<h1 id="demo">Demo</h1>`)
	assert.Contains(t, out.String(), `<div><em>live</em></div>`)
}

func TestRenderCommandReportsFailedBlocks(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "broken.md")
	writeFile(t, file, "```reactjs\nconst x: number = 1;\n```\n")

	var out bytes.Buffer
	err := RenderCommand([]string{file}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 block(s) failed")
	assert.Contains(t, out.String(), `class="reactdown-error"`)
}

func TestRenderCommandUsage(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, RenderCommand(nil, &out))
	assert.Error(t, RenderCommand([]string{filepath.Join(t.TempDir(), "missing.md")}, &out))
}

func TestSettingsCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "wasm", "math"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "notes"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))

	var out bytes.Buffer
	require.NoError(t, SettingsCommand([]string{"get", "module-path", "--dir", dir}, &out))
	assert.Equal(t, "\n", out.String())

	out.Reset()
	require.NoError(t, SettingsCommand([]string{"set", "module-path", "wasm", "--dir", dir}, &out))
	assert.Contains(t, out.String(), `module_path = "wasm"`)

	cfg, err := config.LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "wasm", cfg.ModulePath)

	out.Reset()
	require.NoError(t, SettingsCommand([]string{"get", "module-path", "-d", dir}, &out))
	assert.Equal(t, "wasm\n", out.String())

	out.Reset()
	require.NoError(t, SettingsCommand([]string{"suggest", "WA", "--dir", dir}, &out))
	assert.Equal(t, "wasm\nwasm/math\n", out.String())

	out.Reset()
	require.NoError(t, SettingsCommand([]string{"suggest", "--dir", dir}, &out))
	assert.Equal(t, "/\nnotes\nwasm\nwasm/math\n", out.String())
}

func TestSettingsCommandErrors(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	assert.Error(t, SettingsCommand([]string{"--dir", dir}, &out))
	assert.Error(t, SettingsCommand([]string{"get", "title", "--dir", dir}, &out))
	assert.Error(t, SettingsCommand([]string{"set", "module-path", "--dir", dir}, &out))
	assert.Error(t, SettingsCommand([]string{"frobnicate", "--dir", dir}, &out))
	assert.Error(t, SettingsCommand([]string{"get", "module-path", "--dir", filepath.Join(dir, "nope")}, &out))
}

func TestNewBlockRuntimeLoadsModules(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := config.DefaultConfig()
	cfg.ModulePath = "missing"
	_, err := newBlockRuntime(ctx, cfg, t.TempDir(), zaptest.NewLogger(t))
	assert.Error(t, err)

	cfg.ModulePath = ""
	rt, err := newBlockRuntime(ctx, cfg, t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rt.Close()
	assert.Nil(t, rt.modules)
	assert.NotNil(t, rt.cache)
}
