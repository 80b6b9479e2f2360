package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/livetemplate/reactdown"
	"github.com/livetemplate/reactdown/internal/config"
)

// RenderCommand renders one document, attaching every block, and writes the
// resulting HTML to out. Failed blocks are rendered inline and reported in
// the returned error.
// Usage: reactdown render <file.md> [--config path] [--debug]
func RenderCommand(args []string, out io.Writer) error {
	fs, err := parseFlags(args, map[string]bool{"config": true}, map[string]string{"c": "config"})
	if err != nil {
		return err
	}
	if len(fs.positional) != 1 {
		return fmt.Errorf("usage: reactdown render <file.md> [--config path] [--debug]")
	}
	file := fs.positional[0]

	content, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	dir := filepath.Dir(file)
	cfg, err := loadConfig(fs.values["config"], dir)
	if err != nil {
		return err
	}

	logger, err := newLogger(fs.bools["debug"])
	if err != nil {
		return err
	}
	defer logger.Sync()

	rt, err := newBlockRuntime(context.Background(), cfg, dir, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	doc, err := reactdown.Parse(file, content, rt.engine)
	if err != nil {
		return err
	}
	defer doc.Close()

	attachErr := doc.Attach()

	html, err := doc.HTML()
	if err != nil {
		return fmt.Errorf("failed to serialise %s: %w", file, err)
	}
	if _, err := io.WriteString(out, html); err != nil {
		return err
	}

	if attachErr != nil {
		return fmt.Errorf("%d block(s) failed in %s:\n%w", len(doc.Errors()), file, attachErr)
	}
	return nil
}

func loadConfig(path, dir string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
