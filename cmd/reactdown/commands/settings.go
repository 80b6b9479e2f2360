package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/livetemplate/reactdown/internal/config"
)

// SettingsCommand reads and writes reactdown.yaml in a document folder.
// Usage:
//
//	reactdown settings get module-path [--dir D]
//	reactdown settings set module-path <folder> [--dir D]
//	reactdown settings suggest <query> [--dir D]
func SettingsCommand(args []string, out io.Writer) error {
	fs, err := parseFlags(args, map[string]bool{"dir": true}, map[string]string{"d": "dir"})
	if err != nil {
		return err
	}
	dir := "."
	if v, ok := fs.values["dir"]; ok {
		dir = v
	}
	if err := dirExists(dir); err != nil {
		return err
	}

	if len(fs.positional) == 0 {
		return fmt.Errorf("usage: reactdown settings <get|set|suggest> ...")
	}

	switch fs.positional[0] {
	case "get":
		if len(fs.positional) != 2 || fs.positional[1] != "module-path" {
			return fmt.Errorf("usage: reactdown settings get module-path")
		}
		cfg, err := config.LoadFromDir(dir)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, cfg.ModulePath)
		return nil

	case "set":
		if len(fs.positional) != 3 || fs.positional[1] != "module-path" {
			return fmt.Errorf("usage: reactdown settings set module-path <folder>")
		}
		cfg, err := config.LoadFromDir(dir)
		if err != nil {
			return err
		}
		cfg.ModulePath = fs.positional[2]
		if err := cfg.Save(filepath.Join(dir, config.FileName)); err != nil {
			return err
		}
		if modDir := cfg.ResolveModulePath(dir); cfg.ModulePath != "" {
			if err := dirExists(modDir); err != nil {
				fmt.Fprintf(out, "⚠️  %v\n", err)
			}
		}
		fmt.Fprintf(out, "module_path = %q\n", cfg.ModulePath)
		return nil

	case "suggest":
		query := ""
		if len(fs.positional) > 1 {
			query = fs.positional[1]
		}
		folders, err := config.SuggestFolders(dir, query)
		if err != nil {
			return err
		}
		for _, f := range folders {
			fmt.Fprintln(out, f)
		}
		return nil
	}

	return fmt.Errorf("unknown settings action: %s", fs.positional[0])
}
