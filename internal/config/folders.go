package config

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// SuggestFolders returns every folder under root whose slash-separated path
// relative to root contains query, ignoring case. The root itself is "/".
// Hidden folders are skipped. Results are sorted.
func SuggestFolders(root, query string) ([]string, error) {
	q := strings.ToLower(query)
	var out []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if name == "." {
			name = "/"
		} else if strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if strings.Contains(strings.ToLower(name), q) {
			out = append(out, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(out)
	return out, nil
}
