package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// LoadDesiredState reads the desired-state DDL. A file is read as-is; a
// directory contributes every *.sql file in filename order, so numbered
// files (01_tables.sql, 02_views.sql) concatenate predictably.
func LoadDesiredState(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to read desired state %q: %w", path, err)
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read desired state %q: %w", path, err)
		}
		return string(data), nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*.sql"))
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no .sql files in directory %q", path)
	}
	sort.Strings(files)

	// read concurrently, join in filename order
	parts := make([]string, len(files))
	var g errgroup.Group
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %q: %w", file, err)
			}
			parts[i] = string(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return strings.Join(parts, "\n"), nil
}
