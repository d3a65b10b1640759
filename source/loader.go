// Package source loads migration units from a directory of SQL files.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	migrator "github.com/getpup/pupsourcing-migrator"
)

// Extension is the file extension of migration units.
const Extension = ".sql"

// Loader reads migration definitions from Dir.
type Loader struct {
	// Dir is the directory holding the *.sql units.
	Dir string

	// Logger is an optional logger. If nil, logging is disabled.
	Logger migrator.Logger
}

// Load returns the definitions of every well-formed unit in Dir, in
// lexicographic order of file name.
//
// A missing directory yields an empty list. A directory that exists but
// cannot be read yields a *migrator.SourceUnavailableError. Malformed units
// are logged and skipped.
func (l *Loader) Load(ctx context.Context) ([]migrator.Definition, error) {
	defs, _, err := l.LoadWithErrors(ctx)
	return defs, err
}

// LoadWithErrors is like Load but also returns the parse errors of the
// skipped units.
func (l *Loader) LoadWithErrors(ctx context.Context) ([]migrator.Definition, []error, error) {
	info, err := os.Stat(l.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if l.Logger != nil {
				l.Logger.Warn(ctx, "migration directory does not exist", "dir", l.Dir)
			}
			return []migrator.Definition{}, nil, nil
		}
		return nil, nil, &migrator.SourceUnavailableError{Location: l.Dir, Err: err}
	}
	if !info.IsDir() {
		return nil, nil, &migrator.SourceUnavailableError{Location: l.Dir, Err: errors.New("not a directory")}
	}

	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, nil, &migrator.SourceUnavailableError{Location: l.Dir, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Extension {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	defs := make([]migrator.Definition, 0, len(names))
	var skipped []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		id := strings.TrimSuffix(name, Extension)
		def, err := l.loadUnit(id, filepath.Join(l.Dir, name))
		if err != nil {
			if l.Logger != nil {
				l.Logger.Warn(ctx, "skipping malformed migration unit", "unit", name, "error", err)
			}
			skipped = append(skipped, err)
			continue
		}
		defs = append(defs, def)
	}

	if l.Logger != nil {
		l.Logger.Debug(ctx, "loaded migration definitions", "dir", l.Dir, "count", len(defs), "skipped", len(skipped))
	}

	return defs, skipped, nil
}

func (l *Loader) loadUnit(id, path string) (migrator.Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return migrator.Definition{}, &migrator.ParseError{Unit: id, Err: fmt.Errorf("failed to read unit: %w", err)}
	}
	return Parse(id, content)
}
