package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/ledger"
)

// TimestampFormat prefixes scaffolded unit names so that lexicographic order is creation order.
const TimestampFormat = "20060102150405"

var unitNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ScaffoldOptions configures a new migration unit.
type ScaffoldOptions struct {
	// Version is written to the META line (default: "1.0.0").
	Version string

	// IsBreaking is written to the META line.
	IsBreaking bool

	// RequiresMaintenance is written to the META line.
	RequiresMaintenance bool

	// EstimatedDuration is written to the META line, truncated to seconds.
	EstimatedDuration time.Duration

	// Dependencies is written to the META line.
	Dependencies []string

	// TargetTable is written to the META line when set.
	TargetTable string

	// Now returns the creation time (default: time.Now).
	Now func() time.Time
}

type scaffoldMeta struct {
	Name                string   `json:"name"`
	Version             string   `json:"version"`
	IsBreaking          bool     `json:"is_breaking"`
	RequiresMaintenance bool     `json:"requires_maintenance"`
	EstimatedDuration   int64    `json:"estimated_duration"`
	Dependencies        []string `json:"dependencies"`
	TargetTable         string   `json:"target_table,omitempty"`
}

// Scaffold writes a new unit named {timestamp}_{name}.sql into dir and
// returns its path. The directory is created if missing and existing files
// are never overwritten.
//
// The generated unit has no forward SQL yet, so loaders skip it until it is
// filled in.
func Scaffold(dir, name string, opts ScaffoldOptions) (string, error) {
	if !unitNameRegex.MatchString(name) {
		return "", fmt.Errorf("name must start with a letter and contain only letters, numbers, and underscores (got: %s)", name)
	}
	if opts.TargetTable != "" {
		if err := ledger.ValidateIdentifier(opts.TargetTable, "target_table"); err != nil {
			return "", err
		}
	}
	for _, dep := range opts.Dependencies {
		if strings.TrimSpace(dep) == "" {
			return "", errors.New("dependencies cannot contain an empty id")
		}
	}

	version := opts.Version
	if version == "" {
		version = migrator.DefaultVersion
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	deps := opts.Dependencies
	if deps == nil {
		deps = []string{}
	}

	meta, err := json.Marshal(scaffoldMeta{
		Name:                name,
		Version:             version,
		IsBreaking:          opts.IsBreaking,
		RequiresMaintenance: opts.RequiresMaintenance,
		EstimatedDuration:   int64(opts.EstimatedDuration / time.Second),
		Dependencies:        deps,
		TargetTable:         opts.TargetTable,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migration directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s%s", now().UTC().Format(TimestampFormat), name, Extension)
	path := filepath.Join(dir, filename)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", MetaPrefix, meta)
	b.WriteString("\n-- Forward migration: write the SQL that applies this change below.\n\n")
	fmt.Fprintf(&b, "%s\n", RollbackDelimiter)
	b.WriteString("-- Rollback: write the SQL that reverts the forward migration below.\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create migration unit: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return "", fmt.Errorf("failed to write migration unit: %w", err)
	}

	return path, nil
}
