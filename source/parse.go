package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/ledger"
)

const (
	// MetaPrefix introduces a metadata directive line. The rest of the line is a JSON object.
	MetaPrefix = "-- META:"

	// RollbackDelimiter separates forward SQL from rollback SQL.
	RollbackDelimiter = "-- ROLLBACK:"
)

// maxEstimatedSeconds is the largest estimated_duration a time.Duration holds.
const maxEstimatedSeconds = math.MaxInt64 / int64(time.Second)

// metadata mirrors the recognised META keys. Pointers distinguish absent keys from zero values.
type metadata struct {
	Name                *string  `json:"name"`
	Version             *string  `json:"version"`
	IsBreaking          *bool    `json:"is_breaking"`
	RequiresMaintenance *bool    `json:"requires_maintenance"`
	EstimatedDuration   *int64   `json:"estimated_duration"`
	Dependencies        []string `json:"dependencies"`
	TargetTable         *string  `json:"target_table"`
	CopyColumns         []string `json:"copy_columns"`
}

func (m *metadata) merge(o metadata) {
	if o.Name != nil {
		m.Name = o.Name
	}
	if o.Version != nil {
		m.Version = o.Version
	}
	if o.IsBreaking != nil {
		m.IsBreaking = o.IsBreaking
	}
	if o.RequiresMaintenance != nil {
		m.RequiresMaintenance = o.RequiresMaintenance
	}
	if o.EstimatedDuration != nil {
		m.EstimatedDuration = o.EstimatedDuration
	}
	if o.Dependencies != nil {
		m.Dependencies = o.Dependencies
	}
	if o.TargetTable != nil {
		m.TargetTable = o.TargetTable
	}
	if o.CopyColumns != nil {
		m.CopyColumns = o.CopyColumns
	}
}

// Parse parses the content of a single migration unit whose ID is id.
// The returned error is always a *migrator.ParseError.
func Parse(id string, content []byte) (migrator.Definition, error) {
	def, err := parse(id, string(content))
	if err != nil {
		return migrator.Definition{}, &migrator.ParseError{Unit: id, Err: err}
	}
	return def, nil
}

func parse(id, content string) (migrator.Definition, error) {
	if id == "" {
		return migrator.Definition{}, errors.New("unit id cannot be empty")
	}

	if strings.Count(content, RollbackDelimiter) > 1 {
		return migrator.Definition{}, fmt.Errorf("more than one %q delimiter", RollbackDelimiter)
	}
	forward, rollback, _ := strings.Cut(content, RollbackDelimiter)

	meta, err := extractMetadata(forward)
	if err != nil {
		return migrator.Definition{}, err
	}

	forward = strings.TrimSpace(forward)
	if !hasStatements(forward) {
		return migrator.Definition{}, errors.New("forward sql is empty")
	}

	def := migrator.Definition{
		ID:          id,
		Name:        id,
		Version:     migrator.DefaultVersion,
		ForwardSQL:  forward,
		RollbackSQL: strings.TrimSpace(rollback),
	}

	if meta.Name != nil && *meta.Name != "" {
		def.Name = *meta.Name
	}
	if meta.Version != nil && *meta.Version != "" {
		def.Version = *meta.Version
	}
	if meta.IsBreaking != nil {
		def.IsBreaking = *meta.IsBreaking
	}
	if meta.RequiresMaintenance != nil {
		def.RequiresMaintenance = *meta.RequiresMaintenance
	}
	if meta.EstimatedDuration != nil {
		if *meta.EstimatedDuration < 0 {
			return migrator.Definition{}, fmt.Errorf("estimated_duration must be >= 0 (got: %d)", *meta.EstimatedDuration)
		}
		if *meta.EstimatedDuration > maxEstimatedSeconds {
			return migrator.Definition{}, fmt.Errorf("estimated_duration must be <= %d seconds (got: %d)", maxEstimatedSeconds, *meta.EstimatedDuration)
		}
		def.EstimatedDuration = time.Duration(*meta.EstimatedDuration) * time.Second
	}

	for _, dep := range meta.Dependencies {
		if dep == "" {
			return migrator.Definition{}, errors.New("dependencies cannot contain an empty id")
		}
		if dep == id {
			return migrator.Definition{}, errors.New("migration cannot depend on itself")
		}
	}
	if len(meta.Dependencies) > 0 {
		def.Dependencies = append([]string(nil), meta.Dependencies...)
	}

	if meta.TargetTable != nil && *meta.TargetTable != "" {
		if err := ledger.ValidateIdentifier(*meta.TargetTable, "target_table"); err != nil {
			return migrator.Definition{}, err
		}
		def.TargetTable = *meta.TargetTable
	}
	for _, col := range meta.CopyColumns {
		if err := ledger.ValidateIdentifier(col, "copy_columns"); err != nil {
			return migrator.Definition{}, err
		}
	}
	if len(meta.CopyColumns) > 0 {
		if def.TargetTable == "" {
			return migrator.Definition{}, errors.New("copy_columns requires target_table")
		}
		def.CopyColumns = append([]string(nil), meta.CopyColumns...)
	}

	return def, nil
}

// extractMetadata merges every META directive of the forward section, later lines winning.
func extractMetadata(forward string) (metadata, error) {
	var meta metadata
	for i, line := range strings.Split(forward, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, MetaPrefix) {
			continue
		}

		raw := strings.TrimSpace(strings.TrimPrefix(trimmed, MetaPrefix))
		var m metadata
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		if err := dec.Decode(&m); err != nil {
			return metadata{}, fmt.Errorf("invalid META directive on line %d: %w", i+1, err)
		}
		if dec.More() {
			return metadata{}, fmt.Errorf("invalid META directive on line %d: trailing data", i+1)
		}
		meta.merge(m)
	}
	return meta, nil
}

// hasStatements reports whether sql contains anything besides blank and comment lines.
func hasStatements(sql string) bool {
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		return true
	}
	return false
}
