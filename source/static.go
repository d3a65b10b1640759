package source

import (
	"context"

	migrator "github.com/getpup/pupsourcing-migrator"
)

// Static is a fixed, in-memory migration source. Useful for definitions
// compiled into the binary and for tests.
type Static []migrator.Definition

var _ migrator.Source = Static(nil)

// Load returns a copy of the definitions.
func (s Static) Load(ctx context.Context) ([]migrator.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]migrator.Definition, len(s))
	copy(out, s)
	return out, nil
}
