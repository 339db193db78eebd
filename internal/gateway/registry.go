package gateway

import (
	"fmt"

	"github.com/mesh-intelligence/obay/internal/schema"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// ForKinds builds one gateway per kind from the store's provisioned tables
// and the matching schemas, in the order kinds lists them.
func ForKinds(store types.Store, schemas map[string]*schema.Schema, kinds []types.Kind, opts ...Option) ([]*Gateway, error) {
	out := make([]*Gateway, 0, len(kinds))
	for _, k := range kinds {
		s, ok := schemas[k.Name]
		if !ok {
			return nil, fmt.Errorf("no schema for kind %s", k.Name)
		}
		tbl, err := store.GetTable(k.Table)
		if err != nil {
			return nil, fmt.Errorf("getting table %s: %w", k.Table, err)
		}
		out = append(out, New(s, tbl, opts...))
	}
	return out, nil
}
