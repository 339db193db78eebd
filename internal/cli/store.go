package cli

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/obay/internal/gateway"
	"github.com/mesh-intelligence/obay/internal/schema"
	"github.com/mesh-intelligence/obay/pkg/store"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// openStore attaches the configured backend and provisions every standard
// table. The caller must Detach the returned store.
func (e *environment) openStore(ctx context.Context) (types.Store, error) {
	cfg := e.storeConfig()
	st, err := store.Open(cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("store attached", "backend", cfg.Backend)
	if err := types.Provision(ctx, st); err != nil {
		_ = st.Detach()
		return nil, fmt.Errorf("provisioning tables: %w", err)
	}
	return st, nil
}

// gateways builds one gateway per standard kind over st.
func (e *environment) gateways(st types.Store, opts ...gateway.Option) ([]*gateway.Gateway, error) {
	schemas, err := schema.LoadAll(schema.Embedded(), types.StandardKinds)
	if err != nil {
		return nil, err
	}
	opts = append([]gateway.Option{gateway.WithLogger(e.logger)}, opts...)
	return gateway.ForKinds(st, schemas, types.StandardKinds, opts...)
}
