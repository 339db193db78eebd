// Package gateway implements the record gateway: one generic set of read,
// write and watch operations parameterized by a record kind's schema and
// the store table holding its records.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/obay/internal/metrics"
	"github.com/mesh-intelligence/obay/internal/query"
	"github.com/mesh-intelligence/obay/internal/schema"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// Operation names used in errors, logs and metrics.
const (
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpWatch  = "watch"
)

// StoreError wraps a store failure with the operation and record kind that
// hit it.
type StoreError struct {
	Op   string
	Kind string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Gateway serves one record kind. It holds no per-call state and is safe
// for concurrent use.
type Gateway struct {
	schema  *schema.Schema
	table   types.Table
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics records operation metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New creates a gateway for the kind s describes, backed by table.
func New(s *schema.Schema, table types.Table, opts ...Option) *Gateway {
	g := &Gateway{schema: s, table: table, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("kind", s.Kind().Name)
	return g
}

// Kind returns the record kind served by g.
func (g *Gateway) Kind() types.Kind { return g.schema.Kind() }

// Normalize converts raw request parameters using the kind's declared
// properties.
func (g *Gateway) Normalize(raw map[string]string) types.FilterRequest {
	return query.Normalize(raw, g.schema.Properties())
}

// Get normalizes raw and runs the resulting lookup.
func (g *Gateway) Get(ctx context.Context, raw map[string]string) (types.Envelope, error) {
	return g.Find(ctx, g.Normalize(raw))
}

// Find runs a point lookup when req.ID is set, otherwise a filtered list.
// The list's result and count branches run only when wanted, concurrently
// when both are.
func (g *Gateway) Find(ctx context.Context, req types.FilterRequest) (env types.Envelope, err error) {
	defer g.observe(OpGet, time.Now(), &env, &err)

	if req.ID != "" {
		rec, err := g.table.Get(ctx, req.ID)
		if errors.Is(err, types.ErrNotFound) {
			return types.NotFound(), nil
		}
		if err != nil {
			return types.Envelope{}, g.storeError(OpGet, err)
		}
		return types.Envelope{Result: rec, Found: true}, nil
	}

	var (
		rows  []types.Record
		count int
	)
	eg, egCtx := errgroup.WithContext(ctx)
	if req.WantResult {
		eg.Go(func() error {
			var err error
			rows, err = g.table.Query(egCtx, req.Query())
			return err
		})
	}
	if req.WantCount {
		eg.Go(func() error {
			var err error
			count, err = g.table.Count(egCtx, req.Filters)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return types.Envelope{}, g.storeError(OpGet, err)
	}

	if req.WantResult {
		if rows == nil {
			rows = []types.Record{}
		}
		env.Result = rows
		env.Found = len(rows) > 0
	}
	if req.WantCount {
		env.Count = &count
		env.Found = env.Found || count > 0
	}
	return env, nil
}

// Create validates doc and inserts it.
func (g *Gateway) Create(ctx context.Context, doc types.Record) (env types.Envelope, err error) {
	defer g.observe(OpCreate, time.Now(), &env, &err)

	if err := g.schema.Validate(doc); err != nil {
		return types.Envelope{}, err
	}
	change, err := g.table.Insert(ctx, doc)
	if err != nil {
		return types.Envelope{}, g.storeError(OpCreate, err)
	}
	return types.Envelope{Result: change.NewVal, Found: true}, nil
}

// Update validates doc as a full replacement and stores it under the id it
// embeds. Updating an absent id yields a not-found envelope.
func (g *Gateway) Update(ctx context.Context, doc types.Record) (env types.Envelope, err error) {
	defer g.observe(OpUpdate, time.Now(), &env, &err)

	if doc.ID() == "" {
		return types.Envelope{}, schema.NewValidationError(g.Kind().Name, types.IDField, "id is required")
	}
	if err := g.schema.Validate(doc); err != nil {
		return types.Envelope{}, err
	}
	change, err := g.table.Update(ctx, doc)
	if err != nil {
		return types.Envelope{}, g.storeError(OpUpdate, err)
	}
	return types.FromChange(change), nil
}

// Delete removes the record with id. Deleting an absent id yields a
// not-found envelope.
func (g *Gateway) Delete(ctx context.Context, id string) (env types.Envelope, err error) {
	defer g.observe(OpDelete, time.Now(), &env, &err)

	if id == "" {
		return types.Envelope{}, schema.NewValidationError(g.Kind().Name, types.IDField, "id is required")
	}
	change, err := g.table.Delete(ctx, id)
	if err != nil {
		return types.Envelope{}, g.storeError(OpDelete, err)
	}
	return types.FromChange(change), nil
}

// Watch opens a change subscription for raw. Only the id, equality filters
// and limit apply; ordering, skip and count are ignored. The caller must
// Close the returned cursor.
func (g *Gateway) Watch(ctx context.Context, raw map[string]string) (types.Cursor, error) {
	start := time.Now()
	req := g.Normalize(raw)
	cur, err := g.table.Changes(ctx, req.Feed())
	if err != nil {
		g.metrics.ObserveOperation(g.Kind().Name, OpWatch, metrics.OutcomeError, time.Since(start))
		return nil, g.storeError(OpWatch, err)
	}
	g.metrics.ObserveOperation(g.Kind().Name, OpWatch, metrics.OutcomeOK, time.Since(start))
	g.metrics.SubscriptionOpened(g.Kind().Name)
	g.logger.Debug("watch opened", "id", req.ID, "filters", req.Filters, "limit", req.Limit)
	return &cursor{Cursor: cur, g: g}, nil
}

func (g *Gateway) storeError(op string, err error) error {
	return &StoreError{Op: op, Kind: g.Kind().Name, Err: err}
}

func (g *Gateway) observe(op string, start time.Time, env *types.Envelope, err *error) {
	outcome := metrics.OutcomeOK
	var ve *schema.ValidationError
	switch {
	case errors.As(*err, &ve):
		outcome = metrics.OutcomeInvalid
	case *err != nil:
		outcome = metrics.OutcomeError
	case !env.Found:
		outcome = metrics.OutcomeNotFound
	}
	g.metrics.ObserveOperation(g.Kind().Name, op, outcome, time.Since(start))
}

// cursor tracks subscription metrics for a store cursor.
type cursor struct {
	types.Cursor
	g    *Gateway
	once sync.Once
}

func (c *cursor) Next(ctx context.Context) (types.ChangeEvent, error) {
	ev, err := c.Cursor.Next(ctx)
	if err == nil {
		c.g.metrics.EventDelivered(c.g.Kind().Name, ev.Name())
	}
	return ev, err
}

func (c *cursor) Close() error {
	err := c.Cursor.Close()
	c.once.Do(func() {
		c.g.metrics.SubscriptionClosed(c.g.Kind().Name)
		c.g.logger.Debug("watch closed")
	})
	return err
}
