// Package feed implements the change subscription protocol shared by every
// store backend: a snapshot of the matching records, one ready event, then
// a live tail of matching mutations until the subscriber closes its cursor.
//
// Backends route each mutation through Broker.Mutate. Mutations and
// subscriptions on a table are serialized by a per-table gate, so a new
// subscription's snapshot and live tail never overlap or leave a gap.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mesh-intelligence/obay/pkg/types"
)

// SnapshotFunc reads the records a new subscription starts from.
type SnapshotFunc func(ctx context.Context) ([]types.Record, error)

// Broker fans store changes out to subscriptions.
type Broker struct {
	backlog int
	logger  *slog.Logger

	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

type topic struct {
	name string

	// gate serializes mutations and subscription snapshots.
	gate sync.Mutex

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Option configures a Broker.
type Option func(*Broker)

// WithBacklog bounds the number of undelivered live events per subscription.
// Values <= 0 select types.DefaultFeedBacklog.
func WithBacklog(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.backlog = n
		}
	}
}

// WithLogger sets the logger for subscription lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBroker creates a broker with no subscriptions.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		backlog: types.DefaultFeedBacklog,
		logger:  slog.Default(),
		topics:  make(map[string]*topic),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) topic(name string) (*topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, types.ErrStoreDetached
	}
	t, ok := b.topics[name]
	if !ok {
		t = &topic{name: name, subs: make(map[*Subscription]struct{})}
		b.topics[name] = t
	}
	return t, nil
}

// Mutate runs fn while holding the table's gate and publishes the change it
// returns. Zero changes and failed mutations publish nothing. Limited
// subscriptions that lose a visible record are refilled from their snapshot
// before the gate is released; ctx bounds those reads.
func (b *Broker) Mutate(ctx context.Context, table string, fn func() (types.Change, error)) (types.Change, error) {
	t, err := b.topic(table)
	if err != nil {
		return types.Change{}, err
	}
	t.gate.Lock()
	defer t.gate.Unlock()

	change, err := fn()
	if err != nil || change.IsZero() {
		return change, err
	}
	t.publish(context.WithoutCancel(ctx), change, b.logger)
	return change, nil
}

// Subscribe reads the snapshot and registers a subscription on table in one
// step. Records returned by snapshot that do not match q are skipped; with
// q.Limit set, only the first q.Limit matches are replayed.
func (b *Broker) Subscribe(ctx context.Context, table string, q types.FeedQuery, snapshot SnapshotFunc) (*Subscription, error) {
	t, err := b.topic(table)
	if err != nil {
		return nil, err
	}
	t.gate.Lock()
	defer t.gate.Unlock()

	var recs []types.Record
	if snapshot != nil {
		recs, err = snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading %s snapshot: %w", table, err)
		}
	}

	s := newSubscription(t, q, b.backlog, snapshot)
	s.replay(recs)

	t.mu.Lock()
	t.subs[s] = struct{}{}
	n := len(t.subs)
	t.mu.Unlock()

	b.logger.Debug("subscription opened", "table", table, "subscription", s.ID(), "initial", len(recs), "subscribers", n)
	return s, nil
}

// Subscribers returns the number of open subscriptions on table.
func (b *Broker) Subscribers(table string) int {
	b.mu.Lock()
	t, ok := b.topics[table]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close terminates every open subscription with types.ErrStoreDetached and
// rejects further use. Idempotent.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]*topic)
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		subs := t.subs
		t.subs = make(map[*Subscription]struct{})
		t.mu.Unlock()
		for s := range subs {
			s.terminate(types.ErrStoreDetached)
		}
	}
}

// publish delivers change to every subscription. Callers hold t.gate.
func (t *topic) publish(ctx context.Context, change types.Change, logger *slog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.subs {
		err := s.deliver(change)
		if err == nil {
			err = s.refill(ctx)
		}
		if err != nil {
			delete(t.subs, s)
			logger.Warn("subscription terminated", "table", t.name, "subscription", s.ID(), "error", err)
		}
	}
}

func (t *topic) remove(s *Subscription) {
	t.mu.Lock()
	delete(t.subs, s)
	t.mu.Unlock()
}
