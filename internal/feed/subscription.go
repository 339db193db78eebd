package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/mesh-intelligence/obay/pkg/types"
)

// Subscription is a live change cursor. It implements types.Cursor.
type Subscription struct {
	id      ulid.ULID
	topic   *topic
	query   types.FeedQuery
	backlog int

	// snapshot rereads matching records in insertion order to refill
	// a limited window.
	snapshot SnapshotFunc

	notify chan struct{}

	mu      sync.Mutex
	queue   []types.ChangeEvent
	live    int                 // queued live record events
	visible map[string]struct{} // ids inside the window when query.Limit > 0
	vacated bool                // a visible record left since the last refill
	err     error
}

var _ types.Cursor = (*Subscription)(nil)

func newSubscription(t *topic, q types.FeedQuery, backlog int, snapshot SnapshotFunc) *Subscription {
	s := &Subscription{
		id:       ulid.Make(),
		topic:    t,
		query:    q,
		backlog:  backlog,
		snapshot: snapshot,
		notify:   make(chan struct{}, 1),
	}
	if q.Limit > 0 {
		s.visible = make(map[string]struct{}, q.Limit)
	}
	return s
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id.String() }

// Query returns the records this subscription follows.
func (s *Subscription) Query() types.FeedQuery { return s.query }

// replay queues the initial records followed by the ready event.
func (s *Subscription) replay(recs []types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if !s.query.Matches(rec) {
			continue
		}
		if s.visible != nil {
			if len(s.visible) >= s.query.Limit {
				break
			}
			s.visible[rec.ID()] = struct{}{}
		}
		s.queue = append(s.queue, types.ChangeEvent{
			Change:  types.Change{NewVal: rec.Clone()},
			Initial: true,
		})
	}
	s.queue = append(s.queue, types.ReadyEvent())
	s.signal()
}

// deliver queues the subscriber's view of change. It returns the error that
// terminated the subscription, if any.
func (s *Subscription) deliver(change types.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	ev, ok := s.transition(change)
	if !ok {
		return nil
	}
	return s.enqueue(ev)
}

// enqueue appends a live event, failing the subscription when its backlog
// is full. Callers hold s.mu.
func (s *Subscription) enqueue(ev types.ChangeEvent) error {
	if s.live >= s.backlog {
		s.fail(types.ErrBacklogExceeded)
		return s.err
	}
	s.queue = append(s.queue, ev)
	s.live++
	s.signal()
	return nil
}

// refill fills slots freed in a limited window with the earliest matching
// records not yet visible, each reported as an entering record. The first
// Limit matches in insertion order always hold enough candidates, since at
// most len(visible) of them are already shown.
func (s *Subscription) refill(ctx context.Context) error {
	s.mu.Lock()
	if s.err != nil || !s.vacated {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.vacated = false
	free := s.query.Limit - len(s.visible)
	s.mu.Unlock()
	if free <= 0 || s.snapshot == nil {
		return nil
	}

	recs, err := s.snapshot(ctx)
	if err != nil {
		s.terminate(fmt.Errorf("refilling window: %w", err))
		return s.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, rec := range recs {
		if free == 0 {
			break
		}
		if !s.query.Matches(rec) {
			continue
		}
		if _, ok := s.visible[rec.ID()]; ok {
			continue
		}
		s.visible[rec.ID()] = struct{}{}
		free--
		if err := s.enqueue(types.ChangeEvent{Change: types.Change{NewVal: rec.Clone()}}); err != nil {
			return err
		}
	}
	return nil
}

// Err returns the error that ended the subscription, or nil while it is open.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// transition maps a store change onto the subscriber's window: a record that
// stays in view yields old and new values, one that leaves yields only the
// old value, one that enters yields only the new value.
func (s *Subscription) transition(c types.Change) (types.ChangeEvent, bool) {
	before := s.query.Matches(c.OldVal)
	after := s.query.Matches(c.NewVal)

	if s.visible != nil {
		if before {
			_, before = s.visible[c.OldVal.ID()]
		}
		if after && !before && len(s.visible) >= s.query.Limit {
			after = false
		}
		switch {
		case before && !after:
			delete(s.visible, c.OldVal.ID())
			s.vacated = true
		case after && !before:
			s.visible[c.NewVal.ID()] = struct{}{}
		}
	}

	var out types.Change
	switch {
	case before && after:
		out = types.Change{OldVal: c.OldVal.Clone(), NewVal: c.NewVal.Clone()}
	case before:
		out = types.Change{OldVal: c.OldVal.Clone()}
	case after:
		out = types.Change{NewVal: c.NewVal.Clone()}
	default:
		return types.ChangeEvent{}, false
	}
	return types.ChangeEvent{Change: out}, true
}

// Next returns the next event, blocking until one is queued, ctx is done, or
// the subscription ends.
func (s *Subscription) Next(ctx context.Context) (types.ChangeEvent, error) {
	for {
		s.mu.Lock()
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return types.ChangeEvent{}, err
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = types.ChangeEvent{}
			s.queue = s.queue[1:]
			if !ev.Initial && !ev.IsState() {
				s.live--
			}
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.ChangeEvent{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close unregisters the subscription. Pending events are discarded and
// later calls to Next return types.ErrSubscriptionClosed.
func (s *Subscription) Close() error {
	s.topic.remove(s)
	s.terminate(types.ErrSubscriptionClosed)
	return nil
}

func (s *Subscription) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.fail(err)
	}
}

// fail records the terminal error. Callers hold s.mu.
func (s *Subscription) fail(err error) {
	s.err = err
	s.queue = nil
	s.live = 0
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
