// Package selection holds the set of active contours and drives the
// interactive toggle loop that edits it.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDiscarded is returned by Session.Run when the user abandons the
// selection instead of committing it.
var ErrDiscarded = errors.New("selection discarded")

// ErrUnknownContour is returned when an event names a contour that is not
// part of the session's forest.
var ErrUnknownContour = errors.New("unknown contour")

// State maps contour id to active. Ids missing from the map are inactive.
type State map[int]bool

// All returns a state with ids 0..n-1 set to active.
func All(n int) State {
	s := make(State, n)
	for i := 0; i < n; i++ {
		s[i] = true
	}
	return s
}

// Active reports whether id is active.
func (s State) Active(id int) bool {
	return s[id]
}

// Clone returns an independent copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ActiveIDs returns the active ids in ascending order.
func (s State) ActiveIDs() []int {
	var ids []int
	for id, on := range s {
		if on {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Count returns the number of active ids.
func (s State) Count() int {
	n := 0
	for _, on := range s {
		if on {
			n++
		}
	}
	return n
}

// EventKind is the type of a selection event.
type EventKind string

const (
	Toggle  EventKind = "toggle"
	Set     EventKind = "set"
	Commit  EventKind = "commit"
	Discard EventKind = "discard"
)

// Event is one user action. Reply, when set, receives the outcome of
// applying the event and must be buffered.
type Event struct {
	Kind   EventKind  `json:"kind"`
	ID     int        `json:"id"`
	Active bool       `json:"active,omitempty"`
	Reply  chan error `json:"-"`
}

// Session owns a selection state while it is being edited.
type Session struct {
	mu    sync.Mutex
	state State
	size  int
}

// NewSession starts editing initial over a forest of size nodes. The
// initial state is copied.
func NewSession(initial State, size int) *Session {
	return &Session{state: initial.Clone(), size: size}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Apply applies a Toggle or Set event.
func (s *Session) Apply(ev Event) error {
	if ev.ID < 0 || ev.ID >= s.size {
		return fmt.Errorf("%w: %d", ErrUnknownContour, ev.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case Toggle:
		s.state[ev.ID] = !s.state[ev.ID]
	case Set:
		s.state[ev.ID] = ev.Active
	default:
		return fmt.Errorf("selection: cannot apply %q event", ev.Kind)
	}
	return nil
}

// Run consumes events until a Commit or Discard arrives, the channel is
// closed, or ctx is cancelled. On Commit it returns the final state. A
// closed channel is treated as Discard. Invalid events are reported on
// their Reply channel and otherwise ignored.
func (s *Session) Run(ctx context.Context, events <-chan Event) (State, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil, ErrDiscarded
			}
			switch ev.Kind {
			case Commit:
				reply(ev, nil)
				return s.Snapshot(), nil
			case Discard:
				reply(ev, nil)
				return nil, ErrDiscarded
			default:
				reply(ev, s.Apply(ev))
			}
		}
	}
}

func reply(ev Event, err error) {
	if ev.Reply == nil {
		return
	}
	select {
	case ev.Reply <- err:
	default:
	}
}
