package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/export"
	"github.com/dgallion1/tracecut/internal/noise"
	"github.com/dgallion1/tracecut/internal/selection"
)

// ErrSessionClosed is returned when an event is sent to a session that was
// already committed, discarded or expired.
var ErrSessionClosed = errors.New("session closed")

// SessionStatus is the lifecycle state of a selection session.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionCommitted SessionStatus = "committed"
	SessionDiscarded SessionStatus = "discarded"
	SessionExpired   SessionStatus = "expired"
)

// Session is an interactive selection over one traced image. Events are
// applied by a single goroutine running selection.Session.Run.
type Session struct {
	ID        string
	Filename  string
	Params    Params
	Formats   []export.Format
	CreatedAt time.Time

	forest *contour.Forest
	filter noise.Result
	sel    *selection.Session
	events chan selection.Event
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	status    SessionStatus
	jobID     string
	err       error
	updatedAt time.Time
}

func newSession(filename string, f *contour.Forest, p Params, formats []export.Format) *Session {
	initial, res := Filter(f, p)
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Filename:  filename,
		Params:    p,
		Formats:   formats,
		CreatedAt: now,
		forest:    f,
		filter:    res,
		sel:       selection.NewSession(initial, f.Len()),
		events:    make(chan selection.Event),
		done:      make(chan struct{}),
		status:    SessionOpen,
		updatedAt: now,
	}
}

// run drives the selection loop. submit is called with the committed
// state and returns the id of the queued job.
func (s *Session) run(ctx context.Context, submit func(selection.State) (string, error)) {
	defer close(s.done)
	state, err := s.sel.Run(ctx, s.events)

	status := SessionCommitted
	jobID := ""
	switch {
	case err == nil:
		jobID, err = submit(state)
	case errors.Is(err, selection.ErrDiscarded):
		status = SessionDiscarded
		err = nil
	default:
		status = SessionExpired
	}

	s.mu.Lock()
	s.status = status
	s.jobID = jobID
	s.err = err
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Send delivers one event and waits for it to be applied.
func (s *Session) Send(ctx context.Context, ev selection.Event) error {
	ev.Reply = make(chan error, 1)
	select {
	case s.events <- ev:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	s.touch()

	select {
	case err := <-ev.Reply:
		return err
	case <-s.done:
		select {
		case err := <-ev.Reply:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Toggle flips one contour.
func (s *Session) Toggle(ctx context.Context, id int) error {
	return s.Send(ctx, selection.Event{Kind: selection.Toggle, ID: id})
}

// Set forces one contour on or off.
func (s *Session) Set(ctx context.Context, id int, active bool) error {
	return s.Send(ctx, selection.Event{Kind: selection.Set, ID: id, Active: active})
}

// Commit ends the session and returns the id of the conversion job queued
// with the final selection.
func (s *Session) Commit(ctx context.Context) (string, error) {
	if err := s.Send(ctx, selection.Event{Kind: selection.Commit}); err != nil {
		return "", err
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID, s.err
}

// Discard ends the session without queueing a job.
func (s *Session) Discard(ctx context.Context) error {
	if err := s.Send(ctx, selection.Event{Kind: selection.Discard}); err != nil {
		return err
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the session stops accepting events.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) touch() {
	s.mu.Lock()
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// ContourInfo describes one traced contour for the selection UI.
type ContourInfo struct {
	ID        int     `json:"id"`
	Parent    int     `json:"parent"`
	Depth     int     `json:"depth"`
	Points    int     `json:"points"`
	Area      float64 `json:"area"`
	Perimeter float64 `json:"perimeter"`
	Active    bool    `json:"active"`
	Filter    string  `json:"filter"`
}

// SessionSnapshot is a JSON-safe copy of session state.
type SessionSnapshot struct {
	ID       string          `json:"session_id"`
	Status   SessionStatus   `json:"status"`
	Filename string          `json:"filename"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Formats  []export.Format `json:"formats"`
	Params   Params          `json:"params"`
	JobID    string          `json:"job_id,omitempty"`
	Error    string          `json:"error,omitempty"`
	Active   int             `json:"active"`
	Contours []ContourInfo   `json:"contours"`
}

// Snapshot returns the contour list with the current selection.
func (s *Session) Snapshot() SessionSnapshot {
	state := s.sel.Snapshot()

	contours := make([]ContourInfo, 0, s.forest.Len())
	for i := range s.forest.Nodes {
		n := s.forest.Node(i)
		contours = append(contours, ContourInfo{
			ID:        n.ID,
			Parent:    n.Parent,
			Depth:     s.forest.Depth(i),
			Points:    len(n.Points),
			Area:      n.Area,
			Perimeter: n.Perimeter,
			Active:    state.Active(i),
			Filter:    s.filter.Reasons[i].String(),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := SessionSnapshot{
		ID:       s.ID,
		Status:   s.status,
		Filename: s.Filename,
		Width:    s.forest.Width,
		Height:   s.forest.Height,
		Formats:  append([]export.Format(nil), s.Formats...),
		Params:   s.Params,
		JobID:    s.jobID,
		Active:   state.Count(),
		Contours: contours,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// SessionStore holds open and recently closed sessions.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

func (s *SessionStore) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *SessionStore) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// Len returns the number of held sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup expires sessions idle for longer than the TTL.
func (s *SessionStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, sess := range s.sessions {
		if now.Sub(sess.idleSince()) > s.ttl {
			if sess.cancel != nil {
				sess.cancel()
			}
			delete(s.sessions, id)
		}
	}
}
