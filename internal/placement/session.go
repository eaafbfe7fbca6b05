// Package placement tracks an interactive design placement: the operator
// clicks a point in the camera image, reviews the preview, then confirms or
// cancels.
package placement

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"laser-align/internal/alignment"
	"laser-align/internal/monitoring"
	"laser-align/pkg/geometry"

	"github.com/google/uuid"
)

// State is the placement lifecycle state.
type State int

const (
	Idle State = iota
	Previewing
	Confirmed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Previewing:
		return "previewing"
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == Confirmed || s == Cancelled
}

// ErrInvalidTransition is returned for an operation the current state does
// not allow.
var ErrInvalidTransition = errors.New("invalid placement transition")

// EventType identifies session events.
type EventType int

const (
	EventPreview EventType = iota
	EventConfirmed
	EventCancelled
)

// EventListener is called with the current placement (nil on cancel).
type EventListener func(res *alignment.Result)

// Session is one placement of a fixed-size design on one aligned image.
type Session struct {
	mu sync.RWMutex

	id        uuid.UUID
	mapper    *alignment.Mapper
	sizeMM    geometry.Size
	imageSize image.Point
	state     State
	current   *alignment.Result

	listeners map[EventType][]EventListener
}

// NewSession starts a session in Idle. The mapper must already hold a
// homography.
func NewSession(m *alignment.Mapper, designSizeMM geometry.Size, imageSize image.Point) (*Session, error) {
	if m == nil {
		return nil, alignment.ErrNoHomography
	}
	if _, err := m.Homography(); err != nil {
		return nil, err
	}
	if designSizeMM.Width <= 0 || designSizeMM.Height <= 0 {
		return nil, fmt.Errorf("design size must be positive, got %gx%g mm",
			designSizeMM.Width, designSizeMM.Height)
	}
	return &Session{
		id:        uuid.New(),
		mapper:    m,
		sizeMM:    designSizeMM,
		imageSize: imageSize,
		listeners: make(map[EventType][]EventListener),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Current returns the placement being previewed or confirmed.
func (s *Session) Current() (*alignment.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != nil
}

// On registers a listener for event.
func (s *Session) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

func (s *Session) emit(event EventType, res *alignment.Result) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(res)
	}
}

// Select centres the design on the clicked pixel and moves to Previewing.
// Selecting again while previewing replaces the placement.
func (s *Session) Select(px geometry.Point2D) (*alignment.Result, error) {
	s.mu.Lock()
	if s.state.Terminal() {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: select while %s", ErrInvalidTransition, st)
	}

	centre, err := s.mapper.ToMM(px)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	res, err := alignment.Calculate(s.mapper, geometry.CenteredRect(centre, s.sizeMM), s.imageSize)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.current = res
	s.state = Previewing
	s.mu.Unlock()

	monitoring.Logf("placement %s: design at (%.1f, %.1f) mm", s.id, centre.X, centre.Y)
	s.emit(EventPreview, res)
	return res, nil
}

// Confirm accepts the previewed placement.
func (s *Session) Confirm() (*alignment.Result, error) {
	s.mu.Lock()
	if s.state != Previewing {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: confirm while %s", ErrInvalidTransition, st)
	}
	s.state = Confirmed
	res := s.current
	s.mu.Unlock()

	s.emit(EventConfirmed, res)
	return res, nil
}

// Cancel abandons the session and drops any preview.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state.Terminal() {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cancel while %s", ErrInvalidTransition, st)
	}
	s.state = Cancelled
	s.current = nil
	s.mu.Unlock()

	s.emit(EventCancelled, nil)
	return nil
}
