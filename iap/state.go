package iap

import (
	"sync"

	"github.com/pkg/errors"
)

// Programming errors. A Session panics with one of these, wrapped with the
// offending operation, when it is used outside of its contract.
var (
	ErrAlreadySetUp    = errors.New("setup already started")
	ErrNotSetUp        = errors.New("setup not completed")
	ErrDisposed        = errors.New("session disposed")
	ErrAsyncInProgress = errors.New("another async operation is in progress")
)

type Phase uint8

const (
	PhaseUninitialized Phase = iota
	PhaseConnecting
	PhaseReady
	PhaseDisposed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseConnecting:
		return "connecting"
	case PhaseReady:
		return "ready"
	case PhaseDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// State is a snapshot of a Session's lifecycle.
type State struct {
	Phase                  Phase
	AsyncOperation         string
	SubscriptionsSupported bool
}

// Busy reports whether an asynchronous operation is outstanding.
func (s State) Busy() bool {
	return s.AsyncOperation != ""
}

type pendingPurchase struct {
	requestCode int
	sku         string
	itemType    ItemType
	callback    Callback[*Purchase]
}

// sessionState holds everything a Session mutates. All transitions happen
// under mu; nothing outside this file touches the fields.
type sessionState struct {
	mu sync.Mutex

	phase                  Phase
	asyncOperation         string
	subscriptionsSupported bool
	conn                   Connection
	pending                *pendingPurchase
}

func (s *sessionState) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Phase:                  s.phase,
		AsyncOperation:         s.asyncOperation,
		SubscriptionsSupported: s.subscriptionsSupported,
	}
}

func (s *sessionState) beginSetup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseUninitialized:
		s.phase = PhaseConnecting
		return nil
	case PhaseDisposed:
		return ErrDisposed
	default:
		return ErrAlreadySetUp
	}
}

// finishSetup publishes the bound connection. It fails if the session was
// disposed while connecting, in which case the caller owns conn.
func (s *sessionState) finishSetup(conn Connection, subscriptionsSupported bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseConnecting {
		return ErrDisposed
	}

	s.phase = PhaseReady
	s.conn = conn
	s.subscriptionsSupported = subscriptionsSupported
	return nil
}

// failSetup leaves the session permanently unusable.
func (s *sessionState) failSetup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseDisposed
}

func (s *sessionState) readyLocked() error {
	switch s.phase {
	case PhaseReady:
		return nil
	case PhaseDisposed:
		return ErrDisposed
	default:
		return ErrNotSetUp
	}
}

// ready returns the bound connection for a blocking operation.
func (s *sessionState) ready() (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(); err != nil {
		return nil, err
	}
	return s.conn, nil
}

// startAsync marks operation as the single outstanding asynchronous
// operation.
func (s *sessionState) startAsync(operation string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(); err != nil {
		return nil, err
	}
	if s.asyncOperation != "" {
		return nil, errors.Wrapf(ErrAsyncInProgress, "%s is running", s.asyncOperation)
	}

	s.asyncOperation = operation
	return s.conn, nil
}

func (s *sessionState) endAsync() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	operation := s.asyncOperation
	s.asyncOperation = ""
	return operation
}

func (s *sessionState) rememberPurchase(p *pendingPurchase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = p
}

// takePurchase claims the pending purchase flow for requestCode and ends the
// asynchronous operation it started. A matching flow on a session that is no
// longer ready is claimed but reported with the phase error.
func (s *sessionState) takePurchase(requestCode int) (*pendingPurchase, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || s.pending.requestCode != requestCode {
		return nil, false, nil
	}

	p := s.pending
	s.pending = nil
	s.asyncOperation = ""
	return p, true, s.readyLocked()
}

// dispose moves the session to its terminal phase and hands back the
// connection to release. Only the first call reports true.
func (s *sessionState) dispose() (Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseDisposed {
		return nil, false
	}

	// The pending flow is kept so a late HandleResult for it fails loudly.
	conn := s.conn
	s.phase = PhaseDisposed
	s.conn = nil
	return conn, true
}
