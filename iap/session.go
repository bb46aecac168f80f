package iap

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Callback receives the outcome of an operation. Every operation that takes
// a Callback invokes it exactly once.
type Callback[T any] func(result Result, value T)

// once guards the exactly-once postcondition of a Callback.
func once[T any](log *zap.Logger, operation string, cb Callback[T]) Callback[T] {
	var called sync.Once
	return func(result Result, value T) {
		fired := false
		called.Do(func() {
			fired = true
			if cb != nil {
				cb(result, value)
			}
		})
		if !fired {
			log.DPanic("Callback invoked more than once", zap.String("operation", operation))
		}
	}
}

type Option func(s *Session)

// WithAPIVersion overrides the billing API version sent with every request.
func WithAPIVersion(version int) Option {
	return func(s *Session) {
		s.apiVersion = version
	}
}

// WithDispatcher sets the execution context that asynchronous operations
// deliver their callbacks on. By default callbacks run on the background
// goroutine that performed the operation.
func WithDispatcher(dispatch func(func())) Option {
	return func(s *Session) {
		s.dispatch = dispatch
	}
}

// Session is a client of the billing service. It must be set up before use,
// runs at most one asynchronous operation at a time, and is disposed when no
// longer needed.
type Session struct {
	log         *zap.Logger
	binder      Binder
	verifier    Verifier
	packageName string
	apiVersion  int
	dispatch    func(func())

	state sessionState
}

func NewSession(log *zap.Logger, binder Binder, verifier Verifier, packageName string, opts ...Option) *Session {
	s := &Session{
		log:         log.With(zap.String("package_name", packageName)),
		binder:      binder,
		verifier:    verifier,
		packageName: packageName,
		apiVersion:  APIVersion,
		dispatch:    func(f func()) { f() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Setup binds to the billing service in the background and checks that it
// supports in-app purchases. Subscription support is probed as well but does
// not affect the outcome; the callback receives whether it is available.
func (s *Session) Setup(ctx context.Context, cb Callback[bool]) {
	if err := s.state.beginSetup(); err != nil {
		s.fail("setup", err)
	}

	cb = once(s.log, "setup", cb)
	ctx = context.WithoutCancel(ctx)

	go func() {
		result, supportsSubs := s.setup(ctx)
		s.dispatch(func() {
			cb(result, supportsSubs)
		})
	}()
}

func (s *Session) setup(ctx context.Context) (Result, bool) {
	s.log.Debug("Starting in-app billing setup")

	conn, err := s.binder.Bind(ctx)
	if errors.Is(err, ErrNoProvider) {
		s.state.failSetup()
		return NewResult(ResponseBillingUnavailable, "Billing service unavailable on device."), false
	} else if err != nil {
		s.log.Warn("Failed to bind billing service", zap.Error(err))
		s.state.failSetup()
		return NewResult(ErrorRemoteException, "RemoteException while setting up in-app billing."), false
	}

	s.log.Debug("Checking for in-app billing 3 support")
	response, err := conn.IsBillingSupported(ctx, s.apiVersion, s.packageName, ItemTypeInApp)
	if err != nil {
		s.log.Warn("Failed to check billing support", zap.Error(err))
		s.abortSetup(conn)
		return NewResult(ErrorRemoteException, "RemoteException while setting up in-app billing."), false
	}
	if response != ResponseOK {
		s.abortSetup(conn)
		return NewResult(response, "Error checking for billing v3 support."), false
	}

	supportsSubs := false
	response, err = conn.IsBillingSupported(ctx, s.apiVersion, s.packageName, ItemTypeSubs)
	if err != nil {
		s.log.Warn("Failed to check subscription support", zap.Error(err))
	} else if response == ResponseOK {
		supportsSubs = true
	} else {
		s.log.Debug("Subscriptions not available", zap.Stringer("response", response))
	}

	if err := s.state.finishSetup(conn, supportsSubs); err != nil {
		s.log.Debug("Session disposed during setup")
		s.closeConn(conn)
		return NewResult(ErrorRemoteException, "Session disposed during setup."), false
	}

	s.log.Debug("In-app billing setup successful", zap.Bool("subscriptions_supported", supportsSubs))
	return NewResult(ResponseOK, "Setup successful."), supportsSubs
}

func (s *Session) abortSetup(conn Connection) {
	s.state.failSetup()
	s.closeConn(conn)
}

func (s *Session) closeConn(conn Connection) {
	if err := conn.Close(); err != nil {
		s.log.Warn("Failed to release billing service", zap.Error(err))
	}
}

// Dispose releases the billing service. Only the first call has an effect;
// the session cannot be used afterwards.
func (s *Session) Dispose() {
	conn, ok := s.state.dispose()
	if !ok {
		return
	}

	s.log.Debug("Disposing session")
	if conn != nil {
		s.closeConn(conn)
	}
}

func (s *Session) SubscriptionsSupported() bool {
	return s.state.snapshot().SubscriptionsSupported
}

func (s *Session) State() State {
	return s.state.snapshot()
}

// fail aborts an operation that violated the session contract.
func (s *Session) fail(operation string, err error) {
	s.log.Error("Illegal session use", zap.String("operation", operation), zap.Error(err))
	panic(errors.Wrapf(err, "iap: cannot perform %s", operation))
}

func (s *Session) mustBeReady(operation string) Connection {
	conn, err := s.state.ready()
	if err != nil {
		s.fail(operation, err)
	}
	return conn
}

func (s *Session) mustStartAsync(operation string) Connection {
	conn, err := s.state.startAsync(operation)
	if err != nil {
		s.fail(operation, err)
	}

	s.log.Debug("Starting async operation", zap.String("operation", operation))
	return conn
}

func (s *Session) endAsync() {
	operation := s.state.endAsync()
	s.log.Debug("Ending async operation", zap.String("operation", operation))
}

// runAsync performs work on a background goroutine and delivers its result
// through the dispatcher. The single flight flag is cleared before the
// callback fires.
func runAsync[T any](ctx context.Context, s *Session, operation string, cb Callback[T], work func(ctx context.Context, conn Connection) (Result, T)) {
	conn := s.mustStartAsync(operation)
	cb = once(s.log, operation, cb)
	ctx = context.WithoutCancel(ctx)

	go func() {
		result, value := work(ctx, conn)
		s.endAsync()
		s.dispatch(func() {
			cb(result, value)
		})
	}()
}
