package rpc

import (
	"context"
	"sync"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lancao008/google-pay/iap"
)

var ErrClosed = errors.New("billing service connection closed")

// Binder dials the billing service at target. An empty target means no
// provider is installed.
type Binder struct {
	log    *zap.Logger
	target string
	opts   []grpc.DialOption
}

func NewBinder(log *zap.Logger, target string, opts ...grpc.DialOption) *Binder {
	return &Binder{
		log:    log,
		target: target,
		opts:   opts,
	}
}

func (b *Binder) Bind(_ context.Context) (iap.Connection, error) {
	if b.target == "" {
		return nil, iap.ErrNoProvider
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(
			grpc_zap.UnaryClientInterceptor(b.log),
		)),
	}, b.opts...)

	cc, err := grpc.NewClient(b.target, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create client for %s", b.target)
	}

	b.log.Debug("Bound billing service", zap.String("target", b.target))
	return newConnection(cc, cc.Close), nil
}

// ConnBinder binds to a billing service over an existing client connection,
// which it does not own.
type ConnBinder struct {
	cc grpc.ClientConnInterface
}

func NewConnBinder(cc grpc.ClientConnInterface) *ConnBinder {
	return &ConnBinder{cc: cc}
}

func (b *ConnBinder) Bind(_ context.Context) (iap.Connection, error) {
	return newConnection(b.cc, func() error { return nil }), nil
}

type connection struct {
	*Client

	mu      sync.Mutex
	closed  bool
	conn    *closableConn
	release func() error
}

func newConnection(cc grpc.ClientConnInterface, release func() error) *connection {
	conn := &closableConn{cc: cc}
	return &connection{
		Client:  NewClient(conn),
		conn:    conn,
		release: release,
	}
}

func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.conn.close()
	return c.release()
}

// closableConn rejects calls once its connection was closed, even when the
// underlying client connection is shared.
type closableConn struct {
	cc grpc.ClientConnInterface

	mu     sync.RWMutex
	closed bool
}

func (c *closableConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}

func (c *closableConn) Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	return c.cc.Invoke(ctx, method, args, reply, opts...)
}

func (c *closableConn) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.Errorf("billing service has no streaming method %s", method)
}
