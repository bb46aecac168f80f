package cache

import (
	"context"
	"time"

	"github.com/ReneKroon/ttlcache"
	"go.uber.org/zap"

	"github.com/lancao008/google-pay/iap"
)

// Binder decorates every connection of binder with a SKU details cache. The
// cache outlives individual connections.
type Binder struct {
	log    *zap.Logger
	binder iap.Binder
	store  *ttlcache.Cache
}

func NewBinder(log *zap.Logger, binder iap.Binder, ttl time.Duration) *Binder {
	return &Binder{
		log:    log,
		binder: binder,
		store:  newStore(ttl),
	}
}

func (b *Binder) Bind(ctx context.Context) (iap.Connection, error) {
	conn, err := b.binder.Bind(ctx)
	if err != nil {
		return nil, err
	}

	return &connection{
		Cache: newCache(b.log, conn, b.store),
		conn:  conn,
	}, nil
}

type connection struct {
	*Cache
	conn iap.Connection
}

func (c *connection) Close() error {
	return c.conn.Close()
}
