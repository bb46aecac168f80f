package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/lancao008/google-pay/iap"
)

var ErrClosed = errors.New("billing service connection closed")

// Binder hands out connections to an in-memory Service.
type Binder struct {
	mu sync.Mutex

	svc     *Service
	bindErr error
	open    int
	binds   int
}

func NewBinder(svc *Service) *Binder {
	return &Binder{svc: svc}
}

// FailBind makes later binds fail with err. Use iap.ErrNoProvider to simulate
// a device without a billing service.
func (b *Binder) FailBind(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bindErr = err
}

// Open returns the number of connections that have not been closed.
func (b *Binder) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.open
}

func (b *Binder) Binds() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.binds
}

func (b *Binder) Bind(_ context.Context) (iap.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.binds++
	if b.bindErr != nil {
		return nil, b.bindErr
	}

	b.open++
	return &connection{binder: b, svc: b.svc}, nil
}

func (b *Binder) release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.open--
}

type connection struct {
	mu     sync.RWMutex
	binder *Binder
	svc    *Service
	closed bool
}

func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.binder.release()
	return nil
}

func (c *connection) service() (*Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.svc, nil
}

func (c *connection) IsBillingSupported(ctx context.Context, apiVersion int, packageName string, itemType iap.ItemType) (iap.ResponseCode, error) {
	svc, err := c.service()
	if err != nil {
		return 0, err
	}
	return svc.IsBillingSupported(ctx, apiVersion, packageName, itemType)
}

func (c *connection) GetBuyIntent(ctx context.Context, apiVersion int, packageName, sku string, itemType iap.ItemType, developerPayload string) (*iap.BuyIntentResponse, error) {
	svc, err := c.service()
	if err != nil {
		return nil, err
	}
	return svc.GetBuyIntent(ctx, apiVersion, packageName, sku, itemType, developerPayload)
}

func (c *connection) GetPurchases(ctx context.Context, apiVersion int, packageName string, itemType iap.ItemType, continuationToken string) (*iap.PurchasesResponse, error) {
	svc, err := c.service()
	if err != nil {
		return nil, err
	}
	return svc.GetPurchases(ctx, apiVersion, packageName, itemType, continuationToken)
}

func (c *connection) GetSkuDetails(ctx context.Context, apiVersion int, packageName string, itemType iap.ItemType, skus []string) (*iap.SkuDetailsResponse, error) {
	svc, err := c.service()
	if err != nil {
		return nil, err
	}
	return svc.GetSkuDetails(ctx, apiVersion, packageName, itemType, skus)
}

func (c *connection) ConsumePurchase(ctx context.Context, apiVersion int, packageName, token string) (iap.ResponseCode, error) {
	svc, err := c.service()
	if err != nil {
		return 0, err
	}
	return svc.ConsumePurchase(ctx, apiVersion, packageName, token)
}
