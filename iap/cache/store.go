package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/ReneKroon/ttlcache"
	"go.uber.org/zap"

	"github.com/lancao008/google-pay/iap"
)

// Cache serves GetSkuDetails from memory and forwards only the SKUs it has
// not seen within the TTL. Failed lookups are never cached.
type Cache struct {
	log   *zap.Logger
	svc   iap.Service
	cache *ttlcache.Cache
}

func NewSkuDetailsCache(log *zap.Logger, svc iap.Service, ttl time.Duration) iap.Service {
	return newCache(log, svc, newStore(ttl))
}

func newStore(ttl time.Duration) *ttlcache.Cache {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	// Listings must be refreshed once per TTL no matter how often they are read.
	cache.SkipTtlExtensionOnHit(true)
	return cache
}

func newCache(log *zap.Logger, svc iap.Service, store *ttlcache.Cache) *Cache {
	return &Cache{
		log:   log,
		svc:   svc,
		cache: store,
	}
}

func (c *Cache) GetSkuDetails(ctx context.Context, apiVersion int, packageName string, itemType iap.ItemType, skus []string) (*iap.SkuDetailsResponse, error) {
	cached := make(map[string]string, len(skus))
	var missing []string
	for _, sku := range skus {
		if details, ok := c.cache.Get(toCacheKey(apiVersion, packageName, itemType, sku)); ok {
			cached[sku] = details.(string)
		} else {
			missing = append(missing, sku)
		}
	}

	if len(skus) > 0 && len(missing) == 0 {
		c.log.Debug("Serving sku details from cache", zap.Int("skus", len(skus)))
		return &iap.SkuDetailsResponse{
			ResponseCode: iap.ResponseOK,
			DetailsList:  ordered(skus, cached),
		}, nil
	}

	resp, err := c.svc.GetSkuDetails(ctx, apiVersion, packageName, itemType, missing)
	if err != nil {
		return nil, err
	}
	if resp.ResponseCode != iap.ResponseOK || resp.DetailsList == nil {
		return resp, nil
	}

	for _, data := range resp.DetailsList {
		details, err := iap.ParseSkuDetails(itemType, data)
		if err != nil {
			// Let the session report the malformed listing.
			return resp, nil
		}

		c.cache.Set(toCacheKey(apiVersion, packageName, itemType, details.SKU), data)
		cached[details.SKU] = data
	}

	return &iap.SkuDetailsResponse{
		ResponseCode: iap.ResponseOK,
		DetailsList:  ordered(skus, cached),
	}, nil
}

func (c *Cache) IsBillingSupported(ctx context.Context, apiVersion int, packageName string, itemType iap.ItemType) (iap.ResponseCode, error) {
	return c.svc.IsBillingSupported(ctx, apiVersion, packageName, itemType)
}

func (c *Cache) GetBuyIntent(ctx context.Context, apiVersion int, packageName, sku string, itemType iap.ItemType, developerPayload string) (*iap.BuyIntentResponse, error) {
	return c.svc.GetBuyIntent(ctx, apiVersion, packageName, sku, itemType, developerPayload)
}

func (c *Cache) GetPurchases(ctx context.Context, apiVersion int, packageName string, itemType iap.ItemType, continuationToken string) (*iap.PurchasesResponse, error) {
	return c.svc.GetPurchases(ctx, apiVersion, packageName, itemType, continuationToken)
}

func (c *Cache) ConsumePurchase(ctx context.Context, apiVersion int, packageName, token string) (iap.ResponseCode, error) {
	return c.svc.ConsumePurchase(ctx, apiVersion, packageName, token)
}

// ordered returns the known details of skus in request order, once per SKU.
func ordered(skus []string, details map[string]string) []string {
	list := make([]string, 0, len(details))
	seen := make(map[string]bool, len(skus))
	for _, sku := range skus {
		data, ok := details[sku]
		if !ok || seen[sku] {
			continue
		}
		seen[sku] = true
		list = append(list, data)
	}
	return list
}

func toCacheKey(apiVersion int, packageName string, itemType iap.ItemType, sku string) string {
	return strconv.Itoa(apiVersion) + "/" + packageName + "/" + string(itemType) + "/" + sku
}
