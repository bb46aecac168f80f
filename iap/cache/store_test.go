package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
	"github.com/lancao008/google-pay/iap/tests"
)

func newService() (*memory.Service, string) {
	pub, priv := memory.MustGenerateKeyPair()
	svc := memory.NewService(tests.PackageName, priv)
	for _, sku := range []string{"a", "b", "c"} {
		svc.AddProduct(memory.Product{SKU: sku, ItemType: iap.ItemTypeInApp, Title: sku})
	}
	return svc, pub
}

func detailSkus(t *testing.T, resp *iap.SkuDetailsResponse) []string {
	var skus []string
	for _, data := range resp.DetailsList {
		details, err := iap.ParseSkuDetails(iap.ItemTypeInApp, data)
		require.NoError(t, err)
		skus = append(skus, details.SKU)
	}
	return skus
}

func TestCache_ForwardsMissesOnly(t *testing.T) {
	svc, _ := newService()
	c := NewSkuDetailsCache(zap.Must(zap.NewDevelopment()), svc, time.Minute)
	ctx := context.Background()

	resp, err := c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, iap.ResponseOK, resp.ResponseCode)
	require.Equal(t, []string{"a", "b"}, detailSkus(t, resp))
	require.Equal(t, 1, svc.Calls(memory.MethodGetSkuDetails))

	resp, err = c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, []string{"b", "a"})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, detailSkus(t, resp))
	require.Equal(t, 1, svc.Calls(memory.MethodGetSkuDetails))

	resp, err = c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, []string{"c", "a", "unknown"})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a"}, detailSkus(t, resp))
	require.Equal(t, 2, svc.Calls(memory.MethodGetSkuDetails))

	// Listings are cached per item type.
	resp, err = c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeSubs, []string{"a"})
	require.NoError(t, err)
	require.Empty(t, resp.DetailsList)
	require.Equal(t, 3, svc.Calls(memory.MethodGetSkuDetails))
}

func TestCache_FailuresNotCached(t *testing.T) {
	svc, _ := newService()
	c := NewSkuDetailsCache(zap.Must(zap.NewDevelopment()), svc, time.Minute)
	ctx := context.Background()

	svc.FailWith(memory.MethodGetSkuDetails, iap.ResponseError)
	resp, err := c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, []string{"a"})
	require.NoError(t, err)
	require.Equal(t, iap.ResponseError, resp.ResponseCode)

	svc.BreakChannel(memory.MethodGetSkuDetails, errors.New("binder died"))
	_, err = c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, []string{"a"})
	require.Error(t, err)

	svc.ClearFaults()
	resp, err = c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, []string{"a"})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, detailSkus(t, resp))
	require.Equal(t, 3, svc.Calls(memory.MethodGetSkuDetails))

	resp, err = c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, nil)
	require.NoError(t, err)
	require.Equal(t, iap.ResponseDeveloperError, resp.ResponseCode)
}

func TestCache_Expiry(t *testing.T) {
	svc, _ := newService()
	c := NewSkuDetailsCache(zap.Must(zap.NewDevelopment()), svc, 50*time.Millisecond)
	ctx := context.Background()

	_, err := c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, []string{"a"})
	require.NoError(t, err)

	// Reads within the TTL do not keep the entry alive.
	require.Eventually(t, func() bool {
		_, _ = c.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, []string{"a"})
		return svc.Calls(memory.MethodGetSkuDetails) > 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBinder_Session(t *testing.T) {
	svc, pub := newService()
	_, err := svc.Grant("a", "")
	require.NoError(t, err)

	log := zap.Must(zap.NewDevelopment())
	binder := NewBinder(log, memory.NewBinder(svc), time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		session := iap.NewSession(log, binder, iap.NewKeyVerifier(log, pub), tests.PackageName)

		cb, wait := tests.Await[bool](t)
		session.Setup(ctx, cb)
		result, _ := wait()
		require.True(t, result.IsSuccess(), result.Message)

		inv, err := session.QueryInventory(ctx, true, []string{"b"}, nil)
		require.NoError(t, err)
		require.True(t, inv.HasPurchase("a"))
		require.True(t, inv.HasDetails("a"))
		require.True(t, inv.HasDetails("b"))

		session.Dispose()
	}

	// The second session was served from the cache.
	require.Equal(t, 1, svc.Calls(memory.MethodGetSkuDetails))
}
