package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
)

func runInventoryTests(t *testing.T, env Env, teardown func()) {
	for _, tf := range []func(t *testing.T, env Env){
		testInventory_Empty,
		testInventory_OwnedItems,
		testInventory_VerificationFailed,
		testInventory_Pagination,
		testInventory_SkuDetails,
		testInventory_NoSkusToQuery,
		testInventory_FailFast,
		testInventory_SkuDetailsFailure,
		testInventory_RemoteFailure,
		testInventory_MissingToken,
		testInventory_SubscriptionsUnsupported,
		testInventory_Async,
	} {
		stockCatalog(env.Service)
		tf(t, env)
		teardown()
	}
}

func grant(t *testing.T, env Env, skus ...string) {
	for _, sku := range skus {
		_, err := env.Service.Grant(sku, "")
		require.NoError(t, err)
	}
}

func testInventory_Empty(t *testing.T, env Env) {
	session := setUp(t, env)

	inv, err := session.QueryInventory(context.Background(), false, nil, nil)
	require.NoError(t, err)
	require.Empty(t, inv.AllOwnedSkus())
	require.Empty(t, inv.AllPurchases())
	require.Equal(t, 0, env.Service.Calls(memory.MethodGetSkuDetails))
}

func testInventory_OwnedItems(t *testing.T, env Env) {
	grant(t, env, SkuPremium, SkuGas, SkuInfiniteGas)
	session := setUp(t, env)

	inv, err := session.QueryInventory(context.Background(), false, nil, nil)
	require.NoError(t, err)

	require.Equal(t, []string{SkuGas, SkuPremium}, inv.OwnedSkus(iap.ItemTypeInApp))
	require.Equal(t, []string{SkuInfiniteGas}, inv.OwnedSkus(iap.ItemTypeSubs))
	require.Equal(t, []string{SkuGas, SkuInfiniteGas, SkuPremium}, inv.AllOwnedSkus())

	gas := inv.Purchase(SkuGas)
	require.NotNil(t, gas)
	require.Equal(t, iap.ItemTypeInApp, gas.ItemType)
	require.NotEmpty(t, gas.Token)

	subs := inv.Purchase(SkuInfiniteGas)
	require.NotNil(t, subs)
	require.Equal(t, iap.ItemTypeSubs, subs.ItemType)

	require.False(t, inv.HasDetails(SkuGas))
	require.Equal(t, 2, env.Service.Calls(memory.MethodGetPurchases))
}

func testInventory_VerificationFailed(t *testing.T, env Env) {
	grant(t, env, SkuGas, SkuPremium)
	require.NoError(t, env.Service.Tamper(SkuPremium))

	session := setUp(t, env)

	inv, err := session.QueryInventory(context.Background(), false, nil, nil)
	require.Error(t, err)
	require.Equal(t, iap.ErrorVerificationFailed, iap.ResponseCodeOf(err))

	require.NotNil(t, inv)
	require.True(t, inv.HasPurchase(SkuGas))
	require.False(t, inv.HasPurchase(SkuPremium))

	// Subscriptions are not queried once owned items failed.
	require.Equal(t, 1, env.Service.Calls(memory.MethodGetPurchases))
}

func testInventory_Pagination(t *testing.T, env Env) {
	env.Service.SetSupported(iap.ItemTypeSubs, false)
	env.Service.SetPageSize(2)

	skus := []string{"a", "b", "c", "d", "e"}
	for _, sku := range skus {
		env.Service.AddProduct(memory.Product{SKU: sku, ItemType: iap.ItemTypeInApp, Title: sku})
	}
	grant(t, env, skus...)

	session := setUp(t, env)

	inv, err := session.QueryInventory(context.Background(), false, nil, nil)
	require.NoError(t, err)
	require.Equal(t, skus, inv.AllOwnedSkus())
	require.Equal(t, 3, env.Service.Calls(memory.MethodGetPurchases))
}

func testInventory_SkuDetails(t *testing.T, env Env) {
	grant(t, env, SkuGas, SkuInfiniteGas)
	session := setUp(t, env)

	inv, err := session.QueryInventory(context.Background(), true, []string{SkuUnlisted}, []string{SkuInfiniteGas})
	require.NoError(t, err)

	for _, sku := range []string{SkuGas, SkuUnlisted, SkuInfiniteGas} {
		require.True(t, inv.HasDetails(sku), sku)
	}
	require.False(t, inv.HasDetails(SkuPremium))
	require.False(t, inv.HasPurchase(SkuUnlisted))

	gas := inv.SkuDetails(SkuGas)
	require.Equal(t, iap.ItemTypeInApp, gas.ItemType)
	require.Equal(t, "Gas", gas.Title)
	require.Equal(t, "$0.99", gas.Price)
	require.Equal(t, "USD", gas.PriceCurrencyCode)
	require.True(t, decimal.RequireFromString("0.99").Equal(gas.PriceAmount()))

	subs := inv.SkuDetails(SkuInfiniteGas)
	require.Equal(t, iap.ItemTypeSubs, subs.ItemType)
	require.True(t, decimal.RequireFromString("2.99").Equal(subs.PriceAmount()))

	require.Equal(t, 2, env.Service.Calls(memory.MethodGetSkuDetails))
}

func testInventory_NoSkusToQuery(t *testing.T, env Env) {
	session := setUp(t, env)

	inv, err := session.QueryInventory(context.Background(), true, nil, nil)
	require.NoError(t, err)
	require.Empty(t, inv.AllOwnedSkus())
	require.Equal(t, 0, env.Service.Calls(memory.MethodGetSkuDetails))
}

func testInventory_FailFast(t *testing.T, env Env) {
	grant(t, env, SkuGas)
	session := setUp(t, env)
	env.Service.FailWith(memory.MethodGetPurchases, iap.ResponseError)

	inv, err := session.QueryInventory(context.Background(), true, nil, nil)
	require.Nil(t, inv)
	require.Equal(t, iap.ResponseError, iap.ResponseCodeOf(err))
	require.Equal(t, 1, env.Service.Calls(memory.MethodGetPurchases))
	require.Equal(t, 0, env.Service.Calls(memory.MethodGetSkuDetails))
}

func testInventory_SkuDetailsFailure(t *testing.T, env Env) {
	grant(t, env, SkuGas)
	session := setUp(t, env)
	env.Service.FailWith(memory.MethodGetSkuDetails, iap.ResponseError)

	inv, err := session.QueryInventory(context.Background(), true, nil, nil)
	require.Nil(t, inv)
	require.Equal(t, iap.ResponseError, iap.ResponseCodeOf(err))
}

func testInventory_RemoteFailure(t *testing.T, env Env) {
	session := setUp(t, env)
	env.Service.BreakChannel(memory.MethodGetPurchases, errors.New("binder died"))

	inv, err := session.QueryInventory(context.Background(), false, nil, nil)
	require.Nil(t, inv)
	require.Equal(t, iap.ErrorRemoteException, iap.ResponseCodeOf(err))
}

func testInventory_MissingToken(t *testing.T, env Env) {
	grant(t, env, SkuGas)
	require.NoError(t, env.Service.RevokeToken(SkuGas))

	session := setUp(t, env)

	inv, err := session.QueryInventory(context.Background(), false, nil, nil)
	require.NoError(t, err)

	purchase := inv.Purchase(SkuGas)
	require.NotNil(t, purchase)
	require.Empty(t, purchase.Token)
}

func testInventory_SubscriptionsUnsupported(t *testing.T, env Env) {
	grant(t, env, SkuGas, SkuInfiniteGas)
	env.Service.SetSupported(iap.ItemTypeSubs, false)

	session := setUp(t, env)

	inv, err := session.QueryInventory(context.Background(), true, nil, []string{SkuInfiniteGas})
	require.NoError(t, err)
	require.Equal(t, []string{SkuGas}, inv.AllOwnedSkus())
	require.False(t, inv.HasDetails(SkuInfiniteGas))
	require.Equal(t, 1, env.Service.Calls(memory.MethodGetPurchases))
	require.Equal(t, 1, env.Service.Calls(memory.MethodGetSkuDetails))
}

func testInventory_Async(t *testing.T, env Env) {
	grant(t, env, SkuGas, SkuPremium)
	require.NoError(t, env.Service.Tamper(SkuGas))

	session := setUp(t, env)

	cb, wait := Await[*iap.Inventory](t)
	session.QueryInventoryAsync(context.Background(), false, nil, nil, cb)

	result, inv := wait()
	require.Equal(t, iap.ErrorVerificationFailed, result.Response)
	require.NotNil(t, inv)
	require.True(t, inv.HasPurchase(SkuPremium))
	require.False(t, inv.HasPurchase(SkuGas))
	require.False(t, session.State().Busy())

	env.Service.BreakChannel(memory.MethodGetPurchases, errors.New("binder died"))

	cb, wait = Await[*iap.Inventory](t)
	session.QueryInventoryAsync(context.Background(), false, nil, nil, cb)

	result, inv = wait()
	require.Equal(t, iap.ErrorRemoteException, result.Response)
	require.Nil(t, inv)
}
