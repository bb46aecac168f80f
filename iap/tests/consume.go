package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
)

func runConsumeTests(t *testing.T, env Env, teardown func()) {
	for _, tf := range []func(t *testing.T, env Env){
		testConsume_Success,
		testConsume_Subscription,
		testConsume_MissingToken,
		testConsume_NotOwned,
		testConsume_RemoteFailure,
		testConsume_Async,
		testConsume_Multi,
		testConsume_MultiEmpty,
	} {
		stockCatalog(env.Service)
		tf(t, env)
		teardown()
	}
}

func ownedPurchase(t *testing.T, env Env, session *iap.Session, sku string) *iap.Purchase {
	_, err := env.Service.Grant(sku, "")
	require.NoError(t, err)

	inv, err := session.QueryInventory(context.Background(), false, nil, nil)
	require.NoError(t, err)

	purchase := inv.Purchase(sku)
	require.NotNil(t, purchase)
	return purchase
}

func testConsume_Success(t *testing.T, env Env) {
	session := setUp(t, env)
	purchase := ownedPurchase(t, env, session, SkuGas)

	require.NoError(t, session.Consume(context.Background(), purchase))
	require.False(t, env.Service.Owns(SkuGas))

	inv, err := session.QueryInventory(context.Background(), false, nil, nil)
	require.NoError(t, err)
	require.False(t, inv.HasPurchase(SkuGas))
}

func testConsume_Subscription(t *testing.T, env Env) {
	session := setUp(t, env)
	purchase := ownedPurchase(t, env, session, SkuInfiniteGas)

	err := session.Consume(context.Background(), purchase)
	require.Equal(t, iap.ErrorInvalidConsumption, iap.ResponseCodeOf(err))

	// Rejected regardless of its token.
	err = session.Consume(context.Background(), &iap.Purchase{ItemType: iap.ItemTypeSubs, SKU: "sub_x"})
	require.Equal(t, iap.ErrorInvalidConsumption, iap.ResponseCodeOf(err))

	require.Equal(t, 0, env.Service.Calls(memory.MethodConsumePurchase))
	require.True(t, env.Service.Owns(SkuInfiniteGas))
}

func testConsume_MissingToken(t *testing.T, env Env) {
	session := setUp(t, env)

	err := session.Consume(context.Background(), &iap.Purchase{ItemType: iap.ItemTypeInApp, SKU: SkuGas})
	require.Equal(t, iap.ErrorMissingToken, iap.ResponseCodeOf(err))
	require.Equal(t, 0, env.Service.Calls(memory.MethodConsumePurchase))
}

func testConsume_NotOwned(t *testing.T, env Env) {
	session := setUp(t, env)
	purchase := ownedPurchase(t, env, session, SkuGas)

	require.NoError(t, session.Consume(context.Background(), purchase))

	err := session.Consume(context.Background(), purchase)
	require.Equal(t, iap.ResponseItemNotOwned, iap.ResponseCodeOf(err))
}

func testConsume_RemoteFailure(t *testing.T, env Env) {
	session := setUp(t, env)
	purchase := ownedPurchase(t, env, session, SkuGas)
	env.Service.BreakChannel(memory.MethodConsumePurchase, errors.New("binder died"))

	err := session.Consume(context.Background(), purchase)
	require.Equal(t, iap.ErrorRemoteException, iap.ResponseCodeOf(err))
	require.True(t, env.Service.Owns(SkuGas))
}

func testConsume_Async(t *testing.T, env Env) {
	session := setUp(t, env)
	purchase := ownedPurchase(t, env, session, SkuGas)

	cb, wait := Await[*iap.Purchase](t)
	session.ConsumeAsync(context.Background(), purchase, cb)

	result, consumed := wait()
	require.True(t, result.IsSuccess(), result.Message)
	require.Same(t, purchase, consumed)
	require.False(t, env.Service.Owns(SkuGas))
	require.False(t, session.State().Busy())

	cb, wait = Await[*iap.Purchase](t)
	session.ConsumeAsync(context.Background(), purchase, cb)

	result, consumed = wait()
	require.Equal(t, iap.ResponseItemNotOwned, result.Response)
	require.Same(t, purchase, consumed)
}

func testConsume_Multi(t *testing.T, env Env) {
	session := setUp(t, env)
	gas := ownedPurchase(t, env, session, SkuGas)
	premium := ownedPurchase(t, env, session, SkuPremium)
	subs := ownedPurchase(t, env, session, SkuInfiniteGas)

	require.NoError(t, session.Consume(context.Background(), premium))

	cb, wait := Await[[]iap.Consumption](t)
	session.ConsumeMultiAsync(context.Background(), []*iap.Purchase{gas, premium, subs}, cb)

	result, consumed := wait()
	require.Equal(t, iap.ResponseItemNotOwned, result.Response)
	require.Len(t, consumed, 3)

	require.Same(t, gas, consumed[0].Purchase)
	require.True(t, consumed[0].Result.IsSuccess())

	require.Same(t, premium, consumed[1].Purchase)
	require.Equal(t, iap.ResponseItemNotOwned, consumed[1].Result.Response)

	require.Same(t, subs, consumed[2].Purchase)
	require.Equal(t, iap.ErrorInvalidConsumption, consumed[2].Result.Response)

	require.False(t, env.Service.Owns(SkuGas))
	require.True(t, env.Service.Owns(SkuInfiniteGas))
	require.False(t, session.State().Busy())
}

func testConsume_MultiEmpty(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[[]iap.Consumption](t)
	session.ConsumeMultiAsync(context.Background(), nil, cb)

	result, consumed := wait()
	require.True(t, result.IsSuccess())
	require.Empty(t, consumed)
	require.Equal(t, 0, env.Service.Calls(memory.MethodConsumePurchase))
}
