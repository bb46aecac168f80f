package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
)

const (
	PackageName = "com.example.billing"

	SkuGas         = "gas"
	SkuPremium     = "premium"
	SkuInfiniteGas = "infinite_gas"
	SkuUnlisted    = "unlisted"

	callbackTimeout = 5 * time.Second
)

// Env is the billing service a suite runs against. Binder must hand out
// connections to Service.
type Env struct {
	Service   *memory.Service
	Binder    iap.Binder
	PublicKey string
}

// RunSessionTests runs the session suites against env.
func RunSessionTests(t *testing.T, env Env, teardown func()) {
	for _, tf := range []func(t *testing.T, env Env){
		testSetup_Success,
		testSetup_SubscriptionsUnsupported,
		testSetup_BillingUnsupported,
		testSetup_Twice,
		testSession_NotSetUp,
		testSession_Dispose,
		testSession_SingleFlight,
	} {
		stockCatalog(env.Service)
		tf(t, env)
		teardown()
	}

	runPurchaseTests(t, env, teardown)
	runInventoryTests(t, env, teardown)
	runConsumeTests(t, env, teardown)
}

func stockCatalog(svc *memory.Service) {
	svc.AddProduct(memory.Product{
		SKU:               SkuGas,
		ItemType:          iap.ItemTypeInApp,
		Title:             "Gas",
		Description:       "A tank of gas",
		Price:             "$0.99",
		PriceAmountMicros: 990_000,
		PriceCurrencyCode: "USD",
	})
	svc.AddProduct(memory.Product{
		SKU:               SkuPremium,
		ItemType:          iap.ItemTypeInApp,
		Title:             "Premium",
		Description:       "Premium upgrade",
		Price:             "$4.99",
		PriceAmountMicros: 4_990_000,
		PriceCurrencyCode: "USD",
	})
	svc.AddProduct(memory.Product{
		SKU:               SkuInfiniteGas,
		ItemType:          iap.ItemTypeSubs,
		Title:             "Infinite gas",
		Description:       "Monthly infinite gas",
		Price:             "$2.99",
		PriceAmountMicros: 2_990_000,
		PriceCurrencyCode: "USD",
	})
	svc.AddProduct(memory.Product{
		SKU:               SkuUnlisted,
		ItemType:          iap.ItemTypeInApp,
		Title:             "Unlisted",
		Price:             "$1.49",
		PriceAmountMicros: 1_490_000,
		PriceCurrencyCode: "USD",
	})
}

func newSession(env Env) *iap.Session {
	log := zap.Must(zap.NewDevelopment())
	return iap.NewSession(log, env.Binder, iap.NewKeyVerifier(log, env.PublicKey), PackageName)
}

// setUp returns a session that completed setup successfully.
func setUp(t *testing.T, env Env) *iap.Session {
	session := newSession(env)

	cb, wait := Await[bool](t)
	session.Setup(context.Background(), cb)
	result, _ := wait()
	require.True(t, result.IsSuccess(), result.Message)

	t.Cleanup(session.Dispose)
	return session
}

// Await returns a callback and a function that blocks until it was invoked.
func Await[T any](t *testing.T) (iap.Callback[T], func() (iap.Result, T)) {
	type call struct {
		result iap.Result
		value  T
	}

	calls := make(chan call, 2)
	cb := func(result iap.Result, value T) {
		calls <- call{result: result, value: value}
	}

	wait := func() (iap.Result, T) {
		select {
		case c := <-calls:
			return c.result, c.value
		case <-time.After(callbackTimeout):
			require.FailNow(t, "callback not invoked")
		}

		var zero T
		return iap.Result{}, zero
	}

	return cb, wait
}

// RequirePanicsWith asserts that f panics with an error matching target.
func RequirePanicsWith(t *testing.T, target error, f func()) {
	t.Helper()

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")

		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.ErrorIs(t, err, target)
	}()

	f()
}

func testSetup_Success(t *testing.T, env Env) {
	session := newSession(env)
	defer session.Dispose()

	require.Equal(t, iap.PhaseUninitialized, session.State().Phase)

	cb, wait := Await[bool](t)
	session.Setup(context.Background(), cb)

	result, subs := wait()
	require.True(t, result.IsSuccess())
	require.Equal(t, iap.ResponseOK, result.Response)
	require.True(t, subs)
	require.True(t, session.SubscriptionsSupported())

	state := session.State()
	require.Equal(t, iap.PhaseReady, state.Phase)
	require.False(t, state.Busy())
}

func testSetup_SubscriptionsUnsupported(t *testing.T, env Env) {
	env.Service.SetSupported(iap.ItemTypeSubs, false)

	session := newSession(env)
	defer session.Dispose()

	cb, wait := Await[bool](t)
	session.Setup(context.Background(), cb)

	result, subs := wait()
	require.True(t, result.IsSuccess())
	require.False(t, subs)
	require.False(t, session.SubscriptionsSupported())
	require.Equal(t, iap.PhaseReady, session.State().Phase)
}

func testSetup_BillingUnsupported(t *testing.T, env Env) {
	env.Service.SetSupported(iap.ItemTypeInApp, false)

	session := newSession(env)
	defer session.Dispose()

	cb, wait := Await[bool](t)
	session.Setup(context.Background(), cb)

	result, subs := wait()
	require.Equal(t, iap.ResponseBillingUnavailable, result.Response)
	require.False(t, subs)
	require.Equal(t, iap.PhaseDisposed, session.State().Phase)

	RequirePanicsWith(t, iap.ErrDisposed, func() {
		_, _ = session.QueryInventory(context.Background(), false, nil, nil)
	})
}

func testSetup_Twice(t *testing.T, env Env) {
	session := setUp(t, env)

	RequirePanicsWith(t, iap.ErrAlreadySetUp, func() {
		session.Setup(context.Background(), nil)
	})
}

func testSession_NotSetUp(t *testing.T, env Env) {
	session := newSession(env)
	defer session.Dispose()

	ctx := context.Background()
	purchase := &iap.Purchase{ItemType: iap.ItemTypeInApp, SKU: SkuGas, Token: "token"}

	RequirePanicsWith(t, iap.ErrNotSetUp, func() {
		_, _ = session.QueryInventory(ctx, false, nil, nil)
	})
	RequirePanicsWith(t, iap.ErrNotSetUp, func() {
		session.QueryInventoryAsync(ctx, false, nil, nil, nil)
	})
	RequirePanicsWith(t, iap.ErrNotSetUp, func() {
		_ = session.Consume(ctx, purchase)
	})
	RequirePanicsWith(t, iap.ErrNotSetUp, func() {
		session.ConsumeAsync(ctx, purchase, nil)
	})
	RequirePanicsWith(t, iap.ErrNotSetUp, func() {
		session.LaunchPurchaseFlow(ctx, memory.NewHost(), SkuGas, iap.ItemTypeInApp, 1, nil, "")
	})

	require.Equal(t, 0, env.Service.Calls(memory.MethodGetPurchases))
	require.Equal(t, 0, env.Service.Calls(memory.MethodConsumePurchase))
	require.Equal(t, 0, env.Service.Calls(memory.MethodGetBuyIntent))
}

func testSession_Dispose(t *testing.T, env Env) {
	session := setUp(t, env)
	ctx := context.Background()

	session.Dispose()
	session.Dispose()
	require.Equal(t, iap.PhaseDisposed, session.State().Phase)

	RequirePanicsWith(t, iap.ErrDisposed, func() {
		_, _ = session.QueryInventory(ctx, false, nil, nil)
	})
	RequirePanicsWith(t, iap.ErrDisposed, func() {
		session.ConsumeMultiAsync(ctx, nil, nil)
	})
	RequirePanicsWith(t, iap.ErrDisposed, func() {
		session.Setup(ctx, nil)
	})
}

func testSession_SingleFlight(t *testing.T, env Env) {
	session := setUp(t, env)
	host := memory.NewHost()
	ctx := context.Background()

	purchased, waitPurchase := Await[*iap.Purchase](t)
	session.LaunchPurchaseFlow(ctx, host, SkuGas, iap.ItemTypeInApp, 7, purchased, "payload")

	state := session.State()
	require.True(t, state.Busy())
	require.Equal(t, "launchPurchaseFlow", state.AsyncOperation)

	RequirePanicsWith(t, iap.ErrAsyncInProgress, func() {
		session.QueryInventoryAsync(ctx, false, nil, nil, nil)
	})
	RequirePanicsWith(t, iap.ErrAsyncInProgress, func() {
		session.ConsumeAsync(ctx, &iap.Purchase{ItemType: iap.ItemTypeInApp, Token: "token"}, nil)
	})
	RequirePanicsWith(t, iap.ErrAsyncInProgress, func() {
		session.LaunchPurchaseFlow(ctx, host, SkuPremium, iap.ItemTypeInApp, 8, nil, "")
	})
	require.Equal(t, 1, env.Service.Calls(memory.MethodGetBuyIntent))

	intent := host.Intent(7)
	require.NotNil(t, intent)

	data, err := env.Service.Approve(intent.Handle)
	require.NoError(t, err)
	require.True(t, session.HandleResult(7, iap.OutcomeApproved, data))

	result, purchase := waitPurchase()
	require.True(t, result.IsSuccess(), result.Message)
	require.Equal(t, SkuGas, purchase.SKU)
	require.False(t, session.State().Busy())

	inventory, waitInventory := Await[*iap.Inventory](t)
	session.QueryInventoryAsync(ctx, false, nil, nil, inventory)
	result, inv := waitInventory()
	require.True(t, result.IsSuccess())
	require.True(t, inv.HasPurchase(SkuGas))
	require.False(t, session.State().Busy())
}
