package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
)

func runPurchaseTests(t *testing.T, env Env, teardown func()) {
	for _, tf := range []func(t *testing.T, env Env){
		testPurchase_HappyPath,
		testPurchase_Subscription,
		testPurchase_SubscriptionsUnavailable,
		testPurchase_WrongRequestCode,
		testPurchase_Canceled,
		testPurchase_NullData,
		testPurchase_MissingPurchaseData,
		testPurchase_MissingSignature,
		testPurchase_BadSignature,
		testPurchase_Declined,
		testPurchase_UnknownOutcome,
		testPurchase_AlreadyOwned,
		testPurchase_ItemUnavailable,
		testPurchase_HandoffFailed,
		testPurchase_RemoteFailure,
		testPurchase_AfterDispose,
	} {
		stockCatalog(env.Service)
		tf(t, env)
		teardown()
	}
}

// launch starts a purchase flow and returns the intent the host received.
func launch(t *testing.T, env Env, session *iap.Session, sku string, itemType iap.ItemType, requestCode int, cb iap.Callback[*iap.Purchase]) *iap.BuyIntent {
	host := memory.NewHost()
	session.LaunchPurchaseFlow(context.Background(), host, sku, itemType, requestCode, cb, "developer-payload")

	intent := host.Intent(requestCode)
	require.NotNil(t, intent)
	require.Equal(t, sku, intent.SKU)
	require.Equal(t, itemType, intent.ItemType)
	require.Equal(t, "developer-payload", intent.DeveloperPayload)
	return intent
}

func testPurchase_HappyPath(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	intent := launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1001, cb)

	data, err := env.Service.Approve(intent.Handle)
	require.NoError(t, err)
	require.True(t, session.HandleResult(1001, iap.OutcomeApproved, data))

	result, purchase := wait()
	require.True(t, result.IsSuccess(), result.Message)
	require.NotNil(t, purchase)
	require.Equal(t, SkuGas, purchase.SKU)
	require.Equal(t, iap.ItemTypeInApp, purchase.ItemType)
	require.Equal(t, PackageName, purchase.PackageName)
	require.Equal(t, "developer-payload", purchase.DeveloperPayload)
	require.Equal(t, iap.PurchaseStatePurchased, purchase.PurchaseState)
	require.NotEmpty(t, purchase.OrderID)
	require.NotEmpty(t, purchase.Token)
	require.Equal(t, data.PurchaseData, purchase.OriginalJSON)
	require.Equal(t, data.DataSignature, purchase.Signature)

	require.True(t, env.Service.Owns(SkuGas))
	require.False(t, session.State().Busy())

	// The flow is complete, so the request code no longer belongs to it.
	require.False(t, session.HandleResult(1001, iap.OutcomeApproved, data))
}

func testPurchase_Subscription(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	host := memory.NewHost()
	session.LaunchSubscriptionPurchaseFlow(context.Background(), host, SkuInfiniteGas, 1002, cb, "")

	intent := host.Intent(1002)
	require.NotNil(t, intent)
	require.Equal(t, iap.ItemTypeSubs, intent.ItemType)

	data, err := env.Service.Approve(intent.Handle)
	require.NoError(t, err)
	require.True(t, session.HandleResult(1002, iap.OutcomeApproved, data))

	result, purchase := wait()
	require.True(t, result.IsSuccess(), result.Message)
	require.Equal(t, iap.ItemTypeSubs, purchase.ItemType)
	require.True(t, purchase.AutoRenewing)
}

func testPurchase_SubscriptionsUnavailable(t *testing.T, env Env) {
	env.Service.SetSupported(iap.ItemTypeSubs, false)
	session := setUp(t, env)

	var (
		fired    bool
		result   iap.Result
		purchase *iap.Purchase
	)
	host := memory.NewHost()
	session.LaunchPurchaseFlow(context.Background(), host, "sub_x", iap.ItemTypeSubs, 1003, func(r iap.Result, p *iap.Purchase) {
		fired = true
		result = r
		purchase = p
	}, "")

	require.True(t, fired)
	require.Equal(t, iap.ErrorSubscriptionsNotAvailable, result.Response)
	require.Nil(t, purchase)
	require.Nil(t, host.Intent(1003))
	require.Equal(t, 0, env.Service.Calls(memory.MethodGetBuyIntent))
	require.False(t, session.State().Busy())
}

func testPurchase_WrongRequestCode(t *testing.T, env Env) {
	session := setUp(t, env)

	calls := 0
	var result iap.Result
	intent := launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1004, func(r iap.Result, _ *iap.Purchase) {
		calls++
		result = r
	})

	data, err := env.Service.Approve(intent.Handle)
	require.NoError(t, err)

	require.False(t, session.HandleResult(9999, iap.OutcomeApproved, data))
	require.Equal(t, 0, calls)
	require.True(t, session.State().Busy())

	require.True(t, session.HandleResult(1004, iap.OutcomeApproved, data))
	require.Equal(t, 1, calls)
	require.True(t, result.IsSuccess())
}

func testPurchase_Canceled(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	intent := launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1005, cb)

	data, err := env.Service.Decline(intent.Handle, iap.ResponseUserCanceled)
	require.NoError(t, err)
	require.True(t, session.HandleResult(1005, iap.OutcomeCanceled, data))

	result, purchase := wait()
	require.Equal(t, iap.ErrorUserCancelled, result.Response)
	require.Nil(t, purchase)
	require.False(t, session.State().Busy())
}

func testPurchase_NullData(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1006, cb)

	require.True(t, session.HandleResult(1006, iap.OutcomeApproved, nil))

	result, purchase := wait()
	require.Equal(t, iap.ErrorBadResponse, result.Response)
	require.Nil(t, purchase)
}

func testPurchase_MissingPurchaseData(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1007, cb)

	require.True(t, session.HandleResult(1007, iap.OutcomeApproved, &iap.PurchaseResult{ResponseCode: iap.ResponseOK}))

	result, _ := wait()
	require.Equal(t, iap.ErrorUnknown, result.Response)
}

func testPurchase_BadSignature(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	intent := launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1008, cb)

	data, err := env.Service.Approve(intent.Handle)
	require.NoError(t, err)

	other, err := env.Service.Grant(SkuPremium, "")
	require.NoError(t, err)
	data.DataSignature = other.Signature

	require.True(t, session.HandleResult(1008, iap.OutcomeApproved, data))

	result, purchase := wait()
	require.Equal(t, iap.ErrorVerificationFailed, result.Response)
	require.NotNil(t, purchase)
	require.Equal(t, SkuGas, purchase.SKU)
}

func testPurchase_Declined(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	intent := launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1009, cb)

	data, err := env.Service.Decline(intent.Handle, iap.ResponseError)
	require.NoError(t, err)
	require.True(t, session.HandleResult(1009, iap.OutcomeApproved, data))

	result, purchase := wait()
	require.Equal(t, iap.ResponseError, result.Response)
	require.Nil(t, purchase)
}

func testPurchase_UnknownOutcome(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	intent := launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1010, cb)

	data, err := env.Service.Decline(intent.Handle, iap.ResponseDeveloperError)
	require.NoError(t, err)
	require.True(t, session.HandleResult(1010, iap.OutcomeUnknown, data))

	result, purchase := wait()
	require.Equal(t, iap.ErrorUnknownPurchaseResponse, result.Response)
	require.Contains(t, result.Message, iap.ResponseDeveloperError.String())
	require.Nil(t, purchase)
}

func testPurchase_AlreadyOwned(t *testing.T, env Env) {
	_, err := env.Service.Grant(SkuPremium, "")
	require.NoError(t, err)

	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	session.LaunchPurchaseFlow(context.Background(), memory.NewHost(), SkuPremium, iap.ItemTypeInApp, 1011, cb, "")

	result, purchase := wait()
	require.Equal(t, iap.ResponseItemAlreadyOwned, result.Response)
	require.Nil(t, purchase)
	require.False(t, session.State().Busy())
}

func testPurchase_ItemUnavailable(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	session.LaunchPurchaseFlow(context.Background(), memory.NewHost(), "does_not_exist", iap.ItemTypeInApp, 1012, cb, "")

	result, _ := wait()
	require.Equal(t, iap.ResponseItemUnavailable, result.Response)
	require.False(t, session.State().Busy())
}

func testPurchase_HandoffFailed(t *testing.T, env Env) {
	session := setUp(t, env)

	host := memory.NewHost()
	host.FailWith(errors.New("activity gone"))

	cb, wait := Await[*iap.Purchase](t)
	session.LaunchPurchaseFlow(context.Background(), host, SkuGas, iap.ItemTypeInApp, 1013, cb, "")

	result, _ := wait()
	require.Equal(t, iap.ErrorSendIntentFailed, result.Response)
	require.False(t, session.State().Busy())
	require.False(t, session.HandleResult(1013, iap.OutcomeApproved, nil))
}

func testPurchase_RemoteFailure(t *testing.T, env Env) {
	session := setUp(t, env)
	env.Service.BreakChannel(memory.MethodGetBuyIntent, errors.New("binder died"))

	cb, wait := Await[*iap.Purchase](t)
	session.LaunchPurchaseFlow(context.Background(), memory.NewHost(), SkuGas, iap.ItemTypeInApp, 1014, cb, "")

	result, _ := wait()
	require.Equal(t, iap.ErrorRemoteException, result.Response)
	require.False(t, session.State().Busy())
}

func testPurchase_AfterDispose(t *testing.T, env Env) {
	session := setUp(t, env)

	calls := 0
	intent := launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1015, func(iap.Result, *iap.Purchase) {
		calls++
	})
	session.Dispose()

	data, err := env.Service.Approve(intent.Handle)
	require.NoError(t, err)

	// Unrelated request codes are still passed back to the caller.
	require.False(t, session.HandleResult(1016, iap.OutcomeApproved, data))

	RequirePanicsWith(t, iap.ErrDisposed, func() {
		session.HandleResult(1015, iap.OutcomeApproved, data)
	})
	require.Equal(t, 0, calls)
}

func testPurchase_MissingSignature(t *testing.T, env Env) {
	session := setUp(t, env)

	cb, wait := Await[*iap.Purchase](t)
	intent := launch(t, env, session, SkuGas, iap.ItemTypeInApp, 1017, cb)

	data, err := env.Service.Approve(intent.Handle)
	require.NoError(t, err)
	data.DataSignature = ""
	require.True(t, session.HandleResult(1017, iap.OutcomeApproved, data))

	result, purchase := wait()
	require.Equal(t, iap.ErrorUnknown, result.Response)
	require.Nil(t, purchase)
	require.False(t, session.State().Busy())
}
