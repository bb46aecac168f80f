package memory_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
	"github.com/lancao008/google-pay/iap/tests"
)

func TestService_Pagination(t *testing.T) {
	ctx := context.Background()
	svc, pub := newTestService()
	svc.SetPageSize(2)

	for _, sku := range []string{"a", "b", "c"} {
		svc.AddProduct(memory.Product{SKU: sku, ItemType: iap.ItemTypeInApp})
		_, err := svc.Grant(sku, "")
		require.NoError(t, err)
	}

	first, err := svc.GetPurchases(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, "")
	require.NoError(t, err)
	require.Equal(t, iap.ResponseOK, first.ResponseCode)
	require.Equal(t, []string{"a", "b"}, first.OwnedSkus)
	require.NotEmpty(t, first.ContinuationToken)

	second, err := svc.GetPurchases(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, first.ContinuationToken)
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, second.OwnedSkus)
	require.Empty(t, second.ContinuationToken)

	for i, data := range second.PurchaseData {
		require.True(t, iap.VerifyPurchase(pub, data, second.Signatures[i]))
	}

	bad, err := svc.GetPurchases(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, "0OIl")
	require.NoError(t, err)
	require.Equal(t, iap.ResponseDeveloperError, bad.ResponseCode)

	require.Equal(t, 3, svc.Calls(memory.MethodGetPurchases))
}

func TestService_RequestValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	code, err := svc.IsBillingSupported(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp)
	require.NoError(t, err)
	require.Equal(t, iap.ResponseOK, code)

	code, _ = svc.IsBillingSupported(ctx, 2, tests.PackageName, iap.ItemTypeInApp)
	require.Equal(t, iap.ResponseBillingUnavailable, code)

	code, _ = svc.IsBillingSupported(ctx, iap.APIVersion, tests.PackageName, "bundle")
	require.Equal(t, iap.ResponseBillingUnavailable, code)

	code, _ = svc.IsBillingSupported(ctx, iap.APIVersion, "com.example.other", iap.ItemTypeInApp)
	require.Equal(t, iap.ResponseDeveloperError, code)

	details, err := svc.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, nil)
	require.NoError(t, err)
	require.Equal(t, iap.ResponseDeveloperError, details.ResponseCode)
	require.Nil(t, details.DetailsList)
}

func TestService_Receipts(t *testing.T) {
	svc, pub := newTestService()
	svc.AddProduct(memory.Product{SKU: tests.SkuInfiniteGas, ItemType: iap.ItemTypeSubs})

	purchase, err := svc.Grant(tests.SkuInfiniteGas, "payload")
	require.NoError(t, err)
	require.Equal(t, iap.ItemTypeSubs, purchase.ItemType)
	require.True(t, purchase.AutoRenewing)
	require.Equal(t, "payload", purchase.DeveloperPayload)
	require.True(t, iap.VerifyPurchase(pub, purchase.OriginalJSON, purchase.Signature))

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(purchase.OriginalJSON), &fields))
	require.Contains(t, fields, "purchaseToken")
	require.NotContains(t, fields, "token")

	require.NoError(t, svc.RevokeToken(tests.SkuInfiniteGas))
	require.NoError(t, svc.Tamper(tests.SkuInfiniteGas))
	require.Error(t, svc.Tamper("missing"))

	_, err = svc.Grant("missing", "")
	require.Error(t, err)

	code, err := svc.ConsumePurchase(context.Background(), iap.APIVersion, tests.PackageName, purchase.Token)
	require.NoError(t, err)
	require.Equal(t, iap.ResponseDeveloperError, code)
	require.True(t, svc.Owns(tests.SkuInfiniteGas))
}

func TestService_Intents(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	svc.AddProduct(memory.Product{SKU: tests.SkuGas, ItemType: iap.ItemTypeInApp})

	resp, err := svc.GetBuyIntent(ctx, iap.APIVersion, tests.PackageName, tests.SkuGas, iap.ItemTypeSubs, "")
	require.NoError(t, err)
	require.Equal(t, iap.ResponseItemUnavailable, resp.ResponseCode)

	resp, err = svc.GetBuyIntent(ctx, iap.APIVersion, tests.PackageName, tests.SkuGas, iap.ItemTypeInApp, "")
	require.NoError(t, err)
	require.Equal(t, iap.ResponseOK, resp.ResponseCode)

	_, err = svc.Approve("unknown")
	require.ErrorIs(t, err, iap.ErrUnknownIntent)

	result, err := svc.Approve(resp.BuyIntent.Handle)
	require.NoError(t, err)
	require.Equal(t, iap.ResponseOK, result.ResponseCode)

	_, err = svc.Decline(resp.BuyIntent.Handle, iap.ResponseUserCanceled)
	require.ErrorIs(t, err, iap.ErrUnknownIntent)

	resp, err = svc.GetBuyIntent(ctx, iap.APIVersion, tests.PackageName, tests.SkuGas, iap.ItemTypeInApp, "")
	require.NoError(t, err)
	require.Equal(t, iap.ResponseItemAlreadyOwned, resp.ResponseCode)
}
