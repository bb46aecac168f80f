package iap

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParsePurchase(t *testing.T) {
	data := `{"orderId":"GPA.1","packageName":"com.example.billing","productId":"gas","purchaseTime":1345678900000,"purchaseState":2,"developerPayload":"dp","purchaseToken":"pt","autoRenewing":true}`

	p, err := ParsePurchase(ItemTypeSubs, data, "sig")
	require.NoError(t, err)
	require.Equal(t, ItemTypeSubs, p.ItemType)
	require.Equal(t, "GPA.1", p.OrderID)
	require.Equal(t, "com.example.billing", p.PackageName)
	require.Equal(t, "gas", p.SKU)
	require.True(t, time.UnixMilli(1345678900000).Equal(p.PurchaseTime))
	require.Equal(t, PurchaseStateRefunded, p.PurchaseState)
	require.Equal(t, "dp", p.DeveloperPayload)
	require.Equal(t, "pt", p.Token)
	require.True(t, p.AutoRenewing)
	require.Equal(t, data, p.OriginalJSON)
	require.Equal(t, "sig", p.Signature)
	require.Equal(t, "PurchaseInfo(type:subs):"+data, p.String())
}

func TestParsePurchase_TokenPrecedence(t *testing.T) {
	p, err := ParsePurchase(ItemTypeInApp, `{"productId":"gas","token":"t","purchaseToken":"pt"}`, "")
	require.NoError(t, err)
	require.Equal(t, "t", p.Token)

	p, err = ParsePurchase(ItemTypeInApp, `{"productId":"gas"}`, "")
	require.NoError(t, err)
	require.Empty(t, p.Token)

	_, err = ParsePurchase(ItemTypeInApp, `{"productId":`, "")
	require.Error(t, err)
}

func TestParseSkuDetails(t *testing.T) {
	data := `{"productId":"gas","price":"$0.99","price_amount_micros":990000,"price_currency_code":"USD","title":"Gas","description":"A tank"}`

	d, err := ParseSkuDetails(ItemTypeInApp, data)
	require.NoError(t, err)
	require.Equal(t, "gas", d.SKU)
	require.Equal(t, "inapp", d.Type)
	require.Equal(t, "$0.99", d.Price)
	require.True(t, decimal.RequireFromString("0.99").Equal(d.PriceAmount()))
	require.Equal(t, "SkuDetails:"+data, d.String())

	d, err = ParseSkuDetails(ItemTypeInApp, `{"productId":"x","type":"subs"}`)
	require.NoError(t, err)
	require.Equal(t, "subs", d.Type)
	require.Equal(t, ItemTypeInApp, d.ItemType)

	_, err = ParseSkuDetails(ItemTypeInApp, "nope")
	require.Error(t, err)
}

func TestInventory(t *testing.T) {
	inv := NewInventory()
	require.Empty(t, inv.AllOwnedSkus())
	require.Nil(t, inv.Purchase("gas"))

	inv.addPurchase(&Purchase{ItemType: ItemTypeInApp, SKU: "premium"})
	inv.addPurchase(&Purchase{ItemType: ItemTypeSubs, SKU: "infinite_gas"})
	inv.addPurchase(&Purchase{ItemType: ItemTypeInApp, SKU: "gas"})
	inv.addSkuDetails(&SkuDetails{ItemType: ItemTypeInApp, SKU: "gas"})

	require.Equal(t, []string{"gas", "infinite_gas", "premium"}, inv.AllOwnedSkus())
	require.Equal(t, []string{"gas", "premium"}, inv.OwnedSkus(ItemTypeInApp))
	require.Equal(t, []string{"infinite_gas"}, inv.OwnedSkus(ItemTypeSubs))
	require.True(t, inv.HasDetails("gas"))
	require.False(t, inv.HasDetails("premium"))

	all := inv.AllPurchases()
	require.Len(t, all, 3)
	require.Equal(t, "gas", all[0].SKU)

	inv.ErasePurchase("gas")
	inv.ErasePurchase("unknown")
	require.False(t, inv.HasPurchase("gas"))
	require.True(t, inv.HasDetails("gas"))
	require.Equal(t, []string{"infinite_gas", "premium"}, inv.AllOwnedSkus())
}
