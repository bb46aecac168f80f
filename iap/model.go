package iap

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type ItemType string

const (
	ItemTypeInApp ItemType = "inapp"
	ItemTypeSubs  ItemType = "subs"
)

func (t ItemType) Valid() bool {
	return t == ItemTypeInApp || t == ItemTypeSubs
}

type PurchaseState int

const (
	PurchaseStatePurchased PurchaseState = iota
	PurchaseStateCanceled
	PurchaseStateRefunded
)

// Purchase is an owned item as reported by the billing service. OriginalJSON
// and Signature hold the exact signed receipt it was parsed from.
type Purchase struct {
	ItemType         ItemType
	OrderID          string
	PackageName      string
	SKU              string
	PurchaseTime     time.Time
	PurchaseState    PurchaseState
	DeveloperPayload string
	Token            string
	AutoRenewing     bool
	OriginalJSON     string
	Signature        string
}

type purchaseJSON struct {
	OrderID          string        `json:"orderId"`
	PackageName      string        `json:"packageName"`
	ProductID        string        `json:"productId"`
	PurchaseTime     int64         `json:"purchaseTime"`
	PurchaseState    PurchaseState `json:"purchaseState"`
	DeveloperPayload string        `json:"developerPayload"`
	Token            string        `json:"token"`
	PurchaseToken    string        `json:"purchaseToken"`
	AutoRenewing     bool          `json:"autoRenewing"`
}

// ParsePurchase parses a signed purchase receipt. It does not verify the
// signature.
func ParsePurchase(itemType ItemType, data, signature string) (*Purchase, error) {
	var raw purchaseJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse purchase data")
	}

	token := raw.Token
	if token == "" {
		token = raw.PurchaseToken
	}

	return &Purchase{
		ItemType:         itemType,
		OrderID:          raw.OrderID,
		PackageName:      raw.PackageName,
		SKU:              raw.ProductID,
		PurchaseTime:     time.UnixMilli(raw.PurchaseTime),
		PurchaseState:    raw.PurchaseState,
		DeveloperPayload: raw.DeveloperPayload,
		Token:            token,
		AutoRenewing:     raw.AutoRenewing,
		OriginalJSON:     data,
		Signature:        signature,
	}, nil
}

func (p *Purchase) String() string {
	return "PurchaseInfo(type:" + string(p.ItemType) + "):" + p.OriginalJSON
}

// SkuDetails is the store listing of a purchasable item.
type SkuDetails struct {
	ItemType          ItemType
	SKU               string
	Type              string
	Price             string
	PriceAmountMicros int64
	PriceCurrencyCode string
	Title             string
	Description       string
	JSON              string
}

type skuDetailsJSON struct {
	ProductID         string `json:"productId"`
	Type              string `json:"type"`
	Price             string `json:"price"`
	PriceAmountMicros int64  `json:"price_amount_micros"`
	PriceCurrencyCode string `json:"price_currency_code"`
	Title             string `json:"title"`
	Description       string `json:"description"`
}

func ParseSkuDetails(itemType ItemType, data string) (*SkuDetails, error) {
	var raw skuDetailsJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse sku details")
	}

	typ := raw.Type
	if typ == "" {
		typ = string(itemType)
	}

	return &SkuDetails{
		ItemType:          itemType,
		SKU:               raw.ProductID,
		Type:              typ,
		Price:             raw.Price,
		PriceAmountMicros: raw.PriceAmountMicros,
		PriceCurrencyCode: raw.PriceCurrencyCode,
		Title:             raw.Title,
		Description:       raw.Description,
		JSON:              data,
	}, nil
}

// PriceAmount returns the price as a decimal in units of PriceCurrencyCode.
func (d *SkuDetails) PriceAmount() decimal.Decimal {
	return decimal.New(d.PriceAmountMicros, -6)
}

func (d *SkuDetails) String() string {
	return "SkuDetails:" + d.JSON
}

// Inventory is the result of an inventory query. It is filled by a single
// query and then only read by the caller that requested it.
type Inventory struct {
	details   map[string]*SkuDetails
	purchases map[string]*Purchase
}

func NewInventory() *Inventory {
	return &Inventory{
		details:   map[string]*SkuDetails{},
		purchases: map[string]*Purchase{},
	}
}

func (inv *Inventory) SkuDetails(sku string) *SkuDetails {
	return inv.details[sku]
}

func (inv *Inventory) Purchase(sku string) *Purchase {
	return inv.purchases[sku]
}

func (inv *Inventory) HasPurchase(sku string) bool {
	_, ok := inv.purchases[sku]
	return ok
}

func (inv *Inventory) HasDetails(sku string) bool {
	_, ok := inv.details[sku]
	return ok
}

// ErasePurchase forgets a purchase, typically after it has been consumed.
func (inv *Inventory) ErasePurchase(sku string) {
	delete(inv.purchases, sku)
}

func (inv *Inventory) AllOwnedSkus() []string {
	skus := make([]string, 0, len(inv.purchases))
	for sku := range inv.purchases {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

func (inv *Inventory) OwnedSkus(itemType ItemType) []string {
	var skus []string
	for sku, p := range inv.purchases {
		if p.ItemType == itemType {
			skus = append(skus, sku)
		}
	}
	sort.Strings(skus)
	return skus
}

func (inv *Inventory) AllPurchases() []*Purchase {
	purchases := make([]*Purchase, 0, len(inv.purchases))
	for _, sku := range inv.AllOwnedSkus() {
		purchases = append(purchases, inv.purchases[sku])
	}
	return purchases
}

func (inv *Inventory) addPurchase(p *Purchase) {
	inv.purchases[p.SKU] = p
}

func (inv *Inventory) addSkuDetails(d *SkuDetails) {
	inv.details[d.SKU] = d
}
