package memory

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/model"
)

const DefaultPageSize = 100

type Method string

const (
	MethodIsBillingSupported Method = "isBillingSupported"
	MethodGetBuyIntent       Method = "getBuyIntent"
	MethodGetPurchases       Method = "getPurchases"
	MethodGetSkuDetails      Method = "getSkuDetails"
	MethodConsumePurchase    Method = "consumePurchase"
)

// Product is a catalog entry.
type Product struct {
	SKU               string
	ItemType          iap.ItemType
	Title             string
	Description       string
	Price             string
	PriceAmountMicros int64
	PriceCurrencyCode string
}

type receipt struct {
	OrderID          string `json:"orderId"`
	PackageName      string `json:"packageName"`
	ProductID        string `json:"productId"`
	PurchaseTime     int64  `json:"purchaseTime"`
	PurchaseState    int    `json:"purchaseState"`
	DeveloperPayload string `json:"developerPayload"`
	PurchaseToken    string `json:"purchaseToken,omitempty"`
	AutoRenewing     bool   `json:"autoRenewing,omitempty"`
}

type ownedPurchase struct {
	sku       string
	itemType  iap.ItemType
	token     string
	receipt   receipt
	data      string
	signature string
}

type fault struct {
	response iap.ResponseCode
	err      error
}

// Service is an in-memory billing service. Receipts are signed with an
// ed25519 developer key.
type Service struct {
	mu sync.RWMutex

	signer      ed25519.PrivateKey
	packageName string
	pageSize    int

	supported map[iap.ItemType]bool
	products  map[string]Product
	owned     []*ownedPurchase
	intents   map[string]*iap.BuyIntent
	calls     map[Method]int
	faults    map[Method]fault
}

func NewService(packageName string, signer ed25519.PrivateKey) *Service {
	s := &Service{
		signer:      signer,
		packageName: packageName,
	}
	s.Reset()
	return s
}

// Reset drops all state, restoring a freshly constructed service.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pageSize = DefaultPageSize
	s.supported = map[iap.ItemType]bool{
		iap.ItemTypeInApp: true,
		iap.ItemTypeSubs:  true,
	}
	s.products = map[string]Product{}
	s.owned = nil
	s.intents = map[string]*iap.BuyIntent{}
	s.calls = map[Method]int{}
	s.faults = map[Method]fault{}
}

func (s *Service) SetSupported(itemType iap.ItemType, supported bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.supported[itemType] = supported
}

func (s *Service) SetPageSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pageSize = size
}

func (s *Service) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[p.SKU] = p
}

// FailWith makes every later call to method answer with response.
func (s *Service) FailWith(method Method, response iap.ResponseCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[method] = fault{response: response}
}

// BreakChannel makes every later call to method fail with err, as if the
// channel to the service broke.
func (s *Service) BreakChannel(method Method, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[method] = fault{err: err}
}

func (s *Service) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults = map[Method]fault{}
}

// Calls returns how many times method was called.
func (s *Service) Calls(method Method) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.calls[method]
}

func (s *Service) Owns(sku string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findOwned(sku) != nil
}

// Grant makes sku owned as if it had been bought with developerPayload.
func (s *Service) Grant(sku, developerPayload string) (*iap.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[sku]
	if !ok {
		return nil, errors.Errorf("unknown sku %s", sku)
	}

	owned, err := s.grant(product, developerPayload)
	if err != nil {
		return nil, err
	}
	return iap.ParsePurchase(owned.itemType, owned.data, owned.signature)
}

// Tamper corrupts the signature of an owned sku.
func (s *Service) Tamper(sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.findOwned(sku)
	if owned == nil {
		return errors.Errorf("sku %s not owned", sku)
	}

	owned.signature = Sign(s.signer, owned.data+" ")
	return nil
}

// RevokeToken re-signs the receipt of an owned sku without its token.
func (s *Service) RevokeToken(sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.findOwned(sku)
	if owned == nil {
		return errors.Errorf("sku %s not owned", sku)
	}

	owned.receipt.PurchaseToken = ""
	return s.sign(owned)
}

// Approve completes a buy intent the way the store's approval screen would
// and returns the payload handed back to the host.
func (s *Service) Approve(handle string) (*iap.PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[handle]
	if !ok {
		return nil, iap.ErrUnknownIntent
	}
	delete(s.intents, handle)

	product, ok := s.products[intent.SKU]
	if !ok {
		return &iap.PurchaseResult{ResponseCode: iap.ResponseItemUnavailable}, nil
	}
	if intent.ItemType == iap.ItemTypeInApp && s.findOwned(intent.SKU) != nil {
		return &iap.PurchaseResult{ResponseCode: iap.ResponseItemAlreadyOwned}, nil
	}

	owned, err := s.grant(product, intent.DeveloperPayload)
	if err != nil {
		return nil, err
	}

	return &iap.PurchaseResult{
		ResponseCode:  iap.ResponseOK,
		PurchaseData:  owned.data,
		DataSignature: owned.signature,
	}, nil
}

// Decline abandons a buy intent and returns the payload for response.
func (s *Service) Decline(handle string, response iap.ResponseCode) (*iap.PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.intents[handle]; !ok {
		return nil, iap.ErrUnknownIntent
	}
	delete(s.intents, handle)

	return &iap.PurchaseResult{ResponseCode: response}, nil
}

func (s *Service) IsBillingSupported(_ context.Context, apiVersion int, packageName string, itemType iap.ItemType) (iap.ResponseCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.call(MethodIsBillingSupported); ok {
		return f.response, f.err
	}

	return s.checkRequest(apiVersion, packageName, itemType), nil
}

func (s *Service) GetBuyIntent(_ context.Context, apiVersion int, packageName, sku string, itemType iap.ItemType, developerPayload string) (*iap.BuyIntentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.call(MethodGetBuyIntent); ok {
		return &iap.BuyIntentResponse{ResponseCode: f.response}, f.err
	}

	if code := s.checkRequest(apiVersion, packageName, itemType); code != iap.ResponseOK {
		return &iap.BuyIntentResponse{ResponseCode: code}, nil
	}

	product, ok := s.products[sku]
	if !ok || product.ItemType != itemType {
		return &iap.BuyIntentResponse{ResponseCode: iap.ResponseItemUnavailable}, nil
	}
	if s.findOwned(sku) != nil {
		return &iap.BuyIntentResponse{ResponseCode: iap.ResponseItemAlreadyOwned}, nil
	}

	handle, err := model.GenerateIntentHandle()
	if err != nil {
		return nil, err
	}

	intent := &iap.BuyIntent{
		Handle:           handle,
		SKU:              sku,
		ItemType:         itemType,
		DeveloperPayload: developerPayload,
	}
	s.intents[handle] = intent

	copied := *intent
	return &iap.BuyIntentResponse{ResponseCode: iap.ResponseOK, BuyIntent: &copied}, nil
}

func (s *Service) GetPurchases(_ context.Context, apiVersion int, packageName string, itemType iap.ItemType, continuationToken string) (*iap.PurchasesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.call(MethodGetPurchases); ok {
		return &iap.PurchasesResponse{ResponseCode: f.response}, f.err
	}

	if code := s.checkRequest(apiVersion, packageName, itemType); code != iap.ResponseOK {
		return &iap.PurchasesResponse{ResponseCode: code}, nil
	}

	offset := 0
	if continuationToken != "" {
		var err error
		offset, err = model.DecodeContinuationToken(continuationToken)
		if err != nil {
			return &iap.PurchasesResponse{ResponseCode: iap.ResponseDeveloperError}, nil
		}
	}

	var matching []*ownedPurchase
	for _, owned := range s.owned {
		if owned.itemType == itemType {
			matching = append(matching, owned)
		}
	}

	resp := &iap.PurchasesResponse{
		ResponseCode: iap.ResponseOK,
		OwnedSkus:    []string{},
		PurchaseData: []string{},
		Signatures:   []string{},
	}
	if offset > len(matching) {
		return resp, nil
	}

	end := offset + s.pageSize
	if end < len(matching) {
		resp.ContinuationToken = model.EncodeContinuationToken(end)
	} else {
		end = len(matching)
	}

	for _, owned := range matching[offset:end] {
		resp.OwnedSkus = append(resp.OwnedSkus, owned.sku)
		resp.PurchaseData = append(resp.PurchaseData, owned.data)
		resp.Signatures = append(resp.Signatures, owned.signature)
	}
	return resp, nil
}

func (s *Service) GetSkuDetails(_ context.Context, apiVersion int, packageName string, itemType iap.ItemType, skus []string) (*iap.SkuDetailsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.call(MethodGetSkuDetails); ok {
		return &iap.SkuDetailsResponse{ResponseCode: f.response}, f.err
	}

	if code := s.checkRequest(apiVersion, packageName, itemType); code != iap.ResponseOK {
		return &iap.SkuDetailsResponse{ResponseCode: code}, nil
	}
	if len(skus) == 0 {
		return &iap.SkuDetailsResponse{ResponseCode: iap.ResponseDeveloperError}, nil
	}

	resp := &iap.SkuDetailsResponse{
		ResponseCode: iap.ResponseOK,
		DetailsList:  []string{},
	}
	for _, sku := range skus {
		product, ok := s.products[sku]
		if !ok || product.ItemType != itemType {
			continue
		}

		data, err := json.Marshal(map[string]any{
			"productId":           product.SKU,
			"type":                string(product.ItemType),
			"price":               product.Price,
			"price_amount_micros": product.PriceAmountMicros,
			"price_currency_code": product.PriceCurrencyCode,
			"title":               product.Title,
			"description":         product.Description,
		})
		if err != nil {
			return nil, err
		}
		resp.DetailsList = append(resp.DetailsList, string(data))
	}
	return resp, nil
}

func (s *Service) ConsumePurchase(_ context.Context, apiVersion int, packageName, token string) (iap.ResponseCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.call(MethodConsumePurchase); ok {
		return f.response, f.err
	}

	if code := s.checkRequest(apiVersion, packageName, iap.ItemTypeInApp); code != iap.ResponseOK {
		return code, nil
	}

	for i, owned := range s.owned {
		if owned.token != token || token == "" {
			continue
		}
		if owned.itemType != iap.ItemTypeInApp {
			return iap.ResponseDeveloperError, nil
		}

		s.owned = append(s.owned[:i], s.owned[i+1:]...)
		return iap.ResponseOK, nil
	}
	return iap.ResponseItemNotOwned, nil
}

// call records a call to method and returns its injected fault, if any.
func (s *Service) call(method Method) (fault, bool) {
	s.calls[method]++
	f, ok := s.faults[method]
	return f, ok
}

func (s *Service) checkRequest(apiVersion int, packageName string, itemType iap.ItemType) iap.ResponseCode {
	if apiVersion != iap.APIVersion || !itemType.Valid() || !s.supported[itemType] {
		return iap.ResponseBillingUnavailable
	}
	if packageName != s.packageName {
		return iap.ResponseDeveloperError
	}
	return iap.ResponseOK
}

func (s *Service) findOwned(sku string) *ownedPurchase {
	for _, owned := range s.owned {
		if owned.sku == sku {
			return owned
		}
	}
	return nil
}

func (s *Service) grant(product Product, developerPayload string) (*ownedPurchase, error) {
	orderID, err := model.GenerateOrderID()
	if err != nil {
		return nil, err
	}
	token, err := model.GeneratePurchaseToken()
	if err != nil {
		return nil, err
	}

	owned := &ownedPurchase{
		sku:      product.SKU,
		itemType: product.ItemType,
		token:    token,
		receipt: receipt{
			OrderID:          orderID,
			PackageName:      s.packageName,
			ProductID:        product.SKU,
			PurchaseTime:     time.Now().UnixMilli(),
			DeveloperPayload: developerPayload,
			PurchaseToken:    token,
			AutoRenewing:     product.ItemType == iap.ItemTypeSubs,
		},
	}
	if err := s.sign(owned); err != nil {
		return nil, err
	}

	s.owned = append(s.owned, owned)
	return owned, nil
}

func (s *Service) sign(owned *ownedPurchase) error {
	data, err := json.Marshal(owned.receipt)
	if err != nil {
		return errors.Wrap(err, "failed to marshal receipt")
	}

	owned.data = string(data)
	owned.signature = Sign(s.signer, owned.data)
	return nil
}
