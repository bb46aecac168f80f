package iap

import (
	"context"

	"github.com/pkg/errors"
)

// APIVersion is the billing API version negotiated during setup.
const APIVersion = 3

// ErrNoProvider is returned by a Binder when no billing service is installed.
var ErrNoProvider = errors.New("no billing service provider")

// Service is the RPC surface of the billing service. A returned error always
// means the channel to the service failed; service level failures are
// reported through response codes.
type Service interface {
	IsBillingSupported(ctx context.Context, apiVersion int, packageName string, itemType ItemType) (ResponseCode, error)

	GetBuyIntent(ctx context.Context, apiVersion int, packageName, sku string, itemType ItemType, developerPayload string) (*BuyIntentResponse, error)

	// GetPurchases returns one page of owned items. An empty continuation
	// token requests the first page.
	GetPurchases(ctx context.Context, apiVersion int, packageName string, itemType ItemType, continuationToken string) (*PurchasesResponse, error)

	GetSkuDetails(ctx context.Context, apiVersion int, packageName string, itemType ItemType, skus []string) (*SkuDetailsResponse, error)

	ConsumePurchase(ctx context.Context, apiVersion int, packageName, token string) (ResponseCode, error)
}

// Connection is a bound Service. Closing it releases the binding.
type Connection interface {
	Service

	Close() error
}

// Binder locates a billing service provider and binds to it.
type Binder interface {
	Bind(ctx context.Context) (Connection, error)
}

// BuyIntent authorizes a single purchase. It is opaque to the session and is
// completed out of process by the Host.
type BuyIntent struct {
	Handle           string   `json:"handle"`
	SKU              string   `json:"sku"`
	ItemType         ItemType `json:"itemType"`
	DeveloperPayload string   `json:"developerPayload"`
}

type BuyIntentResponse struct {
	ResponseCode ResponseCode `json:"responseCode"`
	BuyIntent    *BuyIntent   `json:"buyIntent,omitempty"`
}

// PurchasesResponse is one page of owned items. The three lists are parallel.
type PurchasesResponse struct {
	ResponseCode      ResponseCode `json:"responseCode"`
	OwnedSkus         []string     `json:"ownedSkus"`
	PurchaseData      []string     `json:"purchaseData"`
	Signatures        []string     `json:"signatures"`
	ContinuationToken string       `json:"continuationToken,omitempty"`
}

// SkuDetailsResponse carries one JSON document per known SKU. A nil
// DetailsList means the service did not return one.
type SkuDetailsResponse struct {
	ResponseCode ResponseCode `json:"responseCode"`
	DetailsList  []string     `json:"detailsList"`
}

// Host completes a BuyIntent out of process, for example by showing an
// approval screen, and later reports the outcome through
// Session.HandleResult with the same request code.
type Host interface {
	Authorize(ctx context.Context, requestCode int, intent *BuyIntent) error
}

// HostFunc is an adapter to allow the use of ordinary functions as Hosts.
type HostFunc func(ctx context.Context, requestCode int, intent *BuyIntent) error

// Authorize calls f(ctx, requestCode, intent).
func (f HostFunc) Authorize(ctx context.Context, requestCode int, intent *BuyIntent) error {
	return f(ctx, requestCode, intent)
}

// Outcome is how the out of process authorization step ended.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeApproved
	OutcomeCanceled
)

// ErrUnknownIntent is returned when completing a buy intent the service never
// issued or already completed.
var ErrUnknownIntent = errors.New("unknown buy intent")

// PurchaseResult is the data returned by the authorization step.
type PurchaseResult struct {
	ResponseCode  ResponseCode `json:"responseCode"`
	PurchaseData  string       `json:"purchaseData"`
	DataSignature string       `json:"dataSignature"`
}
