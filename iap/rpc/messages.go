package rpc

import (
	"github.com/lancao008/google-pay/iap"
)

type IsBillingSupportedRequest struct {
	APIVersion  int          `json:"apiVersion"`
	PackageName string       `json:"packageName"`
	ItemType    iap.ItemType `json:"itemType"`
}

type GetBuyIntentRequest struct {
	APIVersion       int          `json:"apiVersion"`
	PackageName      string       `json:"packageName"`
	SKU              string       `json:"sku"`
	ItemType         iap.ItemType `json:"itemType"`
	DeveloperPayload string       `json:"developerPayload"`
}

type GetPurchasesRequest struct {
	APIVersion        int          `json:"apiVersion"`
	PackageName       string       `json:"packageName"`
	ItemType          iap.ItemType `json:"itemType"`
	ContinuationToken string       `json:"continuationToken,omitempty"`
}

type GetSkuDetailsRequest struct {
	APIVersion  int          `json:"apiVersion"`
	PackageName string       `json:"packageName"`
	ItemType    iap.ItemType `json:"itemType"`
	SKUs        []string     `json:"itemIdList"`
}

type ConsumePurchaseRequest struct {
	APIVersion  int    `json:"apiVersion"`
	PackageName string `json:"packageName"`
	Token       string `json:"purchaseToken"`
}

// ApproveRequest completes a buy intent. With Decline set the intent is
// abandoned and answered with ResponseCode.
type ApproveRequest struct {
	Handle       string           `json:"handle"`
	Decline      bool             `json:"decline,omitempty"`
	ResponseCode iap.ResponseCode `json:"responseCode,omitempty"`
}

type ResponseCodeResponse struct {
	ResponseCode iap.ResponseCode `json:"responseCode"`
}
