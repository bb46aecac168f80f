package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lancao008/google-pay/iap"
)

// Client implements iap.Service on top of a gRPC connection. Every transport
// failure is returned as an error; response codes are passed through.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}

	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}

func (c *Client) IsBillingSupported(ctx context.Context, apiVersion int, packageName string, itemType iap.ItemType) (iap.ResponseCode, error) {
	req := &IsBillingSupportedRequest{
		APIVersion:  apiVersion,
		PackageName: packageName,
		ItemType:    itemType,
	}

	var resp ResponseCodeResponse
	if err := c.invoke(ctx, "IsBillingSupported", req, &resp); err != nil {
		return 0, err
	}
	return resp.ResponseCode, nil
}

func (c *Client) GetBuyIntent(ctx context.Context, apiVersion int, packageName, sku string, itemType iap.ItemType, developerPayload string) (*iap.BuyIntentResponse, error) {
	req := &GetBuyIntentRequest{
		APIVersion:       apiVersion,
		PackageName:      packageName,
		SKU:              sku,
		ItemType:         itemType,
		DeveloperPayload: developerPayload,
	}

	var resp iap.BuyIntentResponse
	if err := c.invoke(ctx, "GetBuyIntent", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetPurchases(ctx context.Context, apiVersion int, packageName string, itemType iap.ItemType, continuationToken string) (*iap.PurchasesResponse, error) {
	req := &GetPurchasesRequest{
		APIVersion:        apiVersion,
		PackageName:       packageName,
		ItemType:          itemType,
		ContinuationToken: continuationToken,
	}

	var resp iap.PurchasesResponse
	if err := c.invoke(ctx, "GetPurchases", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetSkuDetails(ctx context.Context, apiVersion int, packageName string, itemType iap.ItemType, skus []string) (*iap.SkuDetailsResponse, error) {
	req := &GetSkuDetailsRequest{
		APIVersion:  apiVersion,
		PackageName: packageName,
		ItemType:    itemType,
		SKUs:        skus,
	}

	var resp iap.SkuDetailsResponse
	if err := c.invoke(ctx, "GetSkuDetails", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ConsumePurchase(ctx context.Context, apiVersion int, packageName, token string) (iap.ResponseCode, error) {
	req := &ConsumePurchaseRequest{
		APIVersion:  apiVersion,
		PackageName: packageName,
		Token:       token,
	}

	var resp ResponseCodeResponse
	if err := c.invoke(ctx, "ConsumePurchase", req, &resp); err != nil {
		return 0, err
	}
	return resp.ResponseCode, nil
}

// Approve completes the buy intent identified by handle. It is not part of
// iap.Service; hosts use it to stand in for the store's approval screen.
func (c *Client) Approve(ctx context.Context, handle string) (*iap.PurchaseResult, error) {
	var resp iap.PurchaseResult
	if err := c.invoke(ctx, "Approve", &ApproveRequest{Handle: handle}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Decline abandons the buy intent identified by handle.
func (c *Client) Decline(ctx context.Context, handle string, response iap.ResponseCode) (*iap.PurchaseResult, error) {
	req := &ApproveRequest{
		Handle:       handle,
		Decline:      true,
		ResponseCode: response,
	}

	var resp iap.PurchaseResult
	if err := c.invoke(ctx, "Approve", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
