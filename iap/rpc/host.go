package rpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/lancao008/google-pay/iap"
)

// Decision chooses how a buy intent is answered. Returning false declines it
// as if the user canceled.
type Decision func(intent *iap.BuyIntent) bool

// ApprovalHost answers buy intents through the billing service's Approve call
// and reports the outcome to its session.
type ApprovalHost struct {
	log     *zap.Logger
	client  *Client
	session *iap.Session
	decide  Decision
}

// NewApprovalHost returns a host for session. A nil decide approves every
// intent.
func NewApprovalHost(log *zap.Logger, cc grpc.ClientConnInterface, session *iap.Session, decide Decision) *ApprovalHost {
	if decide == nil {
		decide = func(*iap.BuyIntent) bool { return true }
	}

	return &ApprovalHost{
		log:     log,
		client:  NewClient(cc),
		session: session,
		decide:  decide,
	}
}

func (h *ApprovalHost) Authorize(ctx context.Context, requestCode int, intent *iap.BuyIntent) error {
	log := h.log.With(
		zap.Int("request_code", requestCode),
		zap.String("sku", intent.SKU),
	)

	var (
		result  *iap.PurchaseResult
		outcome iap.Outcome
		err     error
	)
	if h.decide(intent) {
		outcome = iap.OutcomeApproved
		result, err = h.client.Approve(ctx, intent.Handle)
	} else {
		outcome = iap.OutcomeCanceled
		result, err = h.client.Decline(ctx, intent.Handle, iap.ResponseUserCanceled)
	}
	if err != nil {
		log.Warn("Failed to complete buy intent", zap.Error(err))
		return err
	}

	if !h.session.HandleResult(requestCode, outcome, result) {
		log.Debug("Purchase result not claimed by session")
	}
	return nil
}
