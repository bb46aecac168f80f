package iap

import (
	"context"

	"go.uber.org/zap"
)

// LaunchPurchaseFlow requests a buy intent for sku and hands it to host for
// out of process authorization. The flow stays the session's outstanding
// asynchronous operation until HandleResult is called with requestCode.
//
// Failures that happen before the handoff are delivered to cb before
// LaunchPurchaseFlow returns.
func (s *Session) LaunchPurchaseFlow(
	ctx context.Context,
	host Host,
	sku string,
	itemType ItemType,
	requestCode int,
	cb Callback[*Purchase],
	developerPayload string,
) {
	conn := s.mustStartAsync("launchPurchaseFlow")
	cb = once(s.log, "launchPurchaseFlow", cb)

	log := s.log.With(
		zap.String("sku", sku),
		zap.String("item_type", string(itemType)),
		zap.Int("request_code", requestCode),
	)

	finish := func(result Result) {
		s.endAsync()
		cb(result, nil)
	}

	if itemType == ItemTypeSubs && !s.SubscriptionsSupported() {
		finish(NewResult(ErrorSubscriptionsNotAvailable, "Subscriptions are not available."))
		return
	}

	log.Debug("Constructing buy intent")
	resp, err := conn.GetBuyIntent(ctx, s.apiVersion, s.packageName, sku, itemType, developerPayload)
	if err != nil {
		log.Warn("Failed to get buy intent", zap.Error(err))
		finish(NewResult(ErrorRemoteException, "Remote exception while starting purchase flow"))
		return
	}
	if resp.ResponseCode != ResponseOK {
		log.Warn("Unable to buy item", zap.Stringer("response", resp.ResponseCode))
		finish(NewResult(resp.ResponseCode, "Unable to buy item"))
		return
	}
	if resp.BuyIntent == nil {
		log.Warn("Buy intent missing from response")
		finish(NewResult(ErrorBadResponse, "Missing buy intent"))
		return
	}

	s.state.rememberPurchase(&pendingPurchase{
		requestCode: requestCode,
		sku:         sku,
		itemType:    itemType,
		callback:    cb,
	})

	log.Debug("Launching buy intent")
	if err := host.Authorize(ctx, requestCode, resp.BuyIntent); err != nil {
		log.Warn("Failed to hand off buy intent", zap.Error(err))

		// The host never saw the intent, so nobody else will claim it.
		if _, ok, _ := s.state.takePurchase(requestCode); ok {
			cb(NewResult(ErrorSendIntentFailed, "Failed to send intent."), nil)
		}
	}
}

// LaunchSubscriptionPurchaseFlow is LaunchPurchaseFlow for ItemTypeSubs.
func (s *Session) LaunchSubscriptionPurchaseFlow(ctx context.Context, host Host, sku string, requestCode int, cb Callback[*Purchase], developerPayload string) {
	s.LaunchPurchaseFlow(ctx, host, sku, ItemTypeSubs, requestCode, cb, developerPayload)
}

// HandleResult completes the purchase flow started with requestCode. It
// returns false, without side effects, when requestCode does not belong to
// the pending flow so the caller can handle the result elsewhere. Completing
// a flow after Dispose panics like every other use of a disposed session.
func (s *Session) HandleResult(requestCode int, outcome Outcome, data *PurchaseResult) bool {
	pending, ok, err := s.state.takePurchase(requestCode)
	if !ok {
		return false
	}
	if err != nil {
		s.fail("handleResult", err)
	}

	log := s.log.With(
		zap.String("sku", pending.sku),
		zap.String("item_type", string(pending.itemType)),
		zap.Int("request_code", requestCode),
	)
	log.Debug("Ending async operation", zap.String("operation", "launchPurchaseFlow"))

	result, purchase := s.purchaseOutcome(log, pending.itemType, outcome, data)
	pending.callback(result, purchase)
	return true
}

func (s *Session) purchaseOutcome(log *zap.Logger, itemType ItemType, outcome Outcome, data *PurchaseResult) (Result, *Purchase) {
	if outcome == OutcomeCanceled {
		log.Debug("Purchase canceled")
		return NewResult(ErrorUserCancelled, "User canceled."), nil
	}

	if data == nil {
		log.Warn("Null data in purchase result")
		return NewResult(ErrorBadResponse, "Null data in IAB result"), nil
	}

	if outcome != OutcomeApproved {
		log.Warn("Purchase failed", zap.Int("outcome", int(outcome)), zap.Stringer("response", data.ResponseCode))
		return NewResult(ErrorUnknownPurchaseResponse, "Unknown purchase response: "+data.ResponseCode.String()), nil
	}

	if data.ResponseCode != ResponseOK {
		log.Debug("Purchase approved with failing response", zap.Stringer("response", data.ResponseCode))
		return NewResult(data.ResponseCode, "Problem purchasing item."), nil
	}

	if data.PurchaseData == "" || data.DataSignature == "" {
		log.Warn("Purchase data or signature missing from purchase result")
		return NewResult(ErrorUnknown, "IAB returned null purchaseData or dataSignature"), nil
	}

	purchase, err := ParsePurchase(itemType, data.PurchaseData, data.DataSignature)
	if err != nil {
		log.Warn("Failed to parse purchase data", zap.Error(err))
		return NewResult(ErrorBadResponse, "Failed to parse purchase data."), nil
	}

	if !s.verifier.VerifyPurchase(data.PurchaseData, data.DataSignature) {
		log.Warn("Purchase signature verification failed")
		return NewResult(ErrorVerificationFailed, "Signature verification failed for sku "+purchase.SKU), purchase
	}

	log.Debug("Purchase successful", zap.String("order_id", purchase.OrderID))
	return NewResult(ResponseOK, "Success"), purchase
}
