package iap

import (
	"context"

	"go.uber.org/zap"
)

// QueryInventory lists owned items and, when querySkuDetails is set, the
// store listings of the owned items plus moreItemSkus and moreSubsSkus.
// Subscriptions are only queried when the service supports them.
//
// If some purchases failed signature verification the returned inventory
// holds the verified ones and the error carries ErrorVerificationFailed.
func (s *Session) QueryInventory(ctx context.Context, querySkuDetails bool, moreItemSkus, moreSubsSkus []string) (*Inventory, error) {
	conn := s.mustBeReady("queryInventory")
	return s.queryInventory(ctx, conn, querySkuDetails, moreItemSkus, moreSubsSkus)
}

// QueryInventoryAsync runs QueryInventory in the background.
func (s *Session) QueryInventoryAsync(ctx context.Context, querySkuDetails bool, moreItemSkus, moreSubsSkus []string, cb Callback[*Inventory]) {
	runAsync(ctx, s, "refresh inventory", cb, func(ctx context.Context, conn Connection) (Result, *Inventory) {
		inv, err := s.queryInventory(ctx, conn, querySkuDetails, moreItemSkus, moreSubsSkus)
		if err != nil {
			return ResultFromError(err), inv
		}
		return NewResult(ResponseOK, "Inventory refresh successful."), inv
	})
}

func (s *Session) queryInventory(ctx context.Context, conn Connection, querySkuDetails bool, moreItemSkus, moreSubsSkus []string) (*Inventory, error) {
	inv := NewInventory()

	if err := s.queryItemType(ctx, conn, inv, ItemTypeInApp, querySkuDetails, moreItemSkus); err != nil {
		return partial(inv, err), err
	}

	if s.SubscriptionsSupported() {
		if err := s.queryItemType(ctx, conn, inv, ItemTypeSubs, querySkuDetails, moreSubsSkus); err != nil {
			return partial(inv, err), err
		}
	}

	return inv, nil
}

// partial keeps the inventory only when the failure left verified data in it.
func partial(inv *Inventory, err error) *Inventory {
	if ResponseCodeOf(err) == ErrorVerificationFailed {
		return inv
	}
	return nil
}

func (s *Session) queryItemType(ctx context.Context, conn Connection, inv *Inventory, itemType ItemType, querySkuDetails bool, moreSkus []string) error {
	response, err := s.queryPurchases(ctx, conn, inv, itemType)
	if err != nil {
		return WrapError(err, ErrorRemoteException, "Remote exception while refreshing inventory.")
	}
	if response != ResponseOK {
		return NewError(response, "Error refreshing inventory (querying owned "+itemLabel(itemType)+").")
	}

	if !querySkuDetails {
		return nil
	}

	response, err = s.querySkuDetails(ctx, conn, inv, itemType, moreSkus)
	if err != nil {
		return WrapError(err, ErrorRemoteException, "Remote exception while refreshing inventory.")
	}
	if response != ResponseOK {
		return NewError(response, "Error refreshing inventory (querying prices of "+itemLabel(itemType)+").")
	}
	return nil
}

func itemLabel(itemType ItemType) string {
	if itemType == ItemTypeSubs {
		return "subscriptions"
	}
	return "items"
}

// queryPurchases pages through the owned items of itemType. Entries that fail
// verification are left out without stopping the walk; their presence turns
// the final response into ErrorVerificationFailed.
func (s *Session) queryPurchases(ctx context.Context, conn Connection, inv *Inventory, itemType ItemType) (ResponseCode, error) {
	log := s.log.With(zap.String("item_type", string(itemType)))
	log.Debug("Querying owned items")

	verificationFailed := false
	continuationToken := ""
	for {
		log.Debug("Calling getPurchases", zap.String("continuation_token", continuationToken))

		page, err := conn.GetPurchases(ctx, s.apiVersion, s.packageName, itemType, continuationToken)
		if err != nil {
			log.Warn("Failed to get purchases", zap.Error(err))
			return ErrorRemoteException, err
		}
		if page.ResponseCode != ResponseOK {
			log.Debug("getPurchases failed", zap.Stringer("response", page.ResponseCode))
			return page.ResponseCode, nil
		}
		if len(page.OwnedSkus) != len(page.PurchaseData) || len(page.PurchaseData) != len(page.Signatures) {
			log.Warn("getPurchases returned mismatched lists",
				zap.Int("skus", len(page.OwnedSkus)),
				zap.Int("purchase_data", len(page.PurchaseData)),
				zap.Int("signatures", len(page.Signatures)),
			)
			return ErrorBadResponse, nil
		}

		for i, data := range page.PurchaseData {
			signature := page.Signatures[i]
			sku := page.OwnedSkus[i]

			if !s.verifier.VerifyPurchase(data, signature) {
				log.Warn("Purchase signature verification failed, not adding item", zap.String("sku", sku))
				verificationFailed = true
				continue
			}

			purchase, err := ParsePurchase(itemType, data, signature)
			if err != nil {
				log.Warn("Failed to parse purchase data", zap.String("sku", sku), zap.Error(err))
				return ErrorBadResponse, nil
			}
			if purchase.Token == "" {
				log.Warn("Purchase is missing its token", zap.String("sku", sku))
			}

			log.Debug("Sku is owned", zap.String("sku", sku))
			inv.addPurchase(purchase)
		}

		continuationToken = page.ContinuationToken
		if continuationToken == "" {
			break
		}
	}

	if verificationFailed {
		return ErrorVerificationFailed, nil
	}
	return ResponseOK, nil
}

func (s *Session) querySkuDetails(ctx context.Context, conn Connection, inv *Inventory, itemType ItemType, moreSkus []string) (ResponseCode, error) {
	log := s.log.With(zap.String("item_type", string(itemType)))
	log.Debug("Querying sku details")

	skus := union(inv.OwnedSkus(itemType), moreSkus)
	if len(skus) == 0 {
		log.Debug("No skus to query")
		return ResponseOK, nil
	}

	resp, err := conn.GetSkuDetails(ctx, s.apiVersion, s.packageName, itemType, skus)
	if err != nil {
		log.Warn("Failed to get sku details", zap.Error(err))
		return ErrorRemoteException, err
	}

	if resp.DetailsList == nil {
		if resp.ResponseCode != ResponseOK {
			log.Debug("getSkuDetails failed", zap.Stringer("response", resp.ResponseCode))
			return resp.ResponseCode, nil
		}
		log.Warn("getSkuDetails returned neither details nor an error")
		return ErrorBadResponse, nil
	}

	for _, data := range resp.DetailsList {
		details, err := ParseSkuDetails(itemType, data)
		if err != nil {
			log.Warn("Failed to parse sku details", zap.Error(err))
			return ErrorBadResponse, nil
		}
		inv.addSkuDetails(details)
	}
	return ResponseOK, nil
}

// union appends the skus of more that are not already in skus.
func union(skus, more []string) []string {
	seen := make(map[string]struct{}, len(skus)+len(more))
	for _, sku := range skus {
		seen[sku] = struct{}{}
	}
	for _, sku := range more {
		if _, ok := seen[sku]; ok {
			continue
		}
		seen[sku] = struct{}{}
		skus = append(skus, sku)
	}
	return skus
}
