package iap

import (
	"context"

	"go.uber.org/zap"
)

// Consumption is the outcome of consuming one purchase.
type Consumption struct {
	Purchase *Purchase
	Result   Result
}

// Consume marks an in-app purchase as consumed so it can be bought again.
// Subscriptions cannot be consumed and the purchase must carry its token.
func (s *Session) Consume(ctx context.Context, purchase *Purchase) error {
	conn := s.mustBeReady("consume")
	return s.consume(ctx, conn, purchase)
}

// ConsumeAsync runs Consume in the background.
func (s *Session) ConsumeAsync(ctx context.Context, purchase *Purchase, cb Callback[*Purchase]) {
	runAsync(ctx, s, "consume", cb, func(ctx context.Context, conn Connection) (Result, *Purchase) {
		consumed := s.consumeAll(ctx, conn, []*Purchase{purchase})
		return consumed[0].Result, purchase
	})
}

// ConsumeMultiAsync consumes purchases one after another in a single
// background operation. The callback receives one Consumption per purchase,
// in order, and the first failing result, or success if there was none.
func (s *Session) ConsumeMultiAsync(ctx context.Context, purchases []*Purchase, cb Callback[[]Consumption]) {
	runAsync(ctx, s, "consume", cb, func(ctx context.Context, conn Connection) (Result, []Consumption) {
		consumed := s.consumeAll(ctx, conn, purchases)
		for _, c := range consumed {
			if c.Result.IsFailure() {
				return c.Result, consumed
			}
		}
		return NewResult(ResponseOK, "Successful consume of all skus."), consumed
	})
}

func (s *Session) consumeAll(ctx context.Context, conn Connection, purchases []*Purchase) []Consumption {
	consumed := make([]Consumption, 0, len(purchases))
	for _, purchase := range purchases {
		result := NewResult(ResponseOK, "Successful consume of sku "+purchase.SKU)
		if err := s.consume(ctx, conn, purchase); err != nil {
			result = ResultFromError(err)
		}
		consumed = append(consumed, Consumption{Purchase: purchase, Result: result})
	}
	return consumed
}

func (s *Session) consume(ctx context.Context, conn Connection, purchase *Purchase) error {
	if purchase.ItemType != ItemTypeInApp {
		return NewError(ErrorInvalidConsumption, "Items of type '"+string(purchase.ItemType)+"' can't be consumed.")
	}

	log := s.log.With(zap.String("sku", purchase.SKU))

	if purchase.Token == "" {
		log.Error("Can't consume purchase without a token")
		return NewError(ErrorMissingToken, "PurchaseInfo is missing token for sku: "+purchase.SKU+" "+purchase.String())
	}

	log.Debug("Consuming sku", zap.String("token", purchase.Token))
	response, err := conn.ConsumePurchase(ctx, s.apiVersion, s.packageName, purchase.Token)
	if err != nil {
		log.Warn("Failed to consume purchase", zap.Error(err))
		return WrapError(err, ErrorRemoteException, "Remote exception while consuming. PurchaseInfo: "+purchase.String())
	}
	if response != ResponseOK {
		log.Debug("Error consuming sku", zap.Stringer("response", response))
		return NewError(response, "Error consuming sku "+purchase.SKU)
	}

	log.Debug("Successfully consumed sku")
	return nil
}
