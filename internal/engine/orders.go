package engine

import (
	"context"
	"fmt"
	"time"

	"fvgbot/internal/models"

	"github.com/sirupsen/logrus"
)

// submit places the order and waits until it is filled. With acceptPartial an order
// cancelled after a partial fill counts as filled for the executed quantity.
// On error the last known state of the order is returned; its ID is empty when placement failed.
func (e *Engine) submit(ctx context.Context, order models.Order, acceptPartial bool) (models.Order, error) {
	placed, err := e.gw.PlaceOrder(ctx, order)
	if err != nil {
		return models.Order{}, err
	}
	if placed.LinkID == "" {
		placed.LinkID = order.LinkID
	}
	return e.awaitFill(ctx, placed, acceptPartial)
}

func (e *Engine) awaitFill(ctx context.Context, order models.Order, acceptPartial bool) (models.Order, error) {
	log := e.logEntry().WithFields(logrus.Fields{
		"order_id":      order.ID,
		"order_link_id": order.LinkID,
		"side":          order.Side,
	})

	deadline := e.now().Add(e.params.FillTimeout)
	current := order
	for {
		if current.Filled() {
			return current, nil
		}
		if current.Closed() {
			if acceptPartial && current.FilledQty > 0 {
				return current, nil
			}
			return current, fmt.Errorf("ордер %s завершён без исполнения: %s", current.ID, current.Status)
		}
		if !e.now().Before(deadline) {
			break
		}

		if err := sleepCtx(ctx, e.params.FillPollInterval); err != nil {
			return current, err
		}

		next, err := e.gw.FetchOrder(ctx, order.Symbol, order.ID)
		if err != nil {
			log.WithError(err).Warn("Не удалось получить статус ордера.")
			continue
		}
		next.LinkID = order.LinkID
		current = next
	}

	log.WithField("status", current.Status).Warn("Не дождались исполнения ордера, отменяем.")
	if err := e.gw.CancelOrder(ctx, order.Symbol, order.ID); err != nil {
		log.WithError(err).Warn("Не удалось отменить ордер.")
	}

	final, err := e.gw.FetchOrder(ctx, order.Symbol, order.ID)
	if err != nil {
		log.WithError(err).Warn("Статус ордера после отмены неизвестен.")
		return current, fmt.Errorf("не дождались исполнения ордера %s за %s: %w", order.ID, e.params.FillTimeout, err)
	}
	final.LinkID = order.LinkID
	if final.Filled() || (acceptPartial && final.FilledQty > 0) {
		return final, nil
	}
	if final.FilledQty > 0 {
		log.WithField("filled_qty", final.FilledQty).Warn("Ордер исполнен частично и отменён.")
	}
	return final, fmt.Errorf("не дождались исполнения ордера %s за %s", order.ID, e.params.FillTimeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
