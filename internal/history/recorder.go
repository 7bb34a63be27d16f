package history

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/obscuraswap/solver/internal/order"
)

// Recorder converts settled orders into fill records and forwards them to
// the store and publisher. Both sinks are optional and best-effort.
type Recorder struct {
	store     FillStore
	publisher FillPublisher
	logger    *logrus.Logger
}

func NewRecorder(store FillStore, publisher FillPublisher, logger *logrus.Logger) *Recorder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Recorder{store: store, publisher: publisher, logger: logger}
}

func (r *Recorder) RecordFill(ctx context.Context, o *order.Order, signature string) error {
	fill := FillFromOrder(o, signature)

	if r.store != nil {
		if err := r.store.InsertFill(ctx, fill); err != nil {
			r.logger.WithError(err).Warn("failed to persist fill")
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishFill(ctx, fill); err != nil {
			r.logger.WithError(err).Warn("failed to publish fill")
		}
	}

	return nil
}

// FillFromOrder extracts the public settlement fields of a completed order.
func FillFromOrder(o *order.Order, signature string) *Fill {
	return &Fill{
		Signature:    signature,
		Owner:        o.Owner.String(),
		OrderID:      o.OrderID,
		InputMint:    o.InputMint.String(),
		OutputMint:   o.OutputMint.String(),
		InputAmount:  o.InputAmount,
		OutputAmount: o.OutputAmount,
		FeeAmount:    o.FeeAmount,
		FeeBps:       o.FeeBpsApplied,
		UserTier:     o.UserTier,
		OrderType:    o.OrderType.String(),
		ExecutedAt:   o.ExecutedAt,
	}
}
