package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"go.uber.org/zap"
)

const sweepBatch = 100

// Sweeper closes attempts whose patron never came back from the hosted
// checkout: pending transactions older than the timeout become
// failed(timeout). A payment that still arrives afterwards is picked up as
// a late payment.
type Sweeper struct {
	transactions store.TransactionRepository
	publisher    events.Publisher
	metrics      aws_pkg.Counter
	timeout      time.Duration
	interval     time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func NewSweeper(transactions store.TransactionRepository, publisher events.Publisher, metrics aws_pkg.Counter, timeout, interval time.Duration, logger *zap.Logger) *Sweeper {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if metrics == nil {
		metrics = aws_pkg.NopCounter{}
	}
	return &Sweeper{
		transactions: transactions,
		publisher:    publisher,
		metrics:      metrics,
		timeout:      timeout,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Pending transaction sweeper started",
		zap.Duration("timeout", s.timeout),
		zap.Duration("interval", s.interval),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Pending transaction sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce expires stale pending transactions and returns how many it
// closed. Transactions settled concurrently are skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.transactions.FindStalePending(ctx, now.Add(-s.timeout), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("find stale transactions: %w", err)
	}

	expired := 0
	for i := range stale {
		tx := &stale[i]
		v := store.Verification{
			Verified:  false,
			Timestamp: &now,
			Error:     fmt.Sprintf("no payment callback within %s", s.timeout),
		}
		err := s.transactions.Finalize(ctx, tx.ID, store.TransactionFailed, store.ReasonTimeout, v)
		if errors.Is(err, store.ErrStaleStatus) {
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire transaction %s: %w", tx.ID, err)
		}
		expired++

		s.logger.Info("Transaction expired",
			zap.String("transaction_id", tx.ID),
			zap.String("gateway_order_id", tx.GatewayOrderID),
			zap.Time("created_at", tx.CreatedAt),
		)
		_ = s.publisher.Publish(ctx, events.Event{
			Type:           events.TypeTransactionExpired,
			TransactionID:  tx.ID,
			GatewayOrderID: tx.GatewayOrderID,
			AmountMinor:    tx.AmountMinor,
			Currency:       tx.Currency,
			Reason:         string(store.ReasonTimeout),
		})
		_ = s.metrics.RecordCount(ctx, aws_pkg.MetricTransactionsExpired, map[string]string{"Service": "checkout-service"})
	}
	return expired, nil
}
