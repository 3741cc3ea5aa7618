package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"github.com/yashrajoria/seatserve/backend/services/order-service/models"
	"go.uber.org/zap"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidTransition means the order is no longer pending.
	ErrInvalidTransition       = errors.New("order is not pending")
	ErrPaymentNotVerified      = errors.New("payment verification failed, order cannot be completed")
	ErrVerificationUnavailable = errors.New("payment verification unavailable, retry later")
	ErrExceptionNotFound       = errors.New("reconciliation exception not found")
	ErrAlreadyResolved         = errors.New("reconciliation exception already resolved")
	ErrInvalidStatusFilter     = errors.New("status must be completed or not_done")
	ErrInvalidDay              = errors.New("date must be formatted YYYY-MM-DD")
)

const dayLayout = "2006-01-02"

// FulfillmentService is the staff console over the order store.
type FulfillmentService interface {
	ListPending(ctx context.Context) ([]store.Order, error)
	// ListHistory returns orders created on the venue-local day of day.
	ListHistory(ctx context.Context, day time.Time, statuses []store.OrderStatus) ([]store.Order, error)
	Get(ctx context.Context, id string) (*store.Order, error)
	// MarkCompleted re-verifies the stored payment proof before the order
	// may leave pending.
	MarkCompleted(ctx context.Context, id string) (*store.Order, error)
	MarkNotDone(ctx context.Context, id, note string) (*store.Order, error)
	Receipt(ctx context.Context, id string) (string, error)
	Export(ctx context.Context, day time.Time) (*models.Export, error)
	ListExceptions(ctx context.Context) ([]store.ReconciliationException, error)
	ResolveException(ctx context.Context, id string) (*models.Resolution, error)
	// Today is the current venue-local day.
	Today() time.Time
	ParseDay(value string) (time.Time, error)
}

// Options wires a FulfillmentService. Uploader, Publisher, Metrics and
// Now are optional.
type Options struct {
	Orders       store.OrderRepository
	Transactions store.TransactionRepository
	Exceptions   store.ReconciliationRepository
	Guard        CompletionGuard
	Uploader     aws_pkg.ObjectUploader
	Publisher    events.Publisher
	Metrics      aws_pkg.Counter
	Location     *time.Location
	MerchantName string
	Logger       *zap.Logger
	Now          func() time.Time
}

type fulfillmentServiceImpl struct {
	orders       store.OrderRepository
	transactions store.TransactionRepository
	exceptions   store.ReconciliationRepository
	guard        CompletionGuard
	uploader     aws_pkg.ObjectUploader
	publisher    events.Publisher
	metrics      aws_pkg.Counter
	loc          *time.Location
	merchantName string
	logger       *zap.Logger
	now          func() time.Time
}

func NewFulfillmentService(opts Options) FulfillmentService {
	s := &fulfillmentServiceImpl{
		orders:       opts.Orders,
		transactions: opts.Transactions,
		exceptions:   opts.Exceptions,
		guard:        opts.Guard,
		uploader:     opts.Uploader,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		loc:          opts.Location,
		merchantName: opts.MerchantName,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = aws_pkg.NopCounter{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *fulfillmentServiceImpl) ListPending(ctx context.Context) ([]store.Order, error) {
	orders, err := s.orders.FindByStatus(ctx, store.OrderPending)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return orders, nil
}

func (s *fulfillmentServiceImpl) ListHistory(ctx context.Context, day time.Time, statuses []store.OrderStatus) ([]store.Order, error) {
	if len(statuses) == 0 {
		statuses = []store.OrderStatus{store.OrderCompleted, store.OrderNotDone}
	}
	for _, st := range statuses {
		if st != store.OrderCompleted && st != store.OrderNotDone {
			return nil, ErrInvalidStatusFilter
		}
	}
	from, to := s.dayBounds(day)
	orders, err := s.orders.FindCreatedBetween(ctx, from, to, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list order history: %w", err)
	}
	return orders, nil
}

func (s *fulfillmentServiceImpl) Get(ctx context.Context, id string) (*store.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return order, nil
}

func (s *fulfillmentServiceImpl) MarkCompleted(ctx context.Context, id string) (*store.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != store.OrderPending {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidTransition, order.Status)
	}

	log := s.logger.With(
		zap.String("order_id", order.ID),
		zap.String("gateway_order_id", order.GatewayOrderID),
		zap.String("payment_id", order.PaymentID),
	)

	ok, err := s.guard.Check(ctx, order.GatewayOrderID, order.PaymentID, order.PaymentSignature)
	if err != nil {
		log.Warn("Completion guard unavailable", zap.String("guard", s.guard.Name()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if !ok {
		log.Warn("Refused to complete order with unverified payment", zap.String("guard", s.guard.Name()))
		s.count(ctx, aws_pkg.MetricCompletionRejected)
		return nil, ErrPaymentNotVerified
	}

	if err := s.transition(ctx, order, store.OrderTransition{
		To:         store.OrderCompleted,
		Completion: store.CompletionSuccess,
		At:         s.now().UTC(),
	}); err != nil {
		return nil, err
	}

	log.Info("Order completed")
	s.publishOrder(ctx, events.TypeOrderCompleted, order, "")
	s.count(ctx, aws_pkg.MetricOrdersCompleted)
	return order, nil
}

func (s *fulfillmentServiceImpl) MarkNotDone(ctx context.Context, id, note string) (*store.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != store.OrderPending {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidTransition, order.Status)
	}

	note = strings.TrimSpace(note)
	if err := s.transition(ctx, order, store.OrderTransition{
		To:         store.OrderNotDone,
		Completion: store.CompletionFailed,
		Note:       note,
		At:         s.now().UTC(),
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Order marked not done",
		zap.String("order_id", order.ID),
		zap.String("gateway_order_id", order.GatewayOrderID),
		zap.String("note", note),
	)
	s.publishOrder(ctx, events.TypeOrderNotDone, order, note)
	s.count(ctx, aws_pkg.MetricOrdersNotDone)
	return order, nil
}

// transition applies change with a compare-and-set on pending and mirrors
// it onto order.
func (s *fulfillmentServiceImpl) transition(ctx context.Context, order *store.Order, change store.OrderTransition) error {
	err := s.orders.Transition(ctx, order.ID, store.OrderPending, change)
	switch {
	case errors.Is(err, store.ErrStaleStatus):
		return fmt.Errorf("%w: changed concurrently", ErrInvalidTransition)
	case errors.Is(err, store.ErrNotFound):
		return ErrOrderNotFound
	case err != nil:
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}

	completion, at := change.Completion, change.At
	order.Status = change.To
	order.CompletionStatus = &completion
	order.CompletedAt = &at
	if change.Note != "" {
		order.Note = change.Note
	}
	return nil
}

func (s *fulfillmentServiceImpl) Receipt(ctx context.Context, id string) (string, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return FormatReceipt(order, s.merchantName, s.loc), nil
}

func (s *fulfillmentServiceImpl) Export(ctx context.Context, day time.Time) (*models.Export, error) {
	from, to := s.dayBounds(day)
	orders, err := s.orders.FindCreatedBetween(ctx, from, to,
		store.OrderPending, store.OrderCompleted, store.OrderNotDone)
	if err != nil {
		return nil, fmt.Errorf("load orders for export: %w", err)
	}

	content, err := BuildWorkbook(orders, s.loc)
	if err != nil {
		return nil, err
	}
	export := &models.Export{
		FileName: ExportFileName(from),
		Content:  content,
		Rows:     len(orders),
	}

	if s.uploader != nil {
		location, err := s.uploader.Upload(ctx, "exports/"+export.FileName, content, XLSXContentType)
		if err != nil {
			s.logger.Error("Failed to archive order export", zap.String("file", export.FileName), zap.Error(err))
		} else {
			export.Location = location
		}
	}

	s.logger.Info("Orders exported",
		zap.String("file", export.FileName),
		zap.Int("rows", export.Rows),
		zap.String("location", export.Location),
	)
	s.count(ctx, aws_pkg.MetricOrdersExported)
	return export, nil
}

func (s *fulfillmentServiceImpl) Today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *fulfillmentServiceImpl) ParseDay(value string) (time.Time, error) {
	if value == "" {
		return s.Today(), nil
	}
	day, err := time.ParseInLocation(dayLayout, value, s.loc)
	if err != nil {
		return time.Time{}, ErrInvalidDay
	}
	return day, nil
}

// dayBounds returns [00:00, 24:00) of day in venue time. AddDate keeps the
// bounds correct across DST changes.
func (s *fulfillmentServiceImpl) dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.In(s.loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return from, from.AddDate(0, 0, 1)
}

func (s *fulfillmentServiceImpl) publishOrder(ctx context.Context, typ string, order *store.Order, reason string) {
	_ = s.publisher.Publish(ctx, events.Event{
		Type:           typ,
		TransactionID:  order.TransactionID,
		OrderID:        order.ID,
		GatewayOrderID: order.GatewayOrderID,
		PaymentID:      order.PaymentID,
		AmountMinor:    order.Amounts.TotalMinor,
		Currency:       order.Currency,
		Reason:         reason,
		Timestamp:      s.now().UTC(),
	})
}

func (s *fulfillmentServiceImpl) count(ctx context.Context, metric string) {
	if err := s.metrics.RecordCount(ctx, metric, nil); err != nil {
		s.logger.Debug("Failed to record metric", zap.String("metric", metric), zap.Error(err))
	}
}

// ParseStatuses reads a comma-separated history filter.
func ParseStatuses(raw string) ([]store.OrderStatus, error) {
	var statuses []store.OrderStatus
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st := store.OrderStatus(part)
		if st != store.OrderCompleted && st != store.OrderNotDone {
			return nil, ErrInvalidStatusFilter
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
