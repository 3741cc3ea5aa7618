package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
	"github.com/yashrajoria/seatserve/backend/pkg/lock"
	"github.com/yashrajoria/seatserve/backend/pkg/pricing"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"github.com/yashrajoria/seatserve/backend/services/checkout-service/models"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart               = pricing.ErrEmptyCart
	ErrInvalidSession          = errors.New("customer name, phone and seat number are required")
	ErrInvalidEvent            = errors.New("malformed checkout event")
	ErrGatewayUnavailable      = gateway.ErrGatewayUnavailable
	ErrAmountMismatch          = errors.New("gateway order amount does not match the quoted total")
	ErrVerificationUnavailable = errors.New("payment verification unavailable, retry later")
	ErrInvalidSignature        = errors.New("payment signature is invalid")
	ErrUserCancelled           = errors.New("payment cancelled by user")
	// ErrReconciliation means money was captured but no order could be
	// recorded; an exception is open for an operator.
	ErrReconciliation      = errors.New("payment received, order pending manual confirmation")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBusy                = errors.New("another request is settling this payment")
)

const (
	defaultLockTTL = 30 * time.Second
	// settleTimeout bounds the writes that follow a verified payment once
	// they are detached from the caller.
	settleTimeout = 15 * time.Second
)

// CheckoutService drives one checkout attempt from cart to a terminal
// payment outcome.
type CheckoutService interface {
	Quote(sess models.Session) (pricing.Breakdown, error)
	Initiate(ctx context.Context, sess models.Session) (*models.CheckoutOptions, error)
	// HandleEvent applies a gateway notification. It is the only place a
	// transaction leaves pending because of a patron action, whichever
	// transport delivered the event. The returned outcome is non-nil
	// whenever the transaction was found, including alongside
	// ErrInvalidSignature, ErrUserCancelled and ErrReconciliation.
	HandleEvent(ctx context.Context, evt gateway.Callback) (*models.Outcome, error)
	Status(ctx context.Context, transactionID string) (*models.TransactionStatus, error)
}

// Options wires a CheckoutService. Publisher, Alerts, Metrics, Locker and
// Now are optional.
type Options struct {
	Gateway      gateway.Client
	Transactions store.TransactionRepository
	Orders       store.OrderRepository
	Exceptions   store.ReconciliationRepository
	Locker       lock.Locker
	Publisher    events.Publisher
	Alerts       aws_pkg.QueueSender
	Metrics      aws_pkg.Counter
	Policy       pricing.Policy
	Currency     string
	KeyID        string
	MerchantName string
	LockTTL      time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

type checkoutServiceImpl struct {
	gateway      gateway.Client
	transactions store.TransactionRepository
	orders       store.OrderRepository
	exceptions   store.ReconciliationRepository
	locker       lock.Locker
	publisher    events.Publisher
	alerts       aws_pkg.QueueSender
	metrics      aws_pkg.Counter
	policy       pricing.Policy
	currency     string
	keyID        string
	merchantName string
	lockTTL      time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func NewCheckoutService(opts Options) CheckoutService {
	s := &checkoutServiceImpl{
		gateway:      opts.Gateway,
		transactions: opts.Transactions,
		orders:       opts.Orders,
		exceptions:   opts.Exceptions,
		locker:       opts.Locker,
		publisher:    opts.Publisher,
		alerts:       opts.Alerts,
		metrics:      opts.Metrics,
		policy:       opts.Policy,
		currency:     opts.Currency,
		keyID:        opts.KeyID,
		merchantName: opts.MerchantName,
		lockTTL:      opts.LockTTL,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker()
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = aws_pkg.NopCounter{}
	}
	if s.policy == nil {
		s.policy = pricing.NewGSTPolicy()
	}
	if s.currency == "" {
		s.currency = "INR"
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Quote prices the cart exactly as Initiate will charge it.
func (s *checkoutServiceImpl) Quote(sess models.Session) (pricing.Breakdown, error) {
	if err := pricing.Validate(sess.Cart); err != nil {
		return pricing.Breakdown{}, err
	}
	return pricing.ComputeBreakdown(sess.Cart, s.policy), nil
}

func (s *checkoutServiceImpl) Initiate(ctx context.Context, sess models.Session) (*models.CheckoutOptions, error) {
	if len(sess.Cart) == 0 {
		return nil, ErrEmptyCart
	}
	if !sess.HasIdentity() {
		return nil, ErrInvalidSession
	}
	breakdown, err := s.Quote(sess)
	if err != nil {
		return nil, err
	}
	amount := breakdown.AmountMinor()
	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	gwOrder, err := s.gateway.CreateOrder(ctx, amount, receipt)
	if err != nil {
		s.logger.Warn("Checkout initiation failed",
			zap.String("receipt", receipt),
			zap.Int64("amount_minor", amount),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create gateway order: %w", err)
	}
	if gwOrder.AmountMinor != amount {
		s.logger.Error("Gateway order amount mismatch",
			zap.String("gateway_order_id", gwOrder.ID),
			zap.Int64("expected", amount),
			zap.Int64("actual", gwOrder.AmountMinor),
		)
		return nil, ErrAmountMismatch
	}

	tx := &store.Transaction{
		ID:             uuid.NewString(),
		GatewayOrderID: gwOrder.ID,
		ReceiptID:      receipt,
		Gateway:        s.gateway.Name(),
		AmountMinor:    amount,
		Currency:       s.currency,
		CustomerName:   strings.TrimSpace(sess.CustomerName),
		CustomerPhone:  strings.TrimSpace(sess.CustomerPhone),
		SeatNumber:     strings.TrimSpace(sess.SeatNumber),
		Screen:         strings.TrimSpace(sess.Screen),
		Items:          store.LineItemsFromCart(sess.Cart),
		Amounts:        store.AmountsFromBreakdown(breakdown),
		Status:         store.TransactionPending,
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		s.logger.Error("Failed to record pending transaction",
			zap.String("gateway_order_id", gwOrder.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	s.logger.Info("Checkout initiated",
		zap.String("transaction_id", tx.ID),
		zap.String("gateway_order_id", tx.GatewayOrderID),
		zap.Int64("amount_minor", amount),
	)
	s.publish(ctx, events.TypeCheckoutInitiated, tx, "", "")
	s.count(ctx, aws_pkg.MetricCheckoutInitiated)

	return &models.CheckoutOptions{
		Key:            s.keyID,
		Gateway:        tx.Gateway,
		GatewayOrderID: tx.GatewayOrderID,
		TransactionID:  tx.ID,
		AmountMinor:    amount,
		Currency:       s.currency,
		Name:           s.merchantName,
		Description:    "Food Order Payment",
		Prefill:        models.Prefill{Name: tx.CustomerName, Contact: tx.CustomerPhone},
		Breakdown:      breakdown,
		ClientSecret:   gwOrder.ClientSecret,
	}, nil
}

func (s *checkoutServiceImpl) HandleEvent(ctx context.Context, evt gateway.Callback) (*models.Outcome, error) {
	if evt.GatewayOrderID == "" {
		return nil, ErrInvalidEvent
	}
	switch evt.Kind {
	case gateway.CallbackCompleted:
		if evt.PaymentID == "" || evt.Signature == "" {
			return nil, ErrInvalidEvent
		}
	case gateway.CallbackDismissed:
	default:
		return nil, ErrInvalidEvent
	}

	release, err := s.locker.Acquire(ctx, "checkout:"+evt.GatewayOrderID, s.lockTTL)
	switch {
	case errors.Is(err, lock.ErrLocked):
		return nil, ErrBusy
	case err != nil:
		// The status compare-and-set still guarantees a single transition.
		s.logger.Warn("Checkout lock unavailable, continuing without it",
			zap.String("gateway_order_id", evt.GatewayOrderID),
			zap.Error(err),
		)
	default:
		defer release()
	}

	tx, err := s.loadTransaction(ctx, evt.GatewayOrderID)
	if err != nil {
		return nil, err
	}

	if evt.Kind == gateway.CallbackDismissed {
		return s.dismiss(ctx, tx)
	}
	return s.complete(ctx, tx, evt)
}

func (s *checkoutServiceImpl) loadTransaction(ctx context.Context, gatewayOrderID string) (*store.Transaction, error) {
	tx, err := s.transactions.FindByGatewayOrderID(ctx, gatewayOrderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return tx, nil
}

// complete applies a payment-completed event. Only a pending transaction
// can be settled; anything else is answered from its current state.
func (s *checkoutServiceImpl) complete(ctx context.Context, tx *store.Transaction, evt gateway.Callback) (*models.Outcome, error) {
	switch tx.Status {
	case store.TransactionSuccess:
		return s.settledSuccess(ctx, tx, evt)
	case store.TransactionFailed:
		return s.latePayment(ctx, tx, evt)
	}

	ok, err := s.gateway.Verify(ctx, evt.GatewayOrderID, evt.PaymentID, evt.Signature)
	if err != nil {
		s.logger.Warn("Payment verification unavailable, transaction left pending",
			zap.String("transaction_id", tx.ID),
			zap.String("gateway_order_id", tx.GatewayOrderID),
			zap.Error(err),
		)
		return models.OutcomeFor(tx), fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	// From here on the outcome is decided. A client hanging up must not
	// leave a verified payment without its order or exception.
	ctx, cancel := detach(ctx)
	defer cancel()

	now := s.now()
	if !ok {
		v := store.Verification{Verified: false, Timestamp: &now, PaymentID: evt.PaymentID, Error: "Invalid signature"}
		if err := s.transactions.Finalize(ctx, tx.ID, store.TransactionFailed, store.ReasonInvalidSignature, v); err != nil {
			return s.afterLostRace(ctx, tx, err, func(fresh *store.Transaction) (*models.Outcome, error) {
				return s.complete(ctx, fresh, evt)
			})
		}
		tx.Status, tx.FailureReason, tx.Verification = store.TransactionFailed, store.ReasonInvalidSignature, v

		s.logger.Warn("Payment signature rejected",
			zap.String("transaction_id", tx.ID),
			zap.String("gateway_order_id", tx.GatewayOrderID),
			zap.String("payment_id", evt.PaymentID),
		)
		s.publish(ctx, events.TypePaymentFailed, tx, evt.PaymentID, string(store.ReasonInvalidSignature))
		s.count(ctx, aws_pkg.MetricPaymentFailed)
		return models.OutcomeFor(tx), ErrInvalidSignature
	}

	v := store.Verification{Verified: true, Timestamp: &now, PaymentID: evt.PaymentID, Signature: evt.Signature}
	if err := s.transactions.Finalize(ctx, tx.ID, store.TransactionSuccess, store.ReasonNone, v); err != nil {
		return s.afterLostRace(ctx, tx, err, func(fresh *store.Transaction) (*models.Outcome, error) {
			return s.complete(ctx, fresh, evt)
		})
	}
	tx.Status, tx.FailureReason, tx.Verification = store.TransactionSuccess, store.ReasonNone, v

	s.logger.Info("Payment verified",
		zap.String("transaction_id", tx.ID),
		zap.String("gateway_order_id", tx.GatewayOrderID),
		zap.String("payment_id", evt.PaymentID),
	)
	s.publish(ctx, events.TypePaymentSucceeded, tx, evt.PaymentID, "")
	s.count(ctx, aws_pkg.MetricPaymentSucceeded)

	return s.createOrder(ctx, tx, evt.PaymentID, evt.Signature)
}

// createOrder records the order for a verified transaction. A failed write
// never turns the payment into a failure: it opens a reconciliation
// exception instead.
func (s *checkoutServiceImpl) createOrder(ctx context.Context, tx *store.Transaction, paymentID, signature string) (*models.Outcome, error) {
	order := store.NewOrder(tx, paymentID, signature)

	if err := s.orders.Create(ctx, order); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			if existing, ferr := s.orders.FindByGatewayOrderID(ctx, tx.GatewayOrderID); ferr == nil {
				out := models.OutcomeFor(tx)
				out.Order, out.ClearCart, out.Duplicate = existing, true, true
				return out, nil
			}
		}
		exc := s.raiseException(ctx, tx, paymentID, signature, store.ExceptionOrderWriteFailed, err.Error())
		out := models.OutcomeFor(tx)
		out.ExceptionID = exc.ID
		return out, ErrReconciliation
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("transaction_id", tx.ID),
		zap.String("gateway_order_id", tx.GatewayOrderID),
	)
	s.publishOrder(ctx, order)
	s.count(ctx, aws_pkg.MetricOrdersCreated)

	out := models.OutcomeFor(tx)
	out.Order, out.ClearCart = order, true
	return out, nil
}

// settledSuccess answers a duplicate completion for a transaction that is
// already verified.
func (s *checkoutServiceImpl) settledSuccess(ctx context.Context, tx *store.Transaction, evt gateway.Callback) (*models.Outcome, error) {
	ctx, cancel := detach(ctx)
	defer cancel()

	out := models.OutcomeFor(tx)
	out.Duplicate = true

	order, err := s.orders.FindByGatewayOrderID(ctx, tx.GatewayOrderID)
	if err == nil {
		out.Order, out.ClearCart = order, true
		return out, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load order: %w", err)
	}

	open, err := s.exceptions.FindByGatewayOrderID(ctx, tx.GatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("load reconciliation exceptions: %w", err)
	}
	for _, e := range open {
		if e.Status == store.ExceptionOpen {
			out.ExceptionID = e.ID
			return out, ErrReconciliation
		}
	}

	// Verified with neither an order nor an exception: the process died
	// between the two writes. Retry the order with the stored proof, or
	// with the redelivered one when the stored row predates it.
	paymentID, signature := tx.Verification.PaymentID, tx.Verification.Signature
	if signature == "" && (paymentID == "" || paymentID == evt.PaymentID) {
		ok, err := s.gateway.Verify(ctx, evt.GatewayOrderID, evt.PaymentID, evt.Signature)
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
		if ok {
			paymentID, signature = evt.PaymentID, evt.Signature
		}
	}
	return s.createOrder(ctx, tx, paymentID, signature)
}

// latePayment handles a completion for an attempt that was already closed
// as failed. A genuine payment here means captured money without an order,
// which is recorded for an operator rather than dropped.
func (s *checkoutServiceImpl) latePayment(ctx context.Context, tx *store.Transaction, evt gateway.Callback) (*models.Outcome, error) {
	out := models.OutcomeFor(tx)
	out.Duplicate = true

	ok, err := s.gateway.Verify(ctx, evt.GatewayOrderID, evt.PaymentID, evt.Signature)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if !ok {
		return out, ErrInvalidSignature
	}

	ctx, cancel := detach(ctx)
	defer cancel()

	existing, err := s.exceptions.FindByGatewayOrderID(ctx, tx.GatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("load reconciliation exceptions: %w", err)
	}
	for _, e := range existing {
		if e.Kind == store.ExceptionLatePayment && e.PaymentID == evt.PaymentID {
			out.ExceptionID = e.ID
			return out, ErrReconciliation
		}
	}

	detail := fmt.Sprintf("verified payment after attempt closed as failed(%s)", tx.FailureReason)
	exc := s.raiseException(ctx, tx, evt.PaymentID, evt.Signature, store.ExceptionLatePayment, detail)
	out.ExceptionID = exc.ID
	return out, ErrReconciliation
}

func (s *checkoutServiceImpl) dismiss(ctx context.Context, tx *store.Transaction) (*models.Outcome, error) {
	if tx.IsTerminal() {
		out := models.OutcomeFor(tx)
		out.Duplicate = true
		if tx.Status == store.TransactionSuccess {
			if order, err := s.orders.FindByGatewayOrderID(ctx, tx.GatewayOrderID); err == nil {
				out.Order, out.ClearCart = order, true
			}
			return out, nil
		}
		if tx.FailureReason == store.ReasonCancelled {
			return out, ErrUserCancelled
		}
		return out, nil
	}

	now := s.now()
	v := store.Verification{Verified: false, Timestamp: &now, Error: "Payment cancelled"}
	if err := s.transactions.Finalize(ctx, tx.ID, store.TransactionFailed, store.ReasonCancelled, v); err != nil {
		return s.afterLostRace(ctx, tx, err, func(fresh *store.Transaction) (*models.Outcome, error) {
			return s.dismiss(ctx, fresh)
		})
	}
	tx.Status, tx.FailureReason, tx.Verification = store.TransactionFailed, store.ReasonCancelled, v

	s.logger.Info("Checkout dismissed",
		zap.String("transaction_id", tx.ID),
		zap.String("gateway_order_id", tx.GatewayOrderID),
	)
	s.publish(ctx, events.TypePaymentCancelled, tx, "", string(store.ReasonCancelled))
	s.count(ctx, aws_pkg.MetricPaymentCancelled)
	return models.OutcomeFor(tx), ErrUserCancelled
}

// detach keeps the values of ctx but not its cancellation, so writes that
// must follow a verified payment outlive the request that carried it.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// afterLostRace reloads tx when its compare-and-set lost and replays the
// event against the state that won. The reload is terminal, so the replay
// cannot loop.
func (s *checkoutServiceImpl) afterLostRace(ctx context.Context, tx *store.Transaction, err error, replay func(*store.Transaction) (*models.Outcome, error)) (*models.Outcome, error) {
	if !errors.Is(err, store.ErrStaleStatus) {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}
	fresh, lerr := s.transactions.FindByID(ctx, tx.ID)
	if lerr != nil {
		return nil, fmt.Errorf("reload transaction: %w", lerr)
	}
	if !fresh.IsTerminal() {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}
	s.logger.Info("Transaction settled concurrently",
		zap.String("transaction_id", tx.ID),
		zap.String("status", string(fresh.Status)),
	)
	return replay(fresh)
}

func (s *checkoutServiceImpl) Status(ctx context.Context, transactionID string) (*models.TransactionStatus, error) {
	tx, err := s.transactions.FindByID(ctx, transactionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}

	status := &models.TransactionStatus{
		TransactionID:  tx.ID,
		GatewayOrderID: tx.GatewayOrderID,
		Status:         tx.Status,
		FailureReason:  tx.FailureReason,
		AmountMinor:    tx.AmountMinor,
		Currency:       tx.Currency,
		Verified:       tx.Verification.Verified,
	}
	if tx.Status == store.TransactionSuccess {
		if order, err := s.orders.FindByGatewayOrderID(ctx, tx.GatewayOrderID); err == nil {
			status.OrderID = order.ID
		}
	}
	return status, nil
}

func (s *checkoutServiceImpl) publish(ctx context.Context, typ string, tx *store.Transaction, paymentID, reason string) {
	_ = s.publisher.Publish(ctx, events.Event{
		Type:           typ,
		TransactionID:  tx.ID,
		GatewayOrderID: tx.GatewayOrderID,
		PaymentID:      paymentID,
		AmountMinor:    tx.AmountMinor,
		Currency:       tx.Currency,
		Reason:         reason,
	})
}

func (s *checkoutServiceImpl) publishOrder(ctx context.Context, order *store.Order) {
	_ = s.publisher.Publish(ctx, events.Event{
		Type:           events.TypeOrderCreated,
		TransactionID:  order.TransactionID,
		OrderID:        order.ID,
		GatewayOrderID: order.GatewayOrderID,
		PaymentID:      order.PaymentID,
		AmountMinor:    order.Amounts.TotalMinor,
		Currency:       order.Currency,
	})
}

func (s *checkoutServiceImpl) count(ctx context.Context, metric string) {
	if err := s.metrics.RecordCount(ctx, metric, map[string]string{"Service": "checkout-service", "Gateway": s.gateway.Name()}); err != nil {
		s.logger.Debug("metric dropped", zap.String("metric", metric), zap.Error(err))
	}
}
