package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TypeCheckoutInitiated       = "checkout_initiated"
	TypePaymentSucceeded        = "payment_succeeded"
	TypePaymentFailed           = "payment_failed"
	TypePaymentCancelled        = "payment_cancelled"
	TypeTransactionExpired      = "transaction_expired"
	TypeOrderCreated            = "order_created"
	TypeOrderCompleted          = "order_completed"
	TypeOrderNotDone            = "order_not_done"
	TypeReconciliationException = "reconciliation_exception"
	TypeReconciliationResolved  = "reconciliation_resolved"
)

// Event is the payload published for every checkout and fulfilment change.
type Event struct {
	Type           string    `json:"type"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	GatewayOrderID string    `json:"gateway_order_id,omitempty"`
	PaymentID      string    `json:"payment_id,omitempty"`
	AmountMinor    int64     `json:"amount_minor,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher sends events to the bus.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// TopicPublisher is satisfied by the SNS client in pkg/aws.
type TopicPublisher interface {
	Publish(ctx context.Context, topicArn string, message []byte, attributes map[string]string) error
}

// SNSPublisher publishes events to an SNS topic.
type SNSPublisher struct {
	client   TopicPublisher
	topicArn string
}

func NewSNSPublisher(client TopicPublisher, topicArn string) *SNSPublisher {
	return &SNSPublisher{client: client, topicArn: topicArn}
}

func (p *SNSPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.client.Publish(ctx, p.topicArn, payload, map[string]string{
		"event_type": evt.Type,
		"group_id":   evt.GatewayOrderID,
	})
}

// KafkaPublisher publishes events to a Kafka topic keyed by gateway order id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.GatewayOrderID),
		Value: data,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Logged wraps a publisher so failures are logged instead of returned;
// events are notifications and never block a state transition.
type Logged struct {
	next   Publisher
	logger *zap.Logger
}

func NewLogged(next Publisher, logger *zap.Logger) *Logged {
	return &Logged{next: next, logger: logger}
}

func (l *Logged) Publish(ctx context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := l.next.Publish(ctx, evt); err != nil {
		l.logger.Error("Failed to publish event",
			zap.String("event_type", evt.Type),
			zap.String("gateway_order_id", evt.GatewayOrderID),
			zap.Error(err),
		)
		return nil
	}
	l.logger.Info("Event published",
		zap.String("event_type", evt.Type),
		zap.String("gateway_order_id", evt.GatewayOrderID),
	)
	return nil
}
