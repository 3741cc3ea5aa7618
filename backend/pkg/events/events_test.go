package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"go.uber.org/zap"
)

type mockSNS struct {
	publishedArn string
	publishedMsg []byte
	attributes   map[string]string
	err          error
}

func (m *mockSNS) Publish(_ context.Context, topicArn string, message []byte, attributes map[string]string) error {
	m.publishedArn = topicArn
	m.attributes = attributes
	m.publishedMsg = append([]byte(nil), message...)
	return m.err
}

func TestSNSPublisher_PublishesJSON(t *testing.T) {
	sns := &mockSNS{}
	pub := events.NewSNSPublisher(sns, "arn:aws:sns:ap-south-1:000000000000:checkout-events")

	err := pub.Publish(context.Background(), events.Event{
		Type:           events.TypePaymentSucceeded,
		TransactionID:  "t1",
		GatewayOrderID: "order_1",
		AmountMinor:    10480,
		Currency:       "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sns:ap-south-1:000000000000:checkout-events", sns.publishedArn)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(sns.publishedMsg, &out))
	assert.Equal(t, "payment_succeeded", out["type"])
	assert.Equal(t, float64(10480), out["amount_minor"])
	assert.Equal(t, "payment_succeeded", sns.attributes["event_type"])
	assert.Equal(t, "order_1", sns.attributes["group_id"])
}

func TestLogged_SwallowsPublishErrors(t *testing.T) {
	sns := &mockSNS{err: errors.New("throttled")}
	pub := events.NewLogged(events.NewSNSPublisher(sns, "arn"), zap.NewNop())

	err := pub.Publish(context.Background(), events.Event{Type: events.TypeOrderCompleted})
	assert.NoError(t, err)

	var out events.Event
	require.NoError(t, json.Unmarshal(sns.publishedMsg, &out))
	assert.False(t, out.Timestamp.IsZero())
}

func TestReconciliationAlertRoundTrip(t *testing.T) {
	body, err := events.ReconciliationAlert{
		ExceptionID:    "exc-1",
		Kind:           "order_write_failed",
		GatewayOrderID: "order_1",
		AmountMinor:    10480,
	}.Encode()
	require.NoError(t, err)

	got, err := events.DecodeAlert(body)
	require.NoError(t, err)
	assert.Equal(t, "exc-1", got.ExceptionID)
	assert.Equal(t, int64(10480), got.AmountMinor)

	_, err = events.DecodeAlert(`{"kind":"late_payment"}`)
	assert.Error(t, err)
	_, err = events.DecodeAlert("not json")
	assert.Error(t, err)
}
