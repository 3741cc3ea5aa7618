package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Counter is the slice of the metrics client the services depend on.
type Counter interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
}

// MetricsClient wraps CloudWatch PutMetricData. A disabled client drops
// every data point.
type MetricsClient struct {
	client    *cloudwatch.Client
	namespace string
	enabled   bool
}

func NewMetricsClient(cfg sdkaws.Config, namespace string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &MetricsClient{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
		enabled:   enabled,
	}
}

func (m *MetricsClient) PutMetric(ctx context.Context, metricName string, value float64, unit types.StandardUnit, dimensions map[string]string) error {
	if m == nil || !m.enabled {
		return nil
	}

	dims := make([]types.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, types.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(v)})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []types.MetricDatum{{
			MetricName: sdkaws.String(metricName),
			Value:      sdkaws.Float64(value),
			Unit:       unit,
			Timestamp:  sdkaws.Time(time.Now()),
			Dimensions: dims,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to put metric %s: %w", metricName, err)
	}
	return nil
}

func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, 1, types.StandardUnitCount, dimensions)
}

func (m *MetricsClient) RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}

func (m *MetricsClient) IsEnabled() bool {
	return m != nil && m.enabled
}

// NopCounter discards metrics.
type NopCounter struct{}

func (NopCounter) RecordCount(context.Context, string, map[string]string) error { return nil }

func (NopCounter) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}

const DefaultNamespace = "SeatServe"

const (
	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPErrors   = "HTTPErrors"
	MetricHTTPLatency  = "HTTPLatency"
	MetricHTTP4xx      = "HTTP4xxErrors"
	MetricHTTP5xx      = "HTTP5xxErrors"

	MetricCheckoutInitiated        = "CheckoutInitiated"
	MetricPaymentSucceeded         = "PaymentSucceeded"
	MetricPaymentFailed            = "PaymentFailed"
	MetricPaymentCancelled         = "PaymentCancelled"
	MetricTransactionsExpired      = "TransactionsExpired"
	MetricOrdersCreated            = "OrdersCreated"
	MetricOrdersCompleted          = "OrdersCompleted"
	MetricOrdersNotDone            = "OrdersNotDone"
	MetricCompletionRejected       = "CompletionRejected"
	MetricReconciliationExceptions = "ReconciliationExceptions"
	MetricReconciliationResolved   = "ReconciliationResolved"
	MetricOrdersExported           = "OrdersExported"
	MetricGatewayLatency           = "GatewayLatency"
	MetricSQSMessages              = "SQSMessagesProcessed"
)
