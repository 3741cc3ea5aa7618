package integration

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"go.uber.org/zap"
)

// These tests run only when RUN_LOCALSTACK_INTEGRATION=true and an endpoint is available at AWS_ENDPOINT or default localhost:4566
func skipUnlessLocalStack(t *testing.T) {
	if os.Getenv("RUN_LOCALSTACK_INTEGRATION") != "true" {
		t.Skip("skipping localstack integration test; set RUN_LOCALSTACK_INTEGRATION=true to run")
	}
}

func TestExportArchive_LocalStack(t *testing.T) {
	skipUnlessLocalStack(t)
	bucket := os.Getenv("EXPORT_BUCKET")
	if bucket == "" {
		t.Fatalf("EXPORT_BUCKET must be set for integration test")
	}

	cfg, err := aws_pkg.LoadAWSConfig(context.Background())
	require.NoError(t, err)

	location, err := aws_pkg.NewS3Bucket(cfg, bucket).Upload(context.Background(),
		"exports/integration.txt", []byte("ok"), "text/plain")
	require.NoError(t, err)
	require.Equal(t, "s3://"+bucket+"/exports/integration.txt", location)
}

func TestReconciliationQueue_LocalStack(t *testing.T) {
	skipUnlessLocalStack(t)
	queueURL := os.Getenv("RECONCILIATION_QUEUE_URL")
	if queueURL == "" {
		t.Fatalf("RECONCILIATION_QUEUE_URL must be set for integration test")
	}

	cfg, err := aws_pkg.LoadAWSConfig(context.Background())
	require.NoError(t, err)
	queue := aws_pkg.NewSQSQueue(cfg, queueURL, zap.NewNop())

	body, err := events.ReconciliationAlert{ExceptionID: "integration-" + time.Now().Format("150405"), Kind: "late_payment"}.Encode()
	require.NoError(t, err)
	require.NoError(t, queue.SendMessage(context.Background(), body))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	received := make(chan events.ReconciliationAlert, 1)
	go func() {
		_ = queue.StartPolling(ctx, func(_ context.Context, msg string) error {
			alert, err := events.DecodeAlert(msg)
			if err == nil && strings.HasPrefix(alert.ExceptionID, "integration-") {
				select {
				case received <- alert:
				default:
				}
			}
			return nil
		})
	}()

	select {
	case alert := <-received:
		require.Equal(t, "late_payment", alert.Kind)
	case <-ctx.Done():
		t.Fatalf("alert not received from %s", queueURL)
	}
}
