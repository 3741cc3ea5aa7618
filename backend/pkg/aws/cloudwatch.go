package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

const (
	DefaultLogGroup = "/seatserve/services"
	maxLogBatch     = 100
)

// LogShipper buffers log lines and ships them to a CloudWatch Logs stream.
// It satisfies zapcore.WriteSyncer: Write buffers, Sync flushes.
type LogShipper struct {
	client        *cloudwatchlogs.Client
	logGroupName  string
	logStreamName string

	mu      sync.Mutex
	pending []types.InputLogEvent
}

// NewLogShipper ensures the log group exists and opens a fresh stream named
// after the service.
func NewLogShipper(ctx context.Context, cfg sdkaws.Config, logGroup, serviceName string) (*LogShipper, error) {
	if logGroup == "" {
		logGroup = DefaultLogGroup
	}
	s := &LogShipper{
		client:        cloudwatchlogs.NewFromConfig(cfg),
		logGroupName:  logGroup,
		logStreamName: fmt.Sprintf("%s-%d", serviceName, time.Now().Unix()),
	}

	_, err := s.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: sdkaws.String(s.logGroupName),
	})
	var exists *types.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &exists) {
		return nil, fmt.Errorf("failed to create log group: %w", err)
	}

	if _, err := s.client.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    sdkaws.String(s.logGroupName),
		RetentionInDays: sdkaws.Int32(30),
	}); err != nil {
		return nil, fmt.Errorf("failed to set retention policy: %w", err)
	}

	if _, err := s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  sdkaws.String(s.logGroupName),
		LogStreamName: sdkaws.String(s.logStreamName),
	}); err != nil {
		return nil, fmt.Errorf("failed to create log stream: %w", err)
	}
	return s, nil
}

func (s *LogShipper) Write(p []byte) (int, error) {
	event := types.InputLogEvent{
		Message:   sdkaws.String(string(p)),
		Timestamp: sdkaws.Int64(time.Now().UnixMilli()),
	}

	s.mu.Lock()
	s.pending = append(s.pending, event)
	full := len(s.pending) >= maxLogBatch
	s.mu.Unlock()

	if full {
		if err := s.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "cloudwatch log shipping failed: %v\n", err)
		}
	}
	return len(p), nil
}

// Sync sends everything buffered so far.
func (s *LogShipper) Sync() error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  sdkaws.String(s.logGroupName),
		LogStreamName: sdkaws.String(s.logStreamName),
		LogEvents:     batch,
	})
	if err != nil {
		return fmt.Errorf("failed to put log events: %w", err)
	}
	return nil
}
