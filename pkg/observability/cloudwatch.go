package observability

import (
	"context"
	"sync"
	"time"

	"mindmap/application/realtime"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// maxDatums is the PutMetricData datum limit
const maxDatums = 1000

// CloudWatchAPI is the subset of the CloudWatch client used here
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics buffers relay metrics and ships them to CloudWatch on Flush.
// Lambda handlers flush once per invocation.
type Metrics struct {
	namespace string
	client    CloudWatchAPI
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	datums []types.MetricDatum
}

var _ realtime.Metrics = (*Metrics)(nil)

// NewMetrics creates a new metrics instance. A nil client disables shipping.
func NewMetrics(namespace string, client CloudWatchAPI, logger *zap.Logger) *Metrics {
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
		now:       time.Now,
	}
}

// ConnectionsChanged is not meaningful per Lambda instance and is ignored
func (m *Metrics) ConnectionsChanged(int) {}

// FanoutCompleted implements realtime.Metrics
func (m *Metrics) FanoutCompleted(eventType string, delivered, failed int) {
	dims := []types.Dimension{{Name: aws.String("EventType"), Value: aws.String(eventType)}}
	m.add(m.datum("FramesSent", float64(delivered), dims))
	if failed > 0 {
		m.add(m.datum("FramesFailed", float64(failed), dims))
	}
}

// FrameDropped implements realtime.Metrics
func (m *Metrics) FrameDropped() {
	m.add(m.datum("FramesDropped", 1, nil))
}

// FrameRejected implements realtime.Metrics
func (m *Metrics) FrameRejected(reason string) {
	m.add(m.datum("FramesRejected", 1, []types.Dimension{{Name: aws.String("Reason"), Value: aws.String(reason)}}))
}

// RecordLatency records latency for any operation
func (m *Metrics) RecordLatency(operation string, latency time.Duration) {
	d := m.datum("OperationLatency", float64(latency.Milliseconds()), []types.Dimension{
		{Name: aws.String("Operation"), Value: aws.String(operation)},
	})
	d.Unit = types.StandardUnitMilliseconds
	m.add(d)
}

// Flush sends the buffered datums. Failures are logged, never returned.
func (m *Metrics) Flush(ctx context.Context) {
	m.mu.Lock()
	pending := m.datums
	m.datums = nil
	m.mu.Unlock()

	if m.client == nil || len(pending) == 0 {
		return
	}

	for i := 0; i < len(pending); i += maxDatums {
		end := min(i+maxDatums, len(pending))
		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: pending[i:end],
		})
		if err != nil {
			m.logger.Warn("Failed to send metrics", zap.Error(err), zap.Int("datums", end-i))
		}
	}
}

func (m *Metrics) datum(name string, value float64, dims []types.Dimension) types.MetricDatum {
	return types.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dims,
		Value:      aws.Float64(value),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(m.now()),
	}
}

func (m *Metrics) add(d types.MetricDatum) {
	m.mu.Lock()
	m.datums = append(m.datums, d)
	m.mu.Unlock()
}
