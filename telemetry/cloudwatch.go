// Package telemetry publishes Sentinel's request-path counters to
// CloudWatch: admissions and denials at the rate limiter, decisions by
// outcome, and security events by threat level. Counters accumulate
// in-process and are flushed as deltas on a fixed interval, so the hot
// path never waits on a CloudWatch call.
package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/byteness/sentinel-fraud/security"
	"github.com/byteness/sentinel-fraud/txn"
)

// DefaultNamespace is the CloudWatch namespace Sentinel metrics are
// published under.
const DefaultNamespace = "Sentinel/Decision"

// DefaultFlushInterval is how often accumulated counters are pushed.
const DefaultFlushInterval = time.Minute

// cloudwatchAPI defines the CloudWatch operations used by Metrics.
// This interface enables testing with mock implementations.
type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics accumulates request-path counters and flushes them to
// CloudWatch on an interval. Safe for concurrent use; all recording
// methods are lock-and-increment only.
type Metrics struct {
	client    cloudwatchAPI
	namespace string

	mu            sync.Mutex
	admitted      int
	denied        int
	decisions     map[txn.Code]int
	eventsByLevel map[security.Level]int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewMetrics creates a Metrics publisher using the provided AWS
// configuration and starts its background flush loop. Call Close to
// stop the loop and push any remaining counters.
func NewMetrics(cfg aws.Config, namespace string) *Metrics {
	return newMetricsWithClient(cloudwatch.NewFromConfig(cfg), namespace, DefaultFlushInterval)
}

// newMetricsWithClient creates a Metrics with a custom client and
// flush interval. This is primarily used for testing.
func newMetricsWithClient(client cloudwatchAPI, namespace string, interval time.Duration) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{
		client:        client,
		namespace:     namespace,
		decisions:     make(map[txn.Code]int),
		eventsByLevel: make(map[security.Level]int),
		done:          make(chan struct{}),
	}
	m.wg.Add(1)
	go m.flushLoop(interval)
	return m
}

// RequestAdmitted records one rate-limiter admission.
func (m *Metrics) RequestAdmitted() {
	m.mu.Lock()
	m.admitted++
	m.mu.Unlock()
}

// RequestDenied records one rate-limiter denial.
func (m *Metrics) RequestDenied() {
	m.mu.Lock()
	m.denied++
	m.mu.Unlock()
}

// DecisionMade records one completed decision by outcome.
func (m *Metrics) DecisionMade(code txn.Code) {
	m.mu.Lock()
	m.decisions[code]++
	m.mu.Unlock()
}

// SecurityEventEmitted records one security-monitor detection by
// threat level.
func (m *Metrics) SecurityEventEmitted(level security.Level) {
	m.mu.Lock()
	m.eventsByLevel[level]++
	m.mu.Unlock()
}

func (m *Metrics) flushLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.flush(context.Background())
		case <-m.done:
			m.flush(context.Background())
			return
		}
	}
}

// flush publishes and resets the accumulated counters. A CloudWatch
// failure is logged and the batch dropped; counters are never allowed
// to back up behind a broken telemetry pipe.
func (m *Metrics) flush(ctx context.Context) {
	m.mu.Lock()
	admitted, denied := m.admitted, m.denied
	decisions := m.decisions
	eventsByLevel := m.eventsByLevel
	m.admitted, m.denied = 0, 0
	m.decisions = make(map[txn.Code]int)
	m.eventsByLevel = make(map[security.Level]int)
	m.mu.Unlock()

	now := time.Now()
	var data []cwtypes.MetricDatum
	if admitted > 0 {
		data = append(data, counterDatum("RequestsAdmitted", float64(admitted), nil, now))
	}
	if denied > 0 {
		data = append(data, counterDatum("RequestsDenied", float64(denied), nil, now))
	}
	for code, n := range decisions {
		data = append(data, counterDatum("Decisions", float64(n), []cwtypes.Dimension{{
			Name:  aws.String("Outcome"),
			Value: aws.String(code.String()),
		}}, now))
	}
	for level, n := range eventsByLevel {
		data = append(data, counterDatum("SecurityEvents", float64(n), []cwtypes.Dimension{{
			Name:  aws.String("ThreatLevel"),
			Value: aws.String(level.String()),
		}}, now))
	}
	if len(data) == 0 {
		return
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		log.Printf("telemetry: put metric data failed: %v", err)
	}
}

func counterDatum(name string, value float64, dims []cwtypes.Dimension, at time.Time) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  aws.Time(at),
		Dimensions: dims,
	}
}

// Close stops the flush loop after one final flush.
func (m *Metrics) Close() {
	close(m.done)
	m.wg.Wait()
}
