package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/leafcart/strain-admin/internal/aws"
)

// Emitter publishes operational counters to CloudWatch. All emission is
// best effort: failures are logged and never surfaced to callers, so a
// metrics outage cannot fail an order transition.
type Emitter struct {
	client    aws.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewEmitter returns an Emitter bound to a namespace. A nil client yields a
// no-op emitter, which tests and local runs use.
func NewEmitter(client aws.CloudWatchAPI, namespace string) *Emitter {
	return &Emitter{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count publishes a single unit-count datapoint.
func (e *Emitter) Count(ctx context.Context, name string) {
	e.put(ctx, name, 1)
}

// Gauge publishes an absolute value (e.g. the low-stock strain count).
func (e *Emitter) Gauge(ctx context.Context, name string, value float64) {
	e.put(ctx, name, value)
}

func (e *Emitter) put(ctx context.Context, name string, value float64) {
	if e == nil || e.client == nil {
		return
	}
	ts := e.nowFunc()
	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &e.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &name,
				Timestamp:  &ts,
				Value:      &value,
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	})
	if err != nil {
		log.Printf("metrics: put %s failed: %v", name, err)
	}
}
