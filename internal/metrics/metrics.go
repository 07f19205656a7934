// Package metrics emits business counters to CloudWatch.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/AkasshP/Deliops-Backend/internal/awsx"
)

const namespace = "Deliops/Orders"

// Emitter sends counters via PutMetricData. Emission is best-effort: failures
// are logged and never surface to the calling operation.
type Emitter struct {
	client  awsx.CloudWatchAPI
	log     *zap.Logger
	nowFunc func() time.Time
}

// NewEmitter returns an emitter writing to the Deliops/Orders namespace.
func NewEmitter(client awsx.CloudWatchAPI, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{client: client, log: log, nowFunc: time.Now}
}

// Count records a counter increment.
func (e *Emitter) Count(ctx context.Context, name string, value float64) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  aws.Time(e.nowFunc()),
			},
		},
	}
	if _, err := e.client.PutMetricData(ctx, input); err != nil {
		e.log.Warn("put metric data failed", zap.String("metric", name), zap.Error(err))
	}
}
