package metrics

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cryptonorm/logger"
)

type cloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type cloudWatchState struct {
	client    cloudWatchAPI
	namespace string
}

var (
	cwState atomic.Pointer[cloudWatchState]

	// one datum per component/metric per interval
	cloudWatchPublishInterval = 60 * time.Second
	timeNow                   = time.Now
	publishMu                 sync.Mutex
	lastPublish               = make(map[string]time.Time)
)

// InitCloudWatch enables publishing. Without a usable AWS configuration the
// function logs a warning and metrics stay local.
func InitCloudWatch(ctx context.Context, region, namespace string) {
	log := logger.GetLogger().WithComponent("cloudwatch")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}
	if namespace == "" {
		namespace = "CryptoNorm"
	}
	cwState.Store(&cloudWatchState{client: cloudwatch.NewFromConfig(cfg), namespace: namespace})
	log.WithFields(logger.Fields{"region": cfg.Region, "namespace": namespace}).Info("initialized CloudWatch client")
}

// EmitMetric logs the metric, hands it to registered handlers and publishes
// numeric values to CloudWatch when configured.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	m, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}
	v, ok := toFloat64(m.Value)
	if !ok {
		return
	}
	publishMetricDatum(context.Background(), m, v)
}

func publishMetricDatum(ctx context.Context, m Metric, value float64) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	key := m.Component + "/" + m.Name
	now := timeNow()
	publishMu.Lock()
	if last, ok := lastPublish[key]; ok && now.Sub(last) < cloudWatchPublishInterval {
		publishMu.Unlock()
		return
	}
	lastPublish[key] = now
	publishMu.Unlock()

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(m.Component)}}
	for k, v := range m.Fields {
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}
	publishMetricsFunc(ctx, state, []cwtypes.MetricDatum{{
		MetricName: aws.String(m.Name),
		Dimensions: dims,
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(value),
		Timestamp:  aws.Time(m.Timestamp),
	}})
}

var publishMetricsFunc = publishMetrics

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}
	names := make([]string, 0, len(data))
	for _, d := range data {
		names = append(names, aws.ToString(d.MetricName))
	}
	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metrics": strings.Join(names, ",")}).Debug("published metrics to CloudWatch")
}

func resetMetricPublishTimes() {
	publishMu.Lock()
	lastPublish = make(map[string]time.Time)
	publishMu.Unlock()
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
