package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

const (
	namespace                = "TensionEngine"
	httpStatusServerError    = 500
	cloudwatchTimeoutSeconds = 5
)

// metricPutter is the part of the CloudWatch client used here
type metricPutter interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Client wraps CloudWatch client for custom metrics
type Client struct {
	client      metricPutter
	enabled     bool
	environment string
}

// NewClient creates a new CloudWatch metrics client
func NewClient(ctx context.Context, environment string) (*Client, error) {
	// Only enable in production
	if environment != "production" {
		log.Printf("CloudWatch metrics disabled (environment: %s)", environment)
		return &Client{
			enabled:     false,
			environment: environment,
		}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("Failed to load AWS config for CloudWatch: %v", err)
		return &Client{enabled: false, environment: environment}, nil
	}

	log.Printf("CloudWatch metrics enabled (namespace: %s)", namespace)
	return &Client{
		client:      cloudwatch.NewFromConfig(cfg),
		enabled:     true,
		environment: environment,
	}, nil
}

// Enabled reports whether metrics are sent
func (m *Client) Enabled() bool { return m.enabled }

// RecordAPIRequest records an API request metric
func (m *Client) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	go func() {
		metricName := "APIRequests"
		if statusCode >= httpStatusServerError {
			metricName = "APIErrors"
		}
		dims := m.dimensions("Endpoint", endpoint)

		if err := m.putMetrics(context.Background(),
			datum(metricName, 1, types.StandardUnitCount, dims),
			datum("APILatency", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dims),
		); err != nil {
			log.Printf("Failed to record %s metric: %v", metricName, err)
		}
	}()
}

// RecordSessionSummary records the counts and timing quality of a finished session
func (m *Client) RecordSessionSummary(s scheduler.Summary) {
	if !m.enabled {
		return
	}

	go func() {
		if err := m.putMetrics(context.Background(), sessionData(s, m.dimensions())...); err != nil {
			log.Printf("Failed to record session metrics: %v", err)
		}
	}()
}

func sessionData(s scheduler.Summary, dims []types.Dimension) []types.MetricDatum {
	return []types.MetricDatum{
		datum("Sessions", 1, types.StandardUnitCount, dims),
		datum("SessionDuration", s.Duration.Seconds(), types.StandardUnitSeconds, dims),
		datum("ChordsEmitted", float64(s.Chords), types.StandardUnitCount, dims),
		datum("NotesEmitted", float64(s.Notes), types.StandardUnitCount, dims),
		datum("SchedulingJitterMean", s.JitterMeanMs, types.StandardUnitMilliseconds, dims),
		datum("SchedulingJitterMax", s.MaxJitterMs, types.StandardUnitMilliseconds, dims),
		datum("DroppedDeliveries", float64(s.Dropped), types.StandardUnitCount, dims),
	}
}

func (m *Client) dimensions(kv ...string) []types.Dimension {
	dims := make([]types.Dimension, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		dims = append(dims, types.Dimension{Name: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return append(dims, types.Dimension{
		Name:  aws.String("Environment"),
		Value: aws.String(m.environment),
	})
}

func datum(name string, value float64, unit types.StandardUnit, dims []types.Dimension) types.MetricDatum {
	return types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: dims,
	}
}

// putMetrics sends data to CloudWatch in one call
func (m *Client) putMetrics(ctx context.Context, data ...types.MetricDatum) error {
	if !m.enabled || m.client == nil {
		return nil
	}

	cwCtx, cancel := context.WithTimeout(ctx, time.Duration(cloudwatchTimeoutSeconds)*time.Second)
	defer cancel()

	_, err := m.client.PutMetricData(cwCtx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: data,
	})
	return err
}
