package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

type fakePutter struct {
	mu    sync.Mutex
	calls []*cloudwatch.PutMetricDataInput
	done  chan struct{}
}

func (f *fakePutter) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	f.done <- struct{}{}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestDisabledOutsideProduction(t *testing.T) {
	c, err := NewClient(context.Background(), "development")
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	// no client, must not panic
	c.RecordAPIRequest("/health", 200, time.Millisecond)
	c.RecordSessionSummary(scheduler.Summary{})
}

func TestRecordSessionSummary(t *testing.T) {
	fake := &fakePutter{done: make(chan struct{}, 1)}
	c := &Client{client: fake, enabled: true, environment: "production"}

	c.RecordSessionSummary(scheduler.Summary{
		SessionID:   "s1",
		Duration:    90 * time.Second,
		Chords:      45,
		Notes:       180,
		MaxJitterMs: 3.5,
		Dropped:     2,
	})

	select {
	case <-fake.done:
	case <-time.After(2 * time.Second):
		t.Fatal("metrics were not sent")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.calls, 1)
	in := fake.calls[0]
	assert.Equal(t, namespace, aws.ToString(in.Namespace))

	values := map[string]float64{}
	for _, d := range in.MetricData {
		values[aws.ToString(d.MetricName)] = aws.ToFloat64(d.Value)
		require.NotEmpty(t, d.Dimensions)
		assert.Equal(t, "production", aws.ToString(d.Dimensions[len(d.Dimensions)-1].Value))
	}
	assert.Equal(t, 90.0, values["SessionDuration"])
	assert.Equal(t, 45.0, values["ChordsEmitted"])
	assert.Equal(t, 180.0, values["NotesEmitted"])
	assert.Equal(t, 2.0, values["DroppedDeliveries"])
}

func TestCounters(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCounters(start)

	c.RecordRequest(200)
	c.RecordRequest(503)
	c.RecordControl(nil)
	c.RecordControl(errors.New("bad"))
	c.RecordControl(errors.New("bad"))

	hook := SessionEndHook(nil, nil, c)
	hook(scheduler.Summary{SessionID: "a", Chords: 3})

	snap := c.Snapshot(start.Add(90 * time.Second))
	assert.Equal(t, 90.0, snap.UptimeSeconds)
	assert.Equal(t, uint64(2), snap.Requests)
	assert.Equal(t, uint64(1), snap.ServerErrors)
	assert.Equal(t, uint64(1), snap.ControlApplied)
	assert.Equal(t, uint64(2), snap.ControlRejected)
	assert.Equal(t, uint64(1), snap.Sessions)
	require.NotNil(t, snap.LastSession)
	assert.Equal(t, "a", snap.LastSession.SessionID)
}
