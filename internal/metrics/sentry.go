package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

const (
	// HTTP status code threshold for considering a request successful
	successStatusCodeThreshold = http.StatusBadRequest
)

// SentryMetrics handles custom metrics for Sentry
type SentryMetrics struct {
	enabled bool
}

// NewSentryMetrics creates a new Sentry metrics client
func NewSentryMetrics() *SentryMetrics {
	return &SentryMetrics{
		enabled: true, // Always enabled if Sentry is configured
	}
}

// RecordAPIRequest records API request metrics
func (m *SentryMetrics) RecordAPIRequest(ctx context.Context, endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "api.request")
	defer span.Finish()

	span.SetTag("endpoint", endpoint)
	span.SetTag("status_code", fmt.Sprintf("%d", statusCode))
	span.SetTag("success", fmt.Sprintf("%t", statusCode < successStatusCodeThreshold))

	span.SetData("duration_ms", duration.Milliseconds())
	span.SetData("endpoint", endpoint)
	span.SetData("status_code", statusCode)

	if statusCode < successStatusCodeThreshold {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
	span.Description = fmt.Sprintf("API Request: %s", endpoint)
}

// RecordSessionSummary attaches a finished session to a span
func (m *SentryMetrics) RecordSessionSummary(s scheduler.Summary) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(context.Background(), "engine.session")
	span.Description = fmt.Sprintf("Session %s", s.SessionID)
	span.StartTime = s.Started
	span.SetTag("session_id", s.SessionID)
	span.SetData("chords", s.Chords)
	span.SetData("notes", s.Notes)
	span.SetData("jitter_mean_ms", s.JitterMeanMs)
	span.SetData("jitter_std_ms", s.JitterStdMs)
	span.SetData("max_jitter_ms", s.MaxJitterMs)
	span.SetData("dropped", s.Dropped)

	span.Status = sentry.SpanStatusOK
	if s.Dropped > 0 {
		span.Status = sentry.SpanStatusResourceExhausted
	}
	span.EndTime = s.Ended
	span.Finish()
}

// RecordControlError notes a rejected control message
func (m *SentryMetrics) RecordControlError(address string, err error) {
	if !m.enabled {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: "control",
		Message:  fmt.Sprintf("%s rejected: %v", address, err),
		Level:    sentry.LevelWarning,
	})
}
