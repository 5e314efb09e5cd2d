package api

import (
	"time"

	log "github.com/sirupsen/logrus"

	"colist-api/domain"
)

type streamRequestMetrics struct {
	logger             *log.Logger
	route              string
	start              time.Time
	authDuration       time.Duration
	snapshotsDelivered int
	errorStage         string
}

func newStreamRequestMetrics(logger *log.Logger, route string) *streamRequestMetrics {
	return &streamRequestMetrics{
		logger: logger,
		route:  route,
		start:  time.Now(),
	}
}

// Authenticate resolves the caller while timing the verification.
func (m *streamRequestMetrics) Authenticate(auth Authenticator, header string) (domain.User, error) {
	authStart := time.Now()
	user, err := auth.UserFromAuthHeader(header)
	if d := time.Since(authStart); d > 0 {
		m.authDuration = d
	}
	return user, err
}

func (m *streamRequestMetrics) SnapshotDelivered() {
	m.snapshotsDelivered++
}

func (m *streamRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *streamRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":               m.route,
		"status":              status,
		"total_ms":            durationToMillis(time.Since(m.start)),
		"snapshots_delivered": m.snapshotsDelivered,
	}

	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("stream.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
