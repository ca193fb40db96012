// Package av provides periodic statistics reporting for RTX receive sessions.
//
// This file aggregates the counters kept by each rtp.Session into
// system-wide totals, per-stream interval deltas and a short rolling
// history suitable for log output or a monitoring dashboard.
package av

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opd-ai/toxrtx/av/rtp"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyRunning is returned when trying to start an already running service.
	ErrAlreadyRunning = errors.New("service is already running")

	// ErrNilSource is returned when the aggregator has nothing to collect from.
	ErrNilSource = errors.New("session source cannot be nil")

	// ErrInvalidInterval is returned for non-positive report intervals.
	ErrInvalidInterval = errors.New("report interval must be positive")
)

// DefaultMaxHistory is the number of samples kept per stream.
const DefaultMaxHistory = 60

// SessionSource supplies the sessions to report on.
// *rtp.TransportIntegration satisfies it.
type SessionSource interface {
	GetAllSessions() map[uint32]*rtp.Session
}

// MetricsAggregator provides aggregated metrics reporting across sessions.
//
// Example usage:
//
//	aggregator, err := NewMetricsAggregator(integration, 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	aggregator.OnReport(func(report AggregatedReport) {
//	    fmt.Printf("streams=%d recovered=%d\n",
//	        report.SystemMetrics.ActiveStreams, report.SystemMetrics.RecoveredPackets)
//	})
//	aggregator.Start()
//	defer aggregator.Stop()
type MetricsAggregator struct {
	source         SessionSource
	reportInterval time.Duration
	maxHistory     int

	mu      sync.RWMutex
	running bool

	streams       map[uint32]*StreamMetricsHistory // Key: media SSRC
	systemMetrics SystemMetrics
	lastReport    time.Time

	reportCallback func(report AggregatedReport)

	timeProvider rtp.TimeProvider

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// StreamMetrics is one sample of a single stream's counters.
type StreamMetrics struct {
	Name      string
	MediaSSRC uint32
	RTXSSRC   uint32

	// Cumulative counters since the session was created.
	MediaPackets              uint64
	RecoveredPackets          uint64
	RTXReceived               uint64
	DroppedMalformed          uint64
	DroppedUnknownPayloadType uint64
	DroppedClosed             uint64

	// Counters accumulated since the previous sample.
	MediaDelta     uint64
	RecoveredDelta uint64

	// RecoveryRatio is recovered packets over received RTX packets.
	RecoveryRatio float64

	LastActivity time.Time
	Timestamp    time.Time
}

// StreamMetricsHistory maintains recent samples for a single stream.
type StreamMetricsHistory struct {
	MediaSSRC uint32
	Current   StreamMetrics
	History   []StreamMetrics // Rolling window, oldest first

	session *rtp.Session
}

// SystemMetrics contains totals across every reported stream.
type SystemMetrics struct {
	ActiveStreams int

	MediaPackets     uint64
	RecoveredPackets uint64
	RTXReceived      uint64
	Dropped          uint64

	RecoveryRatio float64

	LastUpdate time.Time
}

// AggregatedReport contains aggregated metrics for periodic reporting.
type AggregatedReport struct {
	SystemMetrics SystemMetrics

	// Per-stream metrics keyed by media SSRC
	StreamReports map[uint32]StreamMetrics

	Timestamp      time.Time
	ReportDuration time.Duration
}

// NewMetricsAggregator creates an aggregator reading from source every
// reportInterval once started.
func NewMetricsAggregator(source SessionSource, reportInterval time.Duration) (*MetricsAggregator, error) {
	return NewMetricsAggregatorWithTimeProvider(source, reportInterval, rtp.DefaultTimeProvider{})
}

// NewMetricsAggregatorWithTimeProvider creates an aggregator using tp for timestamps.
func NewMetricsAggregatorWithTimeProvider(source SessionSource, reportInterval time.Duration, tp rtp.TimeProvider) (*MetricsAggregator, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if reportInterval <= 0 {
		return nil, ErrInvalidInterval
	}
	if tp == nil {
		tp = rtp.DefaultTimeProvider{}
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewMetricsAggregator",
		"report_interval": reportInterval,
	}).Debug("Creating metrics aggregator")

	return &MetricsAggregator{
		source:         source,
		reportInterval: reportInterval,
		maxHistory:     DefaultMaxHistory,
		streams:        make(map[uint32]*StreamMetricsHistory),
		timeProvider:   tp,
		lastReport:     tp.Now(),
	}, nil
}

// Start begins periodic collection.
func (ma *MetricsAggregator) Start() error {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	if ma.running {
		return ErrAlreadyRunning
	}

	ma.ctx, ma.cancel = context.WithCancel(context.Background())
	ma.done = make(chan struct{})
	ma.running = true
	go ma.reportLoop(ma.ctx, ma.done)

	logrus.WithFields(logrus.Fields{
		"function":        "Start",
		"report_interval": ma.reportInterval,
	}).Info("Metrics aggregator started")

	return nil
}

// Stop halts periodic collection and waits for the report loop to exit.
// Stopping an aggregator that is not running is a no-op.
func (ma *MetricsAggregator) Stop() {
	ma.mu.Lock()
	if !ma.running {
		ma.mu.Unlock()
		return
	}
	ma.running = false
	cancel, done := ma.cancel, ma.done
	ma.mu.Unlock()

	cancel()
	<-done

	logrus.WithField("function", "Stop").Info("Metrics aggregator stopped")
}

// IsRunning reports whether the report loop is active.
func (ma *MetricsAggregator) IsRunning() bool {
	ma.mu.RLock()
	defer ma.mu.RUnlock()
	return ma.running
}

// OnReport registers the callback invoked with every generated report.
func (ma *MetricsAggregator) OnReport(callback func(report AggregatedReport)) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.reportCallback = callback
}

func (ma *MetricsAggregator) reportLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(ma.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := ma.Collect()

			ma.mu.RLock()
			callback := ma.reportCallback
			ma.mu.RUnlock()

			if callback != nil {
				callback(report)
			}
		}
	}
}

// Collect samples every session now and returns the resulting report.
// Streams whose session has gone away are dropped from the history.
func (ma *MetricsAggregator) Collect() AggregatedReport {
	sessions := ma.source.GetAllSessions()
	now := ma.timeProvider.Now()

	ma.mu.Lock()
	defer ma.mu.Unlock()

	for ssrc := range ma.streams {
		if _, ok := sessions[ssrc]; !ok {
			delete(ma.streams, ssrc)
		}
	}

	report := AggregatedReport{
		StreamReports:  make(map[uint32]StreamMetrics, len(sessions)),
		Timestamp:      now,
		ReportDuration: now.Sub(ma.lastReport),
	}

	system := SystemMetrics{ActiveStreams: len(sessions), LastUpdate: now}
	for ssrc, session := range sessions {
		sample := ma.sample(session, now)
		report.StreamReports[ssrc] = sample

		system.MediaPackets += sample.MediaPackets
		system.RecoveredPackets += sample.RecoveredPackets
		system.RTXReceived += sample.RTXReceived
		system.Dropped += sample.DroppedMalformed + sample.DroppedUnknownPayloadType + sample.DroppedClosed
	}
	system.RecoveryRatio = ratio(system.RecoveredPackets, system.RTXReceived)

	ma.systemMetrics = system
	ma.lastReport = now
	report.SystemMetrics = system

	logrus.WithFields(logrus.Fields{
		"function":       "Collect",
		"active_streams": system.ActiveStreams,
		"recovered":      system.RecoveredPackets,
		"dropped":        system.Dropped,
	}).Debug("Collected stream metrics")

	return report
}

// sample records a new StreamMetrics for session. Caller holds ma.mu.
func (ma *MetricsAggregator) sample(session *rtp.Session, now time.Time) StreamMetrics {
	config := session.Config()
	stats := session.GetStatistics()

	sample := StreamMetrics{
		Name:                      config.Name,
		MediaSSRC:                 config.MediaSSRC,
		RTXSSRC:                   config.RTXSSRC,
		MediaPackets:              stats.MediaPackets,
		RecoveredPackets:          stats.RecoveredPackets,
		RTXReceived:               stats.RTX.Received,
		DroppedMalformed:          stats.RTX.DroppedMalformed,
		DroppedUnknownPayloadType: stats.RTX.DroppedUnknownPayloadType,
		DroppedClosed:             stats.DroppedClosed,
		RecoveryRatio:             ratio(stats.RecoveredPackets, stats.RTX.Received),
		LastActivity:              stats.LastActivity,
		Timestamp:                 now,
	}

	// A session recreated under the same media SSRC starts a new history.
	history, ok := ma.streams[config.MediaSSRC]
	if !ok || history.session != session {
		history = &StreamMetricsHistory{MediaSSRC: config.MediaSSRC, session: session}
		ma.streams[config.MediaSSRC] = history
		sample.MediaDelta = sample.MediaPackets
		sample.RecoveredDelta = sample.RecoveredPackets
	} else {
		sample.MediaDelta = counterDelta(sample.MediaPackets, history.Current.MediaPackets)
		sample.RecoveredDelta = counterDelta(sample.RecoveredPackets, history.Current.RecoveredPackets)
	}

	history.Current = sample
	history.History = append(history.History, sample)
	if len(history.History) > ma.maxHistory {
		history.History = history.History[len(history.History)-ma.maxHistory:]
	}

	return sample
}

// counterDelta treats a counter that went backwards as reset.
func counterDelta(current, previous uint64) uint64 {
	if current < previous {
		return current
	}
	return current - previous
}

func ratio(num, den uint64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// GetSystemMetrics returns the totals from the most recent collection.
func (ma *MetricsAggregator) GetSystemMetrics() SystemMetrics {
	ma.mu.RLock()
	defer ma.mu.RUnlock()
	return ma.systemMetrics
}

// GetStreamHistory returns a copy of the samples kept for mediaSSRC.
func (ma *MetricsAggregator) GetStreamHistory(mediaSSRC uint32) ([]StreamMetrics, bool) {
	ma.mu.RLock()
	defer ma.mu.RUnlock()

	history, ok := ma.streams[mediaSSRC]
	if !ok {
		return nil, false
	}
	out := make([]StreamMetrics, len(history.History))
	copy(out, history.History)
	return out, true
}

// SetMaxHistory changes how many samples are kept per stream.
// Values below one are ignored.
func (ma *MetricsAggregator) SetMaxHistory(n int) {
	if n < 1 {
		return
	}
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.maxHistory = n
	for _, history := range ma.streams {
		if len(history.History) > n {
			history.History = history.History[len(history.History)-n:]
		}
	}
}
