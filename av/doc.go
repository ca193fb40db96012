// Package av provides statistics reporting for the RTP receive path.
//
// The media plumbing itself lives in the av/rtp sub-package. This package
// sits on top of it and turns the per-session counters into periodic
// reports.
//
// # Metrics Aggregation
//
// A MetricsAggregator samples every session exposed by a SessionSource,
// normally an *rtp.TransportIntegration:
//
//	aggregator, err := av.NewMetricsAggregator(integration, 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	aggregator.OnReport(func(report av.AggregatedReport) {
//	    log.Printf("recovered %d of %d RTX packets",
//	        report.SystemMetrics.RecoveredPackets, report.SystemMetrics.RTXReceived)
//	})
//	if err := aggregator.Start(); err != nil {
//	    return err
//	}
//	defer aggregator.Stop()
//
// Each report carries system totals, a per-stream sample with the deltas
// since the previous sample, and the interval it covers. Collect can be
// called directly to take a sample outside the periodic loop.
//
// # Thread Safety
//
// All MetricsAggregator methods are safe for concurrent use. Report
// callbacks run on the aggregator's own goroutine and must not call Stop.
package av
