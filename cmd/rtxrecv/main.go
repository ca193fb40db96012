// Package main provides a command-line RTP receiver with RTX recovery.
//
// The receiver listens on a UDP socket or replays a pcap capture, routes
// RTP packets to per-stream sessions, restores retransmitted packets onto
// their media streams and prints per-stream statistics on exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/toxrtx/av"
	"github.com/opd-ai/toxrtx/av/rtp"
	"github.com/opd-ai/toxrtx/transport"
	"github.com/sirupsen/logrus"
)

// CLI configuration
type CLIConfig struct {
	listenAddr  string
	pcapFile    string
	port        uint
	sdpFile     string
	mediaSSRC   uint
	rtxSSRC     uint
	mediaSet    bool
	rtxSet      bool
	apt         string
	logLevel    string
	reportEvery time.Duration
	help        bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	config := &CLIConfig{}

	// Input configuration
	fs.StringVar(&config.listenAddr, "listen", "", "UDP address to receive RTP on (e.g. :5004)")
	fs.StringVar(&config.pcapFile, "pcap", "", "pcap capture to replay instead of listening")
	fs.UintVar(&config.port, "port", 0, "UDP destination port to replay from the capture (0 = any)")

	// Stream configuration
	fs.StringVar(&config.sdpFile, "sdp", "", "SDP file describing media/RTX streams")
	fs.UintVar(&config.mediaSSRC, "media-ssrc", 0, "Media stream SSRC")
	fs.UintVar(&config.rtxSSRC, "rtx-ssrc", 0, "RTX stream SSRC")
	fs.StringVar(&config.apt, "apt", "", "RTX payload type associations, e.g. 97:96,99:98")

	// Logging configuration
	fs.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.DurationVar(&config.reportEvery, "report-interval", 0, "Log aggregated statistics at this interval (0 = off)")

	// Help
	fs.BoolVar(&config.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// SSRC 0 is valid, so presence is tracked separately from the value.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "media-ssrc":
			config.mediaSet = true
		case "rtx-ssrc":
			config.rtxSet = true
		}
	})
	return config, nil
}

// printUsage prints the usage information.
func printUsage(fs *flag.FlagSet) {
	fmt.Println("RTP receiver with RTX recovery")
	fmt.Println("==============================")
	fmt.Println()
	fmt.Println("Options:")
	fs.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # Listen for one stream\n")
	fmt.Printf("  %s -listen :5004 -media-ssrc 1111 -rtx-ssrc 2222 -apt 97:96\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Replay a capture using streams from an SDP offer\n")
	fmt.Printf("  %s -pcap call.pcap -port 5004 -sdp offer.sdp\n", os.Args[0])
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if (config.listenAddr == "") == (config.pcapFile == "") {
		return fmt.Errorf("exactly one of -listen or -pcap is required")
	}

	if config.port > 65535 {
		return fmt.Errorf("invalid port: must be between 0 and 65535")
	}

	explicit := config.mediaSet || config.rtxSet || config.apt != ""
	if config.sdpFile != "" && explicit {
		return fmt.Errorf("-sdp cannot be combined with -media-ssrc, -rtx-ssrc or -apt")
	}
	if config.sdpFile == "" {
		if !config.mediaSet || !config.rtxSet {
			return fmt.Errorf("-media-ssrc and -rtx-ssrc are required without -sdp")
		}
		if config.mediaSSRC > 0xFFFFFFFF || config.rtxSSRC > 0xFFFFFFFF {
			return fmt.Errorf("ssrc values must fit in 32 bits")
		}
		if _, err := parseAssociations(config.apt); err != nil {
			return err
		}
	}

	if _, err := logrus.ParseLevel(config.logLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if config.reportEvery < 0 {
		return fmt.Errorf("invalid report interval: must not be negative")
	}

	return nil
}

// parseAssociations parses "rtx:media[,rtx:media...]" payload type pairs.
// An empty string yields an empty association.
func parseAssociations(s string) (map[uint8]uint8, error) {
	associations := make(map[uint8]uint8)
	if strings.TrimSpace(s) == "" {
		return associations, nil
	}

	for _, pair := range strings.Split(s, ",") {
		rtxPart, mediaPart, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found {
			return nil, fmt.Errorf("invalid payload type association %q: want rtx:media", pair)
		}
		rtxPT, err := strconv.ParseUint(rtxPart, 10, 8)
		if err != nil || rtxPT > rtp.MaxPayloadType {
			return nil, fmt.Errorf("invalid rtx payload type %q", rtxPart)
		}
		mediaPT, err := strconv.ParseUint(mediaPart, 10, 8)
		if err != nil || mediaPT > rtp.MaxPayloadType {
			return nil, fmt.Errorf("invalid media payload type %q", mediaPart)
		}
		if _, dup := associations[uint8(rtxPT)]; dup {
			return nil, fmt.Errorf("duplicate rtx payload type %d", rtxPT)
		}
		associations[uint8(rtxPT)] = uint8(mediaPT)
	}

	return associations, nil
}

// loadStreamConfigs returns the streams to receive, from SDP or flags.
func loadStreamConfigs(config *CLIConfig) ([]rtp.StreamConfig, error) {
	if config.sdpFile != "" {
		data, err := os.ReadFile(config.sdpFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read SDP file: %w", err)
		}
		streams, err := rtp.ParseStreamConfigs(data)
		if err != nil {
			return nil, err
		}
		if len(streams) == 0 {
			return nil, errors.New("SDP file declares no FID ssrc-group")
		}
		return streams, nil
	}

	associations, err := parseAssociations(config.apt)
	if err != nil {
		return nil, err
	}
	return []rtp.StreamConfig{{
		Name:         "cli",
		MediaSSRC:    uint32(config.mediaSSRC),
		RTXSSRC:      uint32(config.rtxSSRC),
		PayloadTypes: associations,
	}}, nil
}

// loggingSink logs every packet delivered to a session.
type loggingSink struct {
	name string
}

func (s loggingSink) OnRTPPacket(packet *rtp.Packet) {
	logrus.WithFields(logrus.Fields{
		"stream":       s.name,
		"ssrc":         packet.SSRC,
		"sequence":     packet.SequenceNumber,
		"timestamp":    packet.Timestamp,
		"payload_type": packet.PayloadType,
		"payload_size": len(packet.Payload),
		"recovered":    packet.Recovered,
	}).Debug("Packet delivered")
}

// setupSignalHandling sets up graceful shutdown on interrupt signals.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("Received signal, shutting down")
		cancel()
	}()
}

// run builds the receive pipeline and blocks until input ends or ctx is done.
func run(ctx context.Context, config *CLIConfig) (*rtp.TransportIntegration, error) {
	streams, err := loadStreamConfigs(config)
	if err != nil {
		return nil, err
	}

	var source transport.Transport
	var replay *transport.PCAPTransport
	if config.listenAddr != "" {
		udp, err := transport.NewUDPTransport(config.listenAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen: %w", err)
		}
		defer udp.Close()
		source = udp
	} else {
		f, err := os.Open(config.pcapFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture: %w", err)
		}
		replay = transport.NewPCAPTransport(f, config.pcapFile, uint16(config.port))
		defer replay.Close()
		source = replay
	}

	integration, err := rtp.NewTransportIntegration(source, nil)
	if err != nil {
		return nil, err
	}

	for _, stream := range streams {
		if _, err := integration.CreateSession(stream, loggingSink{name: stream.Name}); err != nil {
			return nil, err
		}
	}

	if config.reportEvery > 0 {
		aggregator, err := av.NewMetricsAggregator(integration, config.reportEvery)
		if err != nil {
			return nil, err
		}
		aggregator.OnReport(logReport)
		if err := aggregator.Start(); err != nil {
			return nil, err
		}
		defer aggregator.Stop()
	}

	if replay != nil {
		_, err := replay.Replay(ctx)
		return integration, err
	}

	<-ctx.Done()
	return integration, nil
}

// logReport writes one aggregated report to the log.
func logReport(report av.AggregatedReport) {
	logrus.WithFields(logrus.Fields{
		"active_streams": report.SystemMetrics.ActiveStreams,
		"media":          report.SystemMetrics.MediaPackets,
		"recovered":      report.SystemMetrics.RecoveredPackets,
		"rtx_received":   report.SystemMetrics.RTXReceived,
		"dropped":        report.SystemMetrics.Dropped,
		"recovery_ratio": report.SystemMetrics.RecoveryRatio,
		"interval":       report.ReportDuration,
	}).Info("Receive statistics")

	for ssrc, stream := range report.StreamReports {
		logrus.WithFields(logrus.Fields{
			"stream":          stream.Name,
			"media_ssrc":      ssrc,
			"media_delta":     stream.MediaDelta,
			"recovered_delta": stream.RecoveredDelta,
		}).Debug("Stream statistics")
	}
}

// printSummary prints per-stream statistics ordered by media SSRC.
func printSummary(integration *rtp.TransportIntegration) {
	sessions := integration.GetAllSessions()
	ssrcs := make([]uint32, 0, len(sessions))
	for ssrc := range sessions {
		ssrcs = append(ssrcs, ssrc)
	}
	sort.Slice(ssrcs, func(i, j int) bool { return ssrcs[i] < ssrcs[j] })

	for _, ssrc := range ssrcs {
		session := sessions[ssrc]
		stats := session.GetStatistics()
		fmt.Printf("%s media_ssrc=%d media=%d recovered=%d rtx_received=%d dropped_malformed=%d dropped_unknown_pt=%d\n",
			session.Config().Name, ssrc, stats.MediaPackets, stats.RecoveredPackets,
			stats.RTX.Received, stats.RTX.DroppedMalformed, stats.RTX.DroppedUnknownPayloadType)
	}
}

// main is the entry point for the receiver.
func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cliConfig, err := parseCLIFlags(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if cliConfig.help {
		printUsage(fs)
		os.Exit(0)
	}

	if err := validateCLIConfig(cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}

	level, _ := logrus.ParseLevel(cliConfig.logLevel)
	logrus.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	integration, err := run(ctx, cliConfig)
	if integration != nil {
		printSummary(integration)
		_ = integration.Close()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Receiver failed: %v\n", err)
		os.Exit(1)
	}
}
